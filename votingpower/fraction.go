// Package votingpower provides exact fractional voting power.
//
// A Fraction is a validator's (or a group of validators') share of an
// epoch's total voting power. All arithmetic is exact; comparisons
// never round.
package votingpower

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"
)

var (
	ErrZeroTotal  = errors.New("votingpower: total voting power is zero")
	ErrOutOfRange = errors.New("votingpower: fraction exceeds one")
	ErrOverflow   = errors.New("votingpower: arithmetic overflow")
)

// Fraction is an exact rational number in [0, 1].
type Fraction struct {
	num uint256.Int
	den uint256.Int
}

// TwoThirds returns the supermajority threshold. A quorum needs
// strictly more than this.
func TwoThirds() Fraction {
	return Fraction{num: *uint256.NewInt(2), den: *uint256.NewInt(3)}
}

// Zero returns the empty share.
func Zero() Fraction {
	return Fraction{den: *uint256.NewInt(1)}
}

// New returns power/total.
func New(power, total uint64) (Fraction, error) {
	if total == 0 {
		return Fraction{}, ErrZeroTotal
	}
	if power > total {
		return Fraction{}, fmt.Errorf("%w: %d/%d", ErrOutOfRange, power, total)
	}
	return Fraction{num: *uint256.NewInt(power), den: *uint256.NewInt(total)}, nil
}

// Add returns f + g. Shares over the same total add their numerators;
// otherwise the sum is taken over the product of the denominators.
func (f Fraction) Add(g Fraction) (Fraction, error) {
	var out Fraction
	if f.den.Eq(&g.den) {
		if _, overflow := out.num.AddOverflow(&f.num, &g.num); overflow {
			return Fraction{}, ErrOverflow
		}
		out.den = f.den
	} else {
		var a, b uint256.Int
		if _, overflow := a.MulOverflow(&f.num, &g.den); overflow {
			return Fraction{}, ErrOverflow
		}
		if _, overflow := b.MulOverflow(&g.num, &f.den); overflow {
			return Fraction{}, ErrOverflow
		}
		if _, overflow := out.num.AddOverflow(&a, &b); overflow {
			return Fraction{}, ErrOverflow
		}
		if _, overflow := out.den.MulOverflow(&f.den, &g.den); overflow {
			return Fraction{}, ErrOverflow
		}
	}
	if out.num.Gt(&out.den) {
		return Fraction{}, fmt.Errorf("%w: %s", ErrOutOfRange, out)
	}
	return out, nil
}

// Cmp compares f and g and returns -1, 0 or +1.
func (f Fraction) Cmp(g Fraction) int {
	var a, b uint256.Int
	_, o1 := a.MulOverflow(&f.num, &g.den)
	_, o2 := b.MulOverflow(&g.num, &f.den)
	if o1 || o2 {
		x := f.num.ToBig()
		x.Mul(x, g.den.ToBig())
		y := g.num.ToBig()
		y.Mul(y, f.den.ToBig())
		return x.Cmp(y)
	}
	return a.Cmp(&b)
}

// GreaterThan reports whether f > g.
func (f Fraction) GreaterThan(g Fraction) bool {
	return f.Cmp(g) > 0
}

// IsZero reports whether f is 0.
func (f Fraction) IsZero() bool {
	return f.num.IsZero()
}

func (f Fraction) String() string {
	return f.num.Dec() + "/" + f.den.Dec()
}
