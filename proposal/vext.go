package proposal

import (
	"fmt"

	"github.com/blockberries/cloak"
	"github.com/blockberries/cloak/transaction"
	"github.com/blockberries/cloak/types"
	"github.com/blockberries/cloak/votingpower"
	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"
)

const (
	infoInvalidExtension = "Process proposal rejected this proposal because at least one of the " +
		"vote extensions included was invalid."
	infoInsufficientStake = "Process proposal rejected this proposal because the backing stake of " +
		"the vote extensions published in the proposal was insufficient"
)

// RejectedExtensionError explains why one vote extension in a digest
// failed verification.
type RejectedExtensionError struct {
	Validator types.ValidatorAddress
	Reason    string
}

func (e *RejectedExtensionError) Error() string {
	return fmt.Sprintf("vote extension of %s rejected: %s", e.Validator, e.Reason)
}

// VerifyDigest checks a vote-extension digest carried by a proposal.
//
// Every extension in the digest must be signed by a validator active
// in the epoch of lastHeight, for lastHeight; a single bad extension
// rejects the digest. The signers must then hold strictly more than
// two thirds of the epoch's voting power.
//
// An error means committed state is unreadable or inconsistent, not
// that the digest is bad.
func VerifyDigest(st State, lastHeight uint64, d *transaction.VoteExtensionDigest, logger *zap.Logger) (types.TxResult, error) {
	exts, err := d.Decompress(lastHeight)
	if err != nil {
		logger.Warn("Malformed vote extension digest", zap.Error(err))
		return result(InvalidVoteExtension, infoInvalidExtension), nil
	}

	epoch, err := st.Epoch(lastHeight)
	if err != nil {
		return types.TxResult{}, fmt.Errorf("proposal: epoch of height %d: %w", lastHeight, err)
	}
	total, err := st.TotalVotingPower(epoch)
	if err != nil {
		return types.TxResult{}, fmt.Errorf("proposal: total voting power of epoch %d: %w", epoch, err)
	}

	var rejected *multierror.Error
	powers := make([]uint64, 0, len(exts))
	for i := range exts {
		ext := &exts[i]
		v, ok, err := st.Validator(epoch, ext.Ext.Validator)
		if err != nil {
			return types.TxResult{}, fmt.Errorf("proposal: validator %s: %w", ext.Ext.Validator, err)
		}
		switch {
		case !ok:
			rejected = multierror.Append(rejected, &RejectedExtensionError{
				Validator: ext.Ext.Validator,
				Reason:    fmt.Sprintf("not an active validator in epoch %d", epoch),
			})
		case ext.Ext.BlockHeight != lastHeight:
			rejected = multierror.Append(rejected, &RejectedExtensionError{
				Validator: ext.Ext.Validator,
				Reason:    fmt.Sprintf("height %d, expected %d", ext.Ext.BlockHeight, lastHeight),
			})
		default:
			if err := ext.Verify(v.ProtocolKey); err != nil {
				rejected = multierror.Append(rejected, &RejectedExtensionError{
					Validator: ext.Ext.Validator,
					Reason:    err.Error(),
				})
				continue
			}
			powers = append(powers, v.Power)
		}
	}
	if err := rejected.ErrorOrNil(); err != nil {
		logger.Warn("Rejected vote extensions in digest",
			zap.Uint64("height", lastHeight),
			zap.Int("n_rejected", rejected.Len()),
			zap.Error(err),
		)
		return result(InvalidVoteExtension, infoInvalidExtension), nil
	}

	backing := votingpower.Zero()
	for _, p := range powers {
		share, err := votingpower.New(p, total)
		if err != nil {
			return types.TxResult{}, cloak.NewHaltError(lastHeight,
				fmt.Sprintf("voting power %d of epoch %d is inconsistent with total %d: %v", p, epoch, total, err))
		}
		if backing, err = backing.Add(share); err != nil {
			return types.TxResult{}, cloak.NewHaltError(lastHeight,
				fmt.Sprintf("backing stake in epoch %d exceeds total %d: %v", epoch, total, err))
		}
	}
	if backing.GreaterThan(votingpower.TwoThirds()) {
		return result(Ok, infoAccepted), nil
	}
	logger.Debug("Insufficient backing stake in digest", zap.Stringer("backing", backing))
	return result(InvalidVoteExtension, infoInsufficientStake), nil
}
