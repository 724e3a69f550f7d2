package types

import "strings"

// Capabilities is a bitfield declaring which optional interfaces
// the application supports.
type Capabilities uint8

const (
	CapTxScreening Capabilities = 1 << iota // 0b0001
)

// Has returns true if all bits in cap are set.
func (c Capabilities) Has(cap Capabilities) bool {
	return c&cap == cap
}

// String returns a human-readable representation.
func (c Capabilities) String() string {
	var caps []string
	if c.Has(CapTxScreening) {
		caps = append(caps, "TxScreening")
	}
	if len(caps) == 0 {
		return "none"
	}
	return strings.Join(caps, "|")
}
