package proposal

import (
	"github.com/blockberries/cloak/transaction"
	"github.com/blockberries/cloak/types"
)

// State is the read-only view of last committed state that
// verification consults. Implementations must return the same answers
// for the whole of one verification pass.
type State interface {
	LastHeight() (uint64, error)
	Epoch(height uint64) (uint64, error)
	TotalVotingPower(epoch uint64) (uint64, error)
	Validator(epoch uint64, addr types.ValidatorAddress) (types.Validator, bool, error)
	// Balance returns 0 for accounts that do not exist.
	Balance(token, owner types.Address) (uint64, error)
	// TxQueue returns the wrappers whose payloads must be decrypted in
	// the block being verified, in order.
	TxQueue() ([]transaction.WrapperTx, error)
}
