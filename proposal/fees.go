package proposal

import (
	"fmt"

	"github.com/blockberries/cloak/encryption"
	"github.com/blockberries/cloak/transaction"
	"github.com/blockberries/cloak/types"
)

// CheckWrapper checks that a wrapper's payload is a well-formed
// ciphertext and that its fee payer can cover the fee. txHash
// identifies the wrapper in the result message. Nothing is debited.
func CheckWrapper(st State, w *transaction.WrapperTx, txHash types.Hash) (types.TxResult, error) {
	if !encryption.Validate(w.Ciphertext) {
		return result(InvalidTx, fmt.Sprintf("The ciphertext of the wrapped tx %s is invalid", txHash)), nil
	}
	balance, err := st.Balance(w.Fee.Token, w.FeePayer())
	if err != nil {
		return types.TxResult{}, fmt.Errorf("proposal: fee payer balance: %w", err)
	}
	if w.Fee.Amount <= balance {
		return result(Ok, infoAccepted), nil
	}
	return result(InvalidTx, "The address given does not have sufficient balance to pay fee"), nil
}
