package proposal

import (
	"github.com/blockberries/cloak/encryption"
	"github.com/blockberries/cloak/transaction"
	"github.com/blockberries/cloak/types"
)

// CheckDecrypted checks a decrypted transaction against the wrapper
// queued at cursor, and returns the result together with the cursor
// for the next decrypted transaction.
//
// Decrypted payloads are self-certifying: a plaintext whose hash
// matches the queued commitment is the payload. An Undecryptable claim
// is accepted only if the queued wrapper really fails to open with d,
// or opens to a payload that does not match its commitment.
func CheckDecrypted(queue []transaction.WrapperTx, cursor int, tx *transaction.DecryptedTx, d encryption.Decrypter) (types.TxResult, int) {
	if cursor >= len(queue) {
		return result(ExtraTxs, "Received more decrypted txs than expected"), cursor
	}
	expected := &queue[cursor]
	cursor++

	if tx.HashCommitment() != expected.TxHash {
		return result(InvalidOrder, "Process proposal rejected a decrypted transaction that "+
			"violated the tx order determined in the previous block"), cursor
	}
	if tx.Kind == transaction.DecryptedPayload || undecryptable(expected, d) {
		return result(Ok, infoAccepted), cursor
	}
	return result(InvalidTx, "The encrypted payload of tx was incorrectly marked as un-decryptable"), cursor
}

func undecryptable(w *transaction.WrapperTx, d encryption.Decrypter) bool {
	inner, err := w.Decrypt(d)
	if err != nil {
		return true
	}
	return inner.Hash() != w.TxHash
}
