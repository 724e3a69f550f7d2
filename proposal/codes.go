package proposal

import (
	"fmt"

	"github.com/blockberries/cloak/types"
)

// ErrorCode is the result code of verifying one transaction. The
// numeric values are part of consensus and must never change.
type ErrorCode uint32

const (
	Ok                   ErrorCode = 0
	InvalidTx            ErrorCode = 1
	InvalidSig           ErrorCode = 2
	WasmRuntimeError     ErrorCode = 3
	InvalidOrder         ErrorCode = 4
	ExtraTxs             ErrorCode = 5
	Undecryptable        ErrorCode = 6
	InvalidVoteExtension ErrorCode = 7
)

var codeNames = [...]string{
	Ok:                   "Ok",
	InvalidTx:            "InvalidTx",
	InvalidSig:           "InvalidSig",
	WasmRuntimeError:     "WasmRuntimeError",
	InvalidOrder:         "InvalidOrder",
	ExtraTxs:             "ExtraTxs",
	Undecryptable:        "Undecryptable",
	InvalidVoteExtension: "InvalidVoteExtension",
}

// ParseErrorCode converts a wire code, failing on codes outside the table.
func ParseErrorCode(code uint32) (ErrorCode, error) {
	if code >= uint32(len(codeNames)) {
		return 0, fmt.Errorf("proposal: unknown result code %d", code)
	}
	return ErrorCode(code), nil
}

func (c ErrorCode) String() string {
	if uint32(c) < uint32(len(codeNames)) {
		return codeNames[c]
	}
	return fmt.Sprintf("ErrorCode(%d)", uint32(c))
}

// IsRecoverable reports whether a transaction failing with c may stay
// in an accepted proposal. Such transactions are screened out when the
// block is executed. Unrecoverable codes reject the whole proposal.
func (c ErrorCode) IsRecoverable() bool {
	switch c {
	case Ok, InvalidTx, InvalidSig, WasmRuntimeError, Undecryptable:
		return true
	default:
		return false
	}
}

func result(c ErrorCode, info string) types.TxResult {
	return types.TxResult{Code: uint32(c), Info: info}
}

const infoAccepted = "Process proposal accepted this transaction"
