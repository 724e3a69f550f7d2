package types

// ReceivedProposal is a proposal received from the round's leader
// for verification.
type ReceivedProposal struct {
	Height   uint64           `cramberry:"1"`
	Time     Timestamp        `cramberry:"2"`
	Proposer ValidatorAddress `cramberry:"3"`
	Hash     Hash             `cramberry:"4"`
	Txs      []Tx             `cramberry:"5"`
}

// ProposalStatus is the validator's decision on a proposal.
type ProposalStatus uint8

const (
	ProposalUnknown ProposalStatus = 0
	ProposalAccept  ProposalStatus = 1
	ProposalReject  ProposalStatus = 2
)

func (s ProposalStatus) String() string {
	switch s {
	case ProposalAccept:
		return "Accept"
	case ProposalReject:
		return "Reject"
	default:
		return "Unknown"
	}
}

// TxResult is the outcome of verifying a single transaction.
type TxResult struct {
	// Result code. 0 = accepted.
	Code uint32 `cramberry:"1"`
	// Human-readable reason (debugging only).
	Info string `cramberry:"2"`
}

// OK returns true if the transaction passed verification.
func (r TxResult) OK() bool { return r.Code == 0 }

// ProposalVerdict is the application's decision on a received
// proposal. TxResults always holds one entry per proposed
// transaction, in proposal order, whatever the Status.
type ProposalVerdict struct {
	Status    ProposalStatus `cramberry:"1"`
	TxResults []TxResult     `cramberry:"2"`
}

// Accepted returns true if the proposal may be voted for.
func (v ProposalVerdict) Accepted() bool { return v.Status == ProposalAccept }
