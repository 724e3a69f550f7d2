package types

// HandshakeRequest is sent by the engine on every startup.
type HandshakeRequest struct {
	ChainID string `cramberry:"1"`
	// The last block the ENGINE committed. Nil = genesis (fresh chain).
	LastCommitted *BlockID `cramberry:"2"`
}

// HandshakeResponse is the application's reply, reporting its
// state and capabilities.
type HandshakeResponse struct {
	// The last block the APP committed. Nil = app has no state.
	LastBlock *BlockID `cramberry:"1"`
	// Capabilities this app supports. Drives engine behavior.
	Capabilities Capabilities `cramberry:"2"`
}

// HeaderRequest asks the application to check a block header.
type HeaderRequest struct {
	Height   uint64           `cramberry:"1"`
	Hash     Hash             `cramberry:"2"`
	Proposer ValidatorAddress `cramberry:"3"`
}

// HeaderVerdict is the (empty) reply to a header check. Header
// verification is stateless and always succeeds.
type HeaderVerdict struct{}

// RevertRequest tells the application a proposal it processed was
// not decided.
type RevertRequest struct {
	Height uint64 `cramberry:"1"`
	Hash   Hash   `cramberry:"2"`
}

// RevertResult is the (empty) reply to RevertRequest.
type RevertResult struct{}
