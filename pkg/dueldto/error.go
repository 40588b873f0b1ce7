package dueldto

// DomainError is the wire form of an operation failure. Retryable is
// true only for optimistic-write conflicts where re-issuing the same
// intent against fresh state can succeed.
type DomainError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

func (e DomainError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Code != "" {
		return e.Code
	}
	return "duelboard error"
}

// Error codes surfaced to clients.
const (
	CodeSeatConflict      = "seat_conflict"
	CodeGameFull          = "game_full"
	CodeNotSeated         = "not_seated"
	CodeNotPlaying        = "not_playing"
	CodeWrongTurn         = "wrong_turn"
	CodeNotYourPiece      = "not_your_piece"
	CodeEmptySquare       = "empty_square"
	CodeIllegalMove       = "illegal_move"
	CodeBadSquare         = "bad_square"
	CodeConflict          = "conflict"
	CodeInsufficientFunds = "insufficient_funds"
	CodeBadRequest        = "bad_request"
	CodeInternal          = "internal"
)
