package match

import (
	"time"

	"github.com/duelboard/duelboard/internal/board"
)

// Status is the session lifecycle state.
type Status string

const (
	StatusWaiting  Status = "WAITING"
	StatusPlaying  Status = "PLAYING"
	StatusFinished Status = "FINISHED"
)

// Session is the single shared game record. All mutation goes through
// optimistic read-modify-write transactions; the struct itself carries
// no locking.
type Session struct {
	Board   board.Board `json:"board"`
	Turn    board.Side  `json:"turn"`
	WhiteID string      `json:"white_id,omitempty"`
	BlackID string      `json:"black_id,omitempty"`
	Status  Status      `json:"status"`

	WinnerID string `json:"winner_id,omitempty"`
	// SettledFor records the winner a settlement has already been
	// applied for, making settlement at-most-once per finish.
	SettledFor string `json:"settled_for,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewSession returns the created state: initial layout, White to move,
// no seats taken.
func NewSession() *Session {
	now := time.Now()
	return &Session{
		Board:     board.Initial(),
		Turn:      board.SideWhite,
		Status:    StatusWaiting,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// restore rewinds the session to its created state in place.
func (s *Session) restore() {
	s.Board = board.Initial()
	s.Turn = board.SideWhite
	s.WhiteID = ""
	s.BlackID = ""
	s.Status = StatusWaiting
	s.WinnerID = ""
	s.SettledFor = ""
	s.CreatedAt = time.Now()
}

// SideOf returns the seat color held by playerID.
func (s *Session) SideOf(playerID string) (board.Side, bool) {
	if playerID == "" {
		return "", false
	}
	switch playerID {
	case s.WhiteID:
		return board.SideWhite, true
	case s.BlackID:
		return board.SideBlack, true
	}
	return "", false
}

// OpponentOf returns the id seated opposite playerID, if any.
func (s *Session) OpponentOf(playerID string) string {
	if playerID == "" {
		return ""
	}
	switch playerID {
	case s.WhiteID:
		return s.BlackID
	case s.BlackID:
		return s.WhiteID
	}
	return ""
}

// Errors
var (
	ErrInvalidPlayer = errf("invalid player id")
	ErrAlreadySeated = errf("player already holds a seat")
	ErrGameFull      = errf("both seats are taken")
	ErrNotSeated     = errf("player holds no seat")
	ErrNotPlaying    = errf("game is not in progress")
	ErrWrongTurn     = errf("not this player's turn")
	ErrNotYourPiece  = errf("piece belongs to the other side")
	ErrEmptySquare   = errf("no piece on the source square")
	ErrIllegalMove   = errf("illegal move")
	ErrBadSquare     = errf("malformed square")
	// ErrConflict reports a lost optimistic write; the caller may
	// safely retry the same intent against fresh state.
	ErrConflict = errf("session changed concurrently")
)

type staticErr string

func (e staticErr) Error() string { return string(e) }
func errf(s string) error         { return staticErr(s) }
