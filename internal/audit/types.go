package audit

import (
	"context"
	"time"
)

// MatchResult is the durable record of one settled game.
type MatchResult struct {
	ID         string
	WinnerID   string
	LoserID    string
	Award      int64
	Penalty    int64
	FinishedAt time.Time
}

// ExchangeEntry is the durable copy of a committed exchange request.
type ExchangeEntry struct {
	ID          string
	PlayerID    string
	ExternalRef string
	SourceUnits int64
	Cost        int64
	Status      string
	CreatedAt   time.Time
}

// Repository persists audit records. Writes are best-effort: the
// authoritative state lives in the session/ledger store, and callers
// only log failures here.
type Repository interface {
	SaveMatchResult(ctx context.Context, r *MatchResult) error
	SaveExchange(ctx context.Context, e *ExchangeEntry) error
	Close() error
}
