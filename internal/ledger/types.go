package ledger

import "time"

// ExchangeStatus is the lifecycle state of an exchange request. The
// core only ever writes PENDING; downstream reconciliation owns the
// rest of the lifecycle.
type ExchangeStatus string

const (
	ExchangePending ExchangeStatus = "PENDING"
)

// ExchangeRecord is an append-only record of one coin withdrawal
// toward an external SM account.
type ExchangeRecord struct {
	ID          string         `json:"id"`
	PlayerID    string         `json:"player_id"`
	ExternalRef string         `json:"external_ref"`
	SourceUnits int64          `json:"source_units"`
	Cost        int64          `json:"cost"`
	Status      ExchangeStatus `json:"status"`
	CreatedAt   time.Time      `json:"created_at"`
}

// Errors
var (
	ErrInvalidPlayer     = errf("invalid player id")
	ErrInvalidAmount     = errf("exchange amount must be positive")
	ErrInsufficientFunds = errf("insufficient funds")
	// ErrConflict reports a lost optimistic write; the caller may
	// safely retry against fresh state.
	ErrConflict = errf("balance changed concurrently")
)

type staticErr string

func (e staticErr) Error() string { return string(e) }
func errf(s string) error         { return staticErr(s) }
