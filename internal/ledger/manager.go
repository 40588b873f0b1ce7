package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/duelboard/duelboard/internal/audit"
	"github.com/duelboard/duelboard/internal/obslog"
)

// BalanceKey is the Redis key holding a player's coin balance.
// Exported so the settlement transaction can WATCH balance keys
// together with the session key.
func BalanceKey(playerID string) string { return "duel:balance:" + strings.TrimSpace(playerID) }

func exchangeLogKey(playerID string) string { return "duel:exchanges:" + strings.TrimSpace(playerID) }

// ReadBalanceTx reads a balance inside a WATCH callback. A missing
// entry reads as zero; the entry is created when first written.
func ReadBalanceTx(ctx context.Context, tx *redis.Tx, playerID string) (int64, error) {
	n, err := tx.Get(ctx, BalanceKey(playerID)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return n, err
}

// BalancePublisher pushes committed balance values to observers.
type BalancePublisher interface {
	PublishBalance(ctx context.Context, playerID string, balance int64)
}

// Notifier forwards a committed exchange request to the downstream
// transfer endpoint. Failures are logged, never compensated.
type Notifier interface {
	Notify(ctx context.Context, rec *ExchangeRecord) error
}

type Manager struct {
	rdb      *redis.Client
	rate     int64
	repo     audit.Repository
	notifier Notifier
	pub      BalancePublisher
}

func NewManager(rdb *redis.Client, rate int64) *Manager {
	if rate <= 0 {
		rate = 400
	}
	return &Manager{rdb: rdb, rate: rate}
}

// AttachRepository wires a durable audit repository for exchange requests.
func (m *Manager) AttachRepository(r audit.Repository) {
	if m != nil {
		m.repo = r
	}
}

// AttachNotifier wires the downstream transfer notifier.
func (m *Manager) AttachNotifier(n Notifier) {
	if m != nil {
		m.notifier = n
	}
}

// AttachPublisher wires the balance change publisher.
func (m *Manager) AttachPublisher(p BalancePublisher) {
	if m != nil {
		m.pub = p
	}
}

// Rate returns the fixed coin cost of one SM unit.
func (m *Manager) Rate() int64 { return m.rate }

// Balance returns the player's committed balance. Display-only; any
// mutation re-reads inside its own transaction.
func (m *Manager) Balance(ctx context.Context, playerID string) (int64, error) {
	playerID = strings.TrimSpace(playerID)
	if playerID == "" {
		return 0, ErrInvalidPlayer
	}
	n, err := m.rdb.Get(ctx, BalanceKey(playerID)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return n, err
}

// Exchange converts units of external SM currency into a coin
// deduction at the fixed rate. The balance check, the deduction, and
// the append of the exchange record commit in one transaction; a
// concurrent balance write aborts with ErrConflict.
func (m *Manager) Exchange(ctx context.Context, playerID, externalRef string, units int64) (*ExchangeRecord, int64, error) {
	playerID = strings.TrimSpace(playerID)
	if playerID == "" {
		return nil, 0, ErrInvalidPlayer
	}
	// units is client-supplied; cap it so the cost multiplication
	// cannot wrap negative and turn a deduction into a credit.
	if units <= 0 || units > math.MaxInt64/m.rate {
		return nil, 0, ErrInvalidAmount
	}
	cost := units * m.rate

	var (
		rec    *ExchangeRecord
		newBal int64
	)
	balKey := BalanceKey(playerID)
	err := m.rdb.Watch(ctx, func(tx *redis.Tx) error {
		bal, err := ReadBalanceTx(ctx, tx, playerID)
		if err != nil {
			return err
		}
		if bal < cost {
			return ErrInsufficientFunds
		}
		r := &ExchangeRecord{
			ID:          uuid.NewString(),
			PlayerID:    playerID,
			ExternalRef: strings.TrimSpace(externalRef),
			SourceUnits: units,
			Cost:        cost,
			Status:      ExchangePending,
			CreatedAt:   time.Now(),
		}
		raw, err := json.Marshal(r)
		if err != nil {
			return err
		}
		pipe := tx.TxPipeline()
		pipe.Set(ctx, balKey, bal-cost, 0)
		pipe.RPush(ctx, exchangeLogKey(playerID), raw)
		if _, err := pipe.Exec(ctx); err != nil {
			return err
		}
		rec = r
		newBal = bal - cost
		return nil
	}, balKey)
	if errors.Is(err, redis.TxFailedErr) {
		return nil, 0, ErrConflict
	}
	if err != nil {
		return nil, 0, err
	}

	obslog.L().Info("ledger_exchange",
		zap.String("player_id", playerID),
		zap.String("request_id", rec.ID),
		zap.Int64("source_units", units),
		zap.Int64("cost", cost),
		zap.Int64("balance", newBal),
	)

	if m.pub != nil {
		m.pub.PublishBalance(ctx, playerID, newBal)
	}
	m.auditExchange(ctx, rec)
	m.notifyExchange(rec)
	return rec, newBal, nil
}

// Exchanges returns the player's append-only exchange history, oldest
// first.
func (m *Manager) Exchanges(ctx context.Context, playerID string) ([]*ExchangeRecord, error) {
	playerID = strings.TrimSpace(playerID)
	if playerID == "" {
		return nil, ErrInvalidPlayer
	}
	raws, err := m.rdb.LRange(ctx, exchangeLogKey(playerID), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]*ExchangeRecord, 0, len(raws))
	for _, raw := range raws {
		var r ExchangeRecord
		if err := json.Unmarshal([]byte(raw), &r); err != nil {
			return nil, err
		}
		out = append(out, &r)
	}
	return out, nil
}

func (m *Manager) auditExchange(ctx context.Context, rec *ExchangeRecord) {
	if m.repo == nil || rec == nil {
		return
	}
	entry := &audit.ExchangeEntry{
		ID:          rec.ID,
		PlayerID:    rec.PlayerID,
		ExternalRef: rec.ExternalRef,
		SourceUnits: rec.SourceUnits,
		Cost:        rec.Cost,
		Status:      string(rec.Status),
		CreatedAt:   rec.CreatedAt,
	}
	if err := m.repo.SaveExchange(ctx, entry); err != nil {
		obslog.L().Error("ledger_exchange_audit_error",
			zap.String("request_id", rec.ID), zap.Error(err))
	}
}

func (m *Manager) notifyExchange(rec *ExchangeRecord) {
	if m.notifier == nil || rec == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := m.notifier.Notify(ctx, rec); err != nil {
			obslog.L().Warn("ledger_exchange_notify_error",
				zap.String("request_id", rec.ID), zap.Error(err))
		}
	}()
}
