package match

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const sessionKey = "duel:session"

// Store holds the session record in Redis and exposes the optimistic
// conditional write every operation is built on.
type Store struct {
	rdb *redis.Client
}

func NewStore(rdb *redis.Client) *Store { return &Store{rdb: rdb} }

// Key returns the Redis key of the session record.
func (s *Store) Key() string { return sessionKey }

// Load returns the committed session, or nil when none has been
// created yet.
func (s *Store) Load(ctx context.Context) (*Session, error) {
	raw, err := s.rdb.Get(ctx, sessionKey).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var sess Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

// loadSessionTx reads the session inside a WATCH callback. A missing
// record lazily initializes to the created state; the write that
// follows persists it.
func loadSessionTx(ctx context.Context, tx *redis.Tx) (*Session, error) {
	raw, err := tx.Get(ctx, sessionKey).Bytes()
	if err == redis.Nil {
		return NewSession(), nil
	}
	if err != nil {
		return nil, err
	}
	var sess Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

// Update runs mutate against the freshly read committed session and
// writes the result back, aborting with ErrConflict if another write
// commits in between. A mutate error leaves the record untouched.
// There is no automatic retry; retry policy belongs to the caller.
func (s *Store) Update(ctx context.Context, mutate func(*Session) error) (*Session, error) {
	var out *Session
	err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := loadSessionTx(ctx, tx)
		if err != nil {
			return err
		}
		if err := mutate(cur); err != nil {
			return err
		}
		cur.UpdatedAt = time.Now()
		raw, err := json.Marshal(cur)
		if err != nil {
			return err
		}
		pipe := tx.TxPipeline()
		pipe.Set(ctx, sessionKey, raw, 0)
		if _, err := pipe.Exec(ctx); err != nil {
			return err
		}
		out = cur
		return nil
	}, sessionKey)
	if errors.Is(err, redis.TxFailedErr) {
		return nil, ErrConflict
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}
