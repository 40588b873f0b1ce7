package stream

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/duelboard/duelboard/internal/match"
	"github.com/duelboard/duelboard/internal/obslog"
)

// Channel is the Redis pub/sub channel every commit is announced on.
const Channel = "duel:events"

// EventType tags the payload carried by an Event.
type EventType string

const (
	EventSession EventType = "session"
	EventBalance EventType = "balance"
)

// Event is the envelope streamed to observers. Session events carry
// the full committed session value; balance events carry one player's
// committed balance.
type Event struct {
	Type     EventType      `json:"type"`
	Session  *match.Session `json:"session,omitempty"`
	PlayerID string         `json:"player_id,omitempty"`
	Balance  int64          `json:"balance"`
}

// Publisher announces committed state on the event channel. Publish
// failures are logged and swallowed: fan-out is display-only and must
// never fail the commit it follows.
type Publisher struct {
	rdb *redis.Client
}

func NewPublisher(rdb *redis.Client) *Publisher { return &Publisher{rdb: rdb} }

func (p *Publisher) PublishSession(ctx context.Context, s *match.Session) {
	p.publish(ctx, &Event{Type: EventSession, Session: s})
}

func (p *Publisher) PublishBalance(ctx context.Context, playerID string, balance int64) {
	p.publish(ctx, &Event{Type: EventBalance, PlayerID: playerID, Balance: balance})
}

func (p *Publisher) publish(ctx context.Context, ev *Event) {
	raw, err := json.Marshal(ev)
	if err != nil {
		obslog.L().Warn("stream_marshal_error", zap.Error(err))
		return
	}
	if err := p.rdb.Publish(ctx, Channel, raw).Err(); err != nil {
		obslog.L().Warn("stream_publish_error", zap.String("type", string(ev.Type)), zap.Error(err))
	}
}
