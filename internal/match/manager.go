package match

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/duelboard/duelboard/internal/audit"
	"github.com/duelboard/duelboard/internal/board"
	"github.com/duelboard/duelboard/internal/ledger"
	"github.com/duelboard/duelboard/internal/obslog"
)

// Publisher fans committed state out to observers. Implementations
// must tolerate being called after every commit, including resets.
type Publisher interface {
	PublishSession(ctx context.Context, s *Session)
	PublishBalance(ctx context.Context, playerID string, balance int64)
}

// Options tune settlement amounts and the post-settlement reset delay.
type Options struct {
	WinAward    int64
	LossPenalty int64
	ResetDelay  time.Duration
}

// Manager is the session state machine. Every operation is a single
// atomic check-then-write against the committed record.
type Manager struct {
	rdb   *redis.Client
	store *Store

	pub   Publisher
	repo  audit.Repository
	sched gocron.Scheduler

	winAward    int64
	lossPenalty int64
	resetDelay  time.Duration
}

func NewManager(rdb *redis.Client, opts Options) *Manager {
	if opts.WinAward <= 0 {
		opts.WinAward = 100
	}
	if opts.LossPenalty <= 0 {
		opts.LossPenalty = 100
	}
	if opts.ResetDelay <= 0 {
		opts.ResetDelay = 3 * time.Second
	}
	return &Manager{
		rdb:         rdb,
		store:       NewStore(rdb),
		winAward:    opts.WinAward,
		lossPenalty: opts.LossPenalty,
		resetDelay:  opts.ResetDelay,
	}
}

// AttachPublisher wires the sync layer publisher.
func (m *Manager) AttachPublisher(p Publisher) {
	if m != nil {
		m.pub = p
	}
}

// AttachRepository wires a durable audit repository for match results.
func (m *Manager) AttachRepository(r audit.Repository) {
	if m != nil {
		m.repo = r
	}
}

// AttachScheduler wires the scheduler used for the delayed
// post-settlement reset. Without one, finished sessions stay put until
// an administrative reset or the recovery sweep.
func (m *Manager) AttachScheduler(s gocron.Scheduler) {
	if m != nil {
		m.sched = s
	}
}

// Session returns the committed session, creating it on first access.
func (m *Manager) Session(ctx context.Context) (*Session, error) {
	cur, err := m.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	if cur != nil {
		return cur, nil
	}
	return m.store.Update(ctx, func(*Session) error { return nil })
}

// Join seats the player. The first joiner takes White; filling the
// Black seat starts the game.
func (m *Manager) Join(ctx context.Context, playerID string) (*Session, error) {
	playerID = strings.TrimSpace(playerID)
	if playerID == "" {
		return nil, ErrInvalidPlayer
	}
	sess, err := m.store.Update(ctx, func(cur *Session) error {
		if cur.WhiteID == playerID || cur.BlackID == playerID {
			return ErrAlreadySeated
		}
		if cur.Status == StatusPlaying || (cur.WhiteID != "" && cur.BlackID != "") {
			return ErrGameFull
		}
		if cur.WhiteID == "" {
			cur.WhiteID = playerID
		} else {
			cur.BlackID = playerID
		}
		if cur.WhiteID != "" && cur.BlackID != "" {
			cur.Status = StatusPlaying
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	obslog.L().Info("match_join",
		zap.String("player_id", playerID),
		zap.String("status", string(sess.Status)),
	)
	m.publish(ctx, sess)
	return sess, nil
}

// Leave vacates the player's seat. With both seats empty the session
// rewinds to its created state; an interrupted game drops back to
// WAITING with the board preserved, and no win is awarded.
func (m *Manager) Leave(ctx context.Context, playerID string) (*Session, error) {
	playerID = strings.TrimSpace(playerID)
	if playerID == "" {
		return nil, ErrInvalidPlayer
	}
	sess, err := m.store.Update(ctx, func(cur *Session) error {
		switch playerID {
		case cur.WhiteID:
			cur.WhiteID = ""
		case cur.BlackID:
			cur.BlackID = ""
		default:
			return ErrNotSeated
		}
		if cur.WhiteID == "" && cur.BlackID == "" {
			cur.restore()
		} else if cur.Status == StatusPlaying {
			cur.Status = StatusWaiting
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	obslog.L().Info("match_leave",
		zap.String("player_id", playerID),
		zap.String("status", string(sess.Status)),
	)
	m.publish(ctx, sess)
	return sess, nil
}

// Move applies one move for the player. All preconditions are
// re-validated against the freshly read committed state, so a stale
// client selection racing a concurrent move loses cleanly. Capturing
// the king finishes the game and settles both balances.
func (m *Manager) Move(ctx context.Context, playerID, fromSq, toSq string) (*Session, error) {
	playerID = strings.TrimSpace(playerID)
	if playerID == "" {
		return nil, ErrInvalidPlayer
	}
	from, err := board.ParseSquare(fromSq)
	if err != nil {
		return nil, ErrBadSquare
	}
	to, err := board.ParseSquare(toSq)
	if err != nil {
		return nil, ErrBadSquare
	}

	sess, err := m.store.Update(ctx, func(cur *Session) error {
		if cur.Status != StatusPlaying {
			return ErrNotPlaying
		}
		side, ok := cur.SideOf(playerID)
		if !ok {
			return ErrNotSeated
		}
		if side != cur.Turn {
			return ErrWrongTurn
		}
		p := cur.Board[from]
		if p.Empty() {
			return ErrEmptySquare
		}
		if p.Side != side {
			return ErrNotYourPiece
		}
		if !board.Legal(cur.Board, from, to) {
			return ErrIllegalMove
		}
		captured := cur.Board[to]
		cur.Board[to] = p
		cur.Board[from] = board.Cell{}
		cur.Turn = cur.Turn.Opponent()
		if captured.Kind == board.King {
			cur.Status = StatusFinished
			cur.WinnerID = playerID
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	obslog.L().Info("match_move",
		zap.String("player_id", playerID),
		zap.String("from", board.FormatSquare(from)),
		zap.String("to", board.FormatSquare(to)),
		zap.String("turn", string(sess.Turn)),
		zap.String("status", string(sess.Status)),
	)
	m.publish(ctx, sess)

	if sess.Status == StatusFinished {
		// Post-commit hook: settlement failure must not fail the move
		// that finished the game; the recovery sweep retries it.
		if err := m.Settle(ctx); err != nil {
			obslog.L().Error("match_settle_error", zap.Error(err))
		}
		m.scheduleReset()
	}
	return sess, nil
}

// Reset unconditionally restores the session to its created state.
// Used as the administrative override and as the scheduled
// post-settlement step.
func (m *Manager) Reset(ctx context.Context) (*Session, error) {
	sess, err := m.store.Update(ctx, func(cur *Session) error {
		cur.restore()
		return nil
	})
	if err != nil {
		return nil, err
	}
	obslog.L().Info("match_reset")
	m.publish(ctx, sess)
	return sess, nil
}

// Settle applies the win/loss balance adjustment for the current
// FINISHED session. Both balance writes and the settled-for marker
// commit in one transaction, so observing the same finish twice (or
// calling Settle concurrently) applies it at most once. Balances are
// clamped at zero.
func (m *Manager) Settle(ctx context.Context) error {
	cur, err := m.store.Load(ctx)
	if err != nil || cur == nil {
		return err
	}
	if cur.Status != StatusFinished || cur.WinnerID == "" || cur.SettledFor == cur.WinnerID {
		return nil
	}
	winner := cur.WinnerID
	loser := cur.OpponentOf(winner)

	keys := []string{m.store.Key(), ledger.BalanceKey(winner)}
	if loser != "" {
		keys = append(keys, ledger.BalanceKey(loser))
	}

	var (
		applied   bool
		winnerBal int64
		loserBal  int64
	)
	// Settlement is idempotent, so a bounded retry on conflict is safe.
	for attempt := 0; attempt < 3; attempt++ {
		applied = false
		err = m.rdb.Watch(ctx, func(tx *redis.Tx) error {
			s, err := loadSessionTx(ctx, tx)
			if err != nil {
				return err
			}
			if s.Status != StatusFinished || s.WinnerID != winner {
				return nil
			}
			if s.SettledFor == s.WinnerID {
				return nil
			}
			wb, err := ledger.ReadBalanceTx(ctx, tx, winner)
			if err != nil {
				return err
			}
			winnerBal = wb + m.winAward
			if loser != "" {
				lb, err := ledger.ReadBalanceTx(ctx, tx, loser)
				if err != nil {
					return err
				}
				loserBal = lb - m.lossPenalty
				if loserBal < 0 {
					loserBal = 0
				}
			}
			s.SettledFor = s.WinnerID
			s.UpdatedAt = time.Now()
			raw, err := json.Marshal(s)
			if err != nil {
				return err
			}
			pipe := tx.TxPipeline()
			pipe.Set(ctx, ledger.BalanceKey(winner), winnerBal, 0)
			if loser != "" {
				pipe.Set(ctx, ledger.BalanceKey(loser), loserBal, 0)
			}
			pipe.Set(ctx, m.store.Key(), raw, 0)
			if _, err := pipe.Exec(ctx); err != nil {
				return err
			}
			applied = true
			return nil
		}, keys...)
		if !errors.Is(err, redis.TxFailedErr) {
			break
		}
	}
	if errors.Is(err, redis.TxFailedErr) {
		return ErrConflict
	}
	if err != nil {
		return err
	}
	if !applied {
		return nil
	}

	obslog.L().Info("match_settle",
		zap.String("winner_id", winner),
		zap.String("loser_id", loser),
		zap.Int64("winner_balance", winnerBal),
		zap.Int64("loser_balance", loserBal),
	)
	if m.pub != nil {
		m.pub.PublishBalance(ctx, winner, winnerBal)
		if loser != "" {
			m.pub.PublishBalance(ctx, loser, loserBal)
		}
	}
	m.auditResult(ctx, winner, loser)
	return nil
}

// RecoverStuck re-settles and resets a session left FINISHED past the
// reset delay, covering a process restart between settlement and the
// scheduled reset.
func (m *Manager) RecoverStuck(ctx context.Context) error {
	cur, err := m.store.Load(ctx)
	if err != nil || cur == nil {
		return err
	}
	if cur.Status != StatusFinished {
		return nil
	}
	if err := m.Settle(ctx); err != nil {
		return err
	}
	// Settlement refreshes UpdatedAt, so re-read before the delay
	// check: a session the sweep just settled keeps its grace period
	// and is reset on a later pass.
	cur, err = m.store.Load(ctx)
	if err != nil || cur == nil {
		return err
	}
	if cur.Status != StatusFinished {
		return nil
	}
	if time.Since(cur.UpdatedAt) < m.resetDelay {
		return nil
	}
	if _, err := m.Reset(ctx); err != nil {
		return err
	}
	obslog.L().Info("match_recover_reset")
	return nil
}

func (m *Manager) publish(ctx context.Context, s *Session) {
	if m.pub != nil {
		m.pub.PublishSession(ctx, s)
	}
}

func (m *Manager) scheduleReset() {
	if m.sched == nil {
		return
	}
	_, err := m.sched.NewJob(
		gocron.OneTimeJob(gocron.OneTimeJobStartDateTime(time.Now().Add(m.resetDelay))),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if _, err := m.Reset(ctx); err != nil {
				obslog.L().Warn("match_scheduled_reset_error", zap.Error(err))
			}
		}),
	)
	if err != nil {
		obslog.L().Warn("match_schedule_error", zap.Error(err))
	}
}

func (m *Manager) auditResult(ctx context.Context, winner, loser string) {
	if m.repo == nil {
		return
	}
	res := &audit.MatchResult{
		ID:         uuid.NewString(),
		WinnerID:   winner,
		LoserID:    loser,
		Award:      m.winAward,
		Penalty:    m.lossPenalty,
		FinishedAt: time.Now(),
	}
	if err := m.repo.SaveMatchResult(ctx, res); err != nil {
		obslog.L().Error("match_result_audit_error", zap.Error(err))
	}
}
