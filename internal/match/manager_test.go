package match

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/duelboard/duelboard/internal/audit"
	"github.com/duelboard/duelboard/internal/board"
	"github.com/duelboard/duelboard/internal/ledger"
)

func newTestManager(t *testing.T) (*Manager, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(func() { mr.Close() })
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewManager(rdb, Options{}), rdb
}

func setBalance(t *testing.T, rdb *redis.Client, playerID string, n int64) {
	t.Helper()
	if err := rdb.Set(context.Background(), ledger.BalanceKey(playerID), n, 0).Err(); err != nil {
		t.Fatalf("set balance: %v", err)
	}
}

func getBalance(t *testing.T, rdb *redis.Client, playerID string) int64 {
	t.Helper()
	raw, err := rdb.Get(context.Background(), ledger.BalanceKey(playerID)).Result()
	if err != nil {
		t.Fatalf("get balance: %v", err)
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		t.Fatalf("parse balance: %v", err)
	}
	return n
}

func TestJoin_SeatsAndStart(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	s, err := m.Join(ctx, "alice")
	if err != nil {
		t.Fatalf("Join alice: %v", err)
	}
	if s.WhiteID != "alice" || s.Status != StatusWaiting {
		t.Fatalf("unexpected after first join: white=%q status=%s", s.WhiteID, s.Status)
	}

	s, err = m.Join(ctx, "bob")
	if err != nil {
		t.Fatalf("Join bob: %v", err)
	}
	if s.BlackID != "bob" || s.Status != StatusPlaying {
		t.Fatalf("unexpected after second join: black=%q status=%s", s.BlackID, s.Status)
	}
	if s.Turn != board.SideWhite {
		t.Fatalf("expected White to move, got %s", s.Turn)
	}
}

func TestJoin_Rejections(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	if _, err := m.Join(ctx, "alice"); err != nil {
		t.Fatalf("Join alice: %v", err)
	}
	if _, err := m.Join(ctx, "alice"); !errors.Is(err, ErrAlreadySeated) {
		t.Fatalf("expected ErrAlreadySeated, got %v", err)
	}
	if _, err := m.Join(ctx, "bob"); err != nil {
		t.Fatalf("Join bob: %v", err)
	}
	if _, err := m.Join(ctx, "carol"); !errors.Is(err, ErrGameFull) {
		t.Fatalf("expected ErrGameFull, got %v", err)
	}
	if _, err := m.Join(ctx, "  "); !errors.Is(err, ErrInvalidPlayer) {
		t.Fatalf("expected ErrInvalidPlayer, got %v", err)
	}
}

func TestLeave_Semantics(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	if _, err := m.Leave(ctx, "ghost"); !errors.Is(err, ErrNotSeated) {
		t.Fatalf("expected ErrNotSeated, got %v", err)
	}

	_, _ = m.Join(ctx, "alice")
	_, _ = m.Join(ctx, "bob")
	if _, err := m.Move(ctx, "alice", "e2", "e4"); err != nil {
		t.Fatalf("Move: %v", err)
	}

	// One player leaving an active game drops it back to waiting with
	// the board untouched.
	s, err := m.Leave(ctx, "bob")
	if err != nil {
		t.Fatalf("Leave bob: %v", err)
	}
	if s.Status != StatusWaiting || s.WhiteID != "alice" || s.BlackID != "" {
		t.Fatalf("unexpected after leave: status=%s white=%q black=%q", s.Status, s.WhiteID, s.BlackID)
	}
	if !s.Board[board.Index(4, 1)].Empty() {
		t.Fatalf("expected board preserved after leave (e2 vacated)")
	}

	// Last player leaving rewinds to the created state.
	s, err = m.Leave(ctx, "alice")
	if err != nil {
		t.Fatalf("Leave alice: %v", err)
	}
	if s.Status != StatusWaiting || s.WhiteID != "" || s.BlackID != "" {
		t.Fatalf("unexpected after final leave: %+v", s)
	}
	if s.Board[board.Index(4, 1)].Empty() {
		t.Fatalf("expected initial board after final leave")
	}
}

func TestMove_Preconditions(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	_, _ = m.Join(ctx, "alice")
	if _, err := m.Move(ctx, "alice", "e2", "e4"); !errors.Is(err, ErrNotPlaying) {
		t.Fatalf("expected ErrNotPlaying, got %v", err)
	}
	_, _ = m.Join(ctx, "bob")

	if _, err := m.Move(ctx, "alice", "x9", "e4"); !errors.Is(err, ErrBadSquare) {
		t.Fatalf("expected ErrBadSquare, got %v", err)
	}
	if _, err := m.Move(ctx, "carol", "e2", "e4"); !errors.Is(err, ErrNotSeated) {
		t.Fatalf("expected ErrNotSeated, got %v", err)
	}
	if _, err := m.Move(ctx, "bob", "e7", "e5"); !errors.Is(err, ErrWrongTurn) {
		t.Fatalf("expected ErrWrongTurn, got %v", err)
	}
	if _, err := m.Move(ctx, "alice", "e4", "e5"); !errors.Is(err, ErrEmptySquare) {
		t.Fatalf("expected ErrEmptySquare, got %v", err)
	}
	if _, err := m.Move(ctx, "alice", "e7", "e5"); !errors.Is(err, ErrNotYourPiece) {
		t.Fatalf("expected ErrNotYourPiece, got %v", err)
	}
	if _, err := m.Move(ctx, "alice", "e2", "e5"); !errors.Is(err, ErrIllegalMove) {
		t.Fatalf("expected ErrIllegalMove, got %v", err)
	}

	s, err := m.Move(ctx, "alice", "e2", "e4")
	if err != nil {
		t.Fatalf("Move: %v", err)
	}
	if s.Turn != board.SideBlack {
		t.Fatalf("expected turn to flip to black, got %s", s.Turn)
	}
	if s.Board[board.Index(4, 3)].Kind != board.Pawn {
		t.Fatalf("expected pawn on e4")
	}
}

func TestMove_KingCaptureFinishesAndSettles(t *testing.T) {
	m, rdb := newTestManager(t)
	mem := audit.NewMemoryRepository()
	m.AttachRepository(mem)
	ctx := context.Background()

	_, _ = m.Join(ctx, "alice")
	_, _ = m.Join(ctx, "bob")
	setBalance(t, rdb, "alice", 50)
	setBalance(t, rdb, "bob", 30)

	// Contrived position: drop a white queen next to the black king.
	_, err := m.store.Update(ctx, func(cur *Session) error {
		cur.Board[board.Index(4, 6)] = board.Cell{Side: board.SideWhite, Kind: board.Queen}
		return nil
	})
	if err != nil {
		t.Fatalf("seed position: %v", err)
	}

	s, err := m.Move(ctx, "alice", "e7", "e8")
	if err != nil {
		t.Fatalf("Move: %v", err)
	}
	if s.Status != StatusFinished || s.WinnerID != "alice" {
		t.Fatalf("expected alice to win, got status=%s winner=%q", s.Status, s.WinnerID)
	}

	if got := getBalance(t, rdb, "alice"); got != 150 {
		t.Fatalf("winner balance = %d, want 150", got)
	}
	// Loss penalty clamps at zero.
	if got := getBalance(t, rdb, "bob"); got != 0 {
		t.Fatalf("loser balance = %d, want 0", got)
	}

	results := mem.MatchResults()
	if len(results) != 1 || results[0].WinnerID != "alice" || results[0].LoserID != "bob" {
		t.Fatalf("unexpected audit results: %+v", results)
	}
}

func TestSettle_Idempotent(t *testing.T) {
	m, rdb := newTestManager(t)
	ctx := context.Background()

	_, _ = m.Join(ctx, "alice")
	_, _ = m.Join(ctx, "bob")
	setBalance(t, rdb, "alice", 0)
	setBalance(t, rdb, "bob", 500)

	_, err := m.store.Update(ctx, func(cur *Session) error {
		cur.Status = StatusFinished
		cur.WinnerID = "alice"
		return nil
	})
	if err != nil {
		t.Fatalf("seed finished session: %v", err)
	}

	for i := 0; i < 3; i++ {
		if err := m.Settle(ctx); err != nil {
			t.Fatalf("Settle #%d: %v", i, err)
		}
	}

	if got := getBalance(t, rdb, "alice"); got != 100 {
		t.Fatalf("winner balance = %d, want 100 after repeated settles", got)
	}
	if got := getBalance(t, rdb, "bob"); got != 400 {
		t.Fatalf("loser balance = %d, want 400 after repeated settles", got)
	}
}

func TestUpdate_ConflictOnConcurrentWrite(t *testing.T) {
	m, rdb := newTestManager(t)
	ctx := context.Background()

	if _, err := m.Session(ctx); err != nil {
		t.Fatalf("Session: %v", err)
	}

	_, err := m.store.Update(ctx, func(cur *Session) error {
		// Simulate another client committing between read and write.
		other := *cur
		other.WhiteID = "intruder"
		raw, merr := json.Marshal(&other)
		if merr != nil {
			return merr
		}
		return rdb.Set(ctx, m.store.Key(), raw, 0).Err()
	})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestRecoverStuck_SettlesAndResets(t *testing.T) {
	m, rdb := newTestManager(t)
	m.resetDelay = 10 * time.Millisecond
	ctx := context.Background()

	_, _ = m.Join(ctx, "alice")
	_, _ = m.Join(ctx, "bob")
	setBalance(t, rdb, "alice", 0)
	setBalance(t, rdb, "bob", 200)

	_, err := m.store.Update(ctx, func(cur *Session) error {
		cur.Status = StatusFinished
		cur.WinnerID = "bob"
		return nil
	})
	if err != nil {
		t.Fatalf("seed finished session: %v", err)
	}

	time.Sleep(20 * time.Millisecond)
	if err := m.RecoverStuck(ctx); err != nil {
		t.Fatalf("RecoverStuck: %v", err)
	}

	if got := getBalance(t, rdb, "bob"); got != 300 {
		t.Fatalf("winner balance = %d, want 300", got)
	}
	if got := getBalance(t, rdb, "alice"); got != 0 {
		t.Fatalf("loser balance = %d, want 0", got)
	}

	// The sweep that applied settlement leaves the session in place:
	// the reset delay restarts from the settlement commit.
	s, err := m.store.Load(ctx)
	if err != nil || s == nil {
		t.Fatalf("Load after first sweep: %v", err)
	}
	if s.Status != StatusFinished || s.SettledFor != "bob" {
		t.Fatalf("expected settled session awaiting reset, got %+v", s)
	}

	time.Sleep(20 * time.Millisecond)
	if err := m.RecoverStuck(ctx); err != nil {
		t.Fatalf("RecoverStuck second pass: %v", err)
	}

	s, err = m.store.Load(ctx)
	if err != nil || s == nil {
		t.Fatalf("Load after second sweep: %v", err)
	}
	if s.Status != StatusWaiting || s.WhiteID != "" || s.BlackID != "" {
		t.Fatalf("expected rewound session, got %+v", s)
	}

	// Repeated sweeps never re-apply the settlement.
	if got := getBalance(t, rdb, "bob"); got != 300 {
		t.Fatalf("winner balance after second sweep = %d, want 300", got)
	}
}
