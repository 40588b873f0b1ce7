package gateway

import (
	"context"
	"errors"
	"strings"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/duelboard/duelboard/internal/ledger"
	"github.com/duelboard/duelboard/internal/match"
	"github.com/duelboard/duelboard/internal/msgcat"
	"github.com/duelboard/duelboard/internal/stream"
	"github.com/duelboard/duelboard/pkg/dueldto"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(func() { mr.Close() })
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cat, err := msgcat.New("")
	if err != nil {
		t.Fatalf("msgcat: %v", err)
	}
	matchMgr := match.NewManager(rdb, match.Options{})
	ledgerMgr := ledger.NewManager(rdb, 400)
	return NewServer(stream.NewHub(), matchMgr, ledgerMgr, cat, nil)
}

func TestClassify(t *testing.T) {
	cases := []struct {
		err       error
		code      string
		retryable bool
	}{
		{match.ErrAlreadySeated, dueldto.CodeSeatConflict, false},
		{match.ErrGameFull, dueldto.CodeGameFull, false},
		{match.ErrNotSeated, dueldto.CodeNotSeated, false},
		{match.ErrNotPlaying, dueldto.CodeNotPlaying, false},
		{match.ErrWrongTurn, dueldto.CodeWrongTurn, false},
		{match.ErrNotYourPiece, dueldto.CodeNotYourPiece, false},
		{match.ErrEmptySquare, dueldto.CodeEmptySquare, false},
		{match.ErrIllegalMove, dueldto.CodeIllegalMove, false},
		{match.ErrBadSquare, dueldto.CodeBadSquare, false},
		{match.ErrConflict, dueldto.CodeConflict, true},
		{ledger.ErrConflict, dueldto.CodeConflict, true},
		{ledger.ErrInsufficientFunds, dueldto.CodeInsufficientFunds, false},
		{ledger.ErrInvalidAmount, dueldto.CodeBadRequest, false},
		{errors.New("database on fire"), dueldto.CodeInternal, false},
	}
	for _, tc := range cases {
		code, _, retryable := classify(tc.err)
		if code != tc.code || retryable != tc.retryable {
			t.Fatalf("classify(%v) = (%s, %v), want (%s, %v)", tc.err, code, retryable, tc.code, tc.retryable)
		}
	}
}

func TestDomainError_RendersTemplateData(t *testing.T) {
	s := newTestServer(t)
	derr := s.domainError(context.Background(), ledger.ErrInsufficientFunds, map[string]any{
		"Cost":    int64(800),
		"Balance": int64(120),
	})
	if derr.Code != dueldto.CodeInsufficientFunds {
		t.Fatalf("code = %s", derr.Code)
	}
	if !strings.Contains(derr.Message, "800") || !strings.Contains(derr.Message, "120") {
		t.Fatalf("message missing amounts: %q", derr.Message)
	}
}

func TestDomainError_WrongTurnCarriesSide(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	if _, err := s.match.Session(ctx); err != nil {
		t.Fatalf("Session: %v", err)
	}
	derr := s.domainError(ctx, match.ErrWrongTurn, nil)
	if !strings.Contains(derr.Message, "white") {
		t.Fatalf("expected side in message, got %q", derr.Message)
	}
}

func TestDomainError_InternalHidesDetail(t *testing.T) {
	s := newTestServer(t)
	derr := s.domainError(context.Background(), errors.New("pq: connection refused"), nil)
	if derr.Code != dueldto.CodeInternal {
		t.Fatalf("code = %s", derr.Code)
	}
	if strings.Contains(derr.Message, "pq:") {
		t.Fatalf("internal detail leaked: %q", derr.Message)
	}
}
