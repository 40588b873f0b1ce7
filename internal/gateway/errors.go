package gateway

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/duelboard/duelboard/internal/ledger"
	"github.com/duelboard/duelboard/internal/match"
	"github.com/duelboard/duelboard/internal/obslog"
	"github.com/duelboard/duelboard/pkg/dueldto"
)

// domainError translates an operation error into the wire error shape,
// rendering the user-facing message from the catalog. Unknown errors
// collapse to an internal code so internals never leak to clients.
func (s *Server) domainError(ctx context.Context, err error, data map[string]any) *dueldto.DomainError {
	code, key, retryable := classify(err)
	if data == nil {
		data = map[string]any{}
	}
	if errors.Is(err, match.ErrWrongTurn) {
		if sess, serr := s.match.Session(ctx); serr == nil {
			data["Turn"] = string(sess.Turn)
		}
	}
	if code == dueldto.CodeInternal {
		obslog.L().Error("gateway_internal_error", zap.Error(err))
	}
	return s.staticError(code, key, retryable, data)
}

// staticError renders a catalog message for a fixed code. A render
// failure falls back to the catalog-free internal message.
func (s *Server) staticError(code, key string, retryable bool, data ...map[string]any) *dueldto.DomainError {
	var d map[string]any
	if len(data) > 0 {
		d = data[0]
	}
	msg, err := s.cat.Render(key, d)
	if err != nil {
		obslog.L().Warn("gateway_render_error", zap.String("key", key), zap.Error(err))
		msg = "Something went wrong. Please try again."
	}
	return &dueldto.DomainError{Code: code, Message: msg, Retryable: retryable}
}

func classify(err error) (code, key string, retryable bool) {
	switch {
	case errors.Is(err, match.ErrAlreadySeated):
		return dueldto.CodeSeatConflict, "match.seat_conflict", false
	case errors.Is(err, match.ErrGameFull):
		return dueldto.CodeGameFull, "match.game_full", false
	case errors.Is(err, match.ErrNotSeated):
		return dueldto.CodeNotSeated, "match.not_seated", false
	case errors.Is(err, match.ErrNotPlaying):
		return dueldto.CodeNotPlaying, "match.not_playing", false
	case errors.Is(err, match.ErrWrongTurn):
		return dueldto.CodeWrongTurn, "match.wrong_turn", false
	case errors.Is(err, match.ErrNotYourPiece):
		return dueldto.CodeNotYourPiece, "match.not_your_piece", false
	case errors.Is(err, match.ErrEmptySquare):
		return dueldto.CodeEmptySquare, "match.empty_square", false
	case errors.Is(err, match.ErrIllegalMove):
		return dueldto.CodeIllegalMove, "match.illegal_move", false
	case errors.Is(err, match.ErrBadSquare):
		return dueldto.CodeBadSquare, "match.bad_square", false
	case errors.Is(err, match.ErrInvalidPlayer), errors.Is(err, ledger.ErrInvalidPlayer):
		return dueldto.CodeBadRequest, "common.bad_request", false
	case errors.Is(err, match.ErrConflict):
		return dueldto.CodeConflict, "match.conflict", true
	case errors.Is(err, ledger.ErrConflict):
		return dueldto.CodeConflict, "ledger.conflict", true
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return dueldto.CodeInsufficientFunds, "ledger.insufficient_funds", false
	case errors.Is(err, ledger.ErrInvalidAmount):
		return dueldto.CodeBadRequest, "ledger.invalid_amount", false
	default:
		return dueldto.CodeInternal, "common.internal", false
	}
}
