package gateway

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"

	"github.com/duelboard/duelboard/internal/ledger"
	"github.com/duelboard/duelboard/internal/match"
	"github.com/duelboard/duelboard/internal/msgcat"
	"github.com/duelboard/duelboard/internal/obslog"
	"github.com/duelboard/duelboard/internal/stream"
	"github.com/duelboard/duelboard/pkg/dueldto"
)

// Server is the websocket gateway: it turns client intent frames into
// state machine operations and streams every committed change back out
// through the hub.
type Server struct {
	hub    *stream.Hub
	match  *match.Manager
	ledger *ledger.Manager
	cat    *msgcat.Catalog

	allowOrigins map[string]bool
}

func NewServer(hub *stream.Hub, matchMgr *match.Manager, ledgerMgr *ledger.Manager, cat *msgcat.Catalog, allowOrigins []string) *Server {
	m := map[string]bool{}
	for _, o := range allowOrigins {
		if o = strings.TrimSpace(o); o != "" {
			m[o] = true
		}
	}
	return &Server{hub: hub, match: matchMgr, ledger: ledgerMgr, cat: cat, allowOrigins: m}
}

type ackFrame struct {
	Type string `json:"type"`
	Op   string `json:"op"`
}

type errorFrame struct {
	Type  string               `json:"type"`
	Op    string               `json:"op,omitempty"`
	Error *dueldto.DomainError `json:"error"`
}

type exchangeFrame struct {
	Type     string                 `json:"type"`
	Op       string                 `json:"op"`
	Exchange *ledger.ExchangeRecord `json:"exchange"`
	Balance  int64                  `json:"balance"`
}

// ServeWS upgrades the connection and runs the read loop until the
// client goes away.
func (s *Server) ServeWS(w http.ResponseWriter, r *http.Request) {
	origin := r.Header.Get("Origin")
	if len(s.allowOrigins) > 0 && origin != "" && !s.allowOrigins[origin] {
		http.Error(w, "forbidden origin", http.StatusForbidden)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	client := stream.NewClient()
	s.hub.Register(client)
	defer s.hub.Unregister(client)
	obslog.L().Info("gateway_connect", zap.String("client_id", client.ID))

	ctx := r.Context()

	// writer
	go func() {
		ping := time.NewTicker(15 * time.Second)
		defer ping.Stop()
		for {
			select {
			case msg, ok := <-client.Send():
				if !ok {
					return
				}
				if err := conn.Write(ctx, websocket.MessageText, msg); err != nil {
					return
				}
			case <-ping.C:
				if err := conn.Ping(ctx); err != nil {
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	// reader
	var playerID string
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			break
		}
		var req dueldto.Request
		if err := json.Unmarshal(data, &req); err != nil {
			s.sendError(client, "", s.staticError(dueldto.CodeBadRequest, "common.bad_request", false))
			continue
		}
		playerID = s.dispatch(ctx, client, playerID, &req)
	}
	obslog.L().Info("gateway_disconnect",
		zap.String("client_id", client.ID),
		zap.String("player_id", playerID),
	)
}

func (s *Server) dispatch(ctx context.Context, client *stream.Client, playerID string, req *dueldto.Request) string {
	op := strings.ToLower(strings.TrimSpace(req.Op))

	if op == dueldto.OpHello {
		pid := strings.TrimSpace(req.PlayerID)
		if pid == "" {
			s.sendError(client, op, s.staticError(dueldto.CodeBadRequest, "common.bad_request", false))
			return playerID
		}
		// Initial snapshot so the client renders without waiting for
		// the next commit.
		if sess, err := s.match.Session(ctx); err == nil {
			s.sendEvent(client, &stream.Event{Type: stream.EventSession, Session: sess})
		}
		if bal, err := s.ledger.Balance(ctx, pid); err == nil {
			s.sendEvent(client, &stream.Event{Type: stream.EventBalance, PlayerID: pid, Balance: bal})
		}
		return pid
	}

	if playerID == "" {
		s.sendError(client, op, s.staticError(dueldto.CodeBadRequest, "common.bad_request", false))
		return playerID
	}

	switch op {
	case dueldto.OpJoin:
		_, err := s.match.Join(ctx, playerID)
		s.finish(ctx, client, op, err, nil)
	case dueldto.OpLeave:
		_, err := s.match.Leave(ctx, playerID)
		s.finish(ctx, client, op, err, nil)
	case dueldto.OpMove:
		_, err := s.match.Move(ctx, playerID, req.From, req.To)
		s.finish(ctx, client, op, err, map[string]any{
			"From":   strings.TrimSpace(req.From),
			"To":     strings.TrimSpace(req.To),
			"Square": strings.TrimSpace(req.From),
		})
	case dueldto.OpReset:
		_, err := s.match.Reset(ctx)
		s.finish(ctx, client, op, err, nil)
	case dueldto.OpBalance:
		bal, err := s.ledger.Balance(ctx, playerID)
		if err != nil {
			s.sendError(client, op, s.domainError(ctx, err, nil))
			break
		}
		s.sendEvent(client, &stream.Event{Type: stream.EventBalance, PlayerID: playerID, Balance: bal})
	case dueldto.OpExchange:
		rec, bal, err := s.ledger.Exchange(ctx, playerID, req.Account, req.Units)
		if err != nil {
			data := map[string]any{}
			if req.Units > 0 && req.Units <= math.MaxInt64/s.ledger.Rate() {
				data["Cost"] = req.Units * s.ledger.Rate()
			}
			if cur, berr := s.ledger.Balance(ctx, playerID); berr == nil {
				data["Balance"] = cur
			}
			s.sendError(client, op, s.domainError(ctx, err, data))
			break
		}
		s.send(client, &exchangeFrame{Type: "exchange", Op: op, Exchange: rec, Balance: bal})
	default:
		s.sendError(client, op, s.staticError(dueldto.CodeBadRequest, "common.bad_request", false))
	}
	return playerID
}

// finish acknowledges a state machine operation; the committed state
// itself reaches the client through the hub broadcast.
func (s *Server) finish(ctx context.Context, client *stream.Client, op string, err error, data map[string]any) {
	if err != nil {
		s.sendError(client, op, s.domainError(ctx, err, data))
		return
	}
	s.send(client, &ackFrame{Type: "ack", Op: op})
}

func (s *Server) send(client *stream.Client, frame any) {
	raw, err := json.Marshal(frame)
	if err != nil {
		obslog.L().Warn("gateway_marshal_error", zap.Error(err))
		return
	}
	client.Push(raw)
}

func (s *Server) sendEvent(client *stream.Client, ev *stream.Event) {
	s.send(client, ev)
}

func (s *Server) sendError(client *stream.Client, op string, derr *dueldto.DomainError) {
	s.send(client, &errorFrame{Type: "error", Op: op, Error: derr})
}
