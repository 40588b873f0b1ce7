package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/duelboard/duelboard/internal/ledger"
)

// Notifier forwards committed exchange requests to the downstream
// transfer service. Delivery is fire-and-forget: the coin deduction
// has already committed, and reconciliation happens out of band.
type Notifier struct {
	baseURL string
	http    *fasthttp.Client
	timeout time.Duration
}

type Option func(*Notifier)

func WithTimeout(d time.Duration) Option {
	return func(n *Notifier) { n.timeout = d }
}

func WithMaxConnsPerHost(c int) Option {
	return func(n *Notifier) { n.http.MaxConnsPerHost = c }
}

func NewNotifier(baseURL string, opts ...Option) *Notifier {
	n := &Notifier{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		http: &fasthttp.Client{
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			MaxConnsPerHost: 16,
		},
		timeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Notify posts the exchange record to the transfer endpoint.
func (n *Notifier) Notify(ctx context.Context, rec *ledger.ExchangeRecord) error {
	if n == nil || n.baseURL == "" || rec == nil {
		return nil
	}
	body, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(n.baseURL + "/transfers")
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.SetBody(body)

	deadline := time.Now().Add(n.timeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	if err := n.http.DoDeadline(req, resp, deadline); err != nil {
		return fmt.Errorf("transfer notify: %w", err)
	}
	if sc := resp.StatusCode(); sc < 200 || sc >= 300 {
		return fmt.Errorf("transfer notify: status %d", sc)
	}
	return nil
}
