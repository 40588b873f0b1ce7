package audit

import (
	"context"
	"sync"
)

// Memory is a development and test repository used when no database is
// configured. Exported so tests can inspect what was recorded.
type Memory struct {
	mu sync.RWMutex

	results   []*MatchResult
	exchanges []*ExchangeEntry
}

func NewMemoryRepository() *Memory { return &Memory{} }

func (m *Memory) Close() error { return nil }

func (m *Memory) SaveMatchResult(ctx context.Context, r *MatchResult) error {
	if r == nil {
		return nil
	}
	cp := *r
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, prev := range m.results {
		if prev.ID == cp.ID {
			return nil
		}
	}
	m.results = append(m.results, &cp)
	return nil
}

func (m *Memory) SaveExchange(ctx context.Context, e *ExchangeEntry) error {
	if e == nil {
		return nil
	}
	cp := *e
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, prev := range m.exchanges {
		if prev.ID == cp.ID {
			return nil
		}
	}
	m.exchanges = append(m.exchanges, &cp)
	return nil
}

// MatchResults returns a snapshot of recorded results.
func (m *Memory) MatchResults() []*MatchResult {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*MatchResult, 0, len(m.results))
	for _, r := range m.results {
		cp := *r
		out = append(out, &cp)
	}
	return out
}

// Exchanges returns a snapshot of recorded exchange entries.
func (m *Memory) Exchanges() []*ExchangeEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*ExchangeEntry, 0, len(m.exchanges))
	for _, e := range m.exchanges {
		cp := *e
		out = append(out, &cp)
	}
	return out
}
