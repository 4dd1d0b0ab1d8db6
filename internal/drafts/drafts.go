// Package drafts saves the in-progress sale so a terminal restart, or a
// forced re-login, does not lose a half-scanned cart.
package drafts

import (
	"context"
	"sync"
	"time"

	"puntoventa/terminal/internal/cart"
)

// Draft is the serializable snapshot of an unfinished sale.
type Draft struct {
	Items         []cart.LineItem `json:"items"`
	Method        string          `json:"metodo_pago,omitempty"`
	ReceivedInput string          `json:"recibido_input,omitempty"`
	SavedAt       time.Time       `json:"saved_at"`
}

func (d Draft) Empty() bool {
	return len(d.Items) == 0
}

// Cache stores at most one draft per terminal. Load's second return reports
// whether a draft existed.
type Cache interface {
	Save(ctx context.Context, terminalID string, draft Draft) error
	Load(ctx context.Context, terminalID string) (Draft, bool, error)
	Discard(ctx context.Context, terminalID string) error
}

// NoopCache satisfies Cache without persisting anything, for terminals
// running without Redis.
type NoopCache struct{}

func NewNoopCache() *NoopCache { return &NoopCache{} }

func (*NoopCache) Save(context.Context, string, Draft) error { return nil }

func (*NoopCache) Load(context.Context, string) (Draft, bool, error) {
	return Draft{}, false, nil
}

func (*NoopCache) Discard(context.Context, string) error { return nil }

// MemoryCache keeps drafts in-process. TTL is enforced lazily on Load.
type MemoryCache struct {
	mu     sync.Mutex
	ttl    time.Duration
	drafts map[string]memoryEntry
}

type memoryEntry struct {
	draft     Draft
	expiresAt time.Time
}

func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{ttl: ttl, drafts: make(map[string]memoryEntry)}
}

func (m *MemoryCache) Save(_ context.Context, terminalID string, draft Draft) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.drafts[terminalID] = memoryEntry{draft: draft, expiresAt: time.Now().Add(m.ttl)}
	return nil
}

func (m *MemoryCache) Load(_ context.Context, terminalID string) (Draft, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.drafts[terminalID]
	if !ok {
		return Draft{}, false, nil
	}
	if time.Now().After(entry.expiresAt) {
		delete(m.drafts, terminalID)
		return Draft{}, false, nil
	}
	return entry.draft, true, nil
}

func (m *MemoryCache) Discard(_ context.Context, terminalID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.drafts, terminalID)
	return nil
}
