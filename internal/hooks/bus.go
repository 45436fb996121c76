// Package hooks is the synchronous lifecycle bus of a generation run.
package hooks

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"git.home.luguber.info/inful/sitegen/internal/logfields"
)

// Journal persists published events. It matches eventstore.Store.Append.
type Journal interface {
	Append(ctx context.Context, runID, eventType string, payload []byte, metadata map[string]string) error
}

// Handler processes an event; a returned error stops delivery.
type Handler func(ctx context.Context, e Event) error

// Bus is a synchronous pub/sub bus. Handlers run in subscription order on
// the publishing goroutine.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string][]Handler
	all         []Handler
	journal     Journal
	logger      *slog.Logger
}

// Option configures a Bus.
type Option func(*Bus)

// WithJournal persists every event before it is delivered.
func WithJournal(j Journal) Option { return func(b *Bus) { b.journal = j } }

// WithLogger sets the logger used for journal failures.
func WithLogger(l *slog.Logger) Option {
	return func(b *Bus) {
		if l != nil {
			b.logger = l
		}
	}
}

func NewBus(opts ...Option) *Bus {
	b := &Bus{subscribers: map[string][]Handler{}, logger: slog.Default()}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Subscribe registers h for the named event.
func (b *Bus) Subscribe(event string, h Handler) {
	if h == nil {
		return
	}
	b.mu.Lock()
	b.subscribers[event] = append(b.subscribers[event], h)
	b.mu.Unlock()
}

// SubscribeAll registers h for every event. It runs after the handlers
// subscribed to the specific name.
func (b *Bus) SubscribeAll(h Handler) {
	if h == nil {
		return
	}
	b.mu.Lock()
	b.all = append(b.all, h)
	b.mu.Unlock()
}

// Publish journals e and delivers it to its handlers. Journal failures are
// logged and do not fail the publish.
func (b *Bus) Publish(ctx context.Context, e Event) error {
	if b.journal != nil {
		b.persist(ctx, e)
	}

	b.mu.RLock()
	hs := append(append([]Handler(nil), b.subscribers[e.Name()]...), b.all...)
	b.mu.RUnlock()
	for _, h := range hs {
		if err := h(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

func (b *Bus) persist(ctx context.Context, e Event) {
	runID := "unknown"
	if re, ok := e.(interface{ RunID() string }); ok {
		runID = re.RunID()
	}
	payload, err := json.Marshal(e)
	if err != nil {
		b.logger.Warn("Failed to encode event", logfields.Phase(e.Name()), logfields.Error(err))
		return
	}
	if err := b.journal.Append(ctx, runID, e.Name(), payload, nil); err != nil {
		b.logger.Warn("Failed to journal event",
			logfields.RunID(runID), logfields.Phase(e.Name()), logfields.Error(err))
	}
}
