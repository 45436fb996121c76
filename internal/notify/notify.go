// Package notify forwards generation lifecycle events to NATS.
//
// Every event is published as JSON on "<prefix>.<event name>", for example
// "sitegen.GenerationFinished". With a configured stream the events go
// through JetStream and are persisted; otherwise core NATS is used.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"git.home.luguber.info/inful/sitegen/internal/config"
	ferrors "git.home.luguber.info/inful/sitegen/internal/foundation/errors"
	"git.home.luguber.info/inful/sitegen/internal/hooks"
	"git.home.luguber.info/inful/sitegen/internal/logfields"
	"git.home.luguber.info/inful/sitegen/internal/retry"
)

const publishTimeout = 5 * time.Second

// Publisher sends one message.
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
}

// Notifier publishes lifecycle events.
type Notifier struct {
	pub    Publisher
	prefix string
	logger *slog.Logger
	retry  retry.Policy
	close  func()
}

// Option configures a Notifier.
type Option func(*Notifier)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(n *Notifier) {
		if l != nil {
			n.logger = l
		}
	}
}

// WithRetry retries failed publishes according to p.
func WithRetry(p retry.Policy) Option {
	return func(n *Notifier) { n.retry = p }
}

// New creates a notifier publishing through pub below prefix.
func New(pub Publisher, prefix string, opts ...Option) *Notifier {
	n := &Notifier{
		pub:    pub,
		prefix: strings.TrimSuffix(prefix, "."),
		logger: slog.Default(),
		retry:  retry.DefaultPolicy(),
		close:  func() {},
	}
	for _, o := range opts {
		o(n)
	}
	return n
}

// Connect dials the server of cfg. With cfg.Stream set the stream is
// created or updated to capture every subject below the prefix.
func Connect(ctx context.Context, cfg config.NotifyConfig, opts ...Option) (*Notifier, error) {
	conn, err := nats.Connect(cfg.URL, nats.Name("sitegen"), nats.Timeout(publishTimeout))
	if err != nil {
		return nil, ferrors.NetworkError("connect to NATS").
			WithCause(err).
			WithContext("url", cfg.URL).
			Build()
	}

	var pub Publisher = corePublisher{conn: conn}
	if cfg.Stream != "" {
		js, err := jetstream.New(conn)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("create JetStream context: %w", err)
		}
		sctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if _, err := js.CreateOrUpdateStream(sctx, jetstream.StreamConfig{
			Name:        cfg.Stream,
			Description: "sitegen lifecycle events",
			Subjects:    []string{cfg.SubjectPrefix + ".>"},
		}); err != nil {
			conn.Close()
			return nil, fmt.Errorf("create stream %s: %w", cfg.Stream, err)
		}
		pub = streamPublisher{js: js}
	}

	n := New(pub, cfg.SubjectPrefix, append([]Option{WithRetry(retry.FromConfig(cfg.Retry))}, opts...)...)
	n.close = func() {
		if err := conn.Drain(); err != nil {
			conn.Close()
		}
	}
	n.logger.Info("NATS notifications enabled",
		slog.String("url", cfg.URL),
		logfields.Subject(n.prefix),
		slog.String("stream", cfg.Stream))
	return n, nil
}

// Subject returns the subject an event is published on.
func (n *Notifier) Subject(e hooks.Event) string {
	return n.prefix + "." + e.Name()
}

// Subscribe forwards every event published on b.
func (n *Notifier) Subscribe(b *hooks.Bus) {
	b.SubscribeAll(n.handle)
}

// handle never fails the run: a lost notification is logged.
func (n *Notifier) handle(ctx context.Context, e hooks.Event) error {
	if err := n.Notify(ctx, e); err != nil {
		n.logger.Warn("Failed to publish notification",
			logfields.Phase(e.Name()),
			logfields.Error(err))
	}
	return nil
}

// Notify publishes one event.
func (n *Notifier) Notify(ctx context.Context, e hooks.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", e.Name(), err)
	}
	subject := n.Subject(e)
	err = n.retry.Do(ctx, func(attempt int) error {
		if attempt > 0 {
			n.logger.Debug("Retrying notification", logfields.Subject(subject), slog.Int("attempt", attempt))
		}
		pctx, cancel := context.WithTimeout(ctx, publishTimeout)
		defer cancel()
		return n.pub.Publish(pctx, subject, data)
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	n.logger.Debug("Published notification", logfields.Subject(subject))
	return nil
}

// Close drains the connection opened by Connect.
func (n *Notifier) Close() error {
	n.close()
	return nil
}

type corePublisher struct{ conn *nats.Conn }

func (p corePublisher) Publish(_ context.Context, subject string, data []byte) error {
	return p.conn.Publish(subject, data)
}

type streamPublisher struct{ js jetstream.JetStream }

func (p streamPublisher) Publish(ctx context.Context, subject string, data []byte) error {
	_, err := p.js.Publish(ctx, subject, data)
	return err
}
