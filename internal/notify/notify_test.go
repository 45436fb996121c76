package notify

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/sitegen/internal/config"
	ferrors "git.home.luguber.info/inful/sitegen/internal/foundation/errors"
	"git.home.luguber.info/inful/sitegen/internal/hooks"
	"git.home.luguber.info/inful/sitegen/internal/retry"
)

type message struct {
	subject string
	data    []byte
}

type recordingPublisher struct {
	mu   sync.Mutex
	msgs []message
	err  error
}

func (p *recordingPublisher) Publish(ctx context.Context, subject string, data []byte) error {
	if _, ok := ctx.Deadline(); !ok {
		return errors.New("publish without deadline")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.msgs = append(p.msgs, message{subject: subject, data: data})
	return nil
}

func TestNotifierPublishesEverySubscribedEvent(t *testing.T) {
	pub := &recordingPublisher{}
	n := New(pub, "site.")
	bus := hooks.NewBus()
	n.Subscribe(bus)

	meta := hooks.Meta{Run: "r1", At: time.Now()}
	ctx := context.Background()
	require.NoError(t, bus.Publish(ctx, hooks.GenerationStarted{Meta: meta, Nodes: 3}))
	require.NoError(t, bus.Publish(ctx, hooks.NodeWritten{Meta: meta, ALCN: "/a.html", Dest: "/a.html", Bytes: 10}))
	require.NoError(t, bus.Publish(ctx, hooks.GenerationFinished{Meta: meta, Rendered: 1}))

	require.Len(t, pub.msgs, 3)
	assert.Equal(t, "site.GenerationStarted", pub.msgs[0].subject)
	assert.Equal(t, "site.NodeWritten", pub.msgs[1].subject)
	assert.Equal(t, "site.GenerationFinished", pub.msgs[2].subject)

	var written hooks.NodeWritten
	require.NoError(t, json.Unmarshal(pub.msgs[1].data, &written))
	assert.Equal(t, "r1", written.Run)
	assert.Equal(t, "/a.html", written.ALCN)
	assert.Equal(t, 10, written.Bytes)
}

func TestPublishFailureDoesNotFailTheRun(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("no responders")}
	n := New(pub, "sitegen")
	bus := hooks.NewBus()
	n.Subscribe(bus)

	err := bus.Publish(context.Background(), hooks.GenerationFinished{Meta: hooks.Meta{Run: "r"}})
	assert.NoError(t, err)

	err = n.Notify(context.Background(), hooks.NodeSkipped{Meta: hooks.Meta{Run: "r"}, ALCN: "/x"})
	assert.ErrorContains(t, err, "sitegen.NodeSkipped")
}

type flakyPublisher struct {
	failures int
	calls    int
}

func (p *flakyPublisher) Publish(context.Context, string, []byte) error {
	p.calls++
	if p.calls <= p.failures {
		return errors.New("timeout")
	}
	return nil
}

func TestPublishIsRetried(t *testing.T) {
	policy := retry.NewPolicy(config.RetryBackoffFixed, time.Millisecond, time.Millisecond, 2)

	pub := &flakyPublisher{failures: 2}
	n := New(pub, "sitegen", WithRetry(policy))
	require.NoError(t, n.Notify(context.Background(), hooks.GenerationStarted{Meta: hooks.Meta{Run: "r"}}))
	assert.Equal(t, 3, pub.calls)

	pub = &flakyPublisher{failures: 3}
	n = New(pub, "sitegen", WithRetry(policy))
	assert.Error(t, n.Notify(context.Background(), hooks.GenerationStarted{Meta: hooks.Meta{Run: "r"}}))
	assert.Equal(t, 3, pub.calls)
}

func TestConnectFailureIsANetworkError(t *testing.T) {
	_, err := Connect(context.Background(), config.NotifyConfig{URL: "nats://127.0.0.1:1", SubjectPrefix: "sitegen"})
	require.Error(t, err)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryNetwork))
}
