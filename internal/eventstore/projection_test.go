package eventstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/sitegen/internal/hooks"
)

func publishRun(t *testing.T, bus *hooks.Bus, id string, failed bool) {
	t.Helper()
	ctx := context.Background()
	meta := hooks.Meta{Run: id, At: time.Now()}
	require.NoError(t, bus.Publish(ctx, hooks.GenerationStarted{Meta: meta, Nodes: 2}))
	require.NoError(t, bus.Publish(ctx, hooks.NodeWritten{Meta: meta, ALCN: "/a.html", Dest: "/a.html"}))
	finished := hooks.GenerationFinished{Meta: meta, Rendered: 1, Skipped: 1, Duration: time.Second}
	if failed {
		require.NoError(t, bus.Publish(ctx, hooks.NodeFailed{Meta: meta, ALCN: "/b.html", Error: "boom"}))
		finished.Skipped, finished.Failed = 0, 1
	}
	require.NoError(t, bus.Publish(ctx, finished))
}

func TestRunHistoryFromJournal(t *testing.T) {
	store := newStore(t)
	bus := hooks.NewBus(hooks.WithJournal(store))
	base := time.Date(2020, 3, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	store.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}

	publishRun(t, bus, "first", false)
	publishRun(t, bus, "second", true)
	require.NoError(t, store.Append(context.Background(), "third", hooks.EventGenerationStarted, []byte(`{"nodes":5}`), nil))

	history := NewRunHistory(store, 10)
	require.NoError(t, history.Rebuild(context.Background()))
	assert.False(t, history.LastSyncTime().IsZero())

	runs := history.History()
	require.Len(t, runs, 2)
	assert.Equal(t, "second", runs[0].RunID)
	assert.Equal(t, "partial", runs[0].Status)
	assert.Equal(t, map[string]string{"/b.html": "boom"}, runs[0].FailedNodes)
	assert.Equal(t, "first", runs[1].RunID)
	assert.True(t, runs[1].IsSuccess())
	assert.Equal(t, 2, runs[1].Nodes)
	assert.Equal(t, time.Second, runs[1].Duration)
	require.NotNil(t, runs[1].FinishedAt)

	running, ok := history.Run("third")
	require.True(t, ok)
	assert.Equal(t, RunStatusRunning, running.Status)
	assert.Equal(t, 5, running.Nodes)

	last, ok := history.Last()
	require.True(t, ok)
	assert.Equal(t, "second", last.RunID)
}

func TestRunHistoryIsBounded(t *testing.T) {
	store := newStore(t)
	history := NewRunHistory(store, 2)
	base := time.Date(2020, 3, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		at := base.Add(time.Duration(i) * time.Minute)
		history.Apply(Record{RunID: id, Type: hooks.EventGenerationStarted, Timestamp: at, Payload: []byte(`{}`)})
		history.Apply(Record{RunID: id, Type: hooks.EventGenerationFinished, Timestamp: at.Add(time.Second), Payload: []byte(`{"rendered":1}`)})
	}
	history.Apply(Record{RunID: "unknown", Type: hooks.EventGenerationStarted})

	runs := history.History()
	require.Len(t, runs, 2)
	assert.Equal(t, "c", runs[0].RunID)
	assert.Equal(t, "b", runs[1].RunID)
	_, ok := history.Run("a")
	assert.False(t, ok, "runs outside the history are dropped")
	_, ok = history.Run("unknown")
	assert.False(t, ok)
}

type failingStore struct{ Store }

func (failingStore) Range(context.Context, time.Time, time.Time) ([]Record, error) {
	return nil, errors.New("unavailable")
}

func TestRunHistoryRebuildError(t *testing.T) {
	history := NewRunHistory(failingStore{}, 0)
	require.Error(t, history.Rebuild(context.Background()))
	_, ok := history.Last()
	assert.False(t, ok)
}
