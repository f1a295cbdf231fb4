package run

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomchat/loom/core"
	"github.com/loomchat/loom/logging"
)

func newRegisteredHandle(t *testing.T, r *Registry, room, thread string) (*Handle, *fakeSubscription) {
	t.Helper()
	key := core.NewRunKey(room, thread)
	sub := &fakeSubscription{}
	h := NewHandle(key, core.NewConversation(room, thread), sub)
	require.NoError(t, r.Register(context.Background(), h))
	return h, sub
}

func drain(ch <-chan LifecycleEvent) []LifecycleEvent {
	var evs []LifecycleEvent
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return evs
			}
			evs = append(evs, ev)
		default:
			return evs
		}
	}
}

func TestRegistry_RegisterAndLookup(t *testing.T) {
	r := NewRegistry()
	key := core.NewRunKey("r1", "t1")

	_, ok := r.Handle(key)
	assert.False(t, ok)
	_, ok = r.RunState(key)
	assert.False(t, ok)
	assert.False(t, r.Has(key))
	assert.False(t, r.HasActive(key))

	h, _ := newRegisteredHandle(t, r, "r1", "t1")

	got, ok := r.Handle(key)
	require.True(t, ok)
	assert.Same(t, h, got)
	assert.True(t, r.Has(key))
	assert.True(t, r.HasActive(key))
	assert.Equal(t, 1, r.Count())
	assert.Equal(t, 1, r.ActiveCount())

	state, ok := r.RunState(key)
	require.True(t, ok)
	assert.IsType(t, core.Running{}, state)
}

func TestRegistry_ReRegisterSupersedes(t *testing.T) {
	r := NewRegistry()
	key := core.NewRunKey("r1", "t1")

	events, cancel := r.Subscribe()
	defer cancel()

	a, subA := newRegisteredHandle(t, r, "r1", "t1")
	b, _ := newRegisteredHandle(t, r, "r1", "t1")

	got, ok := r.Handle(key)
	require.True(t, ok)
	assert.Same(t, b, got, "lookup must return the replacement")
	assert.True(t, a.Disposed(), "superseded handle is disposed before replacement is visible")
	assert.Equal(t, 1, subA.cancelCount())
	assert.Equal(t, 1, r.Count(), "at most one handle per key")

	evs := drain(events)
	require.Len(t, evs, 2)
	assert.Equal(t, RunStarted{Key: key}, evs[0])
	assert.Equal(t, RunStarted{Key: key}, evs[1], "replacement emits RunStarted for the new handle only")
}

// blockingSubscription parks Cancel until released, so tests can observe the
// registry mid-replacement.
type blockingSubscription struct {
	entered chan struct{}
	release chan struct{}
}

func newBlockingSubscription() *blockingSubscription {
	return &blockingSubscription{entered: make(chan struct{}), release: make(chan struct{})}
}

func (s *blockingSubscription) Cancel(ctx context.Context) error {
	close(s.entered)
	select {
	case <-s.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func TestRegistry_ReplacementInvisibleUntilOldDisposed(t *testing.T) {
	r := NewRegistry()
	key := core.NewRunKey("r1", "t1")

	subA := newBlockingSubscription()
	a := NewHandle(key, core.NewConversation("r1", "t1"), subA)
	require.NoError(t, r.Register(context.Background(), a))

	b := NewHandle(key, core.NewConversation("r1", "t1"), &fakeSubscription{})

	registered := make(chan error, 1)
	go func() { registered <- r.Register(context.Background(), b) }()

	select {
	case <-subA.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("superseded handle disposal never started")
	}

	// The old handle's teardown is still settling: it is already removed,
	// and the replacement must not be visible yet.
	_, ok := r.Handle(key)
	assert.False(t, ok, "replacement visible before old handle disposed")
	assert.False(t, r.Has(key))
	assert.Equal(t, 0, r.Count())

	// A late completion from the superseded run is stale in this window.
	r.Complete(a, core.Cancelled{Reason: "late"})

	close(subA.release)
	require.NoError(t, <-registered)

	got, ok := r.Handle(key)
	require.True(t, ok)
	assert.Same(t, b, got)
	assert.True(t, a.Disposed())
	_, running := b.State().(core.Running)
	assert.True(t, running, "stale completion must not touch the replacement")
}

func TestRegistry_CompleteBroadcastsAndKeepsHandle(t *testing.T) {
	r := NewRegistry()
	key := core.NewRunKey("r1", "t1")

	h, _ := newRegisteredHandle(t, r, "r1", "t1")

	events, cancel := r.Subscribe()
	defer cancel()

	wantErr := errors.New("network unreachable")
	r.Complete(h, core.Failed{Err: wantErr})

	state, ok := r.RunState(key)
	require.True(t, ok)
	completed, ok := state.(core.Completed)
	require.True(t, ok)
	failed, ok := completed.Result.(core.Failed)
	require.True(t, ok)
	assert.ErrorIs(t, failed.Err, wantErr)

	assert.True(t, r.Has(key), "completion does not unregister")
	assert.False(t, r.HasActive(key))
	assert.Equal(t, 1, r.Count())
	assert.Equal(t, 0, r.ActiveCount())

	evs := drain(events)
	require.Len(t, evs, 1)
	rc, ok := evs[0].(RunCompleted)
	require.True(t, ok)
	assert.Equal(t, key, rc.Key)
	assert.IsType(t, core.Failed{}, rc.Result)
}

func TestRegistry_StaleCompletionIsNoOp(t *testing.T) {
	r := NewRegistry()
	key := core.NewRunKey("r1", "t1")

	a, _ := newRegisteredHandle(t, r, "r1", "t1")
	b, _ := newRegisteredHandle(t, r, "r1", "t1")

	events, cancel := r.Subscribe()
	defer cancel()

	// a was superseded by b; its late completion must not clobber b.
	r.Complete(a, core.Cancelled{Reason: "superseded"})

	assert.True(t, r.HasActive(key))
	assert.Equal(t, 1, r.ActiveCount())
	assert.Empty(t, drain(events), "no RunCompleted for a stale handle")

	got, _ := r.Handle(key)
	assert.Same(t, b, got)
	_, running := got.State().(core.Running)
	assert.True(t, running)
}

func TestRegistry_RichLoggerRecordsCompletion(t *testing.T) {
	var buf bytes.Buffer
	cfg := logging.DefaultLoggerConfig()
	cfg.Output = &buf
	cfg.AddSource = false
	logger := logging.NewLogger(cfg)

	r := NewRegistry(func(o *Options) { o.Logger = logger })
	h, _ := newRegisteredHandle(t, r, "r1", "t1")
	h.Fold(core.TextDeltaEvent{MessageID: "m1", Delta: "hello"})

	r.Complete(h, core.Failed{Err: errors.New("network unreachable")})

	out := buf.String()
	assert.Contains(t, out, "Run failed")
	assert.Contains(t, out, `"outcome":"failed"`)
	assert.Contains(t, out, `"room_id":"r1"`)
	assert.Contains(t, out, `"thread_id":"t1"`)
	assert.Contains(t, out, "Stream statistics")
	assert.Contains(t, out, `"text_bytes":5`)
}

func TestRegistry_CompleteTwiceEmitsOnce(t *testing.T) {
	r := NewRegistry()
	h, _ := newRegisteredHandle(t, r, "r1", "t1")

	events, cancel := r.Subscribe()
	defer cancel()

	r.Complete(h, core.Success{})
	r.Complete(h, core.Cancelled{})

	evs := drain(events)
	require.Len(t, evs, 1)
	assert.IsType(t, core.Success{}, evs[0].(RunCompleted).Result)
}

func TestRegistry_RemoveDisposesWithoutEvent(t *testing.T) {
	r := NewRegistry()
	key := core.NewRunKey("r1", "t1")
	h, sub := newRegisteredHandle(t, r, "r1", "t1")

	events, cancel := r.Subscribe()
	defer cancel()

	require.NoError(t, r.Remove(context.Background(), key))

	assert.False(t, r.Has(key))
	assert.True(t, h.Disposed())
	assert.Equal(t, 1, sub.cancelCount())
	assert.Empty(t, drain(events), "removal is not a lifecycle event")
}

func TestRegistry_RemoveUnknownKeyIsNoOp(t *testing.T) {
	r := NewRegistry()
	newRegisteredHandle(t, r, "r1", "t1")

	require.NoError(t, r.Remove(context.Background(), core.NewRunKey("r9", "t9")))
	assert.Equal(t, 1, r.Count())
}

func TestRegistry_RemoveAllKeepsRegistryUsable(t *testing.T) {
	r := NewRegistry()
	a, _ := newRegisteredHandle(t, r, "r1", "t1")
	b, _ := newRegisteredHandle(t, r, "r2", "t2")

	require.NoError(t, r.RemoveAll(context.Background()))

	assert.Equal(t, 0, r.Count())
	assert.True(t, a.Disposed())
	assert.True(t, b.Disposed())

	// The registry is still open for business.
	c, _ := newRegisteredHandle(t, r, "r3", "t3")
	assert.False(t, c.Disposed())
	assert.Equal(t, 1, r.Count())
}

func TestRegistry_DisposePoisonsRegistry(t *testing.T) {
	r := NewRegistry()
	key := core.NewRunKey("r1", "t1")
	h, _ := newRegisteredHandle(t, r, "r1", "t1")

	events, cancel := r.Subscribe()
	defer cancel()

	ctx := context.Background()
	require.NoError(t, r.Dispose(ctx))
	require.NoError(t, r.Dispose(ctx), "dispose is idempotent")

	assert.True(t, h.Disposed())

	// The feed is closed.
	_, open := <-events
	assert.False(t, open)

	// Mutating operations fail fast.
	fresh := NewHandle(key, core.NewConversation("r1", "t1"), &fakeSubscription{})
	assert.ErrorIs(t, r.Register(ctx, fresh), ErrRegistryDisposed)
	assert.ErrorIs(t, r.Remove(ctx, key), ErrRegistryDisposed)
	assert.ErrorIs(t, r.RemoveAll(ctx), ErrRegistryDisposed)

	// Completions after disposal stay silent.
	r.Complete(h, core.Cancelled{})
}

func TestRegistry_IndependentKeysCoexist(t *testing.T) {
	r := NewRegistry()

	a, _ := newRegisteredHandle(t, r, "r1", "t1")
	b, _ := newRegisteredHandle(t, r, "r1", "t2")
	c, _ := newRegisteredHandle(t, r, "r2", "t1")

	assert.Equal(t, 3, r.Count())
	assert.Equal(t, 3, r.ActiveCount())

	r.Complete(b, core.Success{})

	assert.Equal(t, 3, r.Count())
	assert.Equal(t, 2, r.ActiveCount())
	assert.False(t, a.Disposed())
	assert.False(t, c.Disposed())
}
