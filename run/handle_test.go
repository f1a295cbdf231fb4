package run

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomchat/loom/core"
)

// fakeSubscription counts cancellations for disposal assertions.
type fakeSubscription struct {
	mu      sync.Mutex
	cancels int
	err     error
}

func (f *fakeSubscription) Cancel(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancels++
	return f.err
}

func (f *fakeSubscription) cancelCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cancels
}

func newTestHandle(t *testing.T) (*Handle, *fakeSubscription) {
	t.Helper()
	key := core.NewRunKey("room-1", "thread-1")
	sub := &fakeSubscription{}
	return NewHandle(key, core.NewConversation(key.RoomID, key.ThreadID), sub), sub
}

func TestHandle_StartsAwaitingText(t *testing.T) {
	h, _ := newTestHandle(t)

	running, ok := h.State().(core.Running)
	require.True(t, ok)

	awaiting, ok := running.Streaming.(core.AwaitingText)
	require.True(t, ok)
	assert.Empty(t, awaiting.ThinkingText)
	assert.False(t, awaiting.ThinkingStreaming)
	assert.IsType(t, core.ProcessingActivity{}, awaiting.Activity)
}

func TestHandle_FirstTextDeltaStartsStreaming(t *testing.T) {
	h, _ := newTestHandle(t)

	h.Fold(core.ThinkingDeltaEvent{Delta: "let me see"})
	h.Fold(core.TextDeltaEvent{MessageID: "m1", Author: "assistant", Delta: "Hello"})

	running := h.State().(core.Running)
	ts, ok := running.Streaming.(core.TextStreaming)
	require.True(t, ok)
	assert.Equal(t, "m1", ts.MessageID)
	assert.Equal(t, "assistant", ts.Author)
	assert.Equal(t, "Hello", ts.Text)
	assert.Equal(t, "let me see", ts.ThinkingText, "buffered thinking carries over")
	assert.IsType(t, core.RespondingActivity{}, ts.Activity)
}

func TestHandle_TextGrowsMonotonically(t *testing.T) {
	h, _ := newTestHandle(t)

	deltas := []string{"Hel", "lo", ", ", "world", "!"}
	prevLen := 0
	for _, d := range deltas {
		h.Fold(core.TextDeltaEvent{MessageID: "m1", Delta: d})
		ts := h.State().(core.Running).Streaming.(core.TextStreaming)
		assert.GreaterOrEqual(t, len(ts.Text), prevLen)
		prevLen = len(ts.Text)
	}

	ts := h.State().(core.Running).Streaming.(core.TextStreaming)
	assert.Equal(t, "Hello, world!", ts.Text)
	assert.Equal(t, "m1", ts.MessageID, "message id is fixed after the first delta")
}

func TestHandle_ThinkingDeltaAfterTextStillAppends(t *testing.T) {
	h, _ := newTestHandle(t)

	h.Fold(core.TextDeltaEvent{MessageID: "m1", Delta: "answer"})
	h.Fold(core.ThinkingDeltaEvent{Delta: "late reasoning"})

	ts := h.State().(core.Running).Streaming.(core.TextStreaming)
	assert.Equal(t, "answer", ts.Text)
	assert.Equal(t, "late reasoning", ts.ThinkingText)
	assert.True(t, ts.ThinkingStreaming)
}

func TestHandle_ToolCallsAccumulateNames(t *testing.T) {
	h, _ := newTestHandle(t)

	h.Fold(core.ToolCallStartEvent{CallID: "c1", Name: "search"})
	h.Fold(core.ToolCallArgsEvent{CallID: "c1", ArgsDelta: `{"q":`})
	h.Fold(core.ToolCallStartEvent{CallID: "c2", Name: "fetch"})
	h.Fold(core.ToolCallEndEvent{CallID: "c1"})

	awaiting := h.State().(core.Running).Streaming.(core.AwaitingText)
	tc, ok := awaiting.Activity.(core.ToolCallActivity)
	require.True(t, ok)
	assert.Equal(t, []string{"fetch", "search"}, tc.Names())
}

func TestHandle_ActivityPersistsUntilNextActivity(t *testing.T) {
	h, _ := newTestHandle(t)

	h.Fold(core.ToolCallStartEvent{CallID: "c1", Name: "search"})
	h.Fold(core.ToolCallEndEvent{CallID: "c1"})

	// The finished tool call stays visible as last-known activity.
	awaiting := h.State().(core.Running).Streaming.(core.AwaitingText)
	assert.IsType(t, core.ToolCallActivity{}, awaiting.Activity)

	// A new activity replaces it.
	h.Fold(core.ActivityEvent{Activity: core.ThinkingActivity{}})
	awaiting = h.State().(core.Running).Streaming.(core.AwaitingText)
	assert.IsType(t, core.ThinkingActivity{}, awaiting.Activity)
}

func TestHandle_FoldAfterCompletionIsIgnored(t *testing.T) {
	h, _ := newTestHandle(t)

	require.True(t, h.complete(core.Cancelled{Reason: "test"}))
	h.Fold(core.TextDeltaEvent{MessageID: "m1", Delta: "late"})

	completed, ok := h.State().(core.Completed)
	require.True(t, ok)
	assert.IsType(t, core.Cancelled{}, completed.Result)
}

func TestHandle_CompleteIsForwardOnly(t *testing.T) {
	h, _ := newTestHandle(t)

	require.True(t, h.complete(core.Success{}))
	assert.False(t, h.complete(core.Cancelled{}), "second completion must not transition")

	completed := h.State().(core.Completed)
	assert.IsType(t, core.Success{}, completed.Result)
}

func TestHandle_DisposeIsIdempotent(t *testing.T) {
	h, sub := newTestHandle(t)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, h.Dispose(ctx))
	}

	assert.True(t, h.Disposed())
	assert.Equal(t, 1, sub.cancelCount(), "subscription cancelled exactly once")
}

func TestHandle_DisposeReportsCancelError(t *testing.T) {
	key := core.NewRunKey("r", "t")
	wantErr := errors.New("connection stuck")
	sub := &fakeSubscription{err: wantErr}
	h := NewHandle(key, core.NewConversation("r", "t"), sub)

	err := h.Dispose(context.Background())
	assert.ErrorIs(t, err, wantErr)

	// A later call stays a no-op even after a failed cancel.
	assert.NoError(t, h.Dispose(context.Background()))
	assert.Equal(t, 1, sub.cancelCount())
}

func TestHandle_StateSnapshotIsIsolated(t *testing.T) {
	h, _ := newTestHandle(t)

	h.Fold(core.ToolCallStartEvent{CallID: "c1", Name: "search"})
	snap := h.State().(core.Running).Streaming.(core.AwaitingText)

	h.Fold(core.ToolCallStartEvent{CallID: "c2", Name: "fetch"})

	tc := snap.Activity.(core.ToolCallActivity)
	assert.Equal(t, []string{"search"}, tc.Names(), "snapshot must not observe later folds")
}

func TestHandle_TracksStreamStats(t *testing.T) {
	h, _ := newTestHandle(t)

	h.Fold(core.ThinkingDeltaEvent{Delta: "hmm"})
	h.Fold(core.TextDeltaEvent{MessageID: "m1", Delta: "hello"})
	h.Fold(core.ToolCallStartEvent{CallID: "c1", Name: "search"})

	stats := h.Stats()
	assert.Equal(t, 3, stats.Events)
	assert.Equal(t, 5, stats.TextBytes)
	assert.Equal(t, 3, stats.ThinkingBytes)
	assert.False(t, h.StartedAt().IsZero())
}

func TestHandle_RunStartedEventAdoptsServerRunID(t *testing.T) {
	h, _ := newTestHandle(t)

	h.Fold(core.RunStartedEvent{RunID: "srv-42"})
	assert.Equal(t, "srv-42", h.RunID())

	h.Fold(core.RunStartedEvent{})
	assert.Equal(t, "srv-42", h.RunID(), "empty run id must not clobber")
}
