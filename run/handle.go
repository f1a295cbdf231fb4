package run

import (
	"context"
	"sync"
	"time"

	"github.com/loomchat/loom/core"
	"github.com/loomchat/loom/logging"
)

// Subscription is the handle's hook into its underlying event source.
// Transports hand one to NewHandle when opening a run.
//
// Cancel stops event delivery and releases the source (connection, stream,
// goroutine). It MUST be idempotent and block until teardown settles or ctx
// expires. It MUST NOT call back into the registry.
type Subscription interface {
	Cancel(ctx context.Context) error
}

// SubscriptionFunc adapts a function to the Subscription interface.
type SubscriptionFunc func(ctx context.Context) error

// Cancel invokes the wrapped function.
func (f SubscriptionFunc) Cancel(ctx context.Context) error { return f(ctx) }

// HandleOptions holds overrides passed to NewHandle.
type HandleOptions struct {
	// RunID is the run identifier; a fresh id is generated when empty. The
	// server may overwrite it later via a run-started event.
	RunID string
	// Logger receives handle-level diagnostics.
	Logger logging.Logger
}

// Handle owns exactly one run: its event subscription, its cancellation and
// its current ActiveRunState. Events are folded in the order the transport
// delivers them; folding never fails on unexpected orderings, it degrades
// gracefully instead.
//
// State transitions are strictly forward. Once the handle reports Completed
// it never runs again; a new run needs a new handle. Dispose is safe to call
// any number of times.
// RunStats aggregates per-run stream counters for diagnostics.
type RunStats struct {
	Events        int
	TextBytes     int
	ThinkingBytes int
}

type Handle struct {
	key     core.RunKey
	logger  logging.Logger
	started time.Time

	mu       sync.Mutex
	runID    string
	state    core.ActiveRunState
	sub      Subscription
	stats    RunStats
	disposed bool
}

// NewHandle constructs a Handle for key wired to sub, starting in the Running
// state with an empty streaming phase over conversation.
func NewHandle(key core.RunKey, conversation *core.Conversation, sub Subscription, optFns ...func(o *HandleOptions)) *Handle {
	opts := HandleOptions{
		RunID:  core.NewID(),
		Logger: logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Handle{
		key:     key,
		logger:  opts.Logger,
		started: time.Now(),
		runID:   opts.RunID,
		state:   core.Running{Conversation: conversation, Streaming: core.NewAwaitingText()},
		sub:     sub,
	}
}

// Key returns the (room, thread) identity of the run.
func (h *Handle) Key() core.RunKey { return h.key }

// RunID returns the run identifier.
func (h *Handle) RunID() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.runID
}

// State returns a snapshot of the current run state. The snapshot is safe to
// retain; later folding does not mutate it.
func (h *Handle) State() core.ActiveRunState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return core.CloneRunState(h.state)
}

// StartedAt returns when the handle was created.
func (h *Handle) StartedAt() time.Time { return h.started }

// Stats returns the stream counters accumulated so far.
func (h *Handle) Stats() RunStats {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stats
}

// Disposed reports whether Dispose has been called.
func (h *Handle) Disposed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.disposed
}

// Fold applies one protocol event to the run state. Folding is total: every
// event is accepted in every state. Events arriving after completion or
// disposal are ignored. Terminal events (run-finished, run-error) do not
// complete the handle here; the transport reports them through
// Registry.Complete so the stale-completion guard applies.
func (h *Handle) Fold(ev core.StreamEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.disposed {
		return
	}

	running, ok := h.state.(core.Running)
	if !ok {
		h.logger.Debug("run handle ignored event after completion key=%s", h.key)
		return
	}

	h.stats.Events++

	switch e := ev.(type) {
	case core.RunStartedEvent:
		if e.RunID != "" {
			h.runID = e.RunID
		}
	case core.TextDeltaEvent:
		h.stats.TextBytes += len(e.Delta)
		running.Streaming = foldTextDelta(running.Streaming, e)
		h.state = running
	case core.ThinkingDeltaEvent:
		h.stats.ThinkingBytes += len(e.Delta)
		running.Streaming = foldThinkingDelta(running.Streaming, e)
		h.state = running
	case core.ToolCallStartEvent:
		running.Streaming = foldToolCallStart(running.Streaming, e)
		h.state = running
	case core.ToolCallArgsEvent, core.ToolCallEndEvent:
		// Argument deltas and call completion carry no render-state change;
		// the tool name stays visible as last-known activity.
	case core.ActivityEvent:
		if e.Activity != nil {
			running.Streaming = setActivity(running.Streaming, e.Activity)
			h.state = running
		}
	case core.RunFinishedEvent, core.RunErrorEvent:
		running.Streaming = endThinking(running.Streaming)
		h.state = running
	}
}

// complete transitions the handle to Completed. Returns false when the handle
// already completed, so the caller can suppress duplicate notifications.
// Called by the registry only.
func (h *Handle) complete(result core.CompletionResult) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, done := h.state.(core.Completed); done {
		return false
	}
	h.state = core.Completed{Result: result}
	return true
}

// Dispose cancels the underlying event subscription and releases the source.
// It blocks until teardown settles or ctx expires. Subsequent calls are
// no-ops.
func (h *Handle) Dispose(ctx context.Context) error {
	h.mu.Lock()
	if h.disposed {
		h.mu.Unlock()
		return nil
	}
	h.disposed = true
	sub := h.sub
	h.sub = nil
	h.mu.Unlock()

	if sub == nil {
		return nil
	}
	if err := sub.Cancel(ctx); err != nil {
		h.logger.Warn("run handle subscription cancel failed key=%s err=%v", h.key, err)
		return err
	}
	return nil
}

// foldTextDelta appends answer text, promoting AwaitingText to TextStreaming
// on the first delta. The buffered thinking text carries over and the message
// id is fixed from that point on.
func foldTextDelta(s core.StreamingState, e core.TextDeltaEvent) core.StreamingState {
	switch st := s.(type) {
	case core.AwaitingText:
		id := e.MessageID
		if id == "" {
			id = core.NewID()
		}
		return core.TextStreaming{
			MessageID:         id,
			Author:            e.Author,
			Text:              e.Delta,
			ThinkingText:      st.ThinkingText,
			ThinkingStreaming: st.ThinkingStreaming,
			Activity:          core.RespondingActivity{},
		}
	case core.TextStreaming:
		st.Text += e.Delta
		st.Activity = core.RespondingActivity{}
		return st
	default:
		return s
	}
}

// foldThinkingDelta appends reasoning text. A thinking delta arriving after
// answer text has started is still appended and stays visible.
func foldThinkingDelta(s core.StreamingState, e core.ThinkingDeltaEvent) core.StreamingState {
	switch st := s.(type) {
	case core.AwaitingText:
		st.ThinkingText += e.Delta
		st.ThinkingStreaming = true
		st.Activity = core.ThinkingActivity{}
		return st
	case core.TextStreaming:
		st.ThinkingText += e.Delta
		st.ThinkingStreaming = true
		st.Activity = core.ThinkingActivity{}
		return st
	default:
		return s
	}
}

// foldToolCallStart records the tool name, accumulating into an existing
// ToolCallActivity when calls overlap.
func foldToolCallStart(s core.StreamingState, e core.ToolCallStartEvent) core.StreamingState {
	next := func(cur core.ActivityType) core.ActivityType {
		if tc, ok := cur.(core.ToolCallActivity); ok {
			return tc.WithTool(e.Name)
		}
		return core.NewToolCallActivity(e.Name)
	}
	switch st := s.(type) {
	case core.AwaitingText:
		st.Activity = next(st.Activity)
		st.ThinkingStreaming = false
		return st
	case core.TextStreaming:
		st.Activity = next(st.Activity)
		st.ThinkingStreaming = false
		return st
	default:
		return s
	}
}

func setActivity(s core.StreamingState, a core.ActivityType) core.StreamingState {
	switch st := s.(type) {
	case core.AwaitingText:
		st.Activity = a
		return st
	case core.TextStreaming:
		st.Activity = a
		return st
	default:
		return s
	}
}

func endThinking(s core.StreamingState) core.StreamingState {
	switch st := s.(type) {
	case core.AwaitingText:
		st.ThinkingStreaming = false
		return st
	case core.TextStreaming:
		st.ThinkingStreaming = false
		return st
	default:
		return s
	}
}
