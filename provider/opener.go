package provider

import (
	"context"
	"errors"
	"time"

	"github.com/loomchat/loom/core"
	"github.com/loomchat/loom/logging"
	"github.com/loomchat/loom/run"
	"github.com/loomchat/loom/transport"
)

// OpenerOptions holds configuration overrides passed to NewOpener.
type OpenerOptions struct {
	// System is the system prompt sent with every run.
	System string
	// Logger receives opener diagnostics.
	Logger logging.Logger
}

// Opener lifts a Streamer into the transport.Opener contract: each Open call
// starts one provider stream and pumps its events into a run handle. Terminal
// outcomes are reported through the registry exactly like backend-driven
// runs, so the stale-completion guard applies uniformly.
type Opener struct {
	streamer Streamer
	registry *run.Registry
	system   string
	logger   logging.Logger
}

// NewOpener constructs an Opener over streamer, posting terminal results to
// registry.
func NewOpener(streamer Streamer, registry *run.Registry, optFns ...func(o *OpenerOptions)) *Opener {
	opts := OpenerOptions{
		Logger: logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Opener{
		streamer: streamer,
		registry: registry,
		system:   opts.System,
		logger:   opts.Logger,
	}
}

// Open starts a provider stream for the request and returns a handle wired to
// the pumping goroutine. The run outlives ctx; cancellation happens through
// the handle's subscription.
func (o *Opener) Open(ctx context.Context, req transport.OpenRequest) (*run.Handle, error) {
	conv := req.SeedConversation()

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	events, errs := o.streamer.Stream(runCtx, NewRequest(conv, o.system))

	sub := &streamSubscription{cancel: cancel, done: make(chan struct{})}
	h := run.NewHandle(req.Key(), conv, sub, func(ho *run.HandleOptions) {
		if req.ExistingRunID != "" {
			ho.RunID = req.ExistingRunID
		}
		ho.Logger = o.logger
	})

	go o.pump(h, conv, events, errs, sub)

	o.logger.Debug("provider run opened key=%s provider=%s", req.Key(), o.streamer.Info().Provider)
	return h, nil
}

// pump folds provider events into the handle and reports the terminal
// outcome. A closed event channel without error is a successful run; the
// accumulated answer becomes the final assistant message.
func (o *Opener) pump(h *run.Handle, conv *core.Conversation, events <-chan core.StreamEvent, errs <-chan error, sub *streamSubscription) {
	defer close(sub.done)

	for ev := range events {
		h.Fold(ev)
	}

	if err := <-errs; err != nil {
		if errors.Is(err, context.Canceled) {
			o.registry.Complete(h, core.Cancelled{Reason: "run cancelled"})
			return
		}
		o.registry.Complete(h, core.Failed{Err: err, StackTrace: logging.CaptureStack()})
		return
	}

	o.registry.Complete(h, core.Success{Conversation: o.finalConversation(h, conv)})
}

// finalConversation appends the accumulated assistant message to a clone of
// the conversation.
func (o *Opener) finalConversation(h *run.Handle, conv *core.Conversation) *core.Conversation {
	final := conv.Clone()

	running, ok := h.State().(core.Running)
	if !ok {
		return final
	}
	ts, ok := running.Streaming.(core.TextStreaming)
	if !ok {
		return final
	}

	author := ts.Author
	if author == "" {
		author = o.streamer.Info().Name
	}
	final.AddMessage(core.Message{
		ID:           ts.MessageID,
		Role:         "assistant",
		Author:       author,
		Text:         ts.Text,
		ThinkingText: ts.ThinkingText,
		CreatedAt:    time.Now().UTC(),
	})
	return final
}

// streamSubscription cancels the provider stream's context and waits for the
// pump goroutine to drain.
type streamSubscription struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Cancel stops the provider stream. Idempotent; bounded by ctx.
func (s *streamSubscription) Cancel(ctx context.Context) error {
	s.cancel()
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
