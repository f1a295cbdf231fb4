package run

import (
	"sync"

	"github.com/loomchat/loom/core"
)

// LifecycleEvent is an out-of-band notification about a run's lifecycle,
// distinct from the run state itself. Concrete events implement the
// unexported isLifecycleEvent marker enabling a closed set. Events are purely
// informational; registry bookkeeping never depends on them.
type LifecycleEvent interface{ isLifecycleEvent() }

// RunStarted announces a newly registered run.
type RunStarted struct {
	Key core.RunKey
}

// isLifecycleEvent implements the LifecycleEvent interface for RunStarted.
func (RunStarted) isLifecycleEvent() {}

// RunCompleted announces a run reaching its terminal state.
type RunCompleted struct {
	Key    core.RunKey
	Result core.CompletionResult
}

// isLifecycleEvent implements the LifecycleEvent interface for RunCompleted.
func (RunCompleted) isLifecycleEvent() {}

// defaultFeedBuffer is the per-subscriber channel buffer. A subscriber that
// falls further behind than this misses events rather than blocking the
// registry.
const defaultFeedBuffer = 16

// Feed is a broadcast channel for lifecycle events. Observers that attach
// after an event fires do not receive it retroactively. Multiple observers
// may attach; each cancellation removes only its own subscription.
type Feed struct {
	mu     sync.Mutex
	subs   map[int]chan LifecycleEvent
	nextID int
	buffer int
	closed bool
}

// NewFeed constructs an empty feed. A bufferSize <= 0 selects the default.
func NewFeed(bufferSize int) *Feed {
	if bufferSize <= 0 {
		bufferSize = defaultFeedBuffer
	}
	return &Feed{subs: make(map[int]chan LifecycleEvent), buffer: bufferSize}
}

// Subscribe attaches a new observer. The returned cancel function detaches it
// and closes its channel; calling cancel more than once is harmless.
// Subscribing to a closed feed returns an already-closed channel.
func (f *Feed) Subscribe() (<-chan LifecycleEvent, func()) {
	f.mu.Lock()
	defer f.mu.Unlock()

	ch := make(chan LifecycleEvent, f.buffer)
	if f.closed {
		close(ch)
		return ch, func() {}
	}

	id := f.nextID
	f.nextID++
	f.subs[id] = ch

	cancel := func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		if sub, ok := f.subs[id]; ok {
			delete(f.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// publish delivers ev to every subscriber. Delivery is best effort: a full
// subscriber channel drops the event instead of blocking the publisher.
func (f *Feed) publish(ev LifecycleEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	for _, ch := range f.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Close shuts the feed down, closing every subscriber channel. Safe to call
// multiple times and safe for consumers that already cancelled.
func (f *Feed) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	for id, ch := range f.subs {
		delete(f.subs, id)
		close(ch)
	}
}
