package run

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/loomchat/loom/core"
	"github.com/loomchat/loom/logging"
)

// ErrRegistryDisposed is returned by mutating registry operations invoked
// after Dispose. Operating a disposed registry is a programmer error, not a
// recoverable condition.
var ErrRegistryDisposed = errors.New("run registry is disposed")

// Options holds configuration overrides passed to NewRegistry.
type Options struct {
	// FeedBuffer sets the per-subscriber lifecycle channel buffer.
	FeedBuffer int
	// Logger receives registry diagnostics.
	Logger logging.Logger
}

// Registry supervises live runs. It maps a (room, thread) key to at most one
// live Handle, replaces and disposes superseded runs, and broadcasts
// lifecycle events to observers. Public methods are safe for concurrent use.
//
// Semantics & Guarantees:
//   - Uniqueness: for every key at most one handle is registered at any
//     instant. Register removes the old handle and awaits its disposal
//     before the new one becomes visible; mid-replacement the key reads as
//     absent.
//   - Replace-then-emit: only the new registration emits RunStarted; the
//     superseded handle's disposal emits nothing. Callers needing a
//     cancellation notice must act before registering the replacement.
//   - Stale completions: Complete for a handle that was superseded or
//     removed, or after registry disposal, is a silent no-op.
//   - Disposal: Dispose tears down every handle, closes the lifecycle feed
//     and poisons the registry; later mutating calls fail fast with
//     ErrRegistryDisposed.
type Registry struct {
	logger logging.Logger
	feed   *Feed

	mu       sync.Mutex
	handles  map[core.RunKey]*Handle
	disposed bool
}

// NewRegistry constructs an empty Registry with optional overrides.
func NewRegistry(optFns ...func(o *Options)) *Registry {
	opts := Options{
		Logger: logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Registry{
		logger:  opts.Logger,
		feed:    NewFeed(opts.FeedBuffer),
		handles: make(map[core.RunKey]*Handle),
	}
}

// Register installs h as the live handle for its key. A previously registered
// handle for the same key is removed first and its disposal awaited before h
// becomes visible, so no two handles for one key ever overlap in resource
// ownership; lookups during the replacement see the key as absent. RunStarted
// is emitted for the new handle only.
//
// The lock is not held across the old handle's disposal. Its transport may
// still be delivering a terminal event; that Complete finds the key absent
// and no-ops instead of deadlocking against Register.
func (r *Registry) Register(ctx context.Context, h *Handle) error {
	r.mu.Lock()
	if r.disposed {
		r.mu.Unlock()
		return ErrRegistryDisposed
	}
	old := r.handles[h.Key()]
	if old != nil {
		delete(r.handles, h.Key())
	}
	r.mu.Unlock()

	if old != nil {
		if err := old.Dispose(ctx); err != nil {
			r.logger.Warn("superseded run disposal failed key=%s err=%v", h.Key(), err)
		}
	}

	r.mu.Lock()
	if r.disposed {
		r.mu.Unlock()
		return ErrRegistryDisposed
	}
	r.handles[h.Key()] = h
	r.mu.Unlock()

	r.feed.publish(RunStarted{Key: h.Key()})
	r.logger.Debug("run registered key=%s run_id=%s superseded=%t", h.Key(), h.RunID(), old != nil)
	return nil
}

// Complete transitions h to Completed and broadcasts RunCompleted. If the
// registry has been disposed, or h is no longer the registered handle for its
// key, the call is a silent no-op: an expected race outcome when a cancelled
// run's late completion arrives, not an error.
func (r *Registry) Complete(h *Handle, result core.CompletionResult) {
	r.mu.Lock()
	if r.disposed {
		r.mu.Unlock()
		return
	}
	cur, ok := r.handles[h.Key()]
	if !ok || cur != h {
		r.mu.Unlock()
		r.logger.Debug("stale run completion ignored key=%s run_id=%s", h.Key(), h.RunID())
		return
	}
	transitioned := h.complete(result)
	r.mu.Unlock()

	if !transitioned {
		return
	}
	r.feed.publish(RunCompleted{Key: h.Key(), Result: result})
	r.logRunCompleted(h, result)
}

// logRunCompleted records the terminal outcome, using the rich completion and
// stream-stat records when a LoomLogger is configured.
func (r *Registry) logRunCompleted(h *Handle, result core.CompletionResult) {
	ll, ok := r.logger.(*logging.LoomLogger)
	if !ok {
		r.logger.Debug("run completed key=%s run_id=%s", h.Key(), h.RunID())
		return
	}

	runLog := ll.WithRoom(h.Key().RoomID, h.Key().ThreadID).WithRun(h.RunID())
	dur := time.Since(h.StartedAt())

	outcome := "success"
	var runErr error
	switch res := result.(type) {
	case core.Failed:
		outcome = "failed"
		runErr = res.Err
	case core.Cancelled:
		outcome = "cancelled"
	}
	runLog.LogRunCompleted(outcome, dur, runErr)

	stats := h.Stats()
	runLog.LogStreamStats(stats.Events, stats.TextBytes, stats.ThinkingBytes, dur)
}

// RunState returns a snapshot of the registered run's state for key. The
// second result is false when no handle is registered.
func (r *Registry) RunState(key core.RunKey) (core.ActiveRunState, bool) {
	r.mu.Lock()
	h, ok := r.handles[key]
	r.mu.Unlock()
	if !ok {
		return nil, false
	}
	return h.State(), true
}

// Handle returns the registered handle for key, if any.
func (r *Registry) Handle(key core.RunKey) (*Handle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.handles[key]
	return h, ok
}

// Has reports whether any handle is registered for key.
func (r *Registry) Has(key core.RunKey) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.handles[key]
	return ok
}

// HasActive reports whether a handle is registered for key and still running.
func (r *Registry) HasActive(key core.RunKey) bool {
	r.mu.Lock()
	h, ok := r.handles[key]
	r.mu.Unlock()
	if !ok {
		return false
	}
	_, running := h.State().(core.Running)
	return running
}

// Count returns the number of registered handles, live or completed.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handles)
}

// ActiveCount returns the number of registered handles still running.
func (r *Registry) ActiveCount() int {
	r.mu.Lock()
	handles := make([]*Handle, 0, len(r.handles))
	for _, h := range r.handles {
		handles = append(handles, h)
	}
	r.mu.Unlock()

	n := 0
	for _, h := range handles {
		if _, running := h.State().(core.Running); running {
			n++
		}
	}
	return n
}

// Remove unregisters and disposes the handle for key if present. Removal
// emits no lifecycle event: not every removal is a logical completion, so
// callers wanting observers notified call Complete first. Removing an
// unregistered key is a no-op.
func (r *Registry) Remove(ctx context.Context, key core.RunKey) error {
	r.mu.Lock()
	if r.disposed {
		r.mu.Unlock()
		return ErrRegistryDisposed
	}
	h, ok := r.handles[key]
	if ok {
		delete(r.handles, key)
	}
	r.mu.Unlock()

	if !ok {
		return nil
	}
	if err := h.Dispose(ctx); err != nil {
		return err
	}
	r.logger.Debug("run removed key=%s run_id=%s", key, h.RunID())
	return nil
}

// RemoveAll unregisters and disposes every handle. The lifecycle feed stays
// open and the registry remains usable.
func (r *Registry) RemoveAll(ctx context.Context) error {
	r.mu.Lock()
	if r.disposed {
		r.mu.Unlock()
		return ErrRegistryDisposed
	}
	handles := r.takeAllLocked()
	r.mu.Unlock()

	return r.disposeAll(ctx, handles)
}

// Dispose tears the registry down: every handle is disposed, the lifecycle
// feed is closed, and all subsequent mutating calls fail with
// ErrRegistryDisposed. Dispose itself is idempotent.
func (r *Registry) Dispose(ctx context.Context) error {
	r.mu.Lock()
	if r.disposed {
		r.mu.Unlock()
		return nil
	}
	r.disposed = true
	handles := r.takeAllLocked()
	r.mu.Unlock()

	err := r.disposeAll(ctx, handles)
	r.feed.Close()
	r.logger.Debug("run registry disposed handle_count=%d", len(handles))
	return err
}

// Subscribe attaches a lifecycle observer. See Feed.Subscribe.
func (r *Registry) Subscribe() (<-chan LifecycleEvent, func()) {
	return r.feed.Subscribe()
}

// takeAllLocked drains the handle map; caller must hold the write lock.
func (r *Registry) takeAllLocked() []*Handle {
	handles := make([]*Handle, 0, len(r.handles))
	for key, h := range r.handles {
		handles = append(handles, h)
		delete(r.handles, key)
	}
	return handles
}

func (r *Registry) disposeAll(ctx context.Context, handles []*Handle) error {
	var errs []error
	for _, h := range handles {
		if err := h.Dispose(ctx); err != nil {
			r.logger.Warn("run disposal failed key=%s err=%v", h.Key(), err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
