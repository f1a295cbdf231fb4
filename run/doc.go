// Package run implements the streaming run coordinator: the component set
// that tracks concurrently active agent runs, folds ordered protocol events
// into render-ready state, and guarantees clean cancellation/replacement
// semantics when runs are superseded or abandoned.
//
// The package provides:
//
//   - Handle: owns one run's event subscription, cancellation and current
//     ActiveRunState; folds protocol events in delivery order; disposal is
//     idempotent.
//   - Registry: the supervisor. Maps a (room, thread) key to at most one live
//     Handle, replaces and disposes superseded runs, and broadcasts lifecycle
//     events to observers.
//   - Feed: the lifecycle broadcast channel. Purely informational; late
//     subscribers do not receive earlier events.
//
// The Registry is the single source of truth for what is live right now.
// Switching rooms or threads does not cancel a background run; registering a
// new run for an occupied key does, with the superseded handle disposed
// before the replacement becomes visible.
package run
