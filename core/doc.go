// Package core provides the foundational domain types used by loom. It
// defines the core abstractions for:
//
//   - Run identity (RunKey) and the per-run state machine (ActiveRunState)
//   - Streaming accumulation state (StreamingState, ActivityType)
//   - Terminal run outcomes (CompletionResult)
//   - Protocol events delivered by a run's event source (StreamEvent)
//   - Conversations (ordered message containers with defensive cloning)
//
// All state machines are closed sum types implemented as marker interfaces
// with a fixed variant set, so consumers can switch exhaustively. The package
// intentionally keeps implementation concerns (transport, registries,
// providers) out of scope.
package core
