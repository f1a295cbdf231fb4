package core

// ActiveRunState is the top-level per-run state machine. Concrete states
// implement the unexported isRunState marker enabling a closed set.
//
// Transitions are strictly forward: Running -> Completed only. There is no
// Completed -> Running transition for the same handle; starting over requires
// a new handle.
type ActiveRunState interface{ isRunState() }

// Idle is the conceptual baseline when no run is associated with a key. It is
// never stored in a registry; lookups report absence instead.
type Idle struct{}

// isRunState implements the ActiveRunState interface for Idle.
func (Idle) isRunState() {}

// Running is the in-flight state of a run.
type Running struct {
	// Conversation is the conversation the run operates on.
	Conversation *Conversation
	// Streaming is the current text-accumulation phase.
	Streaming StreamingState
}

// isRunState implements the ActiveRunState interface for Running.
func (Running) isRunState() {}

// Completed is the terminal state of a run.
type Completed struct {
	Result CompletionResult
}

// isRunState implements the ActiveRunState interface for Completed.
func (Completed) isRunState() {}

// CloneRunState returns a copy of s safe for independent use. Mutable parts
// (conversation, streaming activity) are deep-copied; completion results are
// immutable and shared.
func CloneRunState(s ActiveRunState) ActiveRunState {
	switch st := s.(type) {
	case Running:
		if st.Conversation != nil {
			st.Conversation = st.Conversation.Clone()
		}
		if st.Streaming != nil {
			st.Streaming = CloneStreamingState(st.Streaming)
		}
		return st
	default:
		return s
	}
}
