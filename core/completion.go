package core

// CompletionResult describes how a run ended. Concrete results implement the
// unexported isCompletionResult marker enabling a closed set. Exactly one
// variant is constructed per completed run and it is immutable afterwards.
type CompletionResult interface{ isCompletionResult() }

// Success carries the final conversation state of a run that finished
// normally.
type Success struct {
	Conversation *Conversation
}

// isCompletionResult implements the CompletionResult interface for Success.
func (Success) isCompletionResult() {}

// Failed records a protocol or transport failure. The failure is surfaced as
// data, never thrown out of the coordinator.
type Failed struct {
	Err error
	// StackTrace is an optional capture of where the failure was observed.
	StackTrace string
}

// isCompletionResult implements the CompletionResult interface for Failed.
func (Failed) isCompletionResult() {}

// Error returns the failure message, or an empty string when no error was
// recorded.
func (f Failed) Error() string {
	if f.Err == nil {
		return ""
	}
	return f.Err.Error()
}

// Cancelled records a user-initiated or superseding cancellation.
type Cancelled struct {
	// Reason is optional human-readable context for the cancellation.
	Reason string
}

// isCompletionResult implements the CompletionResult interface for Cancelled.
func (Cancelled) isCompletionResult() {}
