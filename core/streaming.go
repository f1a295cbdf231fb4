package core

// StreamingState captures the ephemeral text-accumulation phase of a run.
// Concrete states implement the unexported isStreamingState marker enabling a
// closed set of two variants:
//
//   - AwaitingText: no answer text has started yet; thinking content may
//     already be arriving and is buffered separately.
//   - TextStreaming: an answer message is actively accumulating.
//
// Both variants are plain values; folding produces new values rather than
// mutating in place. Text buffers only ever lengthen, and once a
// TextStreaming exists its MessageID is fixed for the life of the message.
type StreamingState interface{ isStreamingState() }

// AwaitingText is the streaming state before the first answer text delta.
type AwaitingText struct {
	// ThinkingText buffers reasoning output that arrived before any answer
	// text. It carries over into TextStreaming when the answer starts.
	ThinkingText string
	// ThinkingStreaming is true while thinking deltas are still arriving.
	ThinkingStreaming bool
	// Activity is the run's last-known activity.
	Activity ActivityType
}

// isStreamingState implements the StreamingState interface for AwaitingText.
func (AwaitingText) isStreamingState() {}

// TextStreaming is the streaming state while an answer message accumulates.
type TextStreaming struct {
	// MessageID identifies the accumulating message; assigned once and never
	// changed afterwards.
	MessageID string
	// Author is the author of the accumulating message.
	Author string
	// Text is the answer text accumulated so far. Grows monotonically.
	Text string
	// ThinkingText is the reasoning trace accumulated so far, including any
	// text buffered before the answer started. Grows monotonically.
	ThinkingText string
	// ThinkingStreaming is true while thinking deltas are still arriving.
	ThinkingStreaming bool
	// Activity is the run's last-known activity.
	Activity ActivityType
}

// isStreamingState implements the StreamingState interface for TextStreaming.
func (TextStreaming) isStreamingState() {}

// NewAwaitingText returns the initial streaming state for a fresh run.
func NewAwaitingText() AwaitingText {
	return AwaitingText{Activity: ProcessingActivity{}}
}

// CloneStreamingState returns a copy of s safe for independent use.
func CloneStreamingState(s StreamingState) StreamingState {
	switch st := s.(type) {
	case AwaitingText:
		st.Activity = CloneActivity(st.Activity)
		return st
	case TextStreaming:
		st.Activity = CloneActivity(st.Activity)
		return st
	default:
		return s
	}
}
