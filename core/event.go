package core

// StreamEvent is one protocol event delivered by a run's event source.
// Concrete events implement the unexported isStreamEvent marker enabling a
// closed set. Events for one run are folded strictly in delivery order; there
// is no ordering relationship between events of different runs.
//
// Terminal events are RunFinishedEvent and RunErrorEvent; nothing follows
// them on a well-behaved stream, but folding tolerates anything that does.
type StreamEvent interface{ isStreamEvent() }

// RunStartedEvent announces the server-assigned run id.
type RunStartedEvent struct {
	RunID string
}

// isStreamEvent implements the StreamEvent interface for RunStartedEvent.
func (RunStartedEvent) isStreamEvent() {}

// TextDeltaEvent carries an incremental fragment of answer text. MessageID
// and Author are only significant on the first delta of a message; later
// deltas append to the already-established message.
type TextDeltaEvent struct {
	MessageID string
	Author    string
	Delta     string
}

// isStreamEvent implements the StreamEvent interface for TextDeltaEvent.
func (TextDeltaEvent) isStreamEvent() {}

// ThinkingDeltaEvent carries an incremental fragment of the reasoning trace.
type ThinkingDeltaEvent struct {
	Delta string
}

// isStreamEvent implements the StreamEvent interface for ThinkingDeltaEvent.
func (ThinkingDeltaEvent) isStreamEvent() {}

// ToolCallStartEvent announces a tool invocation beginning.
type ToolCallStartEvent struct {
	CallID string
	Name   string
}

// isStreamEvent implements the StreamEvent interface for ToolCallStartEvent.
func (ToolCallStartEvent) isStreamEvent() {}

// ToolCallArgsEvent carries an incremental fragment of a tool call's
// serialized arguments.
type ToolCallArgsEvent struct {
	CallID    string
	ArgsDelta string
}

// isStreamEvent implements the StreamEvent interface for ToolCallArgsEvent.
func (ToolCallArgsEvent) isStreamEvent() {}

// ToolCallEndEvent announces a tool invocation finishing.
type ToolCallEndEvent struct {
	CallID string
}

// isStreamEvent implements the StreamEvent interface for ToolCallEndEvent.
func (ToolCallEndEvent) isStreamEvent() {}

// ActivityEvent announces an explicit activity change.
type ActivityEvent struct {
	Activity ActivityType
}

// isStreamEvent implements the StreamEvent interface for ActivityEvent.
func (ActivityEvent) isStreamEvent() {}

// RunFinishedEvent is the terminal event of a successful run. Conversation is
// the final conversation state including the completed assistant message.
type RunFinishedEvent struct {
	Conversation *Conversation
}

// isStreamEvent implements the StreamEvent interface for RunFinishedEvent.
func (RunFinishedEvent) isStreamEvent() {}

// RunErrorEvent is the terminal event of a failed run.
type RunErrorEvent struct {
	Err        error
	StackTrace string
}

// isStreamEvent implements the StreamEvent interface for RunErrorEvent.
func (RunErrorEvent) isStreamEvent() {}

// IsTerminal reports whether ev ends its run's event stream.
func IsTerminal(ev StreamEvent) bool {
	switch ev.(type) {
	case RunFinishedEvent, RunErrorEvent:
		return true
	default:
		return false
	}
}
