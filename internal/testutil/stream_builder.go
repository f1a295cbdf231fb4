package testutil

import (
	"github.com/loomchat/loom/core"
)

// StreamBuilder provides a fluent helper for constructing protocol event
// sequences in tests.
// Example:
//
//	events := NewStreamBuilder().Started("run-1").Text("m1", "hello").Finished(conv).Build()
//
// Chain only the parts you need; events are emitted in chaining order.
type StreamBuilder struct {
	events []core.StreamEvent
	author string
}

// NewStreamBuilder creates a builder with default author "assistant".
func NewStreamBuilder() *StreamBuilder { return &StreamBuilder{author: "assistant"} }

// Author sets the author used for subsequent text deltas (chainable).
func (b *StreamBuilder) Author(a string) *StreamBuilder { b.author = a; return b }

// Started appends a run acknowledgement event (chainable).
func (b *StreamBuilder) Started(runID string) *StreamBuilder {
	b.events = append(b.events, core.RunStartedEvent{RunID: runID})
	return b
}

// Text appends one text delta per fragment, all for the same message ID
// (chainable).
func (b *StreamBuilder) Text(messageID string, fragments ...string) *StreamBuilder {
	for _, f := range fragments {
		b.events = append(b.events, core.TextDeltaEvent{MessageID: messageID, Author: b.author, Delta: f})
	}
	return b
}

// Thinking appends one thinking delta per fragment (chainable).
func (b *StreamBuilder) Thinking(fragments ...string) *StreamBuilder {
	for _, f := range fragments {
		b.events = append(b.events, core.ThinkingDeltaEvent{Delta: f})
	}
	return b
}

// ToolCall appends a start/args/end triple for one tool invocation
// (chainable). Pass empty args to skip the args event.
func (b *StreamBuilder) ToolCall(callID, name, args string) *StreamBuilder {
	b.events = append(b.events, core.ToolCallStartEvent{CallID: callID, Name: name})
	if args != "" {
		b.events = append(b.events, core.ToolCallArgsEvent{CallID: callID, ArgsDelta: args})
	}
	b.events = append(b.events, core.ToolCallEndEvent{CallID: callID})
	return b
}

// Activity appends an explicit activity change event (chainable).
func (b *StreamBuilder) Activity(a core.ActivityType) *StreamBuilder {
	b.events = append(b.events, core.ActivityEvent{Activity: a})
	return b
}

// Finished appends a successful terminal event (chainable).
func (b *StreamBuilder) Finished(conv *core.Conversation) *StreamBuilder {
	b.events = append(b.events, core.RunFinishedEvent{Conversation: conv})
	return b
}

// Errored appends a failure terminal event (chainable).
func (b *StreamBuilder) Errored(err error, stack string) *StreamBuilder {
	b.events = append(b.events, core.RunErrorEvent{Err: err, StackTrace: stack})
	return b
}

// Build returns the accumulated event sequence.
func (b *StreamBuilder) Build() []core.StreamEvent {
	return append([]core.StreamEvent{}, b.events...)
}
