package testutil

import (
	"github.com/loomchat/loom/core"
)

// ConversationBuilder helps construct conversations with fluent chaining for
// tests.
// Example:
//
//	conv := NewConversationBuilder("room-1", "thread-1").User("hi").Assistant("bot", "hello").Build()
type ConversationBuilder struct {
	roomID   string
	threadID string
	messages []core.Message
}

// NewConversationBuilder creates a new builder for the given thread.
// Use chainable methods (User, Assistant, Message) then call Build.
func NewConversationBuilder(roomID, threadID string) *ConversationBuilder {
	return &ConversationBuilder{roomID: roomID, threadID: threadID}
}

// User appends a user message (chainable).
func (b *ConversationBuilder) User(text string) *ConversationBuilder {
	b.messages = append(b.messages, core.NewUserMessage("user", text))
	return b
}

// Assistant appends an assistant message from the given author (chainable).
func (b *ConversationBuilder) Assistant(author, text string) *ConversationBuilder {
	b.messages = append(b.messages, core.NewAssistantMessage(author, text))
	return b
}

// Message appends a prebuilt message (chainable).
func (b *ConversationBuilder) Message(m core.Message) *ConversationBuilder {
	b.messages = append(b.messages, m)
	return b
}

// Build returns a *core.Conversation with the accumulated messages.
func (b *ConversationBuilder) Build() *core.Conversation {
	conv := core.NewConversation(b.roomID, b.threadID)
	for _, m := range b.messages {
		conv.AddMessage(m)
	}
	return conv
}
