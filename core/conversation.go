package core

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Message is one entry in a conversation. Role follows the usual chat
// conventions (user, assistant, tool).
type Message struct {
	ID           string    `json:"id"`
	Role         string    `json:"role"`
	Author       string    `json:"author,omitempty"`
	Text         string    `json:"text"`
	ThinkingText string    `json:"thinking_text,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// NewUserMessage constructs a user-authored message with a fresh id.
func NewUserMessage(author, text string) Message {
	return Message{ID: NewID(), Role: "user", Author: author, Text: text, CreatedAt: time.Now().UTC()}
}

// NewAssistantMessage constructs an assistant message with a fresh id.
func NewAssistantMessage(author, text string) Message {
	return Message{ID: NewID(), Role: "assistant", Author: author, Text: text, CreatedAt: time.Now().UTC()}
}

// Conversation is an ordered message container for one thread. It is safe for
// concurrent access.
//
// Contract:
//   - Mutations update the Updated timestamp
//   - Messages returns a defensive copy to avoid external mutation
//   - Clone performs deep copies for safe divergence.
type Conversation struct {
	ID       string            `json:"id"`
	RoomID   string            `json:"room_id"`
	ThreadID string            `json:"thread_id"`
	Msgs     []Message         `json:"messages"`
	Created  time.Time         `json:"created"`
	Updated  time.Time         `json:"updated"`
	Metadata map[string]string `json:"metadata,omitempty"`
	mu       sync.RWMutex
}

// NewConversation creates an empty conversation for the given room/thread.
func NewConversation(roomID, threadID string) *Conversation {
	now := time.Now().UTC()
	return &Conversation{ID: NewID(), RoomID: roomID, ThreadID: threadID, Msgs: []Message{}, Created: now, Updated: now, Metadata: map[string]string{}}
}

// Key returns the run key this conversation belongs to.
func (c *Conversation) Key() RunKey {
	return RunKey{RoomID: c.RoomID, ThreadID: c.ThreadID}
}

// AddMessage appends a message updating the Updated timestamp.
func (c *Conversation) AddMessage(m Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Msgs = append(c.Msgs, m)
	c.Updated = time.Now().UTC()
}

// Messages returns a defensive copy of the full message slice.
func (c *Conversation) Messages() []Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	msgs := make([]Message, len(c.Msgs))
	copy(msgs, c.Msgs)
	return msgs
}

// Len returns the number of messages.
func (c *Conversation) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.Msgs)
}

// Clone returns a deep copy of the conversation safe for independent
// mutation.
func (c *Conversation) Clone() *Conversation {
	c.mu.RLock()
	defer c.mu.RUnlock()
	clone := &Conversation{
		ID:       c.ID,
		RoomID:   c.RoomID,
		ThreadID: c.ThreadID,
		Msgs:     make([]Message, len(c.Msgs)),
		Created:  c.Created,
		Updated:  c.Updated,
		Metadata: make(map[string]string, len(c.Metadata)),
	}
	copy(clone.Msgs, c.Msgs)
	for k, v := range c.Metadata {
		clone.Metadata[k] = v
	}
	return clone
}

// NewID generates a new unique identifier for runs, messages and
// conversations.
func NewID() string { return uuid.NewString() }
