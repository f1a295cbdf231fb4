package provider

import (
	"context"

	"github.com/loomchat/loom/core"
)

// Request captures the normalized provider input built from a conversation.
type Request struct {
	// System is the optional system prompt.
	System string
	// Messages is the conversation history, oldest first.
	Messages []core.Message
}

// Info contains metadata about a provider implementation.
type Info struct {
	Name     string `json:"name"`
	Provider string `json:"provider"` // "openai", "anthropic", etc.
}

// Streamer turns one provider call into an ordered run event stream.
//
// Semantics & Guarantees:
//   - The events channel carries content events only (deltas, tool calls,
//     activity); it is closed when the provider stream ends.
//   - The error channel carries at most one terminal error then closes
//     (buffered size 1). Context cancellation surfaces there as well.
//   - Events are delivered in provider order; no reordering or batching.
type Streamer interface {
	// Stream starts a provider call for req and returns its event stream.
	Stream(ctx context.Context, req Request) (<-chan core.StreamEvent, <-chan error)

	// Info returns provider metadata for logging and attribution.
	Info() Info
}

// NewRequest builds a Request from a conversation snapshot.
func NewRequest(conv *core.Conversation, system string) Request {
	return Request{System: system, Messages: conv.Messages()}
}
