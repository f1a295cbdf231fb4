package transport

import (
	"context"

	"github.com/loomchat/loom/core"
	"github.com/loomchat/loom/run"
)

// OpenRequest describes the run to open.
type OpenRequest struct {
	// RoomID and ThreadID form the run key.
	RoomID   string
	ThreadID string
	// UserMessage is the message that triggers the run.
	UserMessage string
	// ExistingRunID optionally resumes a server-known run instead of starting
	// a fresh one.
	ExistingRunID string
	// InitialConversation optionally seeds the handle's conversation; a new
	// empty conversation is created when nil. The user message is appended
	// either way.
	InitialConversation *core.Conversation
}

// Key returns the run key for the request.
func (req OpenRequest) Key() core.RunKey {
	return core.NewRunKey(req.RoomID, req.ThreadID)
}

// Opener opens runs. Implementations return a Handle already wired to a live
// event source and registered nowhere; the caller registers it. The handle's
// event stream starts flowing immediately, so callers should register
// promptly to observe folded state.
type Opener interface {
	Open(ctx context.Context, req OpenRequest) (*run.Handle, error)
}

// SeedConversation builds the conversation a fresh handle starts from: the
// initial conversation when provided (a new empty one otherwise) with the
// user message appended. Every Opener seeds through here so the behavior
// cannot drift between transports.
func (req OpenRequest) SeedConversation() *core.Conversation {
	conv := req.InitialConversation
	if conv == nil {
		conv = core.NewConversation(req.RoomID, req.ThreadID)
	}
	if req.UserMessage != "" {
		conv.AddMessage(core.NewUserMessage("user", req.UserMessage))
	}
	return conv
}
