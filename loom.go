// Package loom provides a high-level façade over the run registry and the
// streaming transports, enabling rapid construction of chat clients that
// track model runs per conversation thread. Most applications interact with
// this package by:
//  1. Creating a Client via NewWebSocketClient, NewProviderClient or
//     FromConfig
//  2. Starting runs per (room, thread) with Start or StartAndWait
//  3. Subscribing to lifecycle events and reading render state via RunState
//
// The façade delegates run tracking to run.Registry while keeping setup and
// usage ergonomics concise. All defaults are safe for local development and
// testing; production deployments typically supply a structured logger and
// configuration loaded from file or environment.
package loom

import (
	"context"
	"fmt"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"

	"github.com/loomchat/loom/config"
	"github.com/loomchat/loom/core"
	"github.com/loomchat/loom/logging"
	"github.com/loomchat/loom/provider"
	"github.com/loomchat/loom/provider/anthropic"
	"github.com/loomchat/loom/provider/openai"
	"github.com/loomchat/loom/run"
	"github.com/loomchat/loom/transport"
)

// Options configures the Client instance.
type Options struct {
	// FeedBuffer sets the per-subscriber buffer for lifecycle events.
	// Larger buffers tolerate slower consumers before events are dropped.
	FeedBuffer int

	// System is the system prompt applied to provider-backed runs.
	System string

	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger
}

// Client is the high-level façade aggregating the run registry and an opener.
type Client struct {
	opts     Options
	registry *run.Registry
	opener   transport.Opener
}

// New creates a Client with its own registry and no opener. Callers that
// construct their own transport pass it per call via StartWith.
func New(optFns ...func(o *Options)) *Client {
	opts := Options{
		FeedBuffer: 16,
		Logger:     logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	registry := run.NewRegistry(func(o *run.Options) {
		o.FeedBuffer = opts.FeedBuffer
		o.Logger = opts.Logger
	})

	return &Client{opts: opts, registry: registry}
}

// NewWebSocketClient creates a Client whose runs stream from a chat backend
// over WebSocket.
func NewWebSocketClient(serverURL string, optFns ...func(o *Options)) *Client {
	c := New(optFns...)
	c.opener = transport.NewWebSocket(serverURL, c.registry, func(o *transport.WebSocketOptions) {
		o.Logger = c.opts.Logger
	})
	return c
}

// NewProviderClient creates a Client whose runs stream directly from a model
// provider.
func NewProviderClient(streamer provider.Streamer, optFns ...func(o *Options)) *Client {
	c := New(optFns...)
	c.opener = provider.NewOpener(streamer, c.registry, func(o *provider.OpenerOptions) {
		o.System = c.opts.System
		o.Logger = c.opts.Logger
	})
	return c
}

// FromConfig builds a Client from resolved configuration. A server URL
// selects the WebSocket transport; otherwise the first provider with an API
// key is used.
func FromConfig(cfg *config.Config, optFns ...func(o *Options)) (*Client, error) {
	withDefaults := func(o *Options) {
		o.FeedBuffer = cfg.Runs.FeedBuffer
		o.Logger = logging.NewSlogLogger(logging.ParseLevel(cfg.Logging.Level), "", false)
		for _, fn := range optFns {
			fn(o)
		}
	}

	if cfg.Server.URL != "" {
		return NewWebSocketClient(cfg.Server.URL, withDefaults), nil
	}
	if cfg.Providers.Anthropic.APIKey != "" {
		streamer := anthropic.NewStreamer(func(o *anthropic.Options) {
			o.APIKey = cfg.Providers.Anthropic.APIKey
			if cfg.Providers.Anthropic.Model != "" {
				o.Model = anthropicsdk.Model(cfg.Providers.Anthropic.Model)
			}
		})
		return NewProviderClient(streamer, withDefaults), nil
	}
	if cfg.Providers.OpenAI.APIKey != "" {
		streamer := openai.NewStreamer(func(o *openai.Options) {
			o.APIKey = cfg.Providers.OpenAI.APIKey
			if cfg.Providers.OpenAI.Model != "" {
				o.Model = cfg.Providers.OpenAI.Model
			}
		})
		return NewProviderClient(streamer, withDefaults), nil
	}
	return nil, fmt.Errorf("no server URL or provider API key configured")
}

// Registry exposes the underlying run registry.
func (c *Client) Registry() *run.Registry { return c.registry }

// Subscribe returns a lifecycle event channel and its cancel function.
func (c *Client) Subscribe() (<-chan run.LifecycleEvent, func()) {
	return c.registry.Subscribe()
}

// Start opens a run for the thread and registers it, replacing any run
// already tracked for the same key.
func (c *Client) Start(ctx context.Context, roomID, threadID, message string) (*run.Handle, error) {
	if c.opener == nil {
		return nil, fmt.Errorf("client has no opener configured")
	}
	return c.StartWith(ctx, c.opener, roomID, threadID, message)
}

// StartWith opens a run through the given opener and registers it.
func (c *Client) StartWith(ctx context.Context, opener transport.Opener, roomID, threadID, message string) (*run.Handle, error) {
	h, err := opener.Open(ctx, transport.OpenRequest{
		RoomID:      roomID,
		ThreadID:    threadID,
		UserMessage: message,
	})
	if err != nil {
		return nil, err
	}
	if err := c.registry.Register(ctx, h); err != nil {
		_ = h.Dispose(ctx)
		return nil, err
	}
	return h, nil
}

// StartAndWait is a synchronous helper that starts a run and blocks until it
// completes, returning its completion result.
func (c *Client) StartAndWait(ctx context.Context, roomID, threadID, message string) (core.CompletionResult, error) {
	// Subscribe before registering so the completion cannot be missed.
	events, cancel := c.Subscribe()
	defer cancel()

	h, err := c.Start(ctx, roomID, threadID, message)
	if err != nil {
		return nil, err
	}
	key := h.Key()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil, run.ErrRegistryDisposed
			}
			if completed, isCompleted := ev.(run.RunCompleted); isCompleted && completed.Key == key {
				return completed.Result, nil
			}
		}
	}
}

// Cancel stops the run tracked for the thread, if any, and records it as
// cancelled. Returns false when no run is tracked for the key.
func (c *Client) Cancel(ctx context.Context, roomID, threadID string) (bool, error) {
	key := core.NewRunKey(roomID, threadID)
	h, ok := c.registry.Handle(key)
	if !ok {
		return false, nil
	}
	if err := h.Dispose(ctx); err != nil {
		return true, err
	}
	c.registry.Complete(h, core.Cancelled{Reason: "cancelled by user"})
	return true, nil
}

// RunState returns the tracked run state for the thread.
func (c *Client) RunState(roomID, threadID string) (core.ActiveRunState, bool) {
	return c.registry.RunState(core.NewRunKey(roomID, threadID))
}

// Close disposes the registry, cancelling all tracked runs and closing the
// lifecycle feed.
func (c *Client) Close(ctx context.Context) error {
	return c.registry.Dispose(ctx)
}
