// Package anthropic provides a run event streamer for the Anthropic Claude
// API. It adapts Messages API streaming events (text, thinking and tool-use
// deltas) into loom protocol events.
package anthropic

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/loomchat/loom/core"
	"github.com/loomchat/loom/provider"
)

// Options configures the Anthropic streamer (temperature, model id, max
// tokens, API key). Extend via functional options to preserve stability.
type Options struct {
	Model       anthropic.Model
	Temperature float64
	MaxTokens   int64
	APIKey      string
}

// Streamer wraps the Anthropic Messages API behind the generic
// provider.Streamer interface.
type Streamer struct {
	client *anthropic.Client
	opts   Options
}

// NewStreamer creates a new Anthropic streamer using the official client.
func NewStreamer(optFns ...func(o *Options)) *Streamer {
	opts := Options{
		Model:       anthropic.ModelClaude3_5Sonnet20241022,
		Temperature: 0.7,
		MaxTokens:   4096,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}

	client := anthropic.NewClient(clientOpts...)

	return &Streamer{
		client: &client,
		opts:   opts,
	}
}

// NewStreamerFromClient creates a new Anthropic streamer from an existing client.
func NewStreamerFromClient(client *anthropic.Client, optFns ...func(o *Options)) *Streamer {
	opts := Options{
		Model:       anthropic.ModelClaude3_5Sonnet20241022,
		Temperature: 0.7,
		MaxTokens:   4096,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Streamer{
		client: client,
		opts:   opts,
	}
}

// Info returns provider metadata.
func (s *Streamer) Info() provider.Info {
	return provider.Info{Name: string(s.opts.Model), Provider: "anthropic"}
}

// Stream adapts one streaming Messages API call into protocol events.
func (s *Streamer) Stream(ctx context.Context, req provider.Request) (<-chan core.StreamEvent, <-chan error) {
	out := make(chan core.StreamEvent, 32)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		params := anthropic.MessageNewParams{
			Model:       s.opts.Model,
			Messages:    buildMessages(req.Messages),
			MaxTokens:   s.opts.MaxTokens,
			Temperature: anthropic.Float(s.opts.Temperature),
		}
		if req.System != "" {
			params.System = []anthropic.TextBlockParam{{Text: req.System}}
		}

		stream := s.client.Messages.NewStreaming(ctx, params)
		s.drain(ctx, stream, out)

		if err := stream.Err(); err != nil {
			if ctx.Err() != nil {
				errCh <- ctx.Err()
				return
			}
			errCh <- fmt.Errorf("anthropic streaming error: %w", err)
		}
	}()

	return out, errCh
}

// drain forwards streaming events until the stream ends or ctx is cancelled.
// Tool-use blocks are tracked by index so stop events can close the right
// call.
func (s *Streamer) drain(ctx context.Context, stream *ssestream.Stream[anthropic.MessageStreamEventUnion], out chan<- core.StreamEvent) {
	author := string(s.opts.Model)
	messageID := ""
	toolCalls := map[int64]string{}

	emit := func(ev core.StreamEvent) bool {
		select {
		case out <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	for stream.Next() {
		event := stream.Current()
		switch ev := event.AsAny().(type) {
		case anthropic.MessageStartEvent:
			messageID = ev.Message.ID
			if !emit(core.RunStartedEvent{RunID: ev.Message.ID}) {
				return
			}
		case anthropic.ContentBlockStartEvent:
			if block, ok := ev.ContentBlock.AsAny().(anthropic.ToolUseBlock); ok {
				toolCalls[ev.Index] = block.ID
				if !emit(core.ToolCallStartEvent{CallID: block.ID, Name: block.Name}) {
					return
				}
			}
		case anthropic.ContentBlockDeltaEvent:
			switch delta := ev.Delta.AsAny().(type) {
			case anthropic.TextDelta:
				if !emit(core.TextDeltaEvent{MessageID: messageID, Author: author, Delta: delta.Text}) {
					return
				}
			case anthropic.ThinkingDelta:
				if !emit(core.ThinkingDeltaEvent{Delta: delta.Thinking}) {
					return
				}
			case anthropic.InputJSONDelta:
				if !emit(core.ToolCallArgsEvent{CallID: toolCalls[ev.Index], ArgsDelta: delta.PartialJSON}) {
					return
				}
			}
		case anthropic.ContentBlockStopEvent:
			if callID, ok := toolCalls[ev.Index]; ok {
				delete(toolCalls, ev.Index)
				if !emit(core.ToolCallEndEvent{CallID: callID}) {
					return
				}
			}
		}
	}
}

// buildMessages converts conversation messages to Anthropic message format.
// Unknown roles are treated as user input.
func buildMessages(msgs []core.Message) []anthropic.MessageParam {
	var messages []anthropic.MessageParam
	for _, m := range msgs {
		if m.Text == "" {
			continue
		}
		switch m.Role {
		case "assistant":
			messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Text)))
		default:
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Text)))
		}
	}
	return messages
}
