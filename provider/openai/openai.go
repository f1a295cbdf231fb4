// Package openai provides a run event streamer for the OpenAI Chat
// Completions API. It adapts streaming completion chunks (content deltas and
// tool-call deltas) into loom protocol events.
package openai

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/ssestream"

	"github.com/loomchat/loom/core"
	"github.com/loomchat/loom/provider"
)

// Options configure the OpenAI streamer. Fields mirror a subset of Chat
// Completion parameters intentionally kept minimal; extend via functional
// options without breaking callers.
type Options struct {
	Model               string
	Temperature         float64
	MaxCompletionTokens int64
	APIKey              string
}

// Streamer wraps the OpenAI Chat Completions API behind the generic
// provider.Streamer interface.
type Streamer struct {
	client *openai.Client
	opts   Options
}

// NewStreamer creates a new OpenAI streamer using the official client.
func NewStreamer(optFns ...func(o *Options)) *Streamer {
	opts := Options{
		Model:               openai.ChatModelGPT4oMini,
		Temperature:         0.7,
		MaxCompletionTokens: 4096,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}

	client := openai.NewClient(clientOpts...)

	return &Streamer{client: &client, opts: opts}
}

// NewStreamerFromClient creates a new OpenAI streamer from an existing client.
func NewStreamerFromClient(client *openai.Client, optFns ...func(o *Options)) *Streamer {
	opts := Options{
		Model:               openai.ChatModelGPT4oMini,
		Temperature:         0.7,
		MaxCompletionTokens: 4096,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Streamer{client: client, opts: opts}
}

// Info returns provider metadata.
func (s *Streamer) Info() provider.Info {
	return provider.Info{Name: s.opts.Model, Provider: "openai"}
}

// Stream adapts one streaming chat completion into protocol events.
func (s *Streamer) Stream(ctx context.Context, req provider.Request) (<-chan core.StreamEvent, <-chan error) {
	out := make(chan core.StreamEvent, 32)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		params := openai.ChatCompletionNewParams{
			Messages:            buildMessages(req),
			Model:               s.opts.Model,
			Temperature:         openai.Float(s.opts.Temperature),
			MaxCompletionTokens: openai.Int(s.opts.MaxCompletionTokens),
		}

		stream := s.client.Chat.Completions.NewStreaming(ctx, params)
		s.drain(ctx, stream, out)

		if err := stream.Err(); err != nil {
			if ctx.Err() != nil {
				errCh <- ctx.Err()
				return
			}
			errCh <- fmt.Errorf("openai streaming error: %w", err)
		}
	}()

	return out, errCh
}

// toolCallState tracks one tool call's streaming deltas by choice index so a
// start event fires once per call and argument fragments attach to the right
// id.
type toolCallState struct {
	id      string
	name    string
	started bool
}

// drain forwards streaming chunks until the stream ends or ctx is cancelled.
func (s *Streamer) drain(ctx context.Context, stream *ssestream.Stream[openai.ChatCompletionChunk], out chan<- core.StreamEvent) {
	calls := map[int64]*toolCallState{}

	emit := func(ev core.StreamEvent) bool {
		select {
		case out <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	for stream.Next() {
		ck := stream.Current()
		for _, ch := range ck.Choices {
			if ch.Delta.Content != "" {
				if !emit(core.TextDeltaEvent{MessageID: ck.ID, Author: s.opts.Model, Delta: ch.Delta.Content}) {
					return
				}
			}
			for _, tc := range ch.Delta.ToolCalls {
				st, ok := calls[tc.Index]
				if !ok {
					st = &toolCallState{}
					calls[tc.Index] = st
				}
				if tc.ID != "" {
					st.id = tc.ID
				}
				if tc.Function.Name != "" {
					st.name = tc.Function.Name
				}
				if !st.started && st.name != "" {
					st.started = true
					if !emit(core.ToolCallStartEvent{CallID: st.id, Name: st.name}) {
						return
					}
				}
				if tc.Function.Arguments != "" {
					if !emit(core.ToolCallArgsEvent{CallID: st.id, ArgsDelta: tc.Function.Arguments}) {
						return
					}
				}
			}
			if ch.FinishReason != "" {
				for idx, st := range calls {
					if st.started {
						delete(calls, idx)
						if !emit(core.ToolCallEndEvent{CallID: st.id}) {
							return
						}
					}
				}
			}
		}
	}
}

// buildMessages converts conversation messages into OpenAI chat messages,
// prepending the system prompt when present. Unknown roles are treated as
// user input.
func buildMessages(req provider.Request) []openai.ChatCompletionMessageParamUnion {
	var messages []openai.ChatCompletionMessageParamUnion
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	for _, m := range req.Messages {
		if m.Text == "" {
			continue
		}
		switch m.Role {
		case "assistant":
			messages = append(messages, openai.AssistantMessage(m.Text))
		default:
			messages = append(messages, openai.UserMessage(m.Text))
		}
	}
	return messages
}
