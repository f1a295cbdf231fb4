package transport

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/loomchat/loom/core"
)

// Wire frame types. One JSON frame per protocol event.
const (
	frameRunStarted    = "run_started"
	frameTextDelta     = "text_delta"
	frameThinkingDelta = "thinking_delta"
	frameToolCallStart = "tool_call_start"
	frameToolCallArgs  = "tool_call_args"
	frameToolCallEnd   = "tool_call_end"
	frameActivity      = "activity"
	frameRunFinished   = "run_finished"
	frameRunError      = "run_error"
)

// Activity names on the wire.
const (
	activityProcessing = "processing"
	activityThinking   = "thinking"
	activityToolCall   = "tool_call"
	activityResponding = "responding"
)

// frame is the wire representation of a protocol event. All fields are
// optional so each event type populates only what it carries.
type frame struct {
	Type         string             `json:"type"`
	RunID        string             `json:"run_id,omitempty"`
	MessageID    string             `json:"message_id,omitempty"`
	Author       string             `json:"author,omitempty"`
	Delta        string             `json:"delta,omitempty"`
	CallID       string             `json:"call_id,omitempty"`
	Name         string             `json:"name,omitempty"`
	Args         string             `json:"args,omitempty"`
	Activity     string             `json:"activity,omitempty"`
	Tools        []string           `json:"tools,omitempty"`
	Error        string             `json:"error,omitempty"`
	StackTrace   string             `json:"stack_trace,omitempty"`
	Conversation *core.Conversation `json:"conversation,omitempty"`
}

// startFrame is the first frame the client sends after connecting.
type startFrame struct {
	Type     string `json:"type"`
	RoomID   string `json:"room_id"`
	ThreadID string `json:"thread_id"`
	Message  string `json:"message,omitempty"`
	RunID    string `json:"run_id,omitempty"`
}

// DecodeFrame parses a JSON wire frame into a protocol event.
func DecodeFrame(data []byte) (core.StreamEvent, error) {
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("malformed frame: %w", err)
	}

	switch f.Type {
	case frameRunStarted:
		return core.RunStartedEvent{RunID: f.RunID}, nil
	case frameTextDelta:
		return core.TextDeltaEvent{MessageID: f.MessageID, Author: f.Author, Delta: f.Delta}, nil
	case frameThinkingDelta:
		return core.ThinkingDeltaEvent{Delta: f.Delta}, nil
	case frameToolCallStart:
		return core.ToolCallStartEvent{CallID: f.CallID, Name: f.Name}, nil
	case frameToolCallArgs:
		return core.ToolCallArgsEvent{CallID: f.CallID, ArgsDelta: f.Args}, nil
	case frameToolCallEnd:
		return core.ToolCallEndEvent{CallID: f.CallID}, nil
	case frameActivity:
		activity, err := decodeActivity(f)
		if err != nil {
			return nil, err
		}
		return core.ActivityEvent{Activity: activity}, nil
	case frameRunFinished:
		return core.RunFinishedEvent{Conversation: f.Conversation}, nil
	case frameRunError:
		return core.RunErrorEvent{Err: errors.New(f.Error), StackTrace: f.StackTrace}, nil
	default:
		return nil, fmt.Errorf("unknown frame type %q", f.Type)
	}
}

func decodeActivity(f frame) (core.ActivityType, error) {
	switch f.Activity {
	case activityProcessing:
		return core.ProcessingActivity{}, nil
	case activityThinking:
		return core.ThinkingActivity{}, nil
	case activityToolCall:
		return core.NewToolCallActivity(f.Tools...), nil
	case activityResponding:
		return core.RespondingActivity{}, nil
	default:
		return nil, fmt.Errorf("unknown activity %q", f.Activity)
	}
}

// EncodeFrame renders a protocol event as a JSON wire frame. The inverse of
// DecodeFrame; used by tests and local tooling.
func EncodeFrame(ev core.StreamEvent) ([]byte, error) {
	var f frame
	switch e := ev.(type) {
	case core.RunStartedEvent:
		f = frame{Type: frameRunStarted, RunID: e.RunID}
	case core.TextDeltaEvent:
		f = frame{Type: frameTextDelta, MessageID: e.MessageID, Author: e.Author, Delta: e.Delta}
	case core.ThinkingDeltaEvent:
		f = frame{Type: frameThinkingDelta, Delta: e.Delta}
	case core.ToolCallStartEvent:
		f = frame{Type: frameToolCallStart, CallID: e.CallID, Name: e.Name}
	case core.ToolCallArgsEvent:
		f = frame{Type: frameToolCallArgs, CallID: e.CallID, Args: e.ArgsDelta}
	case core.ToolCallEndEvent:
		f = frame{Type: frameToolCallEnd, CallID: e.CallID}
	case core.ActivityEvent:
		var err error
		f, err = encodeActivity(e.Activity)
		if err != nil {
			return nil, err
		}
	case core.RunFinishedEvent:
		f = frame{Type: frameRunFinished, Conversation: e.Conversation}
	case core.RunErrorEvent:
		f = frame{Type: frameRunError, StackTrace: e.StackTrace}
		if e.Err != nil {
			f.Error = e.Err.Error()
		}
	default:
		return nil, fmt.Errorf("unknown event type %T", ev)
	}
	return json.Marshal(f)
}

func encodeActivity(a core.ActivityType) (frame, error) {
	switch act := a.(type) {
	case core.ProcessingActivity:
		return frame{Type: frameActivity, Activity: activityProcessing}, nil
	case core.ThinkingActivity:
		return frame{Type: frameActivity, Activity: activityThinking}, nil
	case core.ToolCallActivity:
		return frame{Type: frameActivity, Activity: activityToolCall, Tools: act.Names()}, nil
	case core.RespondingActivity:
		return frame{Type: frameActivity, Activity: activityResponding}, nil
	default:
		return frame{}, fmt.Errorf("unknown activity type %T", a)
	}
}
