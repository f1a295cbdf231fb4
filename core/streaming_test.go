package core

import "testing"

func TestRunKey_ValueEquality(t *testing.T) {
	a := NewRunKey("r1", "t1")
	b := NewRunKey("r1", "t1")
	if a != b {
		t.Error("keys with equal parts should be equal")
	}

	seen := map[RunKey]bool{a: true}
	if !seen[b] {
		t.Error("equal keys should collide as map keys")
	}
}

func TestToolCallActivity_SetSemantics(t *testing.T) {
	a := NewToolCallActivity("search")
	b := a.WithTool("fetch").WithTool("search")

	if got := len(b.ToolNames); got != 2 {
		t.Fatalf("expected 2 names, got %d", got)
	}
	if got := len(a.ToolNames); got != 1 {
		t.Error("WithTool must not mutate the receiver")
	}

	names := b.Names()
	if names[0] != "fetch" || names[1] != "search" {
		t.Errorf("Names should be sorted: %v", names)
	}
}

func TestCloneActivity_IsolatesToolNames(t *testing.T) {
	orig := NewToolCallActivity("search")
	clone := CloneActivity(orig).(ToolCallActivity)

	clone.ToolNames["fetch"] = struct{}{}
	if _, leaked := orig.ToolNames["fetch"]; leaked {
		t.Error("clone must not share the name set")
	}
}

func TestCloneStreamingState_Variants(t *testing.T) {
	aw := AwaitingText{ThinkingText: "hmm", ThinkingStreaming: true, Activity: NewToolCallActivity("search")}
	got := CloneStreamingState(aw).(AwaitingText)
	if got.ThinkingText != "hmm" || !got.ThinkingStreaming {
		t.Errorf("clone lost fields: %+v", got)
	}
	got.Activity.(ToolCallActivity).ToolNames["fetch"] = struct{}{}
	if len(aw.Activity.(ToolCallActivity).ToolNames) != 1 {
		t.Error("activity set must be copied")
	}

	ts := TextStreaming{MessageID: "m1", Author: "agent", Text: "hi", Activity: RespondingActivity{}}
	if cl := CloneStreamingState(ts).(TextStreaming); cl != ts {
		t.Errorf("value clone mismatch: %+v", cl)
	}
}

func TestIsTerminal(t *testing.T) {
	terminal := []StreamEvent{RunFinishedEvent{}, RunErrorEvent{}}
	for _, ev := range terminal {
		if !IsTerminal(ev) {
			t.Errorf("%T should be terminal", ev)
		}
	}

	streaming := []StreamEvent{
		RunStartedEvent{}, TextDeltaEvent{}, ThinkingDeltaEvent{},
		ToolCallStartEvent{}, ToolCallArgsEvent{}, ToolCallEndEvent{}, ActivityEvent{},
	}
	for _, ev := range streaming {
		if IsTerminal(ev) {
			t.Errorf("%T should not be terminal", ev)
		}
	}
}

func TestCloneRunState_DeepCopiesRunning(t *testing.T) {
	conv := NewConversation("r1", "t1")
	state := Running{Conversation: conv, Streaming: NewAwaitingText()}

	clone := CloneRunState(state).(Running)
	if clone.Conversation == conv {
		t.Error("conversation must be deep-copied")
	}

	done := Completed{Result: Cancelled{Reason: "x"}}
	if got := CloneRunState(done).(Completed); got != done {
		t.Errorf("completed states are immutable values: %+v", got)
	}
}
