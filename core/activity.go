package core

import "sort"

// ActivityType describes what a run was most recently doing. Concrete
// activity types implement the unexported isActivity marker enabling a closed
// set. An activity persists until a new one actually begins; it is
// last-known-activity, not current-instant status.
type ActivityType interface{ isActivity() }

// ProcessingActivity is the initial activity before the agent has signalled
// anything more specific.
type ProcessingActivity struct{}

// isActivity implements the ActivityType interface for ProcessingActivity.
func (ProcessingActivity) isActivity() {}

// ThinkingActivity indicates the agent is producing reasoning output.
type ThinkingActivity struct{}

// isActivity implements the ActivityType interface for ThinkingActivity.
func (ThinkingActivity) isActivity() {}

// ToolCallActivity indicates one or more tool calls are in flight. ToolNames
// is a set; names accumulate while calls overlap.
type ToolCallActivity struct {
	ToolNames map[string]struct{}
}

// isActivity implements the ActivityType interface for ToolCallActivity.
func (ToolCallActivity) isActivity() {}

// NewToolCallActivity builds a ToolCallActivity from the given tool names.
func NewToolCallActivity(names ...string) ToolCallActivity {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[n] = struct{}{}
	}
	return ToolCallActivity{ToolNames: set}
}

// WithTool returns a copy of the activity with name added to the set. The
// receiver is not mutated.
func (a ToolCallActivity) WithTool(name string) ToolCallActivity {
	set := make(map[string]struct{}, len(a.ToolNames)+1)
	for n := range a.ToolNames {
		set[n] = struct{}{}
	}
	set[name] = struct{}{}
	return ToolCallActivity{ToolNames: set}
}

// Names returns the tool names in sorted order for stable rendering.
func (a ToolCallActivity) Names() []string {
	names := make([]string, 0, len(a.ToolNames))
	for n := range a.ToolNames {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// RespondingActivity indicates the agent is emitting answer text.
type RespondingActivity struct{}

// isActivity implements the ActivityType interface for RespondingActivity.
func (RespondingActivity) isActivity() {}

// CloneActivity returns a copy of a safe for independent use. Only
// ToolCallActivity carries mutable state; the other variants are empty
// values.
func CloneActivity(a ActivityType) ActivityType {
	if tc, ok := a.(ToolCallActivity); ok {
		set := make(map[string]struct{}, len(tc.ToolNames))
		for n := range tc.ToolNames {
			set[n] = struct{}{}
		}
		return ToolCallActivity{ToolNames: set}
	}
	return a
}
