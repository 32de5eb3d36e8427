// Package events defines the hook events the worker agent emits and how
// each one maps onto the job lifecycle.
package events

import (
	"github.com/deckhand-dev/deckhand/internal/types"
)

// HookEvent identifies an agent lifecycle hook.
type HookEvent string

const (
	// HookUserPromptSubmit fires when a prompt is submitted to the agent.
	HookUserPromptSubmit HookEvent = "UserPromptSubmit"
	// HookStop fires when the agent finishes responding.
	HookStop HookEvent = "Stop"
	// HookPermissionRequest fires when the agent is blocked on a
	// permission decision.
	HookPermissionRequest HookEvent = "PermissionRequest"
	// HookPostToolUse fires after each tool invocation. Inert except for
	// the question tool, which means the agent is waiting on an answer.
	HookPostToolUse HookEvent = "PostToolUse"
)

// questionTool is the tool the agent uses to ask the operator something.
const questionTool = "AskUserQuestion"

// All returns every hook event deckhand installs, in a stable order.
func All() []HookEvent {
	return []HookEvent{
		HookUserPromptSubmit,
		HookStop,
		HookPermissionRequest,
		HookPostToolUse,
	}
}

// Known reports whether name is a hook event deckhand understands.
func Known(name string) bool {
	for _, e := range All() {
		if string(e) == name {
			return true
		}
	}
	return false
}

// TargetState maps a hook event and its payload to the state the job
// should move toward. ok is false when the event implies no transition:
// an unknown event name, or a tool-use event for any tool other than the
// question tool.
func TargetState(name string, payload map[string]any) (types.State, bool) {
	switch HookEvent(name) {
	case HookUserPromptSubmit:
		return types.StateActive, true
	case HookStop, HookPermissionRequest:
		return types.StateAwaitingInput, true
	case HookPostToolUse:
		if tool, _ := payload["tool_name"].(string); tool == questionTool {
			return types.StateAwaitingInput, true
		}
		return "", false
	default:
		return "", false
	}
}
