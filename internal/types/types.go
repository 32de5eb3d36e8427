package types

import (
	"fmt"
	"strings"
)

// Job represents a unit of work backed by a tracker issue.
// The Number is the issue number and is the only identity deckhand uses;
// State is always derived from the issue's labels, never stored locally.
type Job struct {
	Number  int64    `json:"number"`
	Title   string   `json:"title"`
	Body    string   `json:"body"`
	HTMLURL string   `json:"html_url"`
	Labels  []string `json:"labels"`
}

// Validate checks if the job has valid field values
func (j *Job) Validate() error {
	if j.Number <= 0 {
		return fmt.Errorf("job number must be positive (got %d)", j.Number)
	}
	if len(strings.TrimSpace(j.Title)) == 0 {
		return fmt.Errorf("title is required")
	}
	return nil
}

// State represents the lifecycle state of a job
type State string

const (
	StateEntry         State = "entry"
	StateProvisioning  State = "provisioning"
	StateAwaitingInput State = "awaiting-input"
	StateActive        State = "active"
	StateCompleted     State = "completed"
	StateReleased      State = "released"
)

// AllStates lists every lifecycle state in rough lifecycle order.
// Used wherever a caller needs to scan labels or enumerate options.
func AllStates() []State {
	return []State{
		StateEntry,
		StateProvisioning,
		StateAwaitingInput,
		StateActive,
		StateCompleted,
		StateReleased,
	}
}

// IsValid checks if the state value is valid
func (s State) IsValid() bool {
	switch s {
	case StateEntry, StateProvisioning, StateAwaitingInput, StateActive, StateCompleted, StateReleased:
		return true
	}
	return false
}

// ValidNext returns the states reachable from s in one transition.
func (s State) ValidNext() []State {
	switch s {
	case StateEntry:
		return []State{StateProvisioning}
	case StateProvisioning:
		return []State{StateAwaitingInput, StateActive}
	case StateAwaitingInput:
		return []State{StateActive, StateReleased}
	case StateActive:
		return []State{StateAwaitingInput, StateCompleted, StateReleased}
	case StateCompleted:
		return []State{StateReleased}
	case StateReleased:
		return nil
	}
	return nil
}

// CanTransition reports whether s -> to is an allowed transition.
func (s State) CanTransition(to State) bool {
	for _, next := range s.ValidNext() {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether s has no outgoing transitions.
func (s State) IsTerminal() bool {
	return s.IsValid() && len(s.ValidNext()) == 0
}

// ParseState converts a user-supplied string to a State.
func ParseState(s string) (State, error) {
	state := State(strings.ToLower(strings.TrimSpace(s)))
	if !state.IsValid() {
		return "", fmt.Errorf("invalid state %q (valid: entry, provisioning, awaiting-input, active, completed, released)", s)
	}
	return state, nil
}

// ResourceHandle pairs the workspace and terminal session provisioned for
// one job. The two are created and destroyed together; at most one handle
// exists per job at any time.
type ResourceHandle struct {
	JobNumber    int64  `json:"job_number"`
	WorktreePath string `json:"worktree_path"`
	Branch       string `json:"branch"`
	WindowName   string `json:"window_name"`
}
