// Package labels drives the job lifecycle state machine over tracker labels.
//
// State flow:
//   - entry → daemon picks the job up and provisions it
//   - provisioning → workspace and window being created
//   - awaiting-input / active → worker paused on a human, or working
//   - completed → worker declared the job done
//   - released → terminal, job no longer managed
//
// Labels are the system of record. Nothing here caches state: every
// transition re-reads the authoritative labels immediately before writing,
// because the poll path and the hook path race on the same job.
package labels

import (
	"context"
	"errors"
	"fmt"

	"github.com/deckhand-dev/deckhand/internal/config"
	"github.com/deckhand-dev/deckhand/internal/types"
)

var (
	// ErrInvalidTransition reports a (from, to) pair absent from the
	// transition table.
	ErrInvalidTransition = errors.New("transition not allowed")

	// ErrStateChanged reports that the job's label moved between the
	// caller's read and the write. The caller re-reads and decides again.
	ErrStateChanged = errors.New("job state changed since read")
)

// Store is the narrow tracker surface the state machine needs.
type Store interface {
	GetLabels(ctx context.Context, job int64) ([]string, error)
	AddLabel(ctx context.Context, job int64, label string) error
	RemoveLabel(ctx context.Context, job int64, label string) error
}

// Machine maps lifecycle states onto configured label strings and performs
// validated transitions against a Store.
type Machine struct {
	store  Store
	labels config.LabelConfig
}

// NewMachine creates a state machine over the given store and label mapping.
func NewMachine(store Store, labels config.LabelConfig) *Machine {
	return &Machine{store: store, labels: labels}
}

// LabelFor returns the label string that encodes state.
func (m *Machine) LabelFor(state types.State) string {
	switch state {
	case types.StateEntry:
		return m.labels.Entry
	case types.StateProvisioning:
		return m.labels.Provisioning
	case types.StateAwaitingInput:
		return m.labels.AwaitingInput
	case types.StateActive:
		return m.labels.Active
	case types.StateCompleted:
		return m.labels.Completed
	case types.StateReleased:
		return m.labels.Released
	}
	return ""
}

// StateFor maps a label string back to its lifecycle state.
func (m *Machine) StateFor(label string) (types.State, bool) {
	for _, s := range types.AllStates() {
		if m.LabelFor(s) == label {
			return s, true
		}
	}
	return "", false
}

// StateOf derives the lifecycle state from an already-fetched label list.
// When more than one lifecycle label is present (a half-finished replace
// from a crashed run), the most advanced state wins; the stale label is
// cleaned up by the next transition's remove-then-add.
func (m *Machine) StateOf(jobLabels []string) (types.State, bool) {
	all := types.AllStates()
	for i := len(all) - 1; i >= 0; i-- {
		for _, l := range jobLabels {
			if l == m.LabelFor(all[i]) {
				return all[i], true
			}
		}
	}
	return "", false
}

// CurrentState re-reads the authoritative labels and derives the state.
// ok is false when the job carries no lifecycle label (untracked).
func (m *Machine) CurrentState(ctx context.Context, job int64) (types.State, bool, error) {
	jobLabels, err := m.store.GetLabels(ctx, job)
	if err != nil {
		return "", false, types.Transient(fmt.Errorf("failed to get labels for job %d: %w", job, err))
	}
	state, ok := m.StateOf(jobLabels)
	return state, ok, nil
}

// Transition moves a job from one state to another: re-read the current
// state, confirm it still equals from, validate against the transition
// table, then replace the label (remove old, add new; not remotely atomic,
// which is why the re-read happens here and not earlier).
func (m *Machine) Transition(ctx context.Context, job int64, from, to types.State) error {
	if !from.CanTransition(to) {
		return types.InvalidInput(fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to))
	}

	current, ok, err := m.CurrentState(ctx, job)
	if err != nil {
		return err
	}
	if !ok || current != from {
		return types.Transient(fmt.Errorf("%w: job %d expected %s, found %s", ErrStateChanged, job, from, stateOrUntracked(current, ok)))
	}

	if err := m.store.RemoveLabel(ctx, job, m.LabelFor(from)); err != nil {
		return types.Transient(fmt.Errorf("failed to remove label %s from job %d: %w", m.LabelFor(from), job, err))
	}
	if err := m.store.AddLabel(ctx, job, m.LabelFor(to)); err != nil {
		return types.Transient(fmt.Errorf("failed to add label %s to job %d: %w", m.LabelFor(to), job, err))
	}
	return nil
}

// Set forces a job into a state regardless of the table: strips every
// lifecycle label, then adds the target. Operator escape hatch; the daemon
// itself always goes through Transition.
func (m *Machine) Set(ctx context.Context, job int64, to types.State) error {
	if err := m.Clear(ctx, job); err != nil {
		return err
	}
	if err := m.store.AddLabel(ctx, job, m.LabelFor(to)); err != nil {
		return types.Transient(fmt.Errorf("failed to add label %s to job %d: %w", m.LabelFor(to), job, err))
	}
	return nil
}

// Clear removes every lifecycle label from a job, leaving it untracked.
func (m *Machine) Clear(ctx context.Context, job int64) error {
	for _, s := range types.AllStates() {
		if err := m.store.RemoveLabel(ctx, job, m.LabelFor(s)); err != nil {
			return types.Transient(fmt.Errorf("failed to remove label %s from job %d: %w", m.LabelFor(s), job, err))
		}
	}
	return nil
}

func stateOrUntracked(s types.State, ok bool) string {
	if !ok {
		return "untracked"
	}
	return string(s)
}
