package labels

import (
	"context"
	"errors"
	"testing"

	"github.com/deckhand-dev/deckhand/internal/config"
	"github.com/deckhand-dev/deckhand/internal/types"
)

// fakeStore implements Store over an in-memory label map.
type fakeStore struct {
	labels      map[int64][]string
	addCalls    int
	removeCalls int
	getErr      error
	addErr      error
	removeErr   error
}

func newFakeStore() *fakeStore {
	return &fakeStore{labels: make(map[int64][]string)}
}

func (f *fakeStore) GetLabels(ctx context.Context, job int64) ([]string, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return append([]string(nil), f.labels[job]...), nil
}

func (f *fakeStore) AddLabel(ctx context.Context, job int64, label string) error {
	f.addCalls++
	if f.addErr != nil {
		return f.addErr
	}
	for _, l := range f.labels[job] {
		if l == label {
			return nil
		}
	}
	f.labels[job] = append(f.labels[job], label)
	return nil
}

func (f *fakeStore) RemoveLabel(ctx context.Context, job int64, label string) error {
	f.removeCalls++
	if f.removeErr != nil {
		return f.removeErr
	}
	kept := f.labels[job][:0]
	for _, l := range f.labels[job] {
		if l != label {
			kept = append(kept, l)
		}
	}
	f.labels[job] = kept
	return nil
}

func (f *fakeStore) has(job int64, label string) bool {
	for _, l := range f.labels[job] {
		if l == label {
			return true
		}
	}
	return false
}

func testLabels() config.LabelConfig {
	return config.DefaultConfig().Labels
}

func TestTransition(t *testing.T) {
	tests := []struct {
		name       string
		from       types.State
		to         types.State
		initLabels []string
		wantErr    error
		wantLabels []string
	}{
		{
			name:       "entry to provisioning",
			from:       types.StateEntry,
			to:         types.StateProvisioning,
			initLabels: []string{"deckhand:entry"},
			wantLabels: []string{"deckhand:provisioning"},
		},
		{
			name:       "provisioning to active",
			from:       types.StateProvisioning,
			to:         types.StateActive,
			initLabels: []string{"deckhand:provisioning"},
			wantLabels: []string{"deckhand:active"},
		},
		{
			name:       "active to awaiting-input",
			from:       types.StateActive,
			to:         types.StateAwaitingInput,
			initLabels: []string{"deckhand:active"},
			wantLabels: []string{"deckhand:awaiting-input"},
		},
		{
			name:       "preserves unrelated labels",
			from:       types.StateEntry,
			to:         types.StateProvisioning,
			initLabels: []string{"bug", "deckhand:entry", "p1"},
			wantLabels: []string{"bug", "p1", "deckhand:provisioning"},
		},
		{
			name:       "off-table pair rejected",
			from:       types.StateEntry,
			to:         types.StateActive,
			initLabels: []string{"deckhand:entry"},
			wantErr:    ErrInvalidTransition,
			wantLabels: []string{"deckhand:entry"},
		},
		{
			name:       "terminal state has no exits",
			from:       types.StateReleased,
			to:         types.StateEntry,
			initLabels: []string{"deckhand:released"},
			wantErr:    ErrInvalidTransition,
			wantLabels: []string{"deckhand:released"},
		},
		{
			name:       "state moved underneath us",
			from:       types.StateActive,
			to:         types.StateCompleted,
			initLabels: []string{"deckhand:awaiting-input"},
			wantErr:    ErrStateChanged,
			wantLabels: []string{"deckhand:awaiting-input"},
		},
		{
			name:       "untracked job cannot transition",
			from:       types.StateEntry,
			to:         types.StateProvisioning,
			initLabels: []string{"bug"},
			wantErr:    ErrStateChanged,
			wantLabels: []string{"bug"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeStore()
			store.labels[42] = append([]string(nil), tt.initLabels...)
			m := NewMachine(store, testLabels())

			err := m.Transition(context.Background(), 42, tt.from, tt.to)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Transition() error = %v, want %v", err, tt.wantErr)
				}
			} else if err != nil {
				t.Fatalf("Transition() unexpected error: %v", err)
			}

			for _, want := range tt.wantLabels {
				if !store.has(42, want) {
					t.Errorf("label %q missing after transition, have %v", want, store.labels[42])
				}
			}
			if len(store.labels[42]) != len(tt.wantLabels) {
				t.Errorf("labels = %v, want %v", store.labels[42], tt.wantLabels)
			}
		})
	}
}

func TestTransitionRejectedBeforeAnyWrite(t *testing.T) {
	store := newFakeStore()
	store.labels[7] = []string{"deckhand:entry"}
	m := NewMachine(store, testLabels())

	err := m.Transition(context.Background(), 7, types.StateEntry, types.StateReleased)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("error = %v, want ErrInvalidTransition", err)
	}
	if store.addCalls != 0 || store.removeCalls != 0 {
		t.Errorf("rejected transition wrote to the store: %d adds, %d removes", store.addCalls, store.removeCalls)
	}
	if types.CategoryOf(err) != types.CategoryInvalidInput {
		t.Errorf("category = %s, want invalid-input", types.CategoryOf(err))
	}
}

func TestTransitionGetError(t *testing.T) {
	store := newFakeStore()
	store.getErr = errors.New("tracker unreachable")
	m := NewMachine(store, testLabels())

	err := m.Transition(context.Background(), 42, types.StateEntry, types.StateProvisioning)
	if err == nil {
		t.Fatal("expected error")
	}
	if types.CategoryOf(err) != types.CategoryTransient {
		t.Errorf("category = %s, want transient", types.CategoryOf(err))
	}
}

func TestCurrentState(t *testing.T) {
	store := newFakeStore()
	store.labels[1] = []string{"bug", "deckhand:active"}
	store.labels[2] = []string{"bug"}
	m := NewMachine(store, testLabels())

	state, ok, err := m.CurrentState(context.Background(), 1)
	if err != nil || !ok || state != types.StateActive {
		t.Errorf("CurrentState(1) = (%v, %v, %v), want (active, true, nil)", state, ok, err)
	}

	_, ok, err = m.CurrentState(context.Background(), 2)
	if err != nil || ok {
		t.Errorf("CurrentState(2) ok = %v, want untracked", ok)
	}
}

func TestStateOfPrefersMostAdvanced(t *testing.T) {
	m := NewMachine(newFakeStore(), testLabels())

	// A crashed replace can leave two lifecycle labels behind.
	state, ok := m.StateOf([]string{"deckhand:entry", "deckhand:provisioning"})
	if !ok || state != types.StateProvisioning {
		t.Errorf("StateOf = (%v, %v), want (provisioning, true)", state, ok)
	}

	_, ok = m.StateOf([]string{"bug", "enhancement"})
	if ok {
		t.Error("StateOf should report untracked for non-lifecycle labels")
	}
}

func TestLabelForStateForRoundTrip(t *testing.T) {
	m := NewMachine(newFakeStore(), testLabels())

	for _, s := range types.AllStates() {
		label := m.LabelFor(s)
		if label == "" {
			t.Fatalf("LabelFor(%s) is empty", s)
		}
		got, ok := m.StateFor(label)
		if !ok || got != s {
			t.Errorf("StateFor(LabelFor(%s)) = (%v, %v)", s, got, ok)
		}
	}

	if _, ok := m.StateFor("bug"); ok {
		t.Error("StateFor should not match non-lifecycle labels")
	}
}

func TestSetAndClear(t *testing.T) {
	store := newFakeStore()
	store.labels[9] = []string{"deckhand:active", "bug"}
	m := NewMachine(store, testLabels())

	if err := m.Set(context.Background(), 9, types.StateReleased); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if !store.has(9, "deckhand:released") || store.has(9, "deckhand:active") {
		t.Errorf("Set left labels %v", store.labels[9])
	}
	if !store.has(9, "bug") {
		t.Error("Set should not touch non-lifecycle labels")
	}

	if err := m.Clear(context.Background(), 9); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if got, ok := m.StateOf(store.labels[9]); ok {
		t.Errorf("Clear left lifecycle state %v", got)
	}
	if !store.has(9, "bug") {
		t.Error("Clear should not touch non-lifecycle labels")
	}
}
