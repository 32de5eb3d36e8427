package orchestrator

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/deckhand-dev/deckhand/internal/events"
	"github.com/deckhand-dev/deckhand/internal/hookipc"
)

// handleHookMessage applies one agent lifecycle event to the job's state.
// Hook delivery is at-least-once and unordered, so everything here is
// written to be safely re-applied: unknown events, untracked jobs, and
// already-current states are all no-ops.
func (o *Orchestrator) handleHookMessage(ctx context.Context, msg hookipc.HookMessage) error {
	if !events.Known(msg.EventName) {
		o.logger.Warn("ignoring unknown hook event",
			zap.String("event", msg.EventName),
			zap.Int64("job", msg.JobID))
		return nil
	}

	target, ok := events.TargetState(msg.EventName, msg.Payload)
	if !ok {
		o.logger.Debug("hook event carries no state change",
			zap.String("event", msg.EventName),
			zap.Int64("job", msg.JobID))
		return nil
	}

	o.logger.Info("hook event received",
		zap.String("event", msg.EventName),
		zap.Int64("job", msg.JobID),
		zap.String("target", string(target)))

	current, tracked, err := o.machine.CurrentState(ctx, msg.JobID)
	if err != nil {
		return fmt.Errorf("failed to read state for issue #%d: %w", msg.JobID, err)
	}
	if !tracked {
		o.logger.Debug("hook for untracked issue, ignoring",
			zap.Int64("job", msg.JobID))
		return nil
	}
	if current == target {
		o.logger.Debug("issue already in target state",
			zap.Int64("job", msg.JobID),
			zap.String("state", string(target)))
		return nil
	}

	if err := o.machine.Transition(ctx, msg.JobID, current, target); err != nil {
		return fmt.Errorf("failed to transition issue #%d to %s: %w", msg.JobID, target, err)
	}

	if err := o.terminal.RenameWindow(ctx, msg.JobID, string(target)); err != nil {
		o.logger.Warn("failed to rename window",
			zap.Int64("job", msg.JobID),
			zap.Error(err))
	}

	o.logger.Info("issue transitioned",
		zap.Int64("job", msg.JobID),
		zap.String("from", string(current)),
		zap.String("to", string(target)))
	return nil
}
