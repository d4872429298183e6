// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package taskvm

import (
	"context"
	"errors"
	"fmt"

	"github.com/luxfi/ids"
	"github.com/luxfi/log"

	luxvm "github.com/luxfi/taskvm"
	safemath "github.com/luxfi/taskvm/utils/math"
	"github.com/luxfi/taskvm/vms/taskvm/scheduler"
	"github.com/luxfi/taskvm/vms/taskvm/task"
)

// Process implements scheduler.Pipeline. User tasks are dispatched to
// off-chain workers; system tasks do the bookkeeping of earlier dispatches.
func (vm *VM) Process(_ context.Context, deadline uint64, taskID ids.ID, t *task.Task) (scheduler.Status, error) {
	switch t.Kind {
	case task.KindTimeout:
		return vm.onTimeout(deadline, t)
	case task.KindCloseDispute:
		return vm.onCloseDispute(t)
	default:
		return vm.dispatch(deadline, taskID, t)
	}
}

// dispatch hands a due task to the workers and arms its timeout.
func (vm *VM) dispatch(height uint64, taskID ids.ID, t *task.Task) (scheduler.Status, error) {
	outcome, ok, err := vm.getOutcome(taskID)
	if err != nil {
		return 0, err
	}
	if ok && outcome.Final {
		vm.log.Debug("skipping resolved task",
			log.Stringer("taskID", taskID),
		)
		return scheduler.Completed, nil
	}

	_, pending, err := vm.getPending(taskID)
	if err != nil {
		return 0, err
	}
	if pending {
		vm.log.Debug("task is already pending",
			log.Stringer("taskID", taskID),
		)
		return scheduler.Completed, nil
	}

	if err := vm.arm(height, taskID, t); err != nil {
		return 0, err
	}
	return scheduler.Completed, nil
}

// arm makes [t] pending under a new attempt and schedules its timeout.
func (vm *VM) arm(height uint64, taskID ids.ID, t *task.Task) error {
	timeoutAt, err := safemath.Add(height, vm.config.ResultTimeout)
	if err != nil {
		return fmt.Errorf("timeout of %s: %w", taskID, err)
	}
	attempt, err := vm.ledger.Attempt(taskID)
	if err != nil {
		return err
	}
	attempt++

	if err := vm.ledger.PutAttempt(taskID, attempt); err != nil {
		return err
	}
	if err := vm.ledger.PutPending(taskID, &Pending{
		Task:         *t,
		DispatchedAt: height,
		Attempt:      attempt,
	}); err != nil {
		return err
	}
	if err := vm.schedule(timeoutAt, task.NewSystem(task.KindTimeout, taskID)); err != nil {
		return err
	}

	vm.onCommit(vm.metrics.MarkDispatched)
	vm.notify(luxvm.PendingTasks, taskID)
	vm.log.Debug("dispatched task",
		log.Stringer("taskID", taskID),
		log.Uint64("attempt", attempt),
		log.Uint64("timeoutAt", timeoutAt),
	)
	return nil
}

// onTimeout retries a task that received no resolution in time, or expires it
// once it has used all of its attempts.
func (vm *VM) onTimeout(height uint64, t *task.Task) (scheduler.Status, error) {
	taskID, err := t.Target()
	if err != nil {
		return 0, err
	}
	p, ok, err := vm.getPending(taskID)
	if err != nil {
		return 0, err
	}
	// A timeout armed for an earlier dispatch of the task is stale.
	if !ok || height < p.DispatchedAt+vm.config.ResultTimeout {
		return scheduler.Completed, nil
	}

	if err := vm.ledger.DeletePending(taskID); err != nil {
		return 0, err
	}

	if p.Attempt >= vm.config.MaxAttempts {
		if err := vm.disputable(p.Task.Kind).Clear(taskID); err != nil {
			return 0, err
		}
		if err := vm.ledger.DeleteAttempt(taskID); err != nil {
			return 0, err
		}
		// A disputed provisional outcome that never reached quorum is dropped.
		if err := vm.ledger.DeleteOutcome(taskID); err != nil {
			return 0, err
		}
		vm.onCommit(vm.metrics.MarkExpired)
		vm.log.Info("task expired",
			log.Stringer("taskID", taskID),
			log.Uint64("attempts", p.Attempt),
		)
		return scheduler.Expired, nil
	}

	retryAt, err := safemath.Add(height, vm.config.RetryDelay)
	if err != nil {
		return 0, fmt.Errorf("retry of %s: %w", taskID, err)
	}
	if err := vm.schedule(retryAt, &p.Task); err != nil {
		return 0, err
	}

	vm.onCommit(vm.metrics.MarkRetried)
	vm.onCommit(vm.metrics.MarkResolved)
	vm.log.Debug("task timed out",
		log.Stringer("taskID", taskID),
		log.Uint64("attempt", p.Attempt),
		log.Uint64("retryAt", retryAt),
	)
	return scheduler.Completed, nil
}

// onCloseDispute finalizes a provisional outcome whose dispute window has
// passed. Outcomes under an open dispute are finalized by the vote instead.
func (vm *VM) onCloseDispute(t *task.Task) (scheduler.Status, error) {
	taskID, err := t.Target()
	if err != nil {
		return 0, err
	}
	outcome, ok, err := vm.getOutcome(taskID)
	if err != nil {
		return 0, err
	}
	if !ok || outcome.Final {
		return scheduler.Completed, nil
	}

	d := vm.disputable(outcome.Task.Kind)
	live, err := d.Disputable(taskID)
	if err != nil {
		return 0, err
	}
	if live {
		return scheduler.Completed, nil
	}
	return scheduler.Completed, vm.finalize(taskID, outcome, d)
}

// schedule inserts a follow-up task. The same follow-up may legitimately be
// scheduled twice for one height, so duplicates are ignored.
func (vm *VM) schedule(deadline uint64, t *task.Task) error {
	_, err := vm.scheduler.Schedule(deadline, t)
	if errors.Is(err, scheduler.ErrDuplicateTask) {
		return nil
	}
	return err
}
