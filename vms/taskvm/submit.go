// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package taskvm

import (
	"fmt"

	"github.com/luxfi/ids"
	"github.com/luxfi/log"

	luxvm "github.com/luxfi/taskvm"
	"github.com/luxfi/taskvm/vms/taskvm/dispute"
	"github.com/luxfi/taskvm/vms/taskvm/offchain"
	"github.com/luxfi/taskvm/vms/taskvm/task"
	"github.com/luxfi/taskvm/vms/taskvm/voting"
)

func (vm *VM) submit(s offchain.Submission) error {
	if !vm.authorities.IsAuthorized(s.Voter) {
		return fmt.Errorf("%w: %s", ErrUnauthorized, s.Voter)
	}

	outcome, resolved, err := vm.getOutcome(s.TaskID)
	if err != nil {
		return err
	}
	if resolved && outcome.Final {
		return fmt.Errorf("%w: %s", luxvm.ErrAlreadyFinal, s.TaskID)
	}
	p, pending, err := vm.getPending(s.TaskID)
	if err != nil {
		return err
	}

	var t *task.Task
	switch {
	case pending:
		if s.Attempt == 0 || s.Attempt > p.Attempt {
			return fmt.Errorf("%w: %d of %d", errInvalidAttempt, s.Attempt, p.Attempt)
		}
		t = &p.Task
	case resolved:
		t = &outcome.Task
	default:
		return fmt.Errorf("%w: %s", ErrUnknownTask, s.TaskID)
	}

	d := vm.disputable(t.Kind)
	disputes, err := d.Disagree(s.TaskID, s.Item)
	if err != nil {
		return err
	}
	item, err := d.VoteOn(s.Voter, s.TaskID, s.Item)
	if err != nil {
		vm.metrics.MarkVote("rejected")
		return err
	}
	if resolved && disputes {
		vm.onCommit(vm.metrics.MarkDisputed)
		vm.log.Info("outcome disputed",
			log.Stringer("taskID", s.TaskID),
			log.Stringer("voter", s.Voter),
		)
	}
	if item == nil {
		vm.onCommit(func() { vm.metrics.MarkVote("accepted") })
		if resolved && disputes && !pending {
			// The disputed outcome was settled without a vote, so the
			// workers are asked again to vote on it.
			return vm.arm(vm.height, s.TaskID, t)
		}
		return nil
	}

	vm.onCommit(func() { vm.metrics.MarkVote("resolved") })
	if pending {
		if err := vm.ledger.DeletePending(s.TaskID); err != nil {
			return err
		}
		vm.onCommit(vm.metrics.MarkResolved)
	}
	return vm.resolve(s.TaskID, t, item, d)
}

// resolve records [item] as the outcome of [taskID]. If the task can still be
// disputed the outcome is provisional and a follow-up closes the window.
func (vm *VM) resolve(taskID ids.ID, t *task.Task, item []byte, d dispute.Disputable) error {
	outcome, ok, err := vm.getOutcome(taskID)
	if err != nil {
		return err
	}
	if !ok {
		outcome = &Outcome{}
	}
	outcome.Task = *t
	outcome.Item = item
	outcome.Height = vm.height

	live, err := d.Disputable(taskID)
	if err != nil {
		return err
	}
	if !live {
		return vm.finalize(taskID, outcome, d)
	}

	if err := vm.ledger.PutOutcome(taskID, outcome); err != nil {
		return err
	}
	round, err := vm.engine.Round(taskID)
	if err != nil {
		return err
	}
	closeAt := round.OpenUntil + 1
	if err := vm.schedule(closeAt, task.NewSystem(task.KindCloseDispute, taskID)); err != nil {
		return err
	}

	vm.onCommit(vm.metrics.MarkFastPath)
	vm.log.Debug("provisionally resolved task",
		log.Stringer("taskID", taskID),
		log.Uint64("closeAt", closeAt),
	)
	return nil
}

// finalize makes [outcome] permanent and drops the dispute state of the task.
func (vm *VM) finalize(taskID ids.ID, outcome *Outcome, d dispute.Disputable) error {
	outcome.Final = true
	if err := vm.ledger.PutOutcome(taskID, outcome); err != nil {
		return err
	}
	if err := d.Clear(taskID); err != nil {
		return err
	}
	if err := vm.ledger.DeleteAttempt(taskID); err != nil {
		return err
	}

	vm.onCommit(vm.metrics.MarkFinalized)
	vm.notify(luxvm.OutcomeFinalized, taskID)
	vm.log.Info("finalized task outcome",
		log.Stringer("taskID", taskID),
		log.Uint64("height", outcome.Height),
	)
	return nil
}

// VotingConcluded implements voting.Concluder. It records how the vote went;
// the outcome itself is written once the vote returns.
func (vm *VM) VotingConcluded(taskID ids.ID, summary voting.Summary, _ *voting.Round) error {
	outcome, ok, err := vm.getOutcome(taskID)
	if err != nil {
		return err
	}
	if !ok {
		outcome = &Outcome{}
	}
	outcome.WinnerPower = summary.WinnerPower
	outcome.Committed = summary.Committed
	outcome.EligiblePower = summary.EligiblePower
	outcome.Voters = uint32(summary.Voters)
	if err := vm.ledger.PutOutcome(taskID, outcome); err != nil {
		return err
	}

	vm.onCommit(vm.metrics.MarkConcluded)
	vm.log.Info("task decided by vote",
		log.Stringer("taskID", taskID),
		log.Uint64("winnerPower", summary.WinnerPower),
		log.Uint64("committed", summary.Committed),
		log.Int("candidates", summary.Candidates),
	)
	return nil
}
