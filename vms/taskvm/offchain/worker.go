// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package offchain

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/luxfi/crypto/secp256k1"
	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	"github.com/luxfi/math/set"
	"golang.org/x/sync/errgroup"

	"github.com/luxfi/taskvm"
	"github.com/luxfi/taskvm/utils/timer/mockable"
	"github.com/luxfi/taskvm/vms/taskvm/authority"
	"github.com/luxfi/taskvm/vms/taskvm/metrics"
	"github.com/luxfi/taskvm/vms/taskvm/scheduler"
	"github.com/luxfi/taskvm/vms/taskvm/task"
	"github.com/luxfi/taskvm/vms/taskvm/voting"
)

var (
	_ Executor  = ExecutorFunc(nil)
	_ Submitter = SubmitterFunc(nil)

	ErrEvaluation = errors.New("evaluation failed")
	ErrWorkerBusy = errors.New("worker is already running")
)

// Executor performs the off-chain work for one task kind.
type Executor interface {
	Execute(ctx context.Context, taskID ids.ID, t *task.Task) ([]byte, error)
}

type ExecutorFunc func(ctx context.Context, taskID ids.ID, t *task.Task) ([]byte, error)

func (f ExecutorFunc) Execute(ctx context.Context, taskID ids.ID, t *task.Task) ([]byte, error) {
	return f(ctx, taskID, t)
}

// Submission is a result for one attempt at a task.
type Submission struct {
	TaskID  ids.ID      `serialize:"true" json:"taskID"`
	Attempt uint64      `serialize:"true" json:"attempt"`
	Voter   ids.ShortID `serialize:"true" json:"voter"`
	Item    []byte      `serialize:"true" json:"item"`
}

//go:generate go run go.uber.org/mock/mockgen -package=${GOPACKAGE}mock -destination=${GOPACKAGE}mock/submitter.go -mock_names=Submitter=Submitter . Submitter

// Submitter delivers submissions to the chain.
type Submitter interface {
	Submit(ctx context.Context, submission Submission) error
}

type SubmitterFunc func(ctx context.Context, submission Submission) error

func (f SubmitterFunc) Submit(ctx context.Context, submission Submission) error {
	return f(ctx, submission)
}

// PendingTask is a dispatched task awaiting a result.
type PendingTask struct {
	ID      ids.ID
	Task    *task.Task
	Attempt uint64
}

// Chain is the worker's read-only view of chain state.
type Chain interface {
	State() taskvm.State
	PendingTasks() ([]PendingTask, error)
	Authorities() authority.Authorities
	// Eligible reports whether [voter] may submit a result for [taskID].
	Eligible(taskID ids.ID, kind task.Kind, voter ids.ShortID) (bool, error)
}

type WorkerConfig struct {
	LockTTL                 time.Duration
	LockPollInterval        time.Duration
	MaxConcurrentExecutions int
	SubmittedCacheSize      int
}

// Worker executes pending tasks and submits their results. A node runs one
// Worker.Run per block.
type Worker struct {
	running sync.Mutex

	chain     Chain
	executors map[task.Kind]Executor
	submitter Submitter
	keys      []*secp256k1.PrivateKey

	storage   *Storage
	locker    *Locker
	nonces    *Nonces
	submitted *lru.Cache
	clock     *mockable.Clock

	lockTTL       time.Duration
	maxConcurrent int

	metrics *metrics.Metrics
	log     log.Logger
}

func NewWorker(
	config WorkerConfig,
	chain Chain,
	executors map[task.Kind]Executor,
	submitter Submitter,
	keys []*secp256k1.PrivateKey,
	storage *Storage,
	clock *mockable.Clock,
	m *metrics.Metrics,
	logger log.Logger,
) (*Worker, error) {
	submitted, err := lru.New(config.SubmittedCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create submitted cache: %w", err)
	}
	return &Worker{
		chain:         chain,
		executors:     executors,
		submitter:     submitter,
		keys:          keys,
		storage:       storage,
		locker:        NewLocker(storage, clock, config.LockPollInterval),
		nonces:        NewNonces(storage),
		submitted:     submitted,
		clock:         clock,
		lockTTL:       config.LockTTL,
		maxConcurrent: config.MaxConcurrentExecutions,
		metrics:       m,
		log:           logger,
	}, nil
}

// Run executes every pending task this node has not yet submitted a result
// for. Failures of individual tasks do not stop the others; they are joined
// into the returned error. Overlapping calls fail with ErrWorkerBusy.
func (w *Worker) Run(ctx context.Context, height uint64) error {
	if !w.running.TryLock() {
		return ErrWorkerBusy
	}
	defer w.running.Unlock()

	if state := w.chain.State(); state != taskvm.NormalOp {
		w.log.Debug("skipping off-chain work",
			log.Stringer("state", state),
			log.Uint64("height", height),
		)
		return nil
	}

	key, ok := authority.FindAuthorized(w.keys, w.chain.Authorities())
	if !ok {
		w.log.Debug("no authorized key",
			log.Uint64("height", height),
		)
		return nil
	}

	pending, err := w.chain.PendingTasks()
	if err != nil {
		return fmt.Errorf("failed to list pending tasks: %w", err)
	}

	var (
		eg   errgroup.Group
		lock sync.Mutex
		errs []error
	)
	eg.SetLimit(w.maxConcurrent)
	for _, p := range pending {
		eg.Go(func() error {
			if err := w.process(ctx, key, p); err != nil {
				lock.Lock()
				errs = append(errs, err)
				lock.Unlock()
			}
			return nil
		})
	}
	_ = eg.Wait()

	if err := w.sweep(ctx, pending); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// sweep drops the local nonces of tasks that are no longer pending. Tasks
// locked by another worker are left for a later run.
func (w *Worker) sweep(ctx context.Context, pending []PendingTask) error {
	live := set.NewSet[ids.ID](len(pending))
	for _, p := range pending {
		live.Add(p.ID)
	}
	nonces, err := SubmittedNonces(w.storage)
	if err != nil {
		return fmt.Errorf("failed to list local nonces: %w", err)
	}

	var errs []error
	for _, nonce := range nonces {
		if live.Contains(nonce.TaskID) {
			continue
		}
		lock, err := w.locker.Acquire(ctx, LockKey(nonce.TaskID), w.lockTTL, NoWait)
		if errors.Is(err, ErrWouldBlock) {
			continue
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to lock %s: %w", nonce.TaskID, err))
			continue
		}
		if err := w.nonces.Clear(nonce.TaskID); err != nil {
			errs = append(errs, fmt.Errorf("failed to clear nonce of %s: %w", nonce.TaskID, err))
		}
		w.submitted.Remove(nonce.TaskID)
		if err := lock.Release(); err != nil {
			errs = append(errs, fmt.Errorf("failed to release %s: %w", nonce.TaskID, err))
		}
	}
	return errors.Join(errs...)
}

func (w *Worker) process(ctx context.Context, key *secp256k1.PrivateKey, p PendingTask) error {
	if attempt, ok := w.submitted.Get(p.ID); ok && attempt.(uint64) == p.Attempt {
		return nil
	}

	eligible, err := w.chain.Eligible(p.ID, p.Task.Kind, key.Address())
	if err != nil {
		return fmt.Errorf("failed to check eligibility for %s: %w", p.ID, err)
	}
	if !eligible {
		w.submitted.Add(p.ID, p.Attempt)
		w.log.Debug("not sampled for task",
			log.Stringer("taskID", p.ID),
			log.Stringer("voter", key.Address()),
		)
		return nil
	}

	lock, err := w.locker.Acquire(ctx, LockKey(p.ID), w.lockTTL, NoWait)
	if errors.Is(err, ErrWouldBlock) {
		w.metrics.MarkContention()
		w.log.Debug("task is locked",
			log.Stringer("taskID", p.ID),
		)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to lock %s: %w", p.ID, err)
	}
	defer func() {
		if err := lock.Release(); err != nil {
			w.log.Warn("failed to release lock",
				log.Stringer("taskID", p.ID),
				log.Err(err),
			)
		}
	}()

	// The local nonce is only trusted when it matches the chain's attempt.
	local, err := w.nonces.Local(p.ID)
	if err != nil {
		return fmt.Errorf("failed to read nonce of %s: %w", p.ID, err)
	}
	if local == p.Attempt {
		w.submitted.Add(p.ID, p.Attempt)
		return nil
	}

	executor, ok := w.executors[p.Task.Kind]
	if !ok {
		w.log.Debug("no executor for task kind",
			log.Stringer("taskID", p.ID),
			log.Stringer("kind", p.Task.Kind),
		)
		return nil
	}

	start := w.clock.Time()
	item, err := executor.Execute(ctx, p.ID, p.Task)
	w.metrics.ObserveExecution(w.clock.Time().Sub(start), err)
	if err != nil {
		w.log.Warn("task execution failed",
			log.Stringer("taskID", p.ID),
			log.Uint64("attempt", p.Attempt),
			log.Err(err),
		)
		return fmt.Errorf("%w: %s: %w", ErrEvaluation, p.ID, err)
	}

	// Another worker may have taken the lock over while this one executed.
	switch err := lock.Extend(w.lockTTL); {
	case errors.Is(err, ErrLockLost):
		w.metrics.MarkContention()
		w.log.Warn("lost task lock during execution",
			log.Stringer("taskID", p.ID),
		)
		return nil
	case err != nil:
		return fmt.Errorf("failed to extend lock of %s: %w", p.ID, err)
	}

	err = w.submitter.Submit(ctx, Submission{
		TaskID:  p.ID,
		Attempt: p.Attempt,
		Voter:   key.Address(),
		Item:    item,
	})
	switch {
	case err == nil:
		w.metrics.MarkSubmission("accepted")
	case isSettled(err):
		w.metrics.MarkSubmission("duplicate")
		w.log.Debug("result already recorded",
			log.Stringer("taskID", p.ID),
			log.Err(err),
		)
	case errors.Is(err, voting.ErrIneligibleVoter):
		w.metrics.MarkSubmission("ineligible")
		w.submitted.Add(p.ID, p.Attempt)
		w.log.Debug("not sampled for task",
			log.Stringer("taskID", p.ID),
			log.Err(err),
		)
		return nil
	default:
		w.metrics.MarkSubmission("failed")
		return fmt.Errorf("failed to submit result for %s: %w", p.ID, err)
	}

	if err := w.nonces.Advance(p.ID, p.Attempt); err != nil {
		return fmt.Errorf("failed to advance nonce of %s: %w", p.ID, err)
	}
	w.submitted.Add(p.ID, p.Attempt)

	w.log.Debug("submitted result",
		log.Stringer("taskID", p.ID),
		log.Uint64("attempt", p.Attempt),
	)
	return nil
}

// isSettled reports whether [err] means the chain already has this node's
// result, or no longer needs one.
func isSettled(err error) bool {
	return errors.Is(err, scheduler.ErrDuplicateTask) ||
		errors.Is(err, taskvm.ErrAlreadyFinal) ||
		errors.Is(err, voting.ErrDoubleVote)
}
