// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package taskvm implements a chain that schedules off-chain work, dispatches
// it to workers when it falls due, and reconciles the results they submit.
package taskvm

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/luxfi/database"
	"github.com/luxfi/database/prefixdb"
	"github.com/luxfi/database/versiondb"
	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	"github.com/luxfi/math/set"
	"github.com/prometheus/client_golang/prometheus"

	luxvm "github.com/luxfi/taskvm"
	"github.com/luxfi/taskvm/utils/timer/mockable"
	"github.com/luxfi/taskvm/vms/taskvm/authority"
	"github.com/luxfi/taskvm/vms/taskvm/config"
	"github.com/luxfi/taskvm/vms/taskvm/dispute"
	"github.com/luxfi/taskvm/vms/taskvm/metrics"
	"github.com/luxfi/taskvm/vms/taskvm/offchain"
	"github.com/luxfi/taskvm/vms/taskvm/scheduler"
	"github.com/luxfi/taskvm/vms/taskvm/task"
	"github.com/luxfi/taskvm/vms/taskvm/voting"
)

// Version of the task VM
const Version = "0.1.0"

var (
	_ luxvm.VM           = (*VM)(nil)
	_ offchain.Chain     = (*VM)(nil)
	_ scheduler.Pipeline = (*VM)(nil)
	_ voting.Concluder   = (*VM)(nil)

	ErrUnauthorized = errors.New("submitter is not authorized")
	ErrUnknownTask  = errors.New("unknown task")

	errMissingPowerSource  = errors.New("missing voting power source")
	errMissingAuthorities  = errors.New("missing authorities")
	errNotInitialized      = errors.New("vm is not initialized")
	errSystemKind          = errors.New("system task kinds cannot be scheduled")
	errPastDeadline        = errors.New("deadline has already been reached")
	errHeightNotIncreasing = errors.New("height did not increase")
	errInvalidAttempt      = errors.New("invalid attempt")
)

// VM runs the deterministic side of task scheduling. Every exported method
// that mutates the ledger runs as one transaction: it either commits fully or
// leaves the ledger untouched.
type VM struct {
	lock sync.RWMutex

	config config.Config
	state  luxvm.State
	// height of the block being executed
	height uint64

	power       voting.PowerSource
	authorities authority.Authorities
	undisputed  set.Set[task.Kind]

	db        *versiondb.Database
	ledger    *ledger
	scheduler *scheduler.Scheduler
	engine    *voting.Engine
	voted     *dispute.Voting

	// messages and metric updates queued by the running transaction
	messages  []luxvm.Message
	onCommits []func()
	toEngine  chan<- luxvm.Message

	// node-local storage shared by this node's workers
	storageLock sync.Mutex
	storage     *offchain.Storage

	clock   mockable.Clock
	metrics *metrics.Metrics
	log     log.Logger
}

// New returns an uninitialized VM. Tasks of the [undisputed] kinds resolve on
// their first submission; every other kind is voted on.
func New(
	power voting.PowerSource,
	authorities authority.Authorities,
	logger log.Logger,
	undisputed ...task.Kind,
) *VM {
	kinds := set.NewSet[task.Kind](len(undisputed))
	for _, kind := range undisputed {
		kinds.Add(kind)
	}
	return &VM{
		power:       power,
		authorities: authorities,
		undisputed:  kinds,
		log:         logger,
	}
}

// Initialize initializes the task VM.
func (vm *VM) Initialize(_ context.Context, cfg *luxvm.Config) error {
	vm.lock.Lock()
	defer vm.lock.Unlock()

	if vm.power == nil {
		return errMissingPowerSource
	}
	if vm.authorities == nil {
		return errMissingAuthorities
	}

	c, err := config.Parse(cfg.ConfigBytes)
	if err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	vm.config = c
	vm.toEngine = cfg.ToEngine

	registerer := cfg.Registerer
	if registerer == nil {
		registerer = prometheus.NewRegistry()
	}
	vm.metrics, err = metrics.New(registerer)
	if err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}

	vm.db = versiondb.New(cfg.DB)
	vm.ledger = newLedger(vm.db)
	vm.scheduler = scheduler.New(prefixdb.New(tasksPrefix, vm.db), vm.log)
	vm.engine, err = voting.NewEngine(
		prefixdb.New(roundsPrefix, vm.db),
		vm.power,
		c.SampleSize,
		vm,
		vm.log,
	)
	if err != nil {
		return err
	}
	vm.voted = dispute.NewVoting(vm.engine, c.Policy, c.DisputePeriod, vm.currentHeight, vm.log)

	vm.height, _, err = vm.ledger.Height()
	if err != nil {
		return fmt.Errorf("failed to load height: %w", err)
	}
	vm.state = luxvm.Bootstrapping

	vm.log.Info("initialized task vm",
		log.Stringer("chainID", cfg.ChainID),
		log.Uint64("height", vm.height),
		log.Stringer("sampleSize", c.SampleSize),
		log.Stringer("policy", c.Policy),
	)
	return nil
}

func (vm *VM) currentHeight() uint64 {
	return vm.height
}

// SetState implements the VM interface
func (vm *VM) SetState(_ context.Context, state luxvm.State) error {
	vm.lock.Lock()
	defer vm.lock.Unlock()

	vm.log.Info("vm state changed",
		log.Stringer("from", vm.state),
		log.Stringer("to", state),
	)
	vm.state = state
	return nil
}

// State returns the lifecycle state of the VM.
func (vm *VM) State() luxvm.State {
	vm.lock.RLock()
	defer vm.lock.RUnlock()

	return vm.state
}

// Version implements the VM interface
func (*VM) Version(context.Context) (string, error) {
	return Version, nil
}

// Shutdown implements the VM interface
func (vm *VM) Shutdown(context.Context) error {
	vm.storageLock.Lock()
	defer vm.storageLock.Unlock()

	if vm.storage == nil {
		return nil
	}
	err := vm.storage.Close()
	vm.storage = nil
	return err
}

// Authorities returns the accounts allowed to submit results.
func (vm *VM) Authorities() authority.Authorities {
	return vm.authorities
}

// Height returns the height of the last block executed.
func (vm *VM) Height() uint64 {
	vm.lock.RLock()
	defer vm.lock.RUnlock()

	return vm.height
}

// transact runs [f] against the ledger and commits its writes only if it
// succeeds.
func (vm *VM) transact(f func() error) error {
	if vm.db == nil {
		return errNotInitialized
	}
	defer func() {
		vm.messages = nil
		vm.onCommits = nil
	}()

	if err := f(); err != nil {
		vm.db.Abort()
		return err
	}
	if err := vm.db.Commit(); err != nil {
		return err
	}

	for _, apply := range vm.onCommits {
		apply()
	}
	for _, msg := range vm.messages {
		if vm.toEngine == nil {
			break
		}
		select {
		case vm.toEngine <- msg:
		default:
			// Channel full, skip notification
		}
	}
	return nil
}

// onCommit runs [f] once the running transaction has been committed.
func (vm *VM) onCommit(f func()) {
	vm.onCommits = append(vm.onCommits, f)
}

func (vm *VM) notify(typ luxvm.MessageType, taskID ids.ID) {
	vm.messages = append(vm.messages, luxvm.Message{
		Type:   typ,
		TaskID: taskID,
	})
}

// ScheduleTask stores [t] to be dispatched at [deadline].
func (vm *VM) ScheduleTask(_ context.Context, deadline uint64, t *task.Task) (ids.ID, error) {
	vm.lock.Lock()
	defer vm.lock.Unlock()

	if err := t.Verify(); err != nil {
		return ids.Empty, err
	}
	if t.Kind.IsSystem() {
		return ids.Empty, fmt.Errorf("%w: %s", errSystemKind, t.Kind)
	}
	if deadline <= vm.height {
		return ids.Empty, fmt.Errorf("%w: %d <= %d", errPastDeadline, deadline, vm.height)
	}

	var taskID ids.ID
	err := vm.transact(func() error {
		var err error
		taskID, err = vm.scheduler.Schedule(deadline, t)
		return err
	})
	if err != nil {
		return taskID, err
	}
	vm.metrics.MarkScheduled()
	return taskID, nil
}

// OnDeadlineReached implements the VM interface
func (vm *VM) OnDeadlineReached(ctx context.Context, height uint64) error {
	vm.lock.Lock()
	defer vm.lock.Unlock()

	if height <= vm.height {
		return fmt.Errorf("%w: %d <= %d", errHeightNotIncreasing, height, vm.height)
	}

	previous := vm.height
	vm.height = height
	err := vm.transact(func() error {
		if err := vm.scheduler.OnDeadlineReached(ctx, height, vm); err != nil {
			return err
		}
		return vm.ledger.PutHeight(height)
	})
	if err != nil {
		vm.height = previous
		vm.log.Error("failed to process deadline",
			log.Uint64("height", height),
			log.Err(err),
		)
		return err
	}
	return nil
}

// SubmitResult records [s] as a vote for its task.
func (vm *VM) SubmitResult(_ context.Context, s offchain.Submission) error {
	vm.lock.Lock()
	defer vm.lock.Unlock()

	return vm.transact(func() error {
		return vm.submit(s)
	})
}

// Submitter returns a submitter that records results directly on this VM.
func (vm *VM) Submitter() offchain.Submitter {
	return offchain.SubmitterFunc(vm.SubmitResult)
}

// Outcome returns the resolution of [taskID], or database.ErrNotFound.
func (vm *VM) Outcome(taskID ids.ID) (*Outcome, error) {
	vm.lock.RLock()
	defer vm.lock.RUnlock()

	if vm.ledger == nil {
		return nil, errNotInitialized
	}
	return vm.ledger.GetOutcome(taskID)
}

// Pending returns the pending record of [taskID], or database.ErrNotFound.
func (vm *VM) Pending(taskID ids.ID) (*Pending, error) {
	vm.lock.RLock()
	defer vm.lock.RUnlock()

	if vm.ledger == nil {
		return nil, errNotInitialized
	}
	return vm.ledger.GetPending(taskID)
}

// Attempt returns the number of times [taskID] has been dispatched.
func (vm *VM) Attempt(taskID ids.ID) (uint64, error) {
	vm.lock.RLock()
	defer vm.lock.RUnlock()

	if vm.ledger == nil {
		return 0, errNotInitialized
	}
	return vm.ledger.Attempt(taskID)
}

// IsScheduled reports whether [taskID] is scheduled at [deadline].
func (vm *VM) IsScheduled(deadline uint64, taskID ids.ID) (bool, error) {
	vm.lock.RLock()
	defer vm.lock.RUnlock()

	if vm.scheduler == nil {
		return false, errNotInitialized
	}
	return vm.scheduler.Has(deadline, taskID)
}

// NextDeadline returns the lowest height with scheduled work.
func (vm *VM) NextDeadline() (uint64, bool, error) {
	vm.lock.RLock()
	defer vm.lock.RUnlock()

	if vm.scheduler == nil {
		return 0, false, errNotInitialized
	}
	return vm.scheduler.NextDeadline()
}

// PendingTasks implements offchain.Chain.
func (vm *VM) PendingTasks() ([]offchain.PendingTask, error) {
	vm.lock.RLock()
	defer vm.lock.RUnlock()

	if vm.ledger == nil {
		return nil, errNotInitialized
	}
	var tasks []offchain.PendingTask
	err := vm.ledger.ForEachPending(func(taskID ids.ID, p *Pending) error {
		t := p.Task
		tasks = append(tasks, offchain.PendingTask{
			ID:      taskID,
			Task:    &t,
			Attempt: p.Attempt,
		})
		return nil
	})
	return tasks, err
}

// Eligible implements offchain.Chain. Voted kinds accept results only from
// the voters sampled for the task.
func (vm *VM) Eligible(taskID ids.ID, kind task.Kind, voter ids.ShortID) (bool, error) {
	vm.lock.RLock()
	defer vm.lock.RUnlock()

	if vm.engine == nil {
		return false, errNotInitialized
	}
	if vm.undisputed.Contains(kind) {
		return true, nil
	}
	_, err := vm.engine.VotingPowerOf(taskID, voter)
	if errors.Is(err, voting.ErrIneligibleVoter) {
		return false, nil
	}
	return err == nil, err
}

func (vm *VM) disputable(kind task.Kind) dispute.Disputable {
	if vm.undisputed.Contains(kind) {
		return dispute.NeverDisputable{}
	}
	return vm.voted
}

func (vm *VM) getOutcome(taskID ids.ID) (*Outcome, bool, error) {
	outcome, err := vm.ledger.GetOutcome(taskID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return outcome, true, nil
}

func (vm *VM) getPending(taskID ids.ID) (*Pending, bool, error) {
	p, err := vm.ledger.GetPending(taskID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return p, true, nil
}
