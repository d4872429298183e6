// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package scheduler stores tasks under the block height at which they become
// due and hands them to a pipeline when that height is reached.
package scheduler

import (
	"context"
	"errors"
	"fmt"

	"github.com/luxfi/database"
	"github.com/luxfi/ids"
	"github.com/luxfi/log"

	"github.com/luxfi/taskvm/vms/taskvm/task"
)

const keyLen = database.Uint64Size + ids.IDLen

var (
	// ErrDuplicateTask is returned when the (deadline, task) pair is already
	// scheduled. Callers should treat it as "already seen".
	ErrDuplicateTask = errors.New("duplicate task")
	// ErrStorage wraps every failure of the underlying store.
	ErrStorage = errors.New("storage failure")

	errMalformedKey = errors.New("malformed schedule key")
)

// Status is the result of processing one due task.
type Status uint8

const (
	// Retry leaves the entry in place.
	Retry Status = iota
	// Completed removes the entry.
	Completed
	// Failed removes the entry; the task failed permanently.
	Failed
	// Expired removes the entry; the task ran out of time or attempts.
	Expired
)

func (s Status) String() string {
	switch s {
	case Retry:
		return "retry"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	case Expired:
		return "expired"
	default:
		return "unknown"
	}
}

// Resolved reports whether the entry should be removed from the schedule.
func (s Status) Resolved() bool {
	return s == Completed || s == Failed || s == Expired
}

// Pipeline processes tasks once their deadline is reached. An error aborts the
// enclosing block operation.
type Pipeline interface {
	Process(ctx context.Context, deadline uint64, taskID ids.ID, t *task.Task) (Status, error)
}

// PipelineFunc adapts a function to a Pipeline.
type PipelineFunc func(ctx context.Context, deadline uint64, taskID ids.ID, t *task.Task) (Status, error)

func (f PipelineFunc) Process(ctx context.Context, deadline uint64, taskID ids.ID, t *task.Task) (Status, error) {
	return f(ctx, deadline, taskID, t)
}

// Entry is a scheduled task.
type Entry struct {
	Deadline uint64
	ID       ids.ID
	Task     *task.Task
}

// Scheduler indexes tasks by (deadline, task ID). Because deadlines are
// encoded big-endian, iteration visits deadlines in numeric order and tasks
// inside a deadline in ID order.
type Scheduler struct {
	db  database.Database
	log log.Logger
}

func New(db database.Database, logger log.Logger) *Scheduler {
	return &Scheduler{
		db:  db,
		log: logger,
	}
}

func key(deadline uint64, taskID ids.ID) []byte {
	k := make([]byte, 0, keyLen)
	k = append(k, database.PackUInt64(deadline)...)
	return append(k, taskID[:]...)
}

func parseKey(k []byte) (uint64, ids.ID, error) {
	if len(k) != keyLen {
		return 0, ids.Empty, fmt.Errorf("%w: length %d", errMalformedKey, len(k))
	}
	deadline, err := database.ParseUInt64(k[:database.Uint64Size])
	if err != nil {
		return 0, ids.Empty, err
	}
	taskID, err := ids.ToID(k[database.Uint64Size:])
	return deadline, taskID, err
}

// Schedule stores [t] under [deadline] and returns its ID.
func (s *Scheduler) Schedule(deadline uint64, t *task.Task) (ids.ID, error) {
	taskID, err := t.ID()
	if err != nil {
		return ids.Empty, err
	}
	b, err := t.Bytes()
	if err != nil {
		return ids.Empty, err
	}

	k := key(deadline, taskID)
	has, err := s.db.Has(k)
	if err != nil {
		return ids.Empty, fmt.Errorf("%w: %w", ErrStorage, err)
	}
	if has {
		return taskID, fmt.Errorf("%w: %s at %d", ErrDuplicateTask, taskID, deadline)
	}
	if err := s.db.Put(k, b); err != nil {
		return ids.Empty, fmt.Errorf("%w: %w", ErrStorage, err)
	}

	s.log.Debug("scheduled task",
		log.Stringer("taskID", taskID),
		log.Stringer("kind", t.Kind),
		log.Uint64("deadline", deadline),
	)
	return taskID, nil
}

// Has reports whether [taskID] is scheduled at [deadline].
func (s *Scheduler) Has(deadline uint64, taskID ids.ID) (bool, error) {
	has, err := s.db.Has(key(deadline, taskID))
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrStorage, err)
	}
	return has, nil
}

// Remove deletes the entry, if any.
func (s *Scheduler) Remove(deadline uint64, taskID ids.ID) error {
	if err := s.db.Delete(key(deadline, taskID)); err != nil {
		return fmt.Errorf("%w: %w", ErrStorage, err)
	}
	return nil
}

// Tasks returns every task due at [deadline] in ID order.
func (s *Scheduler) Tasks(deadline uint64) ([]Entry, error) {
	it := s.db.NewIteratorWithPrefix(database.PackUInt64(deadline))
	defer it.Release()

	var entries []Entry
	for it.Next() {
		_, taskID, err := parseKey(it.Key())
		if err != nil {
			return nil, err
		}
		t, err := task.Parse(it.Value())
		if err != nil {
			return nil, fmt.Errorf("failed to parse task %s: %w", taskID, err)
		}
		entries = append(entries, Entry{
			Deadline: deadline,
			ID:       taskID,
			Task:     t,
		})
	}
	if err := it.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}
	return entries, nil
}

// NextDeadline returns the lowest deadline with a scheduled task.
func (s *Scheduler) NextDeadline() (uint64, bool, error) {
	it := s.db.NewIterator()
	defer it.Release()

	if !it.Next() {
		if err := it.Error(); err != nil {
			return 0, false, fmt.Errorf("%w: %w", ErrStorage, err)
		}
		return 0, false, nil
	}
	deadline, _, err := parseKey(it.Key())
	if err != nil {
		return 0, false, err
	}
	return deadline, true, nil
}

// OnDeadlineReached hands every task stored under [deadline] to [pipeline]
// and removes the entries it resolved. Tasks scheduled while the pipeline
// runs are not visited. Unresolved entries stay where they are; they are
// never moved to another deadline by the scheduler itself.
func (s *Scheduler) OnDeadlineReached(ctx context.Context, deadline uint64, pipeline Pipeline) error {
	entries, err := s.Tasks(deadline)
	if err != nil {
		return err
	}

	batch := s.db.NewBatch()
	for _, entry := range entries {
		status, err := pipeline.Process(ctx, deadline, entry.ID, entry.Task)
		if err != nil {
			return fmt.Errorf("failed to process task %s at %d: %w", entry.ID, deadline, err)
		}

		s.log.Debug("processed task",
			log.Stringer("taskID", entry.ID),
			log.Uint64("deadline", deadline),
			log.Stringer("status", status),
		)
		if status.Resolved() {
			if err := batch.Delete(key(deadline, entry.ID)); err != nil {
				return fmt.Errorf("%w: %w", ErrStorage, err)
			}
		}
	}
	if err := batch.Write(); err != nil {
		return fmt.Errorf("%w: %w", ErrStorage, err)
	}
	return nil
}
