// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package taskvm

import (
	"errors"
	"fmt"

	"github.com/luxfi/database"
	"github.com/luxfi/database/prefixdb"
	"github.com/luxfi/ids"

	"github.com/luxfi/taskvm/vms/taskvm/task"
)

var (
	tasksPrefix    = []byte("tasks")
	roundsPrefix   = []byte("rounds")
	noncesPrefix   = []byte("nonces")
	pendingPrefix  = []byte("pending")
	outcomesPrefix = []byte("outcomes")
	metaPrefix     = []byte("meta")

	heightKey = []byte("height")

	errWrongVersion = errors.New("wrong codec version")
)

// Pending is a dispatched task awaiting a result.
type Pending struct {
	Task         task.Task `serialize:"true" json:"task"`
	DispatchedAt uint64    `serialize:"true" json:"dispatchedAt"`
	Attempt      uint64    `serialize:"true" json:"attempt"`
}

// Outcome is the resolution of a task. A provisional outcome may still be
// overturned by a dispute; a final one never changes.
type Outcome struct {
	Task   task.Task `serialize:"true" json:"task"`
	Item   []byte    `serialize:"true" json:"item"`
	Height uint64    `serialize:"true" json:"height"`
	Final  bool      `serialize:"true" json:"final"`

	// Set when the outcome was decided by a vote.
	WinnerPower   uint64 `serialize:"true" json:"winnerPower"`
	Committed     uint64 `serialize:"true" json:"committed"`
	EligiblePower uint64 `serialize:"true" json:"eligiblePower"`
	Voters        uint32 `serialize:"true" json:"voters"`
}

// ledger holds the replicated records the VM keeps next to the scheduler and
// the voting rounds.
type ledger struct {
	nonces   database.Database
	pending  database.Database
	outcomes database.Database
	meta     database.Database
}

func newLedger(db database.Database) *ledger {
	return &ledger{
		nonces:   prefixdb.New(noncesPrefix, db),
		pending:  prefixdb.New(pendingPrefix, db),
		outcomes: prefixdb.New(outcomesPrefix, db),
		meta:     prefixdb.New(metaPrefix, db),
	}
}

// Attempt returns the number of times [taskID] has been dispatched.
func (l *ledger) Attempt(taskID ids.ID) (uint64, error) {
	attempt, err := database.GetUInt64(l.nonces, taskID[:])
	if errors.Is(err, database.ErrNotFound) {
		return 0, nil
	}
	return attempt, err
}

func (l *ledger) PutAttempt(taskID ids.ID, attempt uint64) error {
	return database.PutUInt64(l.nonces, taskID[:], attempt)
}

func (l *ledger) DeleteAttempt(taskID ids.ID) error {
	return l.nonces.Delete(taskID[:])
}

func (l *ledger) GetPending(taskID ids.ID) (*Pending, error) {
	p := &Pending{}
	if err := l.get(l.pending, taskID, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (l *ledger) PutPending(taskID ids.ID, p *Pending) error {
	return l.put(l.pending, taskID, p)
}

func (l *ledger) DeletePending(taskID ids.ID) error {
	return l.pending.Delete(taskID[:])
}

// ForEachPending calls [f] for every pending task in ID order.
func (l *ledger) ForEachPending(f func(taskID ids.ID, p *Pending) error) error {
	it := l.pending.NewIterator()
	defer it.Release()

	for it.Next() {
		taskID, err := ids.ToID(it.Key())
		if err != nil {
			return err
		}
		p := &Pending{}
		if err := parse(it.Value(), p); err != nil {
			return fmt.Errorf("failed to parse pending %s: %w", taskID, err)
		}
		if err := f(taskID, p); err != nil {
			return err
		}
	}
	return it.Error()
}

func (l *ledger) GetOutcome(taskID ids.ID) (*Outcome, error) {
	o := &Outcome{}
	if err := l.get(l.outcomes, taskID, o); err != nil {
		return nil, err
	}
	return o, nil
}

func (l *ledger) PutOutcome(taskID ids.ID, o *Outcome) error {
	return l.put(l.outcomes, taskID, o)
}

func (l *ledger) DeleteOutcome(taskID ids.ID) error {
	return l.outcomes.Delete(taskID[:])
}

// Height returns the last height passed to OnDeadlineReached.
func (l *ledger) Height() (uint64, bool, error) {
	height, err := database.GetUInt64(l.meta, heightKey)
	if errors.Is(err, database.ErrNotFound) {
		return 0, false, nil
	}
	return height, err == nil, err
}

func (l *ledger) PutHeight(height uint64) error {
	return database.PutUInt64(l.meta, heightKey, height)
}

func (*ledger) get(db database.Database, taskID ids.ID, v any) error {
	b, err := db.Get(taskID[:])
	if err != nil {
		return err
	}
	return parse(b, v)
}

func (*ledger) put(db database.Database, taskID ids.ID, v any) error {
	b, err := Codec.Marshal(CodecVersion, v)
	if err != nil {
		return err
	}
	return db.Put(taskID[:], b)
}

func parse(b []byte, v any) error {
	version, err := Codec.Unmarshal(b, v)
	if err != nil {
		return err
	}
	if version != CodecVersion {
		return fmt.Errorf("%w: %d", errWrongVersion, version)
	}
	return nil
}
