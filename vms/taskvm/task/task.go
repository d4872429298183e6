// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package task defines the unit of off-chain work and how it is identified.
package task

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"math"

	"github.com/luxfi/ids"
)

// Kinds at the top of the range are reserved for work the chain schedules for
// itself.
const (
	// KindTimeout re-checks a dispatched task that has not produced an outcome.
	KindTimeout Kind = math.MaxUint32 - iota
	// KindCloseDispute finalizes a provisional outcome once its dispute window
	// has passed.
	KindCloseDispute

	firstSystemKind = KindCloseDispute
)

var (
	ErrWrongVersion  = errors.New("wrong codec version")
	ErrEmptyPayload  = errors.New("empty payload")
	errNotSystemTask = errors.New("not a system task")
)

// Kind selects the executor and dispute protocol that handle a task.
type Kind uint32

// IsSystem reports whether the kind is reserved for chain bookkeeping.
func (k Kind) IsSystem() bool {
	return k >= firstSystemKind
}

func (k Kind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindCloseDispute:
		return "closeDispute"
	default:
		return fmt.Sprintf("kind(%d)", uint32(k))
	}
}

// Task is an opaque unit of off-chain work. Two tasks with the same kind and
// payload are the same task.
type Task struct {
	Kind    Kind   `serialize:"true" json:"kind"`
	Payload []byte `serialize:"true" json:"payload"`
}

// New returns a task of [kind] carrying [payload].
func New(kind Kind, payload []byte) *Task {
	return &Task{
		Kind:    kind,
		Payload: payload,
	}
}

// NewSystem returns a bookkeeping task of [kind] that refers to [target].
func NewSystem(kind Kind, target ids.ID) *Task {
	return New(kind, target[:])
}

// Bytes returns the canonical encoding of the task.
func (t *Task) Bytes() ([]byte, error) {
	return Codec.Marshal(CodecVersion, t)
}

// ID returns the digest of the canonical encoding.
func (t *Task) ID() (ids.ID, error) {
	b, err := t.Bytes()
	if err != nil {
		return ids.Empty, err
	}
	return ids.ID(sha256.Sum256(b)), nil
}

// Target returns the task a bookkeeping task refers to.
func (t *Task) Target() (ids.ID, error) {
	if !t.Kind.IsSystem() {
		return ids.Empty, fmt.Errorf("%w: %s", errNotSystemTask, t.Kind)
	}
	return ids.ToID(t.Payload)
}

// Verify checks the task is well formed.
func (t *Task) Verify() error {
	if len(t.Payload) == 0 {
		return ErrEmptyPayload
	}
	return nil
}

// Parse decodes a task from its canonical encoding.
func Parse(b []byte) (*Task, error) {
	t := &Task{}
	version, err := Codec.Unmarshal(b, t)
	if err != nil {
		return nil, err
	}
	if version != CodecVersion {
		return nil, fmt.Errorf("%w: %d", ErrWrongVersion, version)
	}
	return t, nil
}
