// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package offchain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/luxfi/database"
	"github.com/luxfi/ids"

	"github.com/luxfi/taskvm/utils/timer/mockable"
)

var (
	lockPrefix = []byte("lock/")

	ErrWouldBlock  = errors.New("lock is held")
	ErrLockLost    = errors.New("lock is no longer held")
	errInvalidLock = errors.New("invalid lock value")
)

// WaitPolicy controls what Acquire does when the lock is held.
type WaitPolicy uint8

const (
	// Wait polls until the lock is free or the context is done.
	Wait WaitPolicy = iota
	// NoWait fails immediately with ErrWouldBlock.
	NoWait
)

// LockKey is the local storage key guarding work on [taskID].
func LockKey(taskID ids.ID) []byte {
	return append(append([]byte{}, lockPrefix...), taskID[:]...)
}

// Locker hands out time-bounded locks stored in local storage. A lock is
// held until its deadline, in unix milliseconds, has passed.
type Locker struct {
	storage      *Storage
	clock        *mockable.Clock
	pollInterval time.Duration
}

func NewLocker(storage *Storage, clock *mockable.Clock, pollInterval time.Duration) *Locker {
	return &Locker{
		storage:      storage,
		clock:        clock,
		pollInterval: pollInterval,
	}
}

// Lock is a held lock. It must be released by the holder.
type Lock struct {
	locker *Locker
	key    []byte
	value  []byte
}

// Deadline returns the unix millisecond time at which the lock expires.
func (l *Lock) Deadline() uint64 {
	deadline, _ := database.ParseUInt64(l.value)
	return deadline
}

// Acquire takes the lock at [key] for [ttl]. An expired lock is taken over.
func (l *Locker) Acquire(ctx context.Context, key []byte, ttl time.Duration, policy WaitPolicy) (*Lock, error) {
	for {
		lock, err := l.tryAcquire(key, ttl)
		if err != nil || lock != nil {
			return lock, err
		}
		if policy == NoWait {
			return nil, fmt.Errorf("%w: %x", ErrWouldBlock, key)
		}

		timer := time.NewTimer(l.pollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

func (l *Locker) tryAcquire(key []byte, ttl time.Duration) (*Lock, error) {
	now := l.clock.UnixMilli()
	current, ok, err := l.storage.Get(key)
	if err != nil {
		return nil, err
	}
	if ok {
		deadline, err := database.ParseUInt64(current)
		if err != nil {
			return nil, fmt.Errorf("%w at %x: %w", errInvalidLock, key, err)
		}
		if now < deadline {
			return nil, nil
		}
	}

	value := database.PackUInt64(l.clock.ExpiryMilli(ttl))
	swapped, err := l.storage.CompareAndSet(key, current, value)
	if err != nil || !swapped {
		return nil, err
	}
	return &Lock{
		locker: l,
		key:    key,
		value:  value,
	}, nil
}

// Held reports whether the lock at [key] is currently held by anyone.
func (l *Locker) Held(key []byte) (bool, error) {
	current, ok, err := l.storage.Get(key)
	if err != nil || !ok {
		return false, err
	}
	deadline, err := database.ParseUInt64(current)
	if err != nil {
		return false, fmt.Errorf("%w at %x: %w", errInvalidLock, key, err)
	}
	return l.clock.UnixMilli() < deadline, nil
}

// Extend pushes the deadline to [ttl] from now. It fails with ErrLockLost if
// another holder has taken the lock over.
func (l *Lock) Extend(ttl time.Duration) error {
	value := database.PackUInt64(l.locker.clock.ExpiryMilli(ttl))
	swapped, err := l.locker.storage.CompareAndSet(l.key, l.value, value)
	if err != nil {
		return err
	}
	if !swapped {
		return fmt.Errorf("%w: %x", ErrLockLost, l.key)
	}
	l.value = value
	return nil
}

// Release frees the lock if it is still owned. Releasing a lock that was
// taken over is a no-op.
func (l *Lock) Release() error {
	_, err := l.locker.storage.CompareAndDelete(l.key, l.value)
	return err
}
