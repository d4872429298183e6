// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package offchain

import (
	"context"
	"testing"
	"time"

	"github.com/luxfi/database/memdb"
	"github.com/luxfi/ids"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/taskvm/utils/timer/mockable"
)

func newTestLocker() (*Locker, *mockable.Clock) {
	clock := &mockable.Clock{}
	clock.Set(time.Unix(1_700_000_000, 0))
	storage := NewStorage(NewDatabaseKV(memdb.New()))
	return NewLocker(storage, clock, time.Millisecond), clock
}

func TestLockExclusiveUntilTTL(t *testing.T) {
	require := require.New(t)

	ctx := context.Background()
	locker, clock := newTestLocker()
	key := LockKey(ids.GenerateTestID())
	const ttl = 5 * time.Second

	first, err := locker.Acquire(ctx, key, ttl, NoWait)
	require.NoError(err)
	require.Equal(clock.UnixMilli()+5000, first.Deadline())

	_, err = locker.Acquire(ctx, key, ttl, NoWait)
	require.ErrorIs(err, ErrWouldBlock)

	clock.Advance(ttl - time.Millisecond)
	_, err = locker.Acquire(ctx, key, ttl, NoWait)
	require.ErrorIs(err, ErrWouldBlock)

	// Never released, but exactly one lock is grantable once it expires.
	clock.Advance(time.Millisecond)
	second, err := locker.Acquire(ctx, key, ttl, NoWait)
	require.NoError(err)

	_, err = locker.Acquire(ctx, key, ttl, NoWait)
	require.ErrorIs(err, ErrWouldBlock)

	// The expired holder can no longer touch the lock.
	require.NoError(first.Release())
	held, err := locker.Held(key)
	require.NoError(err)
	require.True(held)
	require.ErrorIs(first.Extend(ttl), ErrLockLost)

	require.NoError(second.Release())
	held, err = locker.Held(key)
	require.NoError(err)
	require.False(held)

	_, err = locker.Acquire(ctx, key, ttl, NoWait)
	require.NoError(err)
}

func TestLockExtend(t *testing.T) {
	require := require.New(t)

	ctx := context.Background()
	locker, clock := newTestLocker()
	key := LockKey(ids.GenerateTestID())

	lock, err := locker.Acquire(ctx, key, time.Second, NoWait)
	require.NoError(err)

	clock.Advance(900 * time.Millisecond)
	require.NoError(lock.Extend(time.Second))

	clock.Advance(900 * time.Millisecond)
	_, err = locker.Acquire(ctx, key, time.Second, NoWait)
	require.ErrorIs(err, ErrWouldBlock)
}

func TestLockIndependentKeys(t *testing.T) {
	require := require.New(t)

	ctx := context.Background()
	locker, _ := newTestLocker()

	_, err := locker.Acquire(ctx, LockKey(ids.GenerateTestID()), time.Second, NoWait)
	require.NoError(err)
	_, err = locker.Acquire(ctx, LockKey(ids.GenerateTestID()), time.Second, NoWait)
	require.NoError(err)
}

func TestLockWaitUntilExpiry(t *testing.T) {
	require := require.New(t)

	ctx := context.Background()
	locker, clock := newTestLocker()
	key := LockKey(ids.GenerateTestID())

	_, err := locker.Acquire(ctx, key, time.Second, NoWait)
	require.NoError(err)

	done := make(chan error)
	go func() {
		_, err := locker.Acquire(ctx, key, time.Second, Wait)
		done <- err
	}()

	select {
	case <-done:
		require.FailNow("acquired a held lock")
	case <-time.After(20 * time.Millisecond):
	}

	clock.Advance(time.Second)
	require.NoError(<-done)
}

func TestLockWaitCanceled(t *testing.T) {
	require := require.New(t)

	locker, _ := newTestLocker()
	key := LockKey(ids.GenerateTestID())

	_, err := locker.Acquire(context.Background(), key, time.Second, NoWait)
	require.NoError(err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err = locker.Acquire(ctx, key, time.Second, Wait)
	require.ErrorIs(err, context.DeadlineExceeded)
}
