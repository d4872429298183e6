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

func TestInspectLocalStorage(t *testing.T) {
	require := require.New(t)

	storage := NewStorage(NewDatabaseKV(memdb.New()))
	clock := &mockable.Clock{}
	clock.Set(time.UnixMilli(1_000))
	locker := NewLocker(storage, clock, time.Millisecond)

	locked := ids.GenerateTestID()
	_, err := locker.Acquire(context.Background(), LockKey(locked), time.Second, NoWait)
	require.NoError(err)

	submitted := ids.GenerateTestID()
	require.NoError(NewNonces(storage).Advance(submitted, 3))

	locks, err := Locks(storage)
	require.NoError(err)
	require.Equal([]Entry{{TaskID: locked, Value: 2_000}}, locks)

	nonces, err := SubmittedNonces(storage)
	require.NoError(err)
	require.Equal([]Entry{{TaskID: submitted, Value: 3}}, nonces)
}
