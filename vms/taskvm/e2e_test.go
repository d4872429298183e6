// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package taskvm

import (
	"context"
	"testing"

	"github.com/luxfi/crypto/secp256k1"
	"github.com/luxfi/database"
	"github.com/luxfi/database/memdb"
	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	luxvm "github.com/luxfi/taskvm"
	"github.com/luxfi/taskvm/vms/taskvm/metrics"
	"github.com/luxfi/taskvm/vms/taskvm/offchain"
	"github.com/luxfi/taskvm/vms/taskvm/offchain/offchainmock"
	"github.com/luxfi/taskvm/vms/taskvm/task"
)

// gatedExecutor reports each execution and blocks until released.
type gatedExecutor struct {
	result  []byte
	started chan struct{}
	release chan struct{}
}

func newGatedExecutor(result string) *gatedExecutor {
	return &gatedExecutor{
		result:  []byte(result),
		started: make(chan struct{}, 8),
		release: make(chan struct{}),
	}
}

func (g *gatedExecutor) Execute(context.Context, ids.ID, *task.Task) ([]byte, error) {
	g.started <- struct{}{}
	<-g.release
	return g.result, nil
}

func TestEndToEnd(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	// Four equal voters; half of the power is sampled per task, and all of
	// the sampled power must agree.
	e := newTestEnv(t, `{"sampleSize":"1/2","lockTTL":"5s","resultTimeout":5}`, 4)
	require.NoError(e.vm.SetState(ctx, luxvm.NormalOp))

	taskID := e.schedule(t, 10, priceKind, "LUX/USD")
	voters := e.sampled(t, taskID)
	require.Len(voters, 2)

	// Node A runs two workers that share its local storage.
	executorA := newGatedExecutor("A")
	executors := map[task.Kind]offchain.Executor{priceKind: executorA}
	first, err := e.vm.NewWorker(executors, e.vm.Submitter(), []*secp256k1.PrivateKey{voters[0]})
	require.NoError(err)
	second, err := e.vm.NewWorker(executors, e.vm.Submitter(), []*secp256k1.PrivateKey{voters[0]})
	require.NoError(err)

	// Nothing is due yet.
	e.advance(t, 9)
	require.NoError(first.Run(ctx, 9))

	e.advance(t, 10)

	done := make(chan error)
	go func() {
		done <- first.Run(ctx, 10)
	}()
	<-executorA.started

	// The lock admits a single execution on node A.
	require.NoError(second.Run(ctx, 10))

	close(executorA.release)
	require.NoError(<-done)
	require.Len(executorA.started, 0)

	// Once submitted, node A does not execute the attempt again.
	require.NoError(second.Run(ctx, 10))
	require.Len(executorA.started, 0)

	outcome, err := e.vm.Outcome(taskID)
	require.ErrorIs(err, database.ErrNotFound)
	require.Nil(outcome)

	// Node B has its own local storage and submits the matching result.
	m, err := metrics.New(prometheus.NewRegistry())
	require.NoError(err)
	nodeB, err := offchain.NewWorker(
		e.vm.config.WorkerConfig(),
		e.vm,
		map[task.Kind]offchain.Executor{
			priceKind: offchain.ExecutorFunc(func(context.Context, ids.ID, *task.Task) ([]byte, error) {
				return []byte("A"), nil
			}),
		},
		e.vm.Submitter(),
		[]*secp256k1.PrivateKey{voters[1]},
		offchain.NewStorage(offchain.NewDatabaseKV(memdb.New())),
		&e.vm.clock,
		m,
		log.NewNoOpLogger(),
	)
	require.NoError(err)
	require.NoError(nodeB.Run(ctx, 10))

	outcome, err = e.vm.Outcome(taskID)
	require.NoError(err)
	require.True(outcome.Final)
	require.Equal([]byte("A"), outcome.Item)
	require.Equal(uint64(20), outcome.WinnerPower)
	require.Equal(uint64(20), outcome.Committed)
	require.Equal(uint64(40), outcome.EligiblePower)
	require.Equal(uint32(2), outcome.Voters)

	has, err := e.vm.engine.HasRound(taskID)
	require.NoError(err)
	require.False(has)

	tasks, err := e.vm.PendingTasks()
	require.NoError(err)
	require.Empty(tasks)

	// The timeout finds nothing left to retry.
	e.advance(t, 15)
	_, ok, err := e.vm.NextDeadline()
	require.NoError(err)
	require.False(ok)

	require.NoError(e.vm.Shutdown(ctx))
}

func TestWorkerSubmitsThroughHost(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	e := newTestEnv(t, "", 1)
	require.NoError(e.vm.SetState(ctx, luxvm.NormalOp))
	taskID := e.schedule(t, 1, priceKind, "LUX/USD")
	e.advance(t, 1)

	submitter := offchainmock.NewSubmitter(gomock.NewController(t))
	submitter.EXPECT().Submit(gomock.Any(), offchain.Submission{
		TaskID:  taskID,
		Attempt: 1,
		Voter:   e.keys[0].Address(),
		Item:    []byte("1.00"),
	}).DoAndReturn(func(ctx context.Context, s offchain.Submission) error {
		return e.vm.SubmitResult(ctx, s)
	}).Times(1)

	w, err := e.vm.NewWorker(
		map[task.Kind]offchain.Executor{
			priceKind: offchain.ExecutorFunc(func(context.Context, ids.ID, *task.Task) ([]byte, error) {
				return []byte("1.00"), nil
			}),
		},
		submitter,
		e.keys,
	)
	require.NoError(err)
	require.NoError(w.Run(ctx, 1))
	require.NoError(w.Run(ctx, 1))

	outcome, err := e.vm.Outcome(taskID)
	require.NoError(err)
	require.True(outcome.Final)
}

func TestWorkerIdleWhileBootstrapping(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	e := newTestEnv(t, "", 1)
	require.Equal(luxvm.Bootstrapping, e.vm.State())
	e.schedule(t, 1, priceKind, "LUX/USD")
	e.advance(t, 1)

	submitter := offchainmock.NewSubmitter(gomock.NewController(t))
	w, err := e.vm.NewWorker(nil, submitter, e.keys)
	require.NoError(err)
	require.NoError(w.Run(ctx, 1))
}

func TestLocalStorageOnDisk(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	dir := t.TempDir()
	e := newTestEnv(t, `{"localStorageDir":"`+dir+`"}`, 1)
	require.NoError(e.vm.SetState(ctx, luxvm.NormalOp))
	taskID := e.schedule(t, 1, priceKind, "LUX/USD")
	e.advance(t, 1)

	w, err := e.vm.NewWorker(
		map[task.Kind]offchain.Executor{
			priceKind: offchain.ExecutorFunc(func(context.Context, ids.ID, *task.Task) ([]byte, error) {
				return []byte("1.00"), nil
			}),
		},
		e.vm.Submitter(),
		e.keys,
	)
	require.NoError(err)
	require.NoError(w.Run(ctx, 1))
	require.NoError(e.vm.Shutdown(ctx))

	kv, err := offchain.OpenPogrebKV(dir)
	require.NoError(err)
	storage := offchain.NewStorage(kv)
	defer func() {
		require.NoError(storage.Close())
	}()

	nonce, err := offchain.NewNonces(storage).Local(taskID)
	require.NoError(err)
	require.Equal(uint64(1), nonce)

	_, held, err := storage.Get(offchain.LockKey(taskID))
	require.NoError(err)
	require.False(held)
}
