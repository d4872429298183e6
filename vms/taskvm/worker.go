// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package taskvm

import (
	"github.com/luxfi/crypto/secp256k1"
	"github.com/luxfi/database/memdb"
	"github.com/luxfi/log"

	"github.com/luxfi/taskvm/vms/taskvm/offchain"
	"github.com/luxfi/taskvm/vms/taskvm/task"
)

// NewWorker returns an off-chain worker for this node. Workers created by the
// same VM share the node's local storage, and therefore its locks.
func (vm *VM) NewWorker(
	executors map[task.Kind]offchain.Executor,
	submitter offchain.Submitter,
	keys []*secp256k1.PrivateKey,
) (*offchain.Worker, error) {
	vm.lock.RLock()
	config := vm.config
	vm.lock.RUnlock()

	storage, err := vm.localStorage(config.LocalStorageDir)
	if err != nil {
		return nil, err
	}
	return offchain.NewWorker(
		config.WorkerConfig(),
		vm,
		executors,
		submitter,
		keys,
		storage,
		&vm.clock,
		vm.metrics,
		vm.log,
	)
}

func (vm *VM) localStorage(dir string) (*offchain.Storage, error) {
	vm.storageLock.Lock()
	defer vm.storageLock.Unlock()

	if vm.storage != nil {
		return vm.storage, nil
	}

	var kv offchain.KV
	if dir != "" {
		var err error
		kv, err = offchain.OpenPogrebKV(dir)
		if err != nil {
			return nil, err
		}
		vm.log.Info("opened local storage",
			log.String("path", dir),
		)
	} else {
		kv = offchain.NewDatabaseKV(memdb.New())
	}
	vm.storage = offchain.NewStorage(kv)
	return vm.storage, nil
}
