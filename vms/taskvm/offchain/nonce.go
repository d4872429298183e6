// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package offchain

import (
	"github.com/luxfi/database"
	"github.com/luxfi/ids"
)

var noncePrefix = []byte("nonce/")

// NonceKey is the local storage key recording the last attempt this node
// submitted for [taskID].
func NonceKey(taskID ids.ID) []byte {
	return append(append([]byte{}, noncePrefix...), taskID[:]...)
}

// Nonces tracks, per task, the last attempt this node has submitted.
type Nonces struct {
	storage *Storage
}

func NewNonces(storage *Storage) *Nonces {
	return &Nonces{storage: storage}
}

// Local returns the last submitted attempt, or 0 if none.
func (n *Nonces) Local(taskID ids.ID) (uint64, error) {
	value, ok, err := n.storage.Get(NonceKey(taskID))
	if err != nil || !ok {
		return 0, err
	}
	return database.ParseUInt64(value)
}

// Advance records [nonce] as submitted. It must only be called once the
// submission for that attempt has been accepted.
func (n *Nonces) Advance(taskID ids.ID, nonce uint64) error {
	return n.storage.Set(NonceKey(taskID), database.PackUInt64(nonce))
}

func (n *Nonces) Clear(taskID ids.ID) error {
	return n.storage.Delete(NonceKey(taskID))
}
