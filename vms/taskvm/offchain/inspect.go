// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package offchain

import (
	"fmt"

	"github.com/luxfi/database"
	"github.com/luxfi/ids"
)

// Entry is a per-task record found in local storage.
type Entry struct {
	TaskID ids.ID `json:"taskID"`
	Value  uint64 `json:"value"`
}

// Locks lists every lock record with its expiry in unix milliseconds. Expired
// locks are included.
func Locks(storage *Storage) ([]Entry, error) {
	return entries(storage, lockPrefix)
}

// SubmittedNonces lists the last attempt submitted for every task.
func SubmittedNonces(storage *Storage) ([]Entry, error) {
	return entries(storage, noncePrefix)
}

func entries(storage *Storage, prefix []byte) ([]Entry, error) {
	var result []Entry
	err := storage.Iterate(prefix, func(key, value []byte) error {
		taskID, err := ids.ToID(key[len(prefix):])
		if err != nil {
			return fmt.Errorf("malformed key %x: %w", key, err)
		}
		v, err := database.ParseUInt64(value)
		if err != nil {
			return fmt.Errorf("malformed value of %s: %w", taskID, err)
		}
		result = append(result, Entry{
			TaskID: taskID,
			Value:  v,
		})
		return nil
	})
	return result, err
}
