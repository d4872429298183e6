// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package locks

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/luxfi/taskvm/utils/timer/mockable"
	"github.com/luxfi/taskvm/vms/taskvm/offchain"
)

func Command() *cobra.Command {
	c := &cobra.Command{
		Use:   "locks",
		Short: "Lists the task locks held in a node's local storage",
		RunE:  locksFunc,
	}
	flags := c.Flags()
	AddFlags(flags)
	return c
}

func locksFunc(c *cobra.Command, args []string) (err error) {
	flags := c.Flags()
	config, err := ParseFlags(flags, args)
	if err != nil {
		return err
	}

	kv, err := offchain.OpenPogrebKV(config.Dir)
	if err != nil {
		return err
	}
	storage := offchain.NewStorage(kv)
	defer func() {
		err = errors.Join(err, storage.Close())
	}()

	return Print(c.OutOrStdout(), storage, config.Nonces, time.Now())
}

// Print writes one line per lock, and optionally per nonce, found in
// [storage]. Locks past their expiry at [now] are marked as such.
func Print(w io.Writer, storage *offchain.Storage, nonces bool, now time.Time) error {
	locks, err := offchain.Locks(storage)
	if err != nil {
		return err
	}

	clock := &mockable.Clock{}
	clock.Set(now)
	locker := offchain.NewLocker(storage, clock, time.Millisecond)
	for _, lock := range locks {
		held, err := locker.Held(offchain.LockKey(lock.TaskID))
		if err != nil {
			return err
		}
		state := "expired"
		if held {
			state = "held"
		}
		expiry := time.UnixMilli(int64(lock.Value)).UTC()
		if _, err := fmt.Fprintf(w, "lock %s %s %s\n", lock.TaskID, expiry.Format(time.RFC3339Nano), state); err != nil {
			return err
		}
	}

	if !nonces {
		return nil
	}
	submitted, err := offchain.SubmittedNonces(storage)
	if err != nil {
		return err
	}
	for _, nonce := range submitted {
		if _, err := fmt.Fprintf(w, "nonce %s %d\n", nonce.TaskID, nonce.Value); err != nil {
			return err
		}
	}
	return nil
}
