// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package dispute decides, per task kind, whether submitted results can be
// contested and how contested results are reconciled.
package dispute

import (
	"errors"

	"github.com/luxfi/ids"
)

var (
	_ Disputable = NeverDisputable{}
	_ Disputable = (*Voting)(nil)

	ErrNotVotable = errors.New("task is not votable")
)

// Disputable is implemented once per task kind.
type Disputable interface {
	// Disputable reports whether [taskID] still has a live, contestable
	// entry.
	Disputable(taskID ids.ID) (bool, error)
	// Disagree reports whether any result already recorded for [taskID]
	// differs from [item].
	Disagree(taskID ids.ID, item []byte) (bool, error)
	// VoteOn records [voter]'s support for [item]. It returns the resolved
	// item if this vote resolved the task and nil while the task remains
	// open. A rejected vote changes nothing.
	VoteOn(voter ids.ShortID, taskID ids.ID, item []byte) ([]byte, error)
	// Clear removes all dispute state for [taskID].
	Clear(taskID ids.ID) error
}

// NeverDisputable is used by task kinds where disputing is meaningless: any
// vote immediately resolves the task to the proposed item.
type NeverDisputable struct{}

func (NeverDisputable) Disputable(ids.ID) (bool, error) {
	return false, nil
}

func (NeverDisputable) Disagree(ids.ID, []byte) (bool, error) {
	return false, nil
}

func (NeverDisputable) VoteOn(_ ids.ShortID, _ ids.ID, item []byte) ([]byte, error) {
	return item, nil
}

func (NeverDisputable) Clear(ids.ID) error {
	return nil
}
