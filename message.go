// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package taskvm

import "github.com/luxfi/ids"

// Message signals from the VM to the host
type Message struct {
	Type   MessageType
	TaskID ids.ID
}

// MessageType identifies the message kind
type MessageType uint32

const (
	// PendingTasks indicates tasks were dispatched and off-chain workers
	// should run
	PendingTasks MessageType = iota
	// OutcomeFinalized indicates a task's outcome can no longer change
	OutcomeFinalized
)

// String returns the string representation of the message type
func (m MessageType) String() string {
	switch m {
	case PendingTasks:
		return "PendingTasks"
	case OutcomeFinalized:
		return "OutcomeFinalized"
	default:
		return "Unknown"
	}
}
