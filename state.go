// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package taskvm

// State is the high-level lifecycle state of a VM instance.
type State uint8

const (
	// Unknown is the default / unset state.
	Unknown State = iota

	// Bootstrapping indicates the VM is replaying blocks to reach tip. Block
	// operations run but off-chain work is suppressed.
	Bootstrapping

	// NormalOp indicates the VM is at tip and off-chain workers may run.
	NormalOp
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case Bootstrapping:
		return "Bootstrapping"
	case NormalOp:
		return "NormalOp"
	default:
		return "Unknown"
	}
}
