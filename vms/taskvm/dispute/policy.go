// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package dispute

import (
	"errors"
	"fmt"
)

var ErrUnknownPolicy = errors.New("unknown resolution policy")

// Policy selects how an uncontested submission is treated.
type Policy uint8

const (
	// PolicyQuorum resolves a task only once a quorum of sampled power has
	// voted, even if every vote agrees.
	PolicyQuorum Policy = iota
	// PolicyFastPath resolves a task on the first submission when nothing
	// recorded disagrees with it. The resolution stays open to dispute for a
	// fixed number of blocks; a conflicting submission in that window turns it
	// into a quorum vote.
	PolicyFastPath
)

func (p Policy) String() string {
	switch p {
	case PolicyQuorum:
		return "quorum"
	case PolicyFastPath:
		return "fastPath"
	default:
		return fmt.Sprintf("policy(%d)", uint8(p))
	}
}

func (p Policy) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Policy) UnmarshalText(text []byte) error {
	switch string(text) {
	case "quorum":
		*p = PolicyQuorum
	case "fastPath":
		*p = PolicyFastPath
	default:
		return fmt.Errorf("%w: %q", ErrUnknownPolicy, text)
	}
	return nil
}
