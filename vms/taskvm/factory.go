// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package taskvm

import (
	"github.com/luxfi/log"

	luxvm "github.com/luxfi/taskvm"
	"github.com/luxfi/taskvm/vms/taskvm/authority"
	"github.com/luxfi/taskvm/vms/taskvm/task"
	"github.com/luxfi/taskvm/vms/taskvm/voting"
)

var _ luxvm.Factory = (*Factory)(nil)

// Factory creates task VM instances that share the same pluggable
// capabilities.
type Factory struct {
	Power       voting.PowerSource
	Authorities authority.Authorities
	// Undisputed kinds resolve on their first submission.
	Undisputed []task.Kind
}

// New creates a new task VM instance.
func (f *Factory) New(logger log.Logger) (luxvm.VM, error) {
	return New(f.Power, f.Authorities, logger, f.Undisputed...), nil
}
