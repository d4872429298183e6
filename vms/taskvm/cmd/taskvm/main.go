// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/luxfi/taskvm/vms/taskvm"
	"github.com/luxfi/taskvm/vms/taskvm/cmd/config"
	"github.com/luxfi/taskvm/vms/taskvm/cmd/locks"
)

func main() {
	cmd := &cobra.Command{
		Use:     "taskvm",
		Short:   "Inspects taskvm node configuration and local storage",
		Version: taskvm.Version,
	}
	cmd.AddCommand(
		config.Command(),
		locks.Command(),
	)
	cmd.SilenceUsage = true
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "command failed %v\n", err)
		os.Exit(1)
	}
}
