// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package config

import (
	"encoding/json"

	"github.com/spf13/cobra"

	vmconfig "github.com/luxfi/taskvm/vms/taskvm/config"
)

func Command() *cobra.Command {
	c := &cobra.Command{
		Use:   "config",
		Short: "Loads, validates and prints the effective configuration",
		RunE:  configFunc,
	}
	flags := c.Flags()
	AddFlags(flags)
	return c
}

func configFunc(c *cobra.Command, args []string) error {
	flags := c.Flags()
	config, err := ParseFlags(flags, args)
	if err != nil {
		return err
	}

	effective, err := vmconfig.Load(config.File)
	if err != nil {
		return err
	}

	encoder := json.NewEncoder(c.OutOrStdout())
	encoder.SetIndent("", "  ")
	return encoder.Encode(effective)
}
