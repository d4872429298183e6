// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package locks

import (
	"errors"

	"github.com/spf13/pflag"
)

const (
	DirKey    = "dir"
	NoncesKey = "nonces"
)

var errMissingDir = errors.New("missing local storage directory")

func AddFlags(flags *pflag.FlagSet) {
	flags.String(DirKey, "", "Local storage directory of the node (required)")
	flags.Bool(NoncesKey, false, "Also list the last attempt submitted per task")
}

type Config struct {
	Dir    string
	Nonces bool
}

func ParseFlags(flags *pflag.FlagSet, args []string) (*Config, error) {
	if err := flags.Parse(args); err != nil {
		return nil, err
	}

	dir, err := flags.GetString(DirKey)
	if err != nil {
		return nil, err
	}
	if dir == "" {
		return nil, errMissingDir
	}

	nonces, err := flags.GetBool(NoncesKey)
	if err != nil {
		return nil, err
	}

	return &Config{
		Dir:    dir,
		Nonces: nonces,
	}, nil
}
