// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package config

import "github.com/spf13/pflag"

const FileKey = "config-file"

func AddFlags(flags *pflag.FlagSet) {
	flags.String(FileKey, "", "YAML config file to load before applying environment overrides")
}

type Config struct {
	File string
}

func ParseFlags(flags *pflag.FlagSet, args []string) (*Config, error) {
	if err := flags.Parse(args); err != nil {
		return nil, err
	}

	file, err := flags.GetString(FileKey)
	if err != nil {
		return nil, err
	}

	return &Config{
		File: file,
	}, nil
}
