// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var errInvalidDuration = errors.New("invalid duration")

// duration reads a time.Duration from either a string such as "30s" or an
// integer number of nanoseconds. It is written as a string.
type duration time.Duration

func (d duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("%w: %w", errInvalidDuration, err)
		}
		*d = duration(parsed)
		return nil
	}

	var ns int64
	if err := json.Unmarshal(b, &ns); err != nil {
		return fmt.Errorf("%w: %s", errInvalidDuration, b)
	}
	*d = duration(ns)
	return nil
}

// jsonConfig has the fields of Config without its JSON methods.
type jsonConfig Config

// jsonDurations shadows the duration fields of Config so that JSON accepts
// the same values as yaml and environment variables.
type jsonDurations struct {
	*jsonConfig
	LockTTL          duration `json:"lockTTL"`
	LockPollInterval duration `json:"lockPollInterval"`
}

func (c Config) MarshalJSON() ([]byte, error) {
	return json.Marshal(jsonDurations{
		jsonConfig:       (*jsonConfig)(&c),
		LockTTL:          duration(c.LockTTL),
		LockPollInterval: duration(c.LockPollInterval),
	})
}

func (c *Config) UnmarshalJSON(b []byte) error {
	aux := jsonDurations{
		jsonConfig:       (*jsonConfig)(c),
		LockTTL:          duration(c.LockTTL),
		LockPollInterval: duration(c.LockPollInterval),
	}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	c.LockTTL = time.Duration(aux.LockTTL)
	c.LockPollInterval = time.Duration(aux.LockPollInterval)
	return nil
}
