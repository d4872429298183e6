// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"

	"github.com/luxfi/taskvm/vms/taskvm/dispute"
	"github.com/luxfi/taskvm/vms/taskvm/offchain"
	"github.com/luxfi/taskvm/vms/taskvm/voting"
)

// EnvPrefix prefixes environment variables that override file values. A
// double underscore separates nested keys.
const EnvPrefix = "TASKVM_"

var (
	ErrInvalidTimeout     = errors.New("invalid timeout configuration")
	ErrInvalidLock        = errors.New("invalid lock configuration")
	ErrInvalidConcurrency = errors.New("invalid concurrency configuration")
)

// Config holds configuration for the task VM and its off-chain workers.
type Config struct {
	// Voting
	SampleSize    voting.SampleSize `koanf:"sample_size" json:"sampleSize"`
	Policy        dispute.Policy    `koanf:"policy" json:"policy"`
	DisputePeriod uint64            `koanf:"dispute_period" json:"disputePeriod"` // blocks

	// Dispatch, in blocks
	ResultTimeout uint64 `koanf:"result_timeout" json:"resultTimeout"`
	RetryDelay    uint64 `koanf:"retry_delay" json:"retryDelay"`
	MaxAttempts   uint64 `koanf:"max_attempts" json:"maxAttempts"`

	// Off-chain worker
	LockTTL                 time.Duration `koanf:"lock_ttl" json:"lockTTL"`
	LockPollInterval        time.Duration `koanf:"lock_poll_interval" json:"lockPollInterval"`
	MaxConcurrentExecutions int           `koanf:"max_concurrent_executions" json:"maxConcurrentExecutions"`
	SubmittedCacheSize      int           `koanf:"submitted_cache_size" json:"submittedCacheSize"`
	// LocalStorageDir is where locks and nonces are kept. Empty keeps them in
	// memory.
	LocalStorageDir string `koanf:"local_storage_dir" json:"localStorageDir"`
}

// DefaultConfig returns a config with default values.
func DefaultConfig() Config {
	return Config{
		SampleSize:              voting.All(),
		Policy:                  dispute.PolicyQuorum,
		DisputePeriod:           10,
		ResultTimeout:           5,
		RetryDelay:              1,
		MaxAttempts:             3,
		LockTTL:                 30 * time.Second,
		LockPollInterval:        100 * time.Millisecond,
		MaxConcurrentExecutions: 8,
		SubmittedCacheSize:      1024,
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.SampleSize.Verify(); err != nil {
		return err
	}
	switch c.Policy {
	case dispute.PolicyQuorum, dispute.PolicyFastPath:
	default:
		return fmt.Errorf("%w: %s", dispute.ErrUnknownPolicy, c.Policy)
	}
	if c.ResultTimeout == 0 || c.RetryDelay == 0 || c.MaxAttempts == 0 {
		return ErrInvalidTimeout
	}
	if c.LockTTL <= 0 || c.LockPollInterval <= 0 {
		return ErrInvalidLock
	}
	if c.MaxConcurrentExecutions <= 0 || c.SubmittedCacheSize <= 0 {
		return ErrInvalidConcurrency
	}
	return nil
}

// WorkerConfig returns the subset of the config used by off-chain workers.
func (c *Config) WorkerConfig() offchain.WorkerConfig {
	return offchain.WorkerConfig{
		LockTTL:                 c.LockTTL,
		LockPollInterval:        c.LockPollInterval,
		MaxConcurrentExecutions: c.MaxConcurrentExecutions,
		SubmittedCacheSize:      c.SubmittedCacheSize,
	}
}

// Parse parses configuration from JSON bytes.
func Parse(data []byte) (Config, error) {
	cfg := DefaultConfig()
	if len(data) == 0 {
		return cfg, nil
	}

	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Load reads the yaml file at [path], if any, and then environment
// overrides.
func Load(path string) (Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("failed to load %q: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return Config{}, err
	}

	return unmarshal(k)
}

func unmarshal(k *koanf.Koanf) (Config, error) {
	cfg := DefaultConfig()
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
