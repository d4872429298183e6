// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package taskvm defines the interfaces shared by the task scheduling VM and
// the off-chain workers that serve it.
package taskvm

import (
	"context"
	"errors"

	"github.com/luxfi/database"
	"github.com/luxfi/ids"
	"github.com/prometheus/client_golang/prometheus"
)

// ErrAlreadyFinal is returned when a result is submitted for a task whose
// outcome can no longer change.
var ErrAlreadyFinal = errors.New("outcome is already final")

// VM defines the interface for a virtual machine
type VM interface {
	// Initialize initializes the VM with the given configuration
	Initialize(context.Context, *Config) error

	// Shutdown cleanly stops the VM
	Shutdown(context.Context) error

	// Version returns the VM version
	Version(context.Context) (string, error)

	// SetState transitions the VM to the specified state
	SetState(context.Context, State) error

	// OnDeadlineReached runs every task due at [height]. It must be called
	// exactly once per block, in block order.
	OnDeadlineReached(ctx context.Context, height uint64) error
}

// Config defines VM configuration
type Config struct {
	ChainID ids.ID
	NodeID  ids.NodeID

	// DB is the replicated ledger. The VM owns its contents.
	DB database.Database
	// ConfigBytes is the JSON encoded VM configuration.
	ConfigBytes []byte
	// Registerer receives the VM metrics. Nil disables registration.
	Registerer prometheus.Registerer
	// ToEngine, if set, receives non-blocking notifications.
	ToEngine chan<- Message
}
