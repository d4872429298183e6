// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	require := require.New(t)

	registry := prometheus.NewRegistry()
	m, err := New(registry)
	require.NoError(err)

	m.MarkScheduled()
	m.MarkDispatched()
	m.MarkDispatched()
	m.MarkResolved()
	m.MarkVote("accepted")
	m.MarkVote("accepted")
	m.ObserveExecution(time.Millisecond, nil)
	m.ObserveExecution(time.Millisecond, errors.New("boom"))

	require.InDelta(1, testutil.ToFloat64(m.scheduled), 0)
	require.InDelta(2, testutil.ToFloat64(m.dispatched), 0)
	require.InDelta(1, testutil.ToFloat64(m.pending), 0)
	require.InDelta(2, testutil.ToFloat64(m.votes.WithLabelValues("accepted")), 0)
	require.InDelta(1, testutil.ToFloat64(m.executions.WithLabelValues("failed")), 0)

	m.MarkExpired()
	require.InDelta(0, testutil.ToFloat64(m.pending), 0)
	require.InDelta(1, testutil.ToFloat64(m.expired), 0)
}

func TestNewDuplicateRegistration(t *testing.T) {
	registry := prometheus.NewRegistry()
	_, err := New(registry)
	require.NoError(t, err)

	_, err = New(registry)
	require.Error(t, err)
}
