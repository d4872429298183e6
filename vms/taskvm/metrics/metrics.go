// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "taskvm"

// Metrics instruments both the block operations and the off-chain worker.
type Metrics struct {
	scheduled  prometheus.Counter
	dispatched prometheus.Counter
	retried    prometheus.Counter
	expired    prometheus.Counter
	pending    prometheus.Gauge

	votes     *prometheus.CounterVec
	concluded prometheus.Counter
	fastPath  prometheus.Counter
	disputed  prometheus.Counter
	finalized prometheus.Counter

	executions      *prometheus.CounterVec
	executionTime   prometheus.Histogram
	lockContentions prometheus.Counter
	submissions     *prometheus.CounterVec
}

func New(registerer prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		scheduled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_scheduled",
			Help:      "Number of tasks inserted into the schedule",
		}),
		dispatched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_dispatched",
			Help:      "Number of task attempts handed to off-chain workers",
		}),
		retried: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_retried",
			Help:      "Number of attempts that timed out and were rescheduled",
		}),
		expired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_expired",
			Help:      "Number of tasks that ran out of attempts",
		}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tasks_pending",
			Help:      "Number of tasks awaiting a result",
		}),
		votes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "votes",
			Help:      "Number of submitted results, partitioned by outcome",
		}, []string{"status"}),
		concluded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rounds_concluded",
			Help:      "Number of voting rounds that reached quorum",
		}),
		fastPath: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fast_path_settlements",
			Help:      "Number of tasks provisionally settled on their first submission",
		}),
		disputed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "disputes_opened",
			Help:      "Number of provisional results that were contested",
		}),
		finalized: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outcomes_finalized",
			Help:      "Number of task outcomes that can no longer change",
		}),
		executions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "executions",
			Help:      "Number of off-chain executions, partitioned by result",
		}, []string{"result"}),
		executionTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "execution_duration_seconds",
			Help:      "Time spent executing tasks off-chain",
			Buckets:   prometheus.DefBuckets,
		}),
		lockContentions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lock_contentions",
			Help:      "Number of executions skipped because the task lock was held",
		}),
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "submissions",
			Help:      "Number of results submitted by this node, partitioned by result",
		}, []string{"result"}),
	}

	err := errors.Join(
		registerer.Register(m.scheduled),
		registerer.Register(m.dispatched),
		registerer.Register(m.retried),
		registerer.Register(m.expired),
		registerer.Register(m.pending),
		registerer.Register(m.votes),
		registerer.Register(m.concluded),
		registerer.Register(m.fastPath),
		registerer.Register(m.disputed),
		registerer.Register(m.finalized),
		registerer.Register(m.executions),
		registerer.Register(m.executionTime),
		registerer.Register(m.lockContentions),
		registerer.Register(m.submissions),
	)
	return m, err
}

func (m *Metrics) MarkScheduled()  { m.scheduled.Inc() }
func (m *Metrics) MarkRetried()    { m.retried.Inc() }
func (m *Metrics) MarkConcluded()  { m.concluded.Inc() }
func (m *Metrics) MarkFastPath()   { m.fastPath.Inc() }
func (m *Metrics) MarkDisputed()   { m.disputed.Inc() }
func (m *Metrics) MarkFinalized()  { m.finalized.Inc() }
func (m *Metrics) MarkContention() { m.lockContentions.Inc() }

func (m *Metrics) MarkDispatched() {
	m.dispatched.Inc()
	m.pending.Inc()
}

// MarkResolved is called when a task leaves the pending set.
func (m *Metrics) MarkResolved() {
	m.pending.Dec()
}

func (m *Metrics) MarkExpired() {
	m.expired.Inc()
	m.pending.Dec()
}

// MarkVote records a submitted result with [status] one of "accepted",
// "resolved" or "rejected".
func (m *Metrics) MarkVote(status string) {
	m.votes.WithLabelValues(status).Inc()
}

// ObserveExecution records one off-chain execution.
func (m *Metrics) ObserveExecution(d time.Duration, err error) {
	m.executionTime.Observe(d.Seconds())
	if err != nil {
		m.executions.WithLabelValues("failed").Inc()
		return
	}
	m.executions.WithLabelValues("succeeded").Inc()
}

// MarkSubmission records one submission with [result] one of "accepted",
// "duplicate", "ineligible" or "failed".
func (m *Metrics) MarkSubmission(result string) {
	m.submissions.WithLabelValues(result).Inc()
}
