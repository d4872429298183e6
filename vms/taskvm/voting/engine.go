// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package voting

import (
	"errors"
	"fmt"

	"github.com/luxfi/database"
	"github.com/luxfi/ids"
	"github.com/luxfi/log"
)

var (
	ErrIneligibleVoter = errors.New("voter is not eligible for this task")
	ErrRoundConcluded  = errors.New("round already concluded")
)

// Summary describes a concluded round.
type Summary struct {
	Winner        []byte `json:"winner"`
	WinnerPower   uint64 `json:"winnerPower"`
	Committed     uint64 `json:"committed"`
	EligiblePower uint64 `json:"eligiblePower"`
	Voters        int    `json:"voters"`
	Candidates    int    `json:"candidates"`
}

// Concluder is told about every round that reaches quorum. Clearing the round
// is left to the caller.
type Concluder interface {
	VotingConcluded(taskID ids.ID, summary Summary, round *Round) error
}

// ConcluderFunc adapts a function to a Concluder.
type ConcluderFunc func(taskID ids.ID, summary Summary, round *Round) error

func (f ConcluderFunc) VotingConcluded(taskID ids.ID, summary Summary, round *Round) error {
	return f(taskID, summary, round)
}

// Engine samples voters, accumulates their votes and decides rounds once
// enough of the sampled power has spoken. It runs inside the deterministic
// block regime and is not safe for concurrent use.
type Engine struct {
	rounds     *Rounds
	power      PowerSource
	sampleSize SampleSize
	concluder  Concluder
	log        log.Logger
}

func NewEngine(
	db database.Database,
	power PowerSource,
	sampleSize SampleSize,
	concluder Concluder,
	logger log.Logger,
) (*Engine, error) {
	if err := sampleSize.Verify(); err != nil {
		return nil, err
	}
	return &Engine{
		rounds:     NewRounds(db),
		power:      power,
		sampleSize: sampleSize,
		concluder:  concluder,
		log:        logger,
	}, nil
}

// SampleSize returns the configured fraction of the population that makes a
// valid round.
func (e *Engine) SampleSize() SampleSize {
	return e.sampleSize
}

// Sample returns the voters selected for [taskID].
func (e *Engine) Sample(taskID ids.ID) (*Sample, error) {
	population, err := e.power.Population(taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch voting population: %w", err)
	}
	return NewSample(taskID, population, e.sampleSize)
}

// VotingPowerOf returns the power [voter] carries on [taskID].
func (e *Engine) VotingPowerOf(taskID ids.ID, voter ids.ShortID) (uint64, error) {
	sample, err := e.Sample(taskID)
	if err != nil {
		return 0, err
	}
	power, ok := sample.Voters[voter]
	if !ok {
		return 0, fmt.Errorf("%w: %s on %s", ErrIneligibleVoter, voter, taskID)
	}
	return power, nil
}

// Round returns the stored round for [taskID], or database.ErrNotFound.
func (e *Engine) Round(taskID ids.ID) (*Round, error) {
	return e.rounds.Get(taskID)
}

// HasRound reports whether a round is stored for [taskID].
func (e *Engine) HasRound(taskID ids.ID) (bool, error) {
	return e.rounds.Has(taskID)
}

// PutRound stores [round] as is.
func (e *Engine) PutRound(taskID ids.ID, round *Round) error {
	return e.rounds.Put(taskID, round)
}

// MeetsQuorum reports whether the power committed to [round], across every
// candidate, reaches the sample size of the total eligible power.
func (e *Engine) MeetsQuorum(taskID ids.ID, round *Round) (bool, error) {
	sample, err := e.Sample(taskID)
	if err != nil {
		return false, err
	}
	return e.meetsQuorum(sample, round), nil
}

func (e *Engine) meetsQuorum(sample *Sample, round *Round) bool {
	return round.Committed > 0 && e.sampleSize.Reached(round.Committed, sample.TotalPower)
}

// Vote records [voter]'s vote for [item] on [taskID]. It returns the summary
// if the vote concluded the round and nil while voting remains open.
func (e *Engine) Vote(taskID ids.ID, voter ids.ShortID, item []byte) (*Summary, error) {
	round, err := e.rounds.Get(taskID)
	switch {
	case errors.Is(err, database.ErrNotFound):
		round = &Round{}
	case err != nil:
		return nil, err
	}
	return e.Record(taskID, round, voter, item)
}

// Record adds the vote to [round], which may not have been stored yet, and
// stores the result. Nothing is written if the vote is rejected.
func (e *Engine) Record(taskID ids.ID, round *Round, voter ids.ShortID, item []byte) (*Summary, error) {
	if round.Concluded {
		return nil, fmt.Errorf("%w: %s", ErrRoundConcluded, taskID)
	}
	sample, err := e.Sample(taskID)
	if err != nil {
		return nil, err
	}
	power, ok := sample.Voters[voter]
	if !ok {
		return nil, fmt.Errorf("%w: %s on %s", ErrIneligibleVoter, voter, taskID)
	}
	if err := round.Add(voter, power, item); err != nil {
		return nil, err
	}

	e.log.Debug("recorded vote",
		log.Stringer("taskID", taskID),
		log.Stringer("voter", voter),
		log.Uint64("power", power),
		log.Uint64("committed", round.Committed),
		log.Uint64("totalPower", sample.TotalPower),
	)

	if !e.meetsQuorum(sample, round) {
		return nil, e.rounds.Put(taskID, round)
	}

	summary := e.summarize(sample, round)
	round.Concluded = true
	round.Settled = false
	if err := e.concluder.VotingConcluded(taskID, summary, round); err != nil {
		return nil, fmt.Errorf("failed to conclude voting on %s: %w", taskID, err)
	}
	if err := e.rounds.Put(taskID, round); err != nil {
		return nil, err
	}

	e.log.Info("voting concluded",
		log.Stringer("taskID", taskID),
		log.Uint64("winnerPower", summary.WinnerPower),
		log.Uint64("committed", summary.Committed),
		log.Int("candidates", summary.Candidates),
	)
	return &summary, nil
}

func (*Engine) summarize(sample *Sample, round *Round) Summary {
	leader, _ := round.Leader()
	return Summary{
		Winner:        leader.Item,
		WinnerPower:   leader.Power,
		Committed:     round.Committed,
		EligiblePower: sample.TotalPower,
		Voters:        round.Voters().Len(),
		Candidates:    len(round.Candidates),
	}
}

// Clear removes all voting state for [taskID].
func (e *Engine) Clear(taskID ids.ID) error {
	return e.rounds.Delete(taskID)
}
