// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package dispute

import (
	"errors"
	"fmt"

	"github.com/luxfi/database"
	"github.com/luxfi/ids"
	"github.com/luxfi/log"

	"github.com/luxfi/taskvm/vms/taskvm/voting"
)

// Voting reconciles submissions with a sampled, weighted vote.
type Voting struct {
	engine        *voting.Engine
	policy        Policy
	disputePeriod uint64
	height        func() uint64
	log           log.Logger
}

// NewVoting returns a Disputable backed by [engine]. [height] reports the
// height of the block being executed; a fast-path resolution made at height h
// can be disputed up to and including h+[disputePeriod].
func NewVoting(
	engine *voting.Engine,
	policy Policy,
	disputePeriod uint64,
	height func() uint64,
	logger log.Logger,
) *Voting {
	return &Voting{
		engine:        engine,
		policy:        policy,
		disputePeriod: disputePeriod,
		height:        height,
		log:           logger,
	}
}

func (v *Voting) Policy() Policy {
	return v.policy
}

func (v *Voting) round(taskID ids.ID) (*voting.Round, bool, error) {
	round, err := v.engine.Round(taskID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return round, true, nil
}

func (v *Voting) live(round *voting.Round) bool {
	if round.Concluded {
		return false
	}
	return !round.Settled || v.height() <= round.OpenUntil
}

func (v *Voting) Disputable(taskID ids.ID) (bool, error) {
	round, ok, err := v.round(taskID)
	if err != nil || !ok {
		return false, err
	}
	return v.live(round), nil
}

func (v *Voting) Disagree(taskID ids.ID, item []byte) (bool, error) {
	round, ok, err := v.round(taskID)
	if err != nil || !ok {
		return false, err
	}
	return round.Disagrees(item), nil
}

func (v *Voting) VoteOn(voter ids.ShortID, taskID ids.ID, item []byte) ([]byte, error) {
	round, ok, err := v.round(taskID)
	if err != nil {
		return nil, err
	}

	switch {
	case !ok && v.policy == PolicyFastPath:
		return v.settle(voter, taskID, item)
	case !ok:
		return v.record(taskID, &voting.Round{}, voter, item)
	case !v.live(round):
		return nil, fmt.Errorf("%w: %s", ErrNotVotable, taskID)
	case round.Settled && !round.Disagrees(item):
		return nil, v.confirm(voter, taskID, round, item)
	case round.Settled:
		v.log.Info("provisional result disputed",
			log.Stringer("taskID", taskID),
			log.Stringer("voter", voter),
		)
		round.Settled = false
		return v.record(taskID, round, voter, item)
	default:
		return v.record(taskID, round, voter, item)
	}
}

// settle resolves an uncontested first submission without a vote.
func (v *Voting) settle(voter ids.ShortID, taskID ids.ID, item []byte) ([]byte, error) {
	power, err := v.engine.VotingPowerOf(taskID, voter)
	if err != nil {
		return nil, err
	}
	round := &voting.Round{
		Settled:   true,
		OpenUntil: v.height() + v.disputePeriod,
	}
	if err := round.Add(voter, power, item); err != nil {
		return nil, err
	}
	if err := v.engine.PutRound(taskID, round); err != nil {
		return nil, err
	}

	v.log.Debug("settled task on first submission",
		log.Stringer("taskID", taskID),
		log.Stringer("voter", voter),
		log.Uint64("openUntil", round.OpenUntil),
	)
	return item, nil
}

// confirm records agreement with a provisional result so the voter cannot
// vote again if the result is later disputed.
func (v *Voting) confirm(voter ids.ShortID, taskID ids.ID, round *voting.Round, item []byte) error {
	power, err := v.engine.VotingPowerOf(taskID, voter)
	if err != nil {
		return err
	}
	if err := round.Add(voter, power, item); err != nil {
		return err
	}
	return v.engine.PutRound(taskID, round)
}

func (v *Voting) record(taskID ids.ID, round *voting.Round, voter ids.ShortID, item []byte) ([]byte, error) {
	summary, err := v.engine.Record(taskID, round, voter, item)
	if err != nil || summary == nil {
		return nil, err
	}
	return summary.Winner, nil
}

func (v *Voting) Clear(taskID ids.ID) error {
	return v.engine.Clear(taskID)
}
