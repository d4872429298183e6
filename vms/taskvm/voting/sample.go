// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package voting

import (
	"bytes"
	"crypto/sha256"
	"fmt"

	"github.com/google/btree"
	"github.com/luxfi/ids"

	safemath "github.com/luxfi/taskvm/utils/math"
)

const defaultTreeDegree = 2

// PowerSource reports the voters that may be asked to vote on a task and the
// weight of each. Zero weights are ignored.
type PowerSource interface {
	Population(taskID ids.ID) (map[ids.ShortID]uint64, error)
}

// StaticPower is a fixed population shared by every task.
type StaticPower map[ids.ShortID]uint64

func (p StaticPower) Population(ids.ID) (map[ids.ShortID]uint64, error) {
	return p, nil
}

// Sample is the set of voters selected for one task.
type Sample struct {
	// Voters maps every sampled voter to its power.
	Voters map[ids.ShortID]uint64
	// Power is the sum of the sampled voters' power.
	Power uint64
	// TotalPower is the power of the whole eligible population.
	TotalPower uint64
}

type scoredVoter struct {
	score [sha256.Size]byte
	voter ids.ShortID
	power uint64
}

func (v *scoredVoter) Less(other *scoredVoter) bool {
	if c := bytes.Compare(v.score[:], other.score[:]); c != 0 {
		return c < 0
	}
	return bytes.Compare(v.voter[:], other.voter[:]) < 0
}

// NewSample deterministically selects voters from [population] for [taskID].
// Voters are ordered by sha256(taskID || voter) and taken in that order until
// the selected power reaches [size] of the total power. At least one voter is
// always selected from a non-empty population.
func NewSample(taskID ids.ID, population map[ids.ShortID]uint64, size SampleSize) (*Sample, error) {
	tree := btree.NewG(defaultTreeDegree, (*scoredVoter).Less)
	var total uint64
	for voter, power := range population {
		if power == 0 {
			continue
		}
		var err error
		total, err = safemath.Add(total, power)
		if err != nil {
			return nil, fmt.Errorf("total voting power: %w", err)
		}

		preimage := make([]byte, 0, len(taskID)+len(voter))
		preimage = append(preimage, taskID[:]...)
		preimage = append(preimage, voter[:]...)
		tree.ReplaceOrInsert(&scoredVoter{
			score: sha256.Sum256(preimage),
			voter: voter,
			power: power,
		})
	}

	sample := &Sample{
		Voters:     make(map[ids.ShortID]uint64),
		TotalPower: total,
	}
	tree.Ascend(func(v *scoredVoter) bool {
		if len(sample.Voters) > 0 && size.Reached(sample.Power, total) {
			return false
		}
		sample.Voters[v.voter] = v.power
		// Cannot overflow: bounded by total.
		sample.Power += v.power
		return true
	})
	return sample, nil
}

// Reached reports whether [power] is at least this fraction of [total].
func (s SampleSize) Reached(power, total uint64) bool {
	return safemath.ProductAtLeast(power, s.Den, s.Num, total)
}
