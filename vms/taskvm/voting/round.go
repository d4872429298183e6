// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package voting

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/luxfi/database"
	"github.com/luxfi/ids"
	"github.com/luxfi/math/set"

	safemath "github.com/luxfi/taskvm/utils/math"
)

var (
	ErrDoubleVote   = errors.New("voter already voted on this task")
	ErrWrongVersion = errors.New("wrong codec version")
)

// Vote is one voter's weight behind a candidate.
type Vote struct {
	Voter ids.ShortID `serialize:"true" json:"voter"`
	Power uint64      `serialize:"true" json:"power"`
}

// Candidate is a proposed result and the votes behind it.
type Candidate struct {
	Item  []byte `serialize:"true" json:"item"`
	Votes []Vote `serialize:"true" json:"votes"`
	Power uint64 `serialize:"true" json:"power"`
}

// Round is the voting state of one task. Candidates are kept in arrival
// order.
type Round struct {
	Candidates []Candidate `serialize:"true" json:"candidates"`
	Committed  uint64      `serialize:"true" json:"committed"`

	// Settled marks a round that was resolved without a vote and may still be
	// disputed until OpenUntil (inclusive).
	Settled   bool   `serialize:"true" json:"settled"`
	OpenUntil uint64 `serialize:"true" json:"openUntil"`
	// Concluded marks a round whose outcome was decided by quorum.
	Concluded bool `serialize:"true" json:"concluded"`
}

// Voters returns everyone who voted in the round.
func (r *Round) Voters() set.Set[ids.ShortID] {
	voters := set.NewSet[ids.ShortID](0)
	for _, c := range r.Candidates {
		for _, v := range c.Votes {
			voters.Add(v.Voter)
		}
	}
	return voters
}

// HasVoted reports whether [voter] backs any candidate.
func (r *Round) HasVoted(voter ids.ShortID) bool {
	for _, c := range r.Candidates {
		for _, v := range c.Votes {
			if v.Voter == voter {
				return true
			}
		}
	}
	return false
}

// Disagrees reports whether any candidate differs from [item].
func (r *Round) Disagrees(item []byte) bool {
	for _, c := range r.Candidates {
		if !bytes.Equal(c.Item, item) {
			return true
		}
	}
	return false
}

// Add records [voter]'s [power] behind [item]. The round is left unchanged on
// error.
func (r *Round) Add(voter ids.ShortID, power uint64, item []byte) error {
	if r.HasVoted(voter) {
		return fmt.Errorf("%w: %s", ErrDoubleVote, voter)
	}
	committed, err := safemath.Add(r.Committed, power)
	if err != nil {
		return err
	}

	i := r.index(item)
	if i < 0 {
		r.Candidates = append(r.Candidates, Candidate{
			Item: bytes.Clone(item),
		})
		i = len(r.Candidates) - 1
	}
	c := &r.Candidates[i]
	c.Votes = append(c.Votes, Vote{Voter: voter, Power: power})
	// Cannot overflow: bounded by Committed.
	c.Power += power
	r.Committed = committed
	return nil
}

// Leader returns the candidate with the most power. Ties go to the candidate
// that arrived first.
func (r *Round) Leader() (Candidate, bool) {
	if len(r.Candidates) == 0 {
		return Candidate{}, false
	}
	leader := r.Candidates[0]
	for _, c := range r.Candidates[1:] {
		if c.Power > leader.Power {
			leader = c
		}
	}
	return leader, true
}

func (r *Round) index(item []byte) int {
	for i, c := range r.Candidates {
		if bytes.Equal(c.Item, item) {
			return i
		}
	}
	return -1
}

// Rounds persists rounds by task ID.
type Rounds struct {
	db database.Database
}

func NewRounds(db database.Database) *Rounds {
	return &Rounds{db: db}
}

// Get returns database.ErrNotFound if no round exists for [taskID].
func (s *Rounds) Get(taskID ids.ID) (*Round, error) {
	b, err := s.db.Get(taskID[:])
	if err != nil {
		return nil, err
	}
	r := &Round{}
	version, err := Codec.Unmarshal(b, r)
	if err != nil {
		return nil, err
	}
	if version != CodecVersion {
		return nil, fmt.Errorf("%w: %d", ErrWrongVersion, version)
	}
	return r, nil
}

func (s *Rounds) Has(taskID ids.ID) (bool, error) {
	return s.db.Has(taskID[:])
}

func (s *Rounds) Put(taskID ids.ID, r *Round) error {
	b, err := Codec.Marshal(CodecVersion, r)
	if err != nil {
		return err
	}
	return s.db.Put(taskID[:], b)
}

func (s *Rounds) Delete(taskID ids.ID) error {
	return s.db.Delete(taskID[:])
}
