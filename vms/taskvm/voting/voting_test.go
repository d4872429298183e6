// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package voting

import (
	"errors"
	"testing"

	"github.com/luxfi/database"
	"github.com/luxfi/database/memdb"
	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	"github.com/stretchr/testify/require"
)

// voterFactory hands out distinct voter addresses for one test.
type voterFactory struct {
	next byte
}

func (f *voterFactory) New() ids.ShortID {
	f.next++
	return ids.ShortID{f.next}
}

func (f *voterFactory) Population(n int, power uint64) StaticPower {
	population := make(StaticPower, n)
	for range n {
		population[f.New()] = power
	}
	return population
}

type recordingConcluder struct {
	taskIDs   []ids.ID
	summaries []Summary
	err       error
}

func (c *recordingConcluder) VotingConcluded(taskID ids.ID, summary Summary, _ *Round) error {
	if c.err != nil {
		return c.err
	}
	c.taskIDs = append(c.taskIDs, taskID)
	c.summaries = append(c.summaries, summary)
	return nil
}

func newTestEngine(t *testing.T, power PowerSource, size SampleSize) (*Engine, *recordingConcluder) {
	t.Helper()
	concluder := &recordingConcluder{}
	e, err := NewEngine(memdb.New(), power, size, concluder, log.NewNoOpLogger())
	require.NoError(t, err)
	return e, concluder
}

func TestNewEngineRejectsInvalidSampleSize(t *testing.T) {
	_, err := NewEngine(memdb.New(), StaticPower{}, SampleSize{Num: 2, Den: 1}, &recordingConcluder{}, log.NewNoOpLogger())
	require.ErrorIs(t, err, ErrInvalidSampleSize)
}

func TestSampleAll(t *testing.T) {
	require := require.New(t)
	f := &voterFactory{}
	population := f.Population(5, 3)
	population[f.New()] = 0

	sample, err := NewSample(ids.GenerateTestID(), population, All())
	require.NoError(err)
	require.Len(sample.Voters, 5)
	require.Equal(uint64(15), sample.Power)
	require.Equal(uint64(15), sample.TotalPower)
}

func TestSampleIsDeterministicFraction(t *testing.T) {
	require := require.New(t)
	f := &voterFactory{}
	population := f.Population(20, 1)
	taskID := ids.GenerateTestID()
	size := SampleSize{Num: 1, Den: 4}

	first, err := NewSample(taskID, population, size)
	require.NoError(err)
	second, err := NewSample(taskID, population, size)
	require.NoError(err)
	require.Equal(first.Voters, second.Voters)
	require.Len(first.Voters, 5)
	require.Equal(uint64(20), first.TotalPower)
	for voter := range first.Voters {
		require.Contains(population, voter)
	}
}

func TestSampleZeroSelectsOneVoter(t *testing.T) {
	require := require.New(t)
	f := &voterFactory{}

	sample, err := NewSample(ids.GenerateTestID(), f.Population(4, 7), SampleSize{Num: 0, Den: 1})
	require.NoError(err)
	require.Len(sample.Voters, 1)
	require.Equal(uint64(7), sample.Power)

	empty, err := NewSample(ids.GenerateTestID(), StaticPower{}, All())
	require.NoError(err)
	require.Empty(empty.Voters)
}

func TestSampleOverflow(t *testing.T) {
	f := &voterFactory{}
	population := StaticPower{
		f.New(): ^uint64(0),
		f.New(): 1,
	}
	_, err := NewSample(ids.GenerateTestID(), population, All())
	require.Error(t, err)
}

func TestVotingPowerOf(t *testing.T) {
	require := require.New(t)
	f := &voterFactory{}
	voter := f.New()
	e, _ := newTestEngine(t, StaticPower{voter: 42}, All())

	power, err := e.VotingPowerOf(ids.GenerateTestID(), voter)
	require.NoError(err)
	require.Equal(uint64(42), power)

	_, err = e.VotingPowerOf(ids.GenerateTestID(), f.New())
	require.ErrorIs(err, ErrIneligibleVoter)
}

func TestQuorumRequiresFullParticipation(t *testing.T) {
	require := require.New(t)
	f := &voterFactory{}
	population := f.Population(3, 10)
	e, concluder := newTestEngine(t, population, All())
	taskID := ids.GenerateTestID()

	var summary *Summary
	i := 0
	for voter := range population {
		var err error
		summary, err = e.Vote(taskID, voter, []byte("result"))
		require.NoError(err)
		i++
		if i < len(population) {
			require.Nil(summary)
			require.Empty(concluder.summaries)
		}
	}
	require.NotNil(summary)
	require.Equal([]byte("result"), summary.Winner)
	require.Equal(uint64(30), summary.Committed)
	require.Equal(uint64(30), summary.EligiblePower)
	require.Equal(3, summary.Voters)
	require.Equal(1, summary.Candidates)
	require.Equal([]ids.ID{taskID}, concluder.taskIDs)
}

func TestQuorumWithZeroSampleSize(t *testing.T) {
	require := require.New(t)
	f := &voterFactory{}
	population := f.Population(10, 5)
	e, concluder := newTestEngine(t, population, SampleSize{Num: 0, Den: 1})
	taskID := ids.GenerateTestID()

	sample, err := e.Sample(taskID)
	require.NoError(err)
	require.Len(sample.Voters, 1)

	for voter := range sample.Voters {
		summary, err := e.Vote(taskID, voter, []byte{1})
		require.NoError(err)
		require.NotNil(summary)
	}
	require.Len(concluder.summaries, 1)
}

func TestQuorumCountsEveryCandidate(t *testing.T) {
	require := require.New(t)
	f := &voterFactory{}
	a, b, c, d := f.New(), f.New(), f.New(), f.New()
	population := StaticPower{a: 10, b: 10, c: 10, d: 10}
	e, _ := newTestEngine(t, population, SampleSize{Num: 3, Den: 4})
	taskID := ids.GenerateTestID()

	sample, err := e.Sample(taskID)
	require.NoError(err)
	require.Len(sample.Voters, 3)

	var voters []ids.ShortID
	for voter := range sample.Voters {
		voters = append(voters, voter)
	}

	summary, err := e.Vote(taskID, voters[0], []byte("x"))
	require.NoError(err)
	require.Nil(summary)

	round, err := e.Round(taskID)
	require.NoError(err)
	met, err := e.MeetsQuorum(taskID, round)
	require.NoError(err)
	require.False(met)

	summary, err = e.Vote(taskID, voters[1], []byte("y"))
	require.NoError(err)
	require.Nil(summary)

	// The third vote completes the sample even though nobody agrees.
	summary, err = e.Vote(taskID, voters[2], []byte("z"))
	require.NoError(err)
	require.NotNil(summary)
	require.Equal(uint64(30), summary.Committed)
	require.Equal(3, summary.Candidates)
	// Ties go to the first candidate.
	require.Equal([]byte("x"), summary.Winner)
}

func TestWinnerHasMostPower(t *testing.T) {
	require := require.New(t)
	f := &voterFactory{}
	small1, small2, big := f.New(), f.New(), f.New()
	population := StaticPower{small1: 1, small2: 1, big: 5}
	e, _ := newTestEngine(t, population, All())
	taskID := ids.GenerateTestID()

	_, err := e.Vote(taskID, small1, []byte("a"))
	require.NoError(err)
	_, err = e.Vote(taskID, small2, []byte("a"))
	require.NoError(err)
	summary, err := e.Vote(taskID, big, []byte("b"))
	require.NoError(err)
	require.NotNil(summary)
	require.Equal([]byte("b"), summary.Winner)
	require.Equal(uint64(5), summary.WinnerPower)
}

func TestDoubleVoteRejected(t *testing.T) {
	require := require.New(t)
	f := &voterFactory{}
	population := f.Population(3, 1)
	e, _ := newTestEngine(t, population, All())
	taskID := ids.GenerateTestID()

	var voter ids.ShortID
	for v := range population {
		voter = v
		break
	}
	_, err := e.Vote(taskID, voter, []byte("first"))
	require.NoError(err)

	before, err := e.Round(taskID)
	require.NoError(err)

	for _, item := range [][]byte{[]byte("first"), []byte("second")} {
		_, err := e.Vote(taskID, voter, item)
		require.ErrorIs(err, ErrDoubleVote)
	}

	after, err := e.Round(taskID)
	require.NoError(err)
	require.Equal(before, after)
}

func TestIneligibleVoteHasNoEffect(t *testing.T) {
	require := require.New(t)
	f := &voterFactory{}
	e, _ := newTestEngine(t, f.Population(2, 1), All())
	taskID := ids.GenerateTestID()

	_, err := e.Vote(taskID, f.New(), []byte("x"))
	require.ErrorIs(err, ErrIneligibleVoter)

	_, err = e.Round(taskID)
	require.ErrorIs(err, database.ErrNotFound)
}

func TestConcludedRoundRejectsVotes(t *testing.T) {
	require := require.New(t)
	f := &voterFactory{}
	first, second := f.New(), f.New()
	e, _ := newTestEngine(t, StaticPower{first: 1, second: 1}, SampleSize{Num: 1, Den: 2})
	taskID := ids.GenerateTestID()

	sample, err := e.Sample(taskID)
	require.NoError(err)
	require.Len(sample.Voters, 1)

	for voter := range sample.Voters {
		summary, err := e.Vote(taskID, voter, []byte("x"))
		require.NoError(err)
		require.NotNil(summary)
	}

	for _, voter := range []ids.ShortID{first, second} {
		_, err := e.Vote(taskID, voter, []byte("x"))
		require.ErrorIs(err, ErrRoundConcluded)
	}

	require.NoError(e.Clear(taskID))
	has, err := e.HasRound(taskID)
	require.NoError(err)
	require.False(has)
}

func TestConcluderFailureLeavesRoundOpen(t *testing.T) {
	require := require.New(t)
	f := &voterFactory{}
	voter := f.New()
	e, concluder := newTestEngine(t, StaticPower{voter: 1}, All())
	concluder.err = errors.New("store unavailable")
	taskID := ids.GenerateTestID()

	_, err := e.Vote(taskID, voter, []byte("x"))
	require.ErrorIs(err, concluder.err)

	_, err = e.Round(taskID)
	require.ErrorIs(err, database.ErrNotFound)
}
