package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpdateScore_Accumulates(t *testing.T) {
	f := newFixture(t)
	tr := f.today(t)
	_, ms := f.seedGroup(t, tr, 0)

	prev := int64(0)
	for _, delta := range []int64{1, 1, 3, 10} {
		score, err := f.league.Ledger.UpdateScore(context.Background(), ms[0].ID, delta)
		require.NoError(t, err)
		assert.Equal(t, prev+delta, score)
		assert.Greater(t, score, prev)
		prev = score
	}
}

func TestUpdateScore_RejectsNonPositiveDelta(t *testing.T) {
	f := newFixture(t)
	tr := f.today(t)
	_, ms := f.seedGroup(t, tr, 7)

	for _, delta := range []int64{0, -5} {
		_, err := f.league.Ledger.UpdateScore(context.Background(), ms[0].ID, delta)
		assert.ErrorIs(t, err, ErrInvalidInput)
	}

	score, err := f.league.Ledger.UpdateScore(context.Background(), ms[0].ID, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(8), score)
}

func TestUpdateScore_UnknownMembership(t *testing.T) {
	f := newFixture(t)
	_, err := f.league.Ledger.UpdateScore(context.Background(), "missing", 1)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCompleteLevels_WithoutTournament(t *testing.T) {
	f := newFixture(t)
	p := f.player(t, 4, 50)

	progress, err := f.league.Ledger.CompleteLevels(context.Background(), p.ID, 3)
	require.NoError(t, err)
	assert.Equal(t, 7, progress.Level)
	assert.Equal(t, int64(350), progress.Coins)
	assert.Nil(t, progress.Score)
	assert.Empty(t, progress.TournamentID)
}

func TestCompleteLevels_UpdatesCurrentMembership(t *testing.T) {
	f := newFixture(t)
	tr := f.today(t)
	p := f.player(t, 10, 500)
	_, err := f.league.Allocator.Enter(context.Background(), p.ID, "")
	require.NoError(t, err)

	progress, err := f.league.Ledger.CompleteLevels(context.Background(), p.ID, 1)
	require.NoError(t, err)
	require.NotNil(t, progress.Score)
	assert.Equal(t, int64(1), *progress.Score)
	assert.Equal(t, tr.ID, progress.TournamentID)
	assert.Equal(t, 11, progress.Level)
	assert.Equal(t, int64(100), progress.Coins)

	progress, err = f.league.Ledger.CompleteLevels(context.Background(), p.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), *progress.Score)
}

func TestCompleteLevels_LeavesFinishedTournamentAlone(t *testing.T) {
	f := newFixture(t)
	old := f.daysAgo(t, 1)
	_, ms := f.seedGroup(t, old, 40)

	progress, err := f.league.Ledger.CompleteLevels(context.Background(), ms[0].PlayerID, 5)
	require.NoError(t, err)
	assert.Nil(t, progress.Score)

	rank, m, err := f.league.Ranks.RankIn(context.Background(), ms[0].PlayerID, old.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, rank)
	assert.Equal(t, int64(40), m.Score)
}

func TestCompleteLevels_Validation(t *testing.T) {
	f := newFixture(t)
	p := f.player(t, 1, 0)

	_, err := f.league.Ledger.CompleteLevels(context.Background(), p.ID, 0)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = f.league.Ledger.CompleteLevels(context.Background(), "missing", 1)
	assert.ErrorIs(t, err, ErrNotFound)
}
