package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"tournament-league/config"
	"tournament-league/models"
)

func TestRewardTable_GetReward(t *testing.T) {
	table, err := NewRewardTable(config.Default().Tournament.RewardBuckets)
	require.NoError(t, err)

	tests := []struct {
		rank int
		want int64
	}{
		{0, 0},
		{1, 5000},
		{2, 3000},
		{3, 2000},
		{4, 1000},
		{10, 1000},
		{11, 0},
		{1000, 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, table.GetReward(tt.rank), "rank %d", tt.rank)
		assert.Equal(t, tt.want > 0, table.IsEligible(tt.rank), "rank %d", tt.rank)
	}

	for rank := 1; rank < 20; rank++ {
		assert.GreaterOrEqual(t, table.GetReward(rank), table.GetReward(rank+1))
	}
}

func TestNewRewardTable_RejectsBadBuckets(t *testing.T) {
	_, err := NewRewardTable([]config.RewardBucket{{Start: 1, End: 3, Amount: 100}, {Start: 3, End: 4, Amount: 50}})
	assert.Error(t, err)

	_, err = NewRewardTable([]config.RewardBucket{{Start: 1, End: 1, Amount: 100}, {Start: 2, End: 2, Amount: 500}})
	assert.Error(t, err)
}

func TestClaimReward_PaysOnce(t *testing.T) {
	f := newFixture(t)
	tr := f.daysAgo(t, 1)
	_, ms := f.seedGroup(t, tr, 100, 90, 90, 80)
	f.today(t)

	res, err := f.league.Settlement.ClaimReward(context.Background(), ms[0].PlayerID, tr.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(5000), res.Coins)
	require.Len(t, res.Claims, 1)
	assert.Equal(t, 1, res.Claims[0].Rank)
	assert.Equal(t, int64(5000), res.Claims[0].Amount)

	_, err = f.league.Settlement.ClaimReward(context.Background(), ms[0].PlayerID, tr.ID)
	assert.ErrorIs(t, err, ErrAlreadyClaimed)
	assert.Equal(t, int64(5000), f.reload(t, &models.Player{ID: ms[0].PlayerID}).Coins)

	var m models.Membership
	require.NoError(t, f.db.Where("id = ?", ms[0].ID).Take(&m).Error)
	assert.True(t, m.ClaimedReward)
	assert.NotNil(t, m.ClaimedAt)
	assert.Equal(t, int64(5000), m.RewardAmount)
}

func TestClaimReward_TiedPlayersShareRank(t *testing.T) {
	f := newFixture(t)
	tr := f.daysAgo(t, 1)
	_, ms := f.seedGroup(t, tr, 100, 90, 90, 80)

	for _, i := range []int{1, 2} {
		res, err := f.league.Settlement.ClaimReward(context.Background(), ms[i].PlayerID, tr.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(3000), res.Coins)
	}
	res, err := f.league.Settlement.ClaimReward(context.Background(), ms[3].PlayerID, tr.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Claims[0].Rank)
	assert.Equal(t, int64(2000), res.Coins)
}

func TestClaimReward_RankOutsideBuckets(t *testing.T) {
	f := newFixture(t)
	tr := f.daysAgo(t, 1)
	_, ms := f.seedGroup(t, tr, 110, 100, 90, 80, 70, 60, 50, 40, 30, 20, 10)

	_, err := f.league.Settlement.ClaimReward(context.Background(), ms[10].PlayerID, tr.ID)
	assert.ErrorIs(t, err, ErrNotEligible)

	var m models.Membership
	require.NoError(t, f.db.Where("id = ?", ms[10].ID).Take(&m).Error)
	assert.False(t, m.ClaimedReward)
	assert.Equal(t, int64(0), f.reload(t, &models.Player{ID: ms[10].PlayerID}).Coins)
}

func TestClaimReward_UnfinishedTournament(t *testing.T) {
	f := newFixture(t)
	tr := f.today(t)
	_, ms := f.seedGroup(t, tr, 100)

	_, err := f.league.Settlement.ClaimReward(context.Background(), ms[0].PlayerID, tr.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestClaimReward_ConcurrentClaimsPayOnce(t *testing.T) {
	f := newFixture(t)
	tr := f.daysAgo(t, 1)
	_, ms := f.seedGroup(t, tr, 100)

	const attempts = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
		claimed int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.league.Settlement.ClaimReward(context.Background(), ms[0].PlayerID, tr.ID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				success++
			case errors.Is(err, ErrAlreadyClaimed):
				claimed++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, success)
	assert.Equal(t, attempts-1, claimed)
	assert.Equal(t, int64(5000), f.reload(t, &models.Player{ID: ms[0].PlayerID}).Coins)
}

func TestClaimAll_SettlesEveryFinishedTournament(t *testing.T) {
	f := newFixture(t)
	older := f.daysAgo(t, 2)
	newer := f.daysAgo(t, 1)
	f.today(t)

	_, a := f.seedGroup(t, older, 10, 20)
	_, b := f.seedGroup(t, newer, 5)
	p := a[0].PlayerID // rank 2 in older
	// move b's membership to p so p has one membership per tournament
	require.NoError(t, f.db.Model(&models.Membership{}).Where("id = ?", b[0].ID).Update("player_id", p).Error)

	res, err := f.league.Settlement.ClaimAll(context.Background(), p, "")
	require.NoError(t, err)
	require.Len(t, res.Claims, 2)
	assert.Equal(t, older.ID, res.Claims[0].TournamentID)
	assert.Equal(t, newer.ID, res.Claims[1].TournamentID)
	assert.Equal(t, int64(3000+5000), res.Coins)

	_, err = f.league.Settlement.ClaimAll(context.Background(), p, "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestClaimAll_SkipsIneligibleMemberships(t *testing.T) {
	f := newFixture(t)
	older := f.daysAgo(t, 2)
	newer := f.daysAgo(t, 1)

	_, a := f.seedGroup(t, older, 110, 100, 90, 80, 70, 60, 50, 40, 30, 20, 10)
	_, b := f.seedGroup(t, newer, 5)
	p := a[10].PlayerID // rank 11, no reward
	require.NoError(t, f.db.Model(&models.Membership{}).Where("id = ?", b[0].ID).Update("player_id", p).Error)

	res, err := f.league.Settlement.ClaimAll(context.Background(), p, "")
	require.NoError(t, err)
	require.Len(t, res.Claims, 1)
	assert.Equal(t, newer.ID, res.Claims[0].TournamentID)
	assert.Equal(t, int64(5000), res.Coins)

	_, err = f.league.Settlement.ClaimAll(context.Background(), p, "")
	assert.ErrorIs(t, err, ErrNotEligible)
}

func TestClaimAll_OldestScope(t *testing.T) {
	f := newFixture(t, func(r *config.TournamentConfig) { r.ClaimScope = config.ClaimScopeOldest })
	older := f.daysAgo(t, 2)
	newer := f.daysAgo(t, 1)

	_, a := f.seedGroup(t, older, 10)
	_, b := f.seedGroup(t, newer, 10)
	p := a[0].PlayerID
	require.NoError(t, f.db.Model(&models.Membership{}).Where("id = ?", b[0].ID).Update("player_id", p).Error)

	res, err := f.league.Settlement.ClaimAll(context.Background(), p, "")
	require.NoError(t, err)
	require.Len(t, res.Claims, 1)
	assert.Equal(t, older.ID, res.Claims[0].TournamentID)

	res, err = f.league.Settlement.ClaimAll(context.Background(), p, "")
	require.NoError(t, err)
	require.Len(t, res.Claims, 1)
	assert.Equal(t, newer.ID, res.Claims[0].TournamentID)
	assert.Equal(t, int64(10000), res.Coins)
}

func TestClaimAll_WithTournamentID(t *testing.T) {
	f := newFixture(t)
	tr := f.daysAgo(t, 1)
	_, ms := f.seedGroup(t, tr, 1)

	_, err := f.league.Settlement.ClaimAll(context.Background(), ms[0].PlayerID, "unknown")
	assert.ErrorIs(t, err, ErrNotFound)

	res, err := f.league.Settlement.ClaimAll(context.Background(), ms[0].PlayerID, tr.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(5000), res.Coins)
}

func TestClaimAll_SettledByConcurrentRequest(t *testing.T) {
	f := newFixture(t)
	older := f.daysAgo(t, 2)
	newer := f.daysAgo(t, 1)

	_, a := f.seedGroup(t, older, 10)
	_, b := f.seedGroup(t, newer, 10)
	p := a[0].PlayerID
	require.NoError(t, f.db.Model(&models.Membership{}).Where("id = ?", b[0].ID).Update("player_id", p).Error)

	// another request settles both memberships right after the candidates are read
	armed := true
	require.NoError(t, f.db.Callback().Query().After("gorm:query").Register("test:settle_elsewhere", func(tx *gorm.DB) {
		if !armed || tx.Statement.Table != "memberships" {
			return
		}
		armed = false
		require.NoError(t, tx.Session(&gorm.Session{NewDB: true}).
			Exec("UPDATE memberships SET claimed_reward = ? WHERE player_id = ?", true, p).Error)
	}))

	_, err := f.league.Settlement.ClaimAll(context.Background(), p, "")
	assert.ErrorIs(t, err, ErrAlreadyClaimed)
	assert.Equal(t, int64(0), f.reload(t, &models.Player{ID: p}).Coins)
}
