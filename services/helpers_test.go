package services

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"tournament-league/config"
	"tournament-league/database"
	"tournament-league/models"
)

// 2026-03-10 11:00 UTC, one hour before the default entry cutoff.
var testNow = time.Date(2026, 3, 10, 11, 0, 0, 0, time.UTC)

type fixture struct {
	db     *gorm.DB
	clock  *clockwork.FakeClock
	league *League
	reg    *prometheus.Registry
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), database.Config(zap.NewNop()))
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// one connection keeps the in-memory database alive and serializes transactions
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, database.Migrate(db))
	return db
}

func newFixture(t *testing.T, mutate ...func(*config.TournamentConfig)) *fixture {
	t.Helper()
	rules := config.Default().Tournament
	for _, m := range mutate {
		m(&rules)
	}
	db := newTestDB(t)
	clock := clockwork.NewFakeClockAt(testNow)
	reg := prometheus.NewRegistry()
	league, err := NewLeague(db, clock, rules, zap.NewNop(), NewMetrics(reg))
	require.NoError(t, err)
	return &fixture{db: db, clock: clock, league: league, reg: reg}
}

func (f *fixture) player(t *testing.T, level int, coins int64) *models.Player {
	t.Helper()
	id := uuid.NewString()
	p := &models.Player{
		ID:             id,
		ExternalUserID: "ext-" + id,
		Username:       "player-" + id[:8],
		Country:        "DE",
		Coins:          coins,
		Level:          level,
	}
	require.NoError(t, f.db.Create(p).Error)
	return p
}

func (f *fixture) today(t *testing.T) *models.Tournament {
	t.Helper()
	tr, err := f.league.Registry.CreateForDate(context.Background(), f.clock.Now())
	require.NoError(t, err)
	return tr
}

func (f *fixture) daysAgo(t *testing.T, n int) *models.Tournament {
	t.Helper()
	tr, err := f.league.Registry.CreateForDate(context.Background(), f.clock.Now().AddDate(0, 0, -n))
	require.NoError(t, err)
	return tr
}

// seedGroup creates a group in tr holding one membership per score, in order.
func (f *fixture) seedGroup(t *testing.T, tr *models.Tournament, scores ...int64) (*models.Group, []models.Membership) {
	t.Helper()
	g := &models.Group{
		ID:           uuid.NewString(),
		TournamentID: tr.ID,
		Capacity:     f.league.Rules.GroupSize,
		MemberCount:  len(scores),
	}
	require.NoError(t, f.db.Create(g).Error)

	ms := make([]models.Membership, 0, len(scores))
	for i, s := range scores {
		p := f.player(t, 20, 0)
		m := models.Membership{
			ID:           uuid.NewString(),
			PlayerID:     p.ID,
			GroupID:      g.ID,
			TournamentID: tr.ID,
			Score:        s,
			EnteredAt:    testNow.Add(time.Duration(i) * time.Second),
		}
		require.NoError(t, f.db.Create(&m).Error)
		ms = append(ms, m)
	}
	return g, ms
}

func (f *fixture) reload(t *testing.T, p *models.Player) *models.Player {
	t.Helper()
	var out models.Player
	require.NoError(t, f.db.Where("id = ?", p.ID).Take(&out).Error)
	return &out
}
