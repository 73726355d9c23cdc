package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"tournament-league/models"
)

// startDailyJob schedules tournament creation at 12:00 on f's fake clock and
// waits until gocron has armed the first run.
func startDailyJob(t *testing.T, f *fixture, log *zap.Logger) {
	t.Helper()
	locker := NewSchedulerLocker(f.db, f.clock, "replica-a", 10*time.Minute, log)
	s, err := NewScheduler(f.clock, locker, log)
	require.NoError(t, err)
	require.NoError(t, s.ScheduleDailyTournament(f.league.Registry, "0 12 * * *"))
	s.Start()
	t.Cleanup(func() { _ = s.Shutdown() })

	noon := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	require.Eventually(t, func() bool {
		jobs := s.sched.Jobs()
		if len(jobs) != 1 {
			return false
		}
		next, err := jobs[0].NextRun()
		return err == nil && next.Equal(noon)
	}, 2*time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, f.clock.BlockUntilContext(ctx, 1))
}

func tournamentsOn(t *testing.T, f *fixture, date string) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(&models.Tournament{}).Where("date = ?", date).Count(&n).Error)
	return n
}

func TestScheduler_CreatesTomorrowsTournament(t *testing.T) {
	f := newFixture(t)
	core, logs := observer.New(zapcore.InfoLevel)
	startDailyJob(t, f, zap.New(core))

	assert.Zero(t, tournamentsOn(t, f, "2026-03-11"))
	f.clock.Advance(time.Hour + time.Second)

	require.Eventually(t, func() bool {
		return logs.FilterMessage("scheduled job done").Len() == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, int64(1), tournamentsOn(t, f, "2026-03-11"))
	assert.Zero(t, tournamentsOn(t, f, "2026-03-10"))
}

func TestScheduler_ExistingTournamentIsAWarning(t *testing.T) {
	f := newFixture(t)
	_, err := f.league.Registry.CreateForDate(context.Background(), testNow.AddDate(0, 0, 1))
	require.NoError(t, err)

	core, logs := observer.New(zapcore.InfoLevel)
	startDailyJob(t, f, zap.New(core))
	f.clock.Advance(time.Hour + time.Second)

	require.Eventually(t, func() bool {
		return logs.FilterMessage("scheduled job done").Len() == 1
	}, 2*time.Second, 10*time.Millisecond)
	warnings := logs.FilterMessage("daily tournament already exists").All()
	require.Len(t, warnings, 1)
	assert.Equal(t, zapcore.WarnLevel, warnings[0].Level)
	assert.Zero(t, logs.FilterMessage("scheduled job failed").Len())
	assert.Equal(t, int64(1), tournamentsOn(t, f, "2026-03-11"))
}
