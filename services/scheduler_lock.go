package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"tournament-league/models"
)

// ErrLockHeld is returned when another replica holds a job's lease.
var ErrLockHeld = errors.New("scheduler lock held by another owner")

// SchedulerLocker is a gocron.Locker backed by the scheduler_locks table.
//
// A lease is kept until it expires, not released when the job returns, so a
// replica whose clock runs a little behind cannot fire the same run again.
type SchedulerLocker struct {
	DB    *gorm.DB
	Clock clockwork.Clock
	Owner string
	TTL   time.Duration
	Log   *zap.Logger
}

var _ gocron.Locker = (*SchedulerLocker)(nil)

func NewSchedulerLocker(db *gorm.DB, clock clockwork.Clock, owner string, ttl time.Duration, log *zap.Logger) *SchedulerLocker {
	return &SchedulerLocker{DB: db, Clock: clock, Owner: owner, TTL: ttl, Log: log}
}

// Lock takes the lease on key, replacing an expired one.
func (l *SchedulerLocker) Lock(ctx context.Context, key string) (gocron.Lock, error) {
	now := l.Clock.Now().UTC()
	lease := &models.SchedulerLock{Key: key, Owner: l.Owner, ExpiresAt: now.Add(l.TTL)}

	err := l.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("lock_key = ? AND expires_at <= ?", key, now).
			Delete(&models.SchedulerLock{}).Error; err != nil {
			return err
		}
		return tx.Create(lease).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			l.Log.Debug("job lease held elsewhere", zap.String("job", key))
			return nil, fmt.Errorf("%s: %w", key, ErrLockHeld)
		}
		return nil, fmt.Errorf("lock %s: %w", key, err)
	}
	return jobLease{}, nil
}

type jobLease struct{}

// Unlock is a no-op: the lease lapses at its expiry.
func (jobLease) Unlock(context.Context) error { return nil }
