package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"tournament-league/config"
	"tournament-league/models"
)

// TournamentRegistry creates and looks up daily tournaments.
type TournamentRegistry struct {
	DB      *gorm.DB
	Clock   clockwork.Clock
	Rules   config.TournamentConfig
	Log     *zap.Logger
	Metrics *Metrics
}

func NewTournamentRegistry(db *gorm.DB, clock clockwork.Clock, rules config.TournamentConfig, log *zap.Logger, metrics *Metrics) *TournamentRegistry {
	return &TournamentRegistry{DB: db, Clock: clock, Rules: rules, Log: log, Metrics: metrics}
}

// CreateDaily creates the tournament CreateDaysAhead days after the clock's date.
// The scheduler must not fire it twice for the same period; a race on the
// date is reported as ErrDuplicateTournament.
func (r *TournamentRegistry) CreateDaily(ctx context.Context) (*models.Tournament, error) {
	return r.CreateForDate(ctx, r.Clock.Now().UTC().AddDate(0, 0, r.Rules.CreateDaysAhead))
}

// CreateForDate creates the tournament of date's UTC calendar day.
func (r *TournamentRegistry) CreateForDate(ctx context.Context, date time.Time) (*models.Tournament, error) {
	day := dateOf(date)
	name := fmt.Sprintf("%s %s", r.Rules.NamePrefix, day)
	t := &models.Tournament{
		ID:   uuid.NewString(),
		Date: day,
		Name: name,
		Slug: slug.Make(name),
	}
	if err := r.DB.WithContext(ctx).Create(t).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, fmt.Errorf("tournament for %s: %w", day, ErrDuplicateTournament)
		}
		return nil, fmt.Errorf("create tournament for %s: %w", day, err)
	}
	r.Metrics.tournamentCreated()
	r.Log.Info("tournament created", zap.String("tournament_id", t.ID), zap.String("date", t.Date))
	return t, nil
}

// EnsureToday makes sure the current date has a tournament, e.g. on first boot
// before the scheduler ever ran.
func (r *TournamentRegistry) EnsureToday(ctx context.Context) (*models.Tournament, error) {
	t, err := r.CreateForDate(ctx, r.Clock.Now())
	if errors.Is(err, ErrDuplicateTournament) {
		return r.GetCurrent(ctx)
	}
	return t, err
}

// GetCurrent returns the tournament dated today (UTC) or ErrNotFound.
func (r *TournamentRegistry) GetCurrent(ctx context.Context) (*models.Tournament, error) {
	return currentTournament(r.DB.WithContext(ctx), r.Clock)
}

// Get returns a tournament by id.
func (r *TournamentRegistry) Get(ctx context.Context, id string) (*models.Tournament, error) {
	return findTournament(r.DB.WithContext(ctx), id)
}

// IsFinished reports whether t's date is in the past.
func (r *TournamentRegistry) IsFinished(t *models.Tournament) bool {
	return t.Date < today(r.Clock)
}

// ListFinishedUnarchived returns finished tournaments whose standings were not archived yet, oldest first.
func (r *TournamentRegistry) ListFinishedUnarchived(ctx context.Context) ([]models.Tournament, error) {
	var ts []models.Tournament
	err := r.DB.WithContext(ctx).
		Where("date < ? AND archived_at IS NULL", today(r.Clock)).
		Order("date ASC").
		Find(&ts).Error
	return ts, err
}

// ListGroups returns the groups of a tournament in creation order.
func (r *TournamentRegistry) ListGroups(ctx context.Context, tournamentID string) ([]models.Group, error) {
	var groups []models.Group
	err := r.DB.WithContext(ctx).
		Where("tournament_id = ?", tournamentID).
		Order("created_at ASC, id ASC").
		Find(&groups).Error
	return groups, err
}

// MarkArchived records when a tournament's standings were archived.
func (r *TournamentRegistry) MarkArchived(ctx context.Context, id string) error {
	now := r.Clock.Now().UTC()
	return r.DB.WithContext(ctx).Model(&models.Tournament{}).
		Where("id = ?", id).
		Update("archived_at", now).Error
}

func currentTournament(tx *gorm.DB, clock clockwork.Clock) (*models.Tournament, error) {
	var t models.Tournament
	if err := tx.Where("date = ?", today(clock)).Take(&t).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("no active tournament: %w", ErrNotFound)
		}
		return nil, err
	}
	return &t, nil
}

func findTournament(tx *gorm.DB, id string) (*models.Tournament, error) {
	var t models.Tournament
	if err := tx.Where("id = ?", id).Take(&t).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("tournament %s: %w", id, ErrNotFound)
		}
		return nil, err
	}
	return &t, nil
}
