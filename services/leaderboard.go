package services

import (
	"context"
	"fmt"

	"github.com/jonboulle/clockwork"
	"gorm.io/gorm"

	"tournament-league/models"
)

// Leaderboards lists standings of the current tournament.
type Leaderboards struct {
	DB    *gorm.DB
	Clock clockwork.Clock
	Limit int
}

func NewLeaderboards(db *gorm.DB, clock clockwork.Clock, limit int) *Leaderboards {
	return &Leaderboards{DB: db, Clock: clock, Limit: limit}
}

// Global ranks every membership of the current tournament across groups.
func (b *Leaderboards) Global(ctx context.Context, limit int) ([]models.RankedMembership, error) {
	return b.list(ctx, "", limit)
}

// Country is Global restricted to players of one country.
func (b *Leaderboards) Country(ctx context.Context, country string, limit int) ([]models.RankedMembership, error) {
	code, err := NormalizeCountry(country)
	if err != nil {
		return nil, err
	}
	if code == "" {
		return nil, fmt.Errorf("country is required: %w", ErrInvalidInput)
	}
	return b.list(ctx, code, limit)
}

// Group returns the ranked group the player belongs to in the current tournament.
func (b *Leaderboards) Group(ctx context.Context, playerID string) ([]models.RankedMembership, error) {
	tx := b.DB.WithContext(ctx)
	t, err := currentTournament(tx, b.Clock)
	if err != nil {
		return nil, err
	}
	m, err := findMembership(tx, playerID, t.ID)
	if err != nil {
		return nil, err
	}
	return rankedGroup(tx, m.GroupID)
}

func (b *Leaderboards) list(ctx context.Context, country string, limit int) ([]models.RankedMembership, error) {
	if limit <= 0 || (b.Limit > 0 && limit > b.Limit) {
		limit = b.Limit
	}
	tx := b.DB.WithContext(ctx)
	t, err := currentTournament(tx, b.Clock)
	if err != nil {
		return nil, err
	}

	q := standings(tx).Where("m.tournament_id = ?", t.ID)
	if country != "" {
		q = q.Where("p.country = ?", country)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []models.RankedMembership
	if err := q.Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("leaderboard: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("leaderboard is empty: %w", ErrNotFound)
	}
	DenseRanks(rows)
	return rows, nil
}
