package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/jonboulle/clockwork"
	"gorm.io/gorm"

	"tournament-league/models"
)

// RankEngine computes standings inside a group.
//
// Ranking is distinct-value (dense): rank = 1 + number of distinct scores in the
// group strictly greater than the membership's score. Scores [100, 90, 90, 80]
// rank 1, 2, 2, 3.
type RankEngine struct {
	DB    *gorm.DB
	Clock clockwork.Clock
}

func NewRankEngine(db *gorm.DB, clock clockwork.Clock) *RankEngine {
	return &RankEngine{DB: db, Clock: clock}
}

// RankOf returns the membership's 1-based rank within its group. The score is
// read from the store, not taken from m.
func (e *RankEngine) RankOf(ctx context.Context, m *models.Membership) (int, error) {
	tx := e.DB.WithContext(ctx)
	var fresh models.Membership
	if err := tx.Select("id", "group_id", "score").Where("id = ?", m.ID).Take(&fresh).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, fmt.Errorf("membership %s: %w", m.ID, ErrNotFound)
		}
		return 0, err
	}
	return rankOf(tx, &fresh)
}

// RankedGroup returns every membership of the group with its rank, best first.
func (e *RankEngine) RankedGroup(ctx context.Context, groupID string) ([]models.RankedMembership, error) {
	return rankedGroup(e.DB.WithContext(ctx), groupID)
}

// RankIn returns the player's rank in the tournament, the current one when
// tournamentID is empty. ErrNotFound means the player is not in an active group.
func (e *RankEngine) RankIn(ctx context.Context, playerID, tournamentID string) (int, *models.Membership, error) {
	tx := e.DB.WithContext(ctx)
	if tournamentID == "" {
		t, err := currentTournament(tx, e.Clock)
		if err != nil {
			return 0, nil, err
		}
		tournamentID = t.ID
	}
	m, err := findMembership(tx, playerID, tournamentID)
	if err != nil {
		return 0, nil, err
	}
	rank, err := rankOf(tx, m)
	if err != nil {
		return 0, nil, err
	}
	return rank, m, nil
}

// CurrentRank is RankIn for the current tournament.
func (e *RankEngine) CurrentRank(ctx context.Context, playerID string) (int, error) {
	rank, _, err := e.RankIn(ctx, playerID, "")
	return rank, err
}

// DenseRanks assigns distinct-value ranks to rows sorted by score descending.
func DenseRanks(rows []models.RankedMembership) {
	rank := 0
	for i := range rows {
		if i == 0 || rows[i].Score < rows[i-1].Score {
			rank++
		}
		rows[i].Rank = rank
	}
}

func rankOf(tx *gorm.DB, m *models.Membership) (int, error) {
	var higher int64
	err := tx.Model(&models.Membership{}).
		Where("group_id = ? AND score > ?", m.GroupID, m.Score).
		Distinct("score").
		Count(&higher).Error
	if err != nil {
		return 0, fmt.Errorf("rank membership %s: %w", m.ID, err)
	}
	return int(higher) + 1, nil
}

func rankedGroup(tx *gorm.DB, groupID string) ([]models.RankedMembership, error) {
	var rows []models.RankedMembership
	if err := standings(tx).Where("m.group_id = ?", groupID).Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("ranked group %s: %w", groupID, err)
	}
	DenseRanks(rows)
	return rows, nil
}

// standings selects memberships joined with their player, best score first.
// Equal scores keep entry order.
func standings(tx *gorm.DB) *gorm.DB {
	return tx.Table("memberships AS m").
		Select("m.id AS membership_id, m.player_id, p.username, p.country, m.group_id, m.score").
		Joins("LEFT JOIN players AS p ON p.id = m.player_id").
		Order("m.score DESC, m.entered_at ASC, m.id ASC")
}

func findMembership(tx *gorm.DB, playerID, tournamentID string) (*models.Membership, error) {
	var m models.Membership
	err := tx.Where("player_id = ? AND tournament_id = ?", playerID, tournamentID).Take(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("not in an active group: %w", ErrNotFound)
		}
		return nil, err
	}
	return &m, nil
}
