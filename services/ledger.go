package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"tournament-league/models"
)

// Progress is a player's state after completing levels.
type Progress struct {
	Coins        int64  `json:"coins"`
	Level        int    `json:"current_level"`
	TournamentID string `json:"tournament_id,omitempty"`
	Score        *int64 `json:"score,omitempty"`
}

// ScoreLedger records level completions and tournament scores.
type ScoreLedger struct {
	DB              *gorm.DB
	Clock           clockwork.Clock
	LevelCoinReward int64
	Log             *zap.Logger
	Metrics         *Metrics
}

func NewScoreLedger(db *gorm.DB, clock clockwork.Clock, levelCoinReward int64, log *zap.Logger, metrics *Metrics) *ScoreLedger {
	return &ScoreLedger{DB: db, Clock: clock, LevelCoinReward: levelCoinReward, Log: log, Metrics: metrics}
}

// UpdateScore adds delta to the membership's score and returns the new score.
// Every call counts as new progress.
func (l *ScoreLedger) UpdateScore(ctx context.Context, membershipID string, delta int64) (int64, error) {
	var score int64
	err := l.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		score, err = l.addScore(tx, membershipID, delta)
		return err
	})
	return score, err
}

// CompleteLevels credits count completed levels to the player: level and coins
// go up, and the score of the player's current tournament membership, if any.
func (l *ScoreLedger) CompleteLevels(ctx context.Context, playerID string, count int) (*Progress, error) {
	if count < 1 {
		return nil, fmt.Errorf("completed level count %d: %w", count, ErrInvalidInput)
	}

	var progress Progress
	err := l.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Player{}).Where("id = ?", playerID).Updates(map[string]any{
			"level": gorm.Expr("level + ?", count),
			"coins": gorm.Expr("coins + ?", int64(count)*l.LevelCoinReward),
		})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("player %s: %w", playerID, ErrNotFound)
		}

		var p models.Player
		if err := tx.Select("coins", "level").Where("id = ?", playerID).Take(&p).Error; err != nil {
			return err
		}
		progress.Coins = p.Coins
		progress.Level = p.Level

		t, err := currentTournament(tx, l.Clock)
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		var m models.Membership
		err = tx.Select("id").Where("player_id = ? AND tournament_id = ?", playerID, t.ID).Take(&m).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		score, err := l.addScore(tx, m.ID, int64(count))
		if err != nil {
			return err
		}
		progress.TournamentID = t.ID
		progress.Score = &score
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.Log.Debug("levels completed",
		zap.String("player_id", playerID), zap.Int("count", count), zap.Int("level", progress.Level))
	return &progress, nil
}

func (l *ScoreLedger) addScore(tx *gorm.DB, membershipID string, delta int64) (int64, error) {
	if delta < 1 {
		return 0, fmt.Errorf("score delta %d: %w", delta, ErrInvalidInput)
	}
	res := tx.Model(&models.Membership{}).
		Where("id = ?", membershipID).
		Update("score", gorm.Expr("score + ?", delta))
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 0 {
		return 0, fmt.Errorf("membership %s: %w", membershipID, ErrNotFound)
	}

	var m models.Membership
	if err := tx.Select("score").Where("id = ?", membershipID).Take(&m).Error; err != nil {
		return 0, err
	}
	l.Metrics.scoreUpdated()
	return m.Score, nil
}
