// services/reward_service.go
package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"tournament-league/config"
	"tournament-league/models"
)

// RewardTable maps settled ranks to coin rewards.
type RewardTable struct {
	buckets []config.RewardBucket
}

// NewRewardTable validates buckets and builds a table from them.
func NewRewardTable(buckets []config.RewardBucket) (*RewardTable, error) {
	if err := config.ValidateRewardBuckets(buckets); err != nil {
		return nil, err
	}
	cp := make([]config.RewardBucket, len(buckets))
	copy(cp, buckets)
	return &RewardTable{buckets: cp}, nil
}

// GetReward returns the amount of the first bucket containing rank, or 0.
func (t *RewardTable) GetReward(rank int) int64 {
	for _, b := range t.buckets {
		if rank >= b.Start && rank <= b.End {
			return b.Amount
		}
	}
	return 0
}

func (t *RewardTable) IsEligible(rank int) bool {
	return t.GetReward(rank) > 0
}

// Buckets returns a copy of the table.
func (t *RewardTable) Buckets() []config.RewardBucket {
	cp := make([]config.RewardBucket, len(t.buckets))
	copy(cp, t.buckets)
	return cp
}

// SettledClaim is one membership paid out by settlement.
type SettledClaim struct {
	TournamentID string `json:"tournament_id"`
	MembershipID string `json:"membership_id"`
	Rank         int    `json:"rank"`
	Amount       int64  `json:"amount"`
}

// ClaimResult is the player's balance after settlement and what was paid.
type ClaimResult struct {
	Coins  int64          `json:"coins"`
	Claims []SettledClaim `json:"claims"`
}

// Settlement pays rewards for finished tournaments, once per membership.
type Settlement struct {
	DB      *gorm.DB
	Clock   clockwork.Clock
	Table   *RewardTable
	Scope   config.ClaimScope
	Log     *zap.Logger
	Metrics *Metrics
}

func NewSettlement(db *gorm.DB, clock clockwork.Clock, table *RewardTable, scope config.ClaimScope, log *zap.Logger, metrics *Metrics) *Settlement {
	return &Settlement{DB: db, Clock: clock, Table: table, Scope: scope, Log: log, Metrics: metrics}
}

// ClaimReward settles the player's membership in one finished tournament.
func (s *Settlement) ClaimReward(ctx context.Context, playerID, tournamentID string) (*ClaimResult, error) {
	var m models.Membership
	err := s.DB.WithContext(ctx).
		Joins("JOIN tournaments ON tournaments.id = memberships.tournament_id").
		Where("memberships.player_id = ? AND memberships.tournament_id = ? AND tournaments.date < ?",
			playerID, tournamentID, today(s.Clock)).
		Take(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("no finished tournament %s for player: %w", tournamentID, ErrNotFound)
		}
		return nil, err
	}

	claim, coins, err := s.claimMembership(ctx, m.ID)
	if err != nil {
		return nil, err
	}
	return &ClaimResult{Coins: coins, Claims: []SettledClaim{*claim}}, nil
}

// ClaimAll settles the player's unclaimed memberships of finished tournaments,
// or only tournamentID when it is set. Each membership is its own transaction:
// an ineligible one is skipped and does not undo the others. With the oldest
// scope only the oldest eligible membership is paid.
//
// When every candidate was settled by a concurrent request the error is
// ErrAlreadyClaimed. On a store failure the claims already committed are
// returned with the error.
func (s *Settlement) ClaimAll(ctx context.Context, playerID, tournamentID string) (*ClaimResult, error) {
	if tournamentID != "" {
		return s.ClaimReward(ctx, playerID, tournamentID)
	}

	var candidates []models.Membership
	err := s.DB.WithContext(ctx).
		Joins("JOIN tournaments ON tournaments.id = memberships.tournament_id").
		Where("memberships.player_id = ? AND memberships.claimed_reward = ? AND tournaments.date < ?",
			playerID, false, today(s.Clock)).
		Order("tournaments.date ASC, memberships.entered_at ASC").
		Find(&candidates).Error
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("no unclaimed rewards: %w", ErrNotFound)
	}

	result := &ClaimResult{Claims: []SettledClaim{}}
	lostRace := false
	for _, c := range candidates {
		claim, coins, err := s.claimMembership(ctx, c.ID)
		switch {
		case errors.Is(err, ErrAlreadyClaimed):
			lostRace = true
			continue
		case errors.Is(err, ErrNotEligible):
			continue
		case err != nil:
			return result, err
		}
		result.Coins = coins
		result.Claims = append(result.Claims, *claim)
		if s.Scope == config.ClaimScopeOldest {
			break
		}
	}
	if len(result.Claims) == 0 {
		if lostRace {
			return nil, fmt.Errorf("rewards settled by another request: %w", ErrAlreadyClaimed)
		}
		return nil, fmt.Errorf("no finished tournament rank earns a reward: %w", ErrNotEligible)
	}
	return result, nil
}

// claimMembership is the atomic unit of settlement: rank the membership now,
// flip claimed_reward once and credit the reward.
func (s *Settlement) claimMembership(ctx context.Context, membershipID string) (*SettledClaim, int64, error) {
	var (
		claim SettledClaim
		coins int64
	)
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var m models.Membership
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", membershipID).Take(&m).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("membership %s: %w", membershipID, ErrNotFound)
			}
			return err
		}
		if m.ClaimedReward {
			return fmt.Errorf("membership %s: %w", m.ID, ErrAlreadyClaimed)
		}

		rank, err := rankOf(tx, &m)
		if err != nil {
			return err
		}
		amount := s.Table.GetReward(rank)
		if amount <= 0 {
			return fmt.Errorf("rank %d: %w", rank, ErrNotEligible)
		}

		now := s.Clock.Now().UTC()
		res := tx.Model(&models.Membership{}).
			Where("id = ? AND claimed_reward = ?", m.ID, false).
			Updates(map[string]any{
				"claimed_reward": true,
				"claimed_at":     now,
				"reward_amount":  amount,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("membership %s: %w", m.ID, ErrAlreadyClaimed)
		}

		if err := credit(tx, m.PlayerID, amount); err != nil {
			return err
		}
		var p models.Player
		if err := tx.Select("coins").Where("id = ?", m.PlayerID).Take(&p).Error; err != nil {
			return err
		}

		coins = p.Coins
		claim = SettledClaim{TournamentID: m.TournamentID, MembershipID: m.ID, Rank: rank, Amount: amount}
		return nil
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrAlreadyClaimed):
			s.Metrics.claim("already_claimed", 0)
		case errors.Is(err, ErrNotEligible):
			s.Metrics.claim("not_eligible", 0)
		default:
			s.Metrics.claim("error", 0)
		}
		return nil, 0, err
	}

	s.Metrics.claim("claimed", claim.Amount)
	s.Log.Info("reward claimed",
		zap.String("membership_id", claim.MembershipID),
		zap.String("tournament_id", claim.TournamentID),
		zap.Int("rank", claim.Rank),
		zap.Int64("amount", claim.Amount),
	)
	return &claim, coins, nil
}
