package services

import (
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"tournament-league/config"
)

// League wires the tournament services around one store and clock.
type League struct {
	Rules        config.TournamentConfig
	Registry     *TournamentRegistry
	Allocator    *GroupAllocator
	Ledger       *ScoreLedger
	Ranks        *RankEngine
	Rewards      *RewardTable
	Settlement   *Settlement
	Leaderboards *Leaderboards
	Players      *PlayerDirectory
	Metrics      *Metrics
}

func NewLeague(db *gorm.DB, clock clockwork.Clock, rules config.TournamentConfig, log *zap.Logger, metrics *Metrics) (*League, error) {
	table, err := NewRewardTable(rules.RewardBuckets)
	if err != nil {
		return nil, err
	}
	return &League{
		Rules:        rules,
		Registry:     NewTournamentRegistry(db, clock, rules, log.Named("registry"), metrics),
		Allocator:    NewGroupAllocator(db, clock, rules, log.Named("allocator"), metrics),
		Ledger:       NewScoreLedger(db, clock, rules.LevelCoinReward, log.Named("ledger"), metrics),
		Ranks:        NewRankEngine(db, clock),
		Rewards:      table,
		Settlement:   NewSettlement(db, clock, table, rules.ClaimScope, log.Named("settlement"), metrics),
		Leaderboards: NewLeaderboards(db, clock, rules.LeaderboardLimit),
		Players:      NewPlayerDirectory(db, log.Named("players"), rules.StartingCoins),
		Metrics:      metrics,
	}, nil
}
