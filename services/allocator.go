// services/allocator.go
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"tournament-league/config"
	"tournament-league/models"
)

// GroupPolicy decides which groups a player may be placed in.
type GroupPolicy interface {
	Bucket(p *models.Player) int
}

// FlatPolicy puts every player in the same bucket.
type FlatPolicy struct{}

func (FlatPolicy) Bucket(*models.Player) int { return 0 }

// LevelBucketPolicy segregates players by progression tier: level / Size.
type LevelBucketPolicy struct {
	Size int
}

func (p LevelBucketPolicy) Bucket(pl *models.Player) int {
	if p.Size <= 0 {
		return 0
	}
	return pl.Level / p.Size
}

// PolicyFor returns the group policy configured by rules.
func PolicyFor(rules config.TournamentConfig) GroupPolicy {
	if rules.LevelBucketSize > 0 {
		return LevelBucketPolicy{Size: rules.LevelBucketSize}
	}
	return FlatPolicy{}
}

// Entry is the outcome of an admitted tournament entry.
type Entry struct {
	Tournament *models.Tournament `json:"tournament"`
	Group      *models.Group      `json:"group"`
	Membership *models.Membership `json:"membership"`
}

// GroupAllocator admits players into tournaments and places them in groups.
type GroupAllocator struct {
	DB      *gorm.DB
	Clock   clockwork.Clock
	Rules   config.TournamentConfig
	Policy  GroupPolicy
	Log     *zap.Logger
	Metrics *Metrics
}

func NewGroupAllocator(db *gorm.DB, clock clockwork.Clock, rules config.TournamentConfig, log *zap.Logger, metrics *Metrics) *GroupAllocator {
	return &GroupAllocator{
		DB:      db,
		Clock:   clock,
		Rules:   rules,
		Policy:  PolicyFor(rules),
		Log:     log,
		Metrics: metrics,
	}
}

// Enter admits playerID into the tournament (the current one when tournamentID
// is empty). Admission checks, the fee debit, group selection and the membership
// insert are a single transaction. A refused entry is an *AdmissionError.
func (a *GroupAllocator) Enter(ctx context.Context, playerID, tournamentID string) (*Entry, error) {
	var entry *Entry
	err := a.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		entry, err = a.enter(tx, playerID, tournamentID)
		return err
	})
	if err != nil {
		var adm *AdmissionError
		if errors.As(err, &adm) {
			a.Metrics.entry(string(adm.Reason))
			a.Log.Debug("entry rejected", zap.String("player_id", playerID), zap.String("reason", string(adm.Reason)))
		} else {
			a.Metrics.entry("error")
		}
		return nil, err
	}

	a.Metrics.entry("admitted")
	a.Log.Info("player entered tournament",
		zap.String("player_id", playerID),
		zap.String("tournament_id", entry.Tournament.ID),
		zap.String("group_id", entry.Group.ID),
		zap.Int("member_count", entry.Group.MemberCount),
	)
	return entry, nil
}

func (a *GroupAllocator) enter(tx *gorm.DB, playerID, tournamentID string) (*Entry, error) {
	now := a.Clock.Now().UTC()

	// The player row lock serializes everything that touches this balance.
	var player models.Player
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", playerID).Take(&player).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("player %s: %w", playerID, ErrNotFound)
		}
		return nil, err
	}

	var (
		t   *models.Tournament
		err error
	)
	if tournamentID == "" {
		t, err = currentTournament(tx, a.Clock)
	} else {
		t, err = findTournament(tx, tournamentID)
	}
	if err != nil {
		return nil, err
	}

	if err := a.admit(tx, now, &player, t); err != nil {
		return nil, err
	}

	if err := debit(tx, player.ID, a.Rules.EntryFee); err != nil {
		return nil, err
	}
	player.Coins -= a.Rules.EntryFee

	group, err := a.openGroup(tx, t.ID, a.Policy.Bucket(&player))
	if err != nil {
		return nil, err
	}
	res := tx.Model(&models.Group{}).
		Where("id = ? AND member_count < capacity", group.ID).
		Update("member_count", gorm.Expr("member_count + 1"))
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, fmt.Errorf("group %s is full", group.ID)
	}
	group.MemberCount++

	m := &models.Membership{
		ID:           uuid.NewString(),
		PlayerID:     player.ID,
		GroupID:      group.ID,
		TournamentID: t.ID,
	}
	if err := tx.Create(m).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, reject(ReasonAlreadyEntered, "player already entered tournament %s", t.Date)
		}
		return nil, err
	}
	m.Player = &player

	return &Entry{Tournament: t, Group: group, Membership: m}, nil
}

// admit is the single admission gate. Order matters: a player who already
// entered has spent the fee, so already_entered wins over insufficient_coins.
func (a *GroupAllocator) admit(tx *gorm.DB, now time.Time, p *models.Player, t *models.Tournament) error {
	if t.Date != dateOf(now) {
		return reject(ReasonWrongDate, "tournament %s is not open today", t.Date)
	}
	if !now.Before(entryCutoff(now, a.Rules.EntryCutoffHour)) {
		return reject(ReasonCutoffPassed, "entries close at %02d:00 UTC", a.Rules.EntryCutoffHour)
	}

	var n int64
	if err := tx.Model(&models.Membership{}).
		Where("player_id = ? AND tournament_id = ?", p.ID, t.ID).
		Count(&n).Error; err != nil {
		return err
	}
	if n > 0 {
		return reject(ReasonAlreadyEntered, "player already entered tournament %s", t.Date)
	}

	if p.Coins < a.Rules.EntryFee {
		return reject(ReasonInsufficientCoins, "entry costs %d coins, player has %d", a.Rules.EntryFee, p.Coins)
	}
	if p.Level < a.Rules.MinLevel {
		return reject(ReasonInsufficientLevel, "level %d required, player is level %d", a.Rules.MinLevel, p.Level)
	}
	return nil
}

// openGroup returns the oldest group of the tournament's bucket with a free
// place, locked for update. Creation is serialized on the tournament row so
// concurrent entries do not each open a new group.
func (a *GroupAllocator) openGroup(tx *gorm.DB, tournamentID string, bucket int) (*models.Group, error) {
	g, err := findOpenGroup(tx, tournamentID, bucket)
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return g, err
	}

	var t models.Tournament
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Select("id").Where("id = ?", tournamentID).Take(&t).Error; err != nil {
		return nil, err
	}
	g, err = findOpenGroup(tx, tournamentID, bucket)
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return g, err
	}

	g = &models.Group{
		ID:           uuid.NewString(),
		TournamentID: tournamentID,
		Bucket:       bucket,
		Capacity:     a.Rules.GroupSize,
	}
	if err := tx.Create(g).Error; err != nil {
		return nil, fmt.Errorf("create group: %w", err)
	}
	a.Log.Info("group opened",
		zap.String("tournament_id", tournamentID), zap.String("group_id", g.ID), zap.Int("bucket", bucket))
	return g, nil
}

func findOpenGroup(tx *gorm.DB, tournamentID string, bucket int) (*models.Group, error) {
	var g models.Group
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("tournament_id = ? AND bucket = ? AND member_count < capacity", tournamentID, bucket).
		Order("created_at ASC, id ASC").
		Limit(1).
		Take(&g).Error
	if err != nil {
		return nil, err
	}
	return &g, nil
}

// debit takes amount from the player's balance, never below zero.
func debit(tx *gorm.DB, playerID string, amount int64) error {
	res := tx.Model(&models.Player{}).
		Where("id = ? AND coins >= ?", playerID, amount).
		Update("coins", gorm.Expr("coins - ?", amount))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("debit %d from player %s: %w", amount, playerID, ErrInsufficientFunds)
	}
	return nil
}

// credit adds amount to the player's balance.
func credit(tx *gorm.DB, playerID string, amount int64) error {
	res := tx.Model(&models.Player{}).
		Where("id = ?", playerID).
		Update("coins", gorm.Expr("coins + ?", amount))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("player %s: %w", playerID, ErrNotFound)
	}
	return nil
}
