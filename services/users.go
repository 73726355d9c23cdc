package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/gosimple/unidecode"
	"go.uber.org/zap"
	"golang.org/x/text/language"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"tournament-league/models"
)

// PlayerDirectory owns the local player records: balance, level and mirrored identity.
type PlayerDirectory struct {
	DB            *gorm.DB
	Log           *zap.Logger
	StartingCoins int64
}

func NewPlayerDirectory(db *gorm.DB, log *zap.Logger, startingCoins int64) *PlayerDirectory {
	return &PlayerDirectory{DB: db, Log: log, StartingCoins: startingCoins}
}

// RegisterInput is the data needed to create a player.
type RegisterInput struct {
	ExternalUserID string `json:"external_user_id"`
	Username       string `json:"username"`
	Country        string `json:"country"`
}

// Register creates a player with the starting balance at level 1.
func (d *PlayerDirectory) Register(ctx context.Context, in RegisterInput) (*models.Player, error) {
	username := strings.TrimSpace(in.Username)
	if username == "" || in.ExternalUserID == "" {
		return nil, fmt.Errorf("username and external_user_id are required: %w", ErrInvalidInput)
	}
	country, err := NormalizeCountry(in.Country)
	if err != nil {
		return nil, err
	}

	p := &models.Player{
		ID:             uuid.NewString(),
		ExternalUserID: in.ExternalUserID,
		Username:       username,
		SearchName:     searchKey(username),
		Country:        country,
		Coins:          d.StartingCoins,
		Level:          1,
	}
	if err := d.DB.WithContext(ctx).Create(p).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, fmt.Errorf("username %q: %w", username, ErrPlayerExists)
		}
		return nil, err
	}
	d.Log.Info("player registered", zap.String("player_id", p.ID), zap.String("username", p.Username))
	return p, nil
}

// Get returns a player by id.
func (d *PlayerDirectory) Get(ctx context.Context, id string) (*models.Player, error) {
	return findPlayer(d.DB.WithContext(ctx), "id = ?", id)
}

// GetByExternalID returns the player mirrored from the given profile id.
func (d *PlayerDirectory) GetByExternalID(ctx context.Context, externalID string) (*models.Player, error) {
	return findPlayer(d.DB.WithContext(ctx), "external_user_id = ?", externalID)
}

// Delete soft-deletes a player. Memberships stay for settlement history.
func (d *PlayerDirectory) Delete(ctx context.Context, id string) error {
	res := d.DB.WithContext(ctx).Delete(&models.Player{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("player %s: %w", id, ErrNotFound)
	}
	return nil
}

// Search finds players whose username contains q, ignoring case and accents.
func (d *PlayerDirectory) Search(ctx context.Context, q string, limit int) ([]models.Player, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	db := d.DB.WithContext(ctx).Model(&models.Player{}).Order("search_name ASC, username ASC").Limit(limit)
	if key := searchKey(q); key != "" {
		db = db.Where("search_name LIKE ?", "%"+key+"%")
	}
	var players []models.Player
	if err := db.Find(&players).Error; err != nil {
		return nil, fmt.Errorf("search players: %w", err)
	}
	return players, nil
}

// UpsertIdentities applies profile changes: username and country only, keyed by
// external id. New players start with the starting balance.
func (d *PlayerDirectory) UpsertIdentities(ctx context.Context, profiles []models.RemoteProfile) (upserted, failed int) {
	for _, rp := range profiles {
		country, err := NormalizeCountry(rp.Country)
		if err != nil {
			country = ""
		}
		p := models.Player{
			ID:             uuid.NewString(),
			ExternalUserID: rp.ExternalID,
			Username:       rp.Username,
			SearchName:     searchKey(rp.Username),
			Country:        country,
			Coins:          d.StartingCoins,
			Level:          1,
		}
		err = d.DB.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "external_user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"username", "search_name", "country", "updated_at"}),
		}).Create(&p).Error
		if err != nil {
			failed++
			d.Log.Warn("failed to upsert player identity",
				zap.String("external_id", rp.ExternalID), zap.String("username", rp.Username), zap.Error(err))
			continue
		}
		upserted++
	}
	return upserted, failed
}

// NormalizeCountry validates an ISO 3166-1 alpha-2 code and returns it upper-cased.
// An empty code is allowed.
func NormalizeCountry(code string) (string, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return "", nil
	}
	if len(code) != 2 {
		return "", fmt.Errorf("country %q must be a two-letter code: %w", code, ErrInvalidInput)
	}
	region, err := language.ParseRegion(code)
	if err != nil || !region.IsCountry() {
		return "", fmt.Errorf("unknown country %q: %w", code, ErrInvalidInput)
	}
	return region.String(), nil
}

func searchKey(s string) string {
	return strings.ToLower(strings.TrimSpace(unidecode.Unidecode(s)))
}

func findPlayer(tx *gorm.DB, query string, args ...any) (*models.Player, error) {
	var p models.Player
	if err := tx.Where(query, args...).Take(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("player: %w", ErrNotFound)
		}
		return nil, err
	}
	return &p, nil
}
