package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// ClaimScope selects which finished memberships a claim without a tournament id settles.
type ClaimScope string

const (
	ClaimScopeAll    ClaimScope = "all"
	ClaimScopeOldest ClaimScope = "oldest"
)

// Config holds the service configuration.
type Config struct {
	Port         string           `yaml:"port"`
	DatabaseURL  string           `yaml:"database_url"`
	ServiceToken string           `yaml:"service_token"`
	AllowOrigins []string         `yaml:"allow_origins"`
	Tournament   TournamentConfig `yaml:"tournament"`
	Schedule     ScheduleConfig   `yaml:"schedule"`
	Sync         SyncConfig       `yaml:"sync"`
	R2           R2Config         `yaml:"r2"`
	LogLevel     string           `yaml:"log_level"`
	Development  bool             `yaml:"development"`
}

// TournamentConfig holds the rules of the daily tournament.
type TournamentConfig struct {
	EntryFee         int64          `yaml:"entry_fee"`
	MinLevel         int            `yaml:"min_level"`
	EntryCutoffHour  int            `yaml:"entry_cutoff_hour"` // UTC
	GroupSize        int            `yaml:"group_size"`
	LevelBucketSize  int            `yaml:"level_bucket_size"` // 0 disables bucketing
	LevelCoinReward  int64          `yaml:"level_coin_reward"`
	CreateDaysAhead  int            `yaml:"create_days_ahead"`
	ClaimScope       ClaimScope     `yaml:"claim_scope"`
	LeaderboardLimit int            `yaml:"leaderboard_limit"`
	RewardBuckets    []RewardBucket `yaml:"reward_buckets"`
	NamePrefix       string         `yaml:"name_prefix"`
	StartingCoins    int64          `yaml:"starting_coins"`
}

// RewardBucket maps an inclusive rank range to a coin reward.
type RewardBucket struct {
	Start  int   `yaml:"start" json:"start"`
	End    int   `yaml:"end" json:"end"`
	Amount int64 `yaml:"amount" json:"amount"`
}

// ScheduleConfig holds the cron expressions (UTC) of the scheduled jobs.
type ScheduleConfig struct {
	CreateTournament string `yaml:"create_tournament"`
	ArchiveStandings string `yaml:"archive_standings"`
}

// NextCreation returns the first tournament creation run strictly after t.
func (s ScheduleConfig) NextCreation(t time.Time) (time.Time, error) {
	sched, err := cron.ParseStandard(s.CreateTournament)
	if err != nil {
		return time.Time{}, err
	}
	return sched.Next(t.UTC()), nil
}

// SyncConfig points at the profile service change feed.
type SyncConfig struct {
	BaseURL      string `yaml:"base_url"`
	EndpointPath string `yaml:"endpoint_path"`
	ServiceToken string `yaml:"service_token"`
}

// R2Config holds the Cloudflare R2 bucket used for standings archives.
type R2Config struct {
	AccountID       string `yaml:"account_id"`
	AccessKeyID     string `yaml:"access_key_id"`
	AccessKeySecret string `yaml:"access_key_secret"`
	Bucket          string `yaml:"bucket"`
	CDNBaseURL      string `yaml:"cdn_base_url"`
}

// Enabled reports whether enough R2 settings are present to upload.
func (c R2Config) Enabled() bool {
	return c.AccountID != "" && c.Bucket != "" && c.AccessKeyID != ""
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		Port:         "5200",
		AllowOrigins: []string{"http://localhost:3000"},
		Tournament: TournamentConfig{
			EntryFee:         500,
			MinLevel:         10,
			EntryCutoffHour:  12,
			GroupSize:        35,
			LevelBucketSize:  0,
			LevelCoinReward:  100,
			CreateDaysAhead:  1,
			ClaimScope:       ClaimScopeAll,
			LeaderboardLimit: 1000,
			NamePrefix:       "Daily Cup",
			StartingCoins:    1000,
			RewardBuckets: []RewardBucket{
				{Start: 1, End: 1, Amount: 5000},
				{Start: 2, End: 2, Amount: 3000},
				{Start: 3, End: 3, Amount: 2000},
				{Start: 4, End: 10, Amount: 1000},
			},
		},
		Schedule: ScheduleConfig{
			CreateTournament: "0 12 * * *",
			ArchiveStandings: "30 0 * * *",
		},
		Sync: SyncConfig{
			EndpointPath: "/api/v1/public/profiles",
		},
		LogLevel: "info",
	}
}

// Load reads .env, then the YAML file named by TOURNAMENT_CONFIG (if any), then
// environment overrides, and validates the result.
func Load() (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	cfg := Default()
	if path := os.Getenv("TOURNAMENT_CONFIG"); path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return nil, err
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	if v := os.Getenv("PORT"); v != "" {
		cfg.Port = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("GAME_SERVICE_TOKEN"); v != "" {
		cfg.ServiceToken = v
		if cfg.Sync.ServiceToken == "" {
			cfg.Sync.ServiceToken = v
		}
	}
	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		var origins []string
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		cfg.AllowOrigins = origins
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("ENV"); v == "development" {
		cfg.Development = true
	}
	if v := os.Getenv("SYNC_SERVICE_URL"); v != "" {
		cfg.Sync.BaseURL = v
	}
	if v := os.Getenv("CLAIM_SCOPE"); v != "" {
		cfg.Tournament.ClaimScope = ClaimScope(strings.ToLower(v))
	}
	if v := os.Getenv("CREATE_TOURNAMENT_CRON"); v != "" {
		cfg.Schedule.CreateTournament = v
	}
	if v := os.Getenv("ARCHIVE_STANDINGS_CRON"); v != "" {
		cfg.Schedule.ArchiveStandings = v
	}

	ints := []struct {
		key string
		dst *int
	}{
		{"MIN_LEVEL", &cfg.Tournament.MinLevel},
		{"ENTRY_CUTOFF_HOUR", &cfg.Tournament.EntryCutoffHour},
		{"GROUP_SIZE", &cfg.Tournament.GroupSize},
		{"LEVEL_BUCKET_SIZE", &cfg.Tournament.LevelBucketSize},
		{"CREATE_DAYS_AHEAD", &cfg.Tournament.CreateDaysAhead},
		{"LEADERBOARD_LIMIT", &cfg.Tournament.LeaderboardLimit},
	}
	for _, e := range ints {
		if v := os.Getenv(e.key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s must be an integer: %w", e.key, err)
			}
			*e.dst = n
		}
	}
	int64s := []struct {
		key string
		dst *int64
	}{
		{"ENTRY_FEE", &cfg.Tournament.EntryFee},
		{"LEVEL_COIN_REWARD", &cfg.Tournament.LevelCoinReward},
		{"STARTING_COINS", &cfg.Tournament.StartingCoins},
	}
	for _, e := range int64s {
		if v := os.Getenv(e.key); v != "" {
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return fmt.Errorf("%s must be an integer: %w", e.key, err)
			}
			*e.dst = n
		}
	}

	if v := os.Getenv("CLOUDFLARE_ACCOUNT_ID"); v != "" {
		cfg.R2.AccountID = v
	}
	if v := os.Getenv("R2_ACCESS_KEY_ID"); v != "" {
		cfg.R2.AccessKeyID = v
	}
	if v := os.Getenv("R2_ACCESS_KEY_SECRET"); v != "" {
		cfg.R2.AccessKeySecret = v
	}
	if v := os.Getenv("R2_BUCKET_NAME"); v != "" {
		cfg.R2.Bucket = v
	}
	if v := os.Getenv("CDN_BASE_URL"); v != "" {
		cfg.R2.CDNBaseURL = v
	}
	return nil
}

// Validate checks the tournament rules and schedules.
func (c *Config) Validate() error {
	t := c.Tournament
	var errs []error
	if t.EntryFee < 0 {
		errs = append(errs, errors.New("entry_fee must not be negative"))
	}
	if t.EntryCutoffHour < 0 || t.EntryCutoffHour > 24 {
		errs = append(errs, errors.New("entry_cutoff_hour must be within 0..24"))
	}
	if t.GroupSize <= 0 {
		errs = append(errs, errors.New("group_size must be positive"))
	}
	if t.LevelBucketSize < 0 {
		errs = append(errs, errors.New("level_bucket_size must not be negative"))
	}
	if t.CreateDaysAhead < 0 {
		errs = append(errs, errors.New("create_days_ahead must not be negative"))
	}
	if t.LeaderboardLimit <= 0 {
		errs = append(errs, errors.New("leaderboard_limit must be positive"))
	}
	switch t.ClaimScope {
	case ClaimScopeAll, ClaimScopeOldest:
	default:
		errs = append(errs, fmt.Errorf("claim_scope %q must be %q or %q", t.ClaimScope, ClaimScopeAll, ClaimScopeOldest))
	}
	if err := ValidateRewardBuckets(t.RewardBuckets); err != nil {
		errs = append(errs, err)
	}
	for name, expr := range map[string]string{
		"create_tournament": c.Schedule.CreateTournament,
		"archive_standings": c.Schedule.ArchiveStandings,
	} {
		if _, err := cron.ParseStandard(expr); err != nil {
			errs = append(errs, fmt.Errorf("schedule %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// ValidateRewardBuckets requires ordered, non-overlapping ranges starting at
// rank 1 or later whose amounts never increase with rank.
func ValidateRewardBuckets(buckets []RewardBucket) error {
	prevEnd := 0
	var prevAmount int64 = -1
	for i, b := range buckets {
		if b.Start < 1 || b.End < b.Start {
			return fmt.Errorf("reward bucket %d: invalid range %d-%d", i, b.Start, b.End)
		}
		if b.Start <= prevEnd {
			return fmt.Errorf("reward bucket %d: range %d-%d overlaps previous bucket", i, b.Start, b.End)
		}
		if b.Amount <= 0 {
			return fmt.Errorf("reward bucket %d: amount must be positive", i)
		}
		if prevAmount >= 0 && b.Amount > prevAmount {
			return fmt.Errorf("reward bucket %d: amount %d exceeds better rank's %d", i, b.Amount, prevAmount)
		}
		prevEnd = b.End
		prevAmount = b.Amount
	}
	return nil
}
