package models

import (
	"time"
)

// DateLayout is the storage format of Tournament.Date.
const DateLayout = "2006-01-02"

// Tournament is a single day's competitive period.
// A date has at most one tournament.
type Tournament struct {
	ID         string     `json:"id" gorm:"primaryKey"`
	Date       string     `json:"date" gorm:"type:varchar(10);uniqueIndex;not null"` // YYYY-MM-DD, UTC
	Name       string     `json:"name" gorm:"not null"`
	Slug       string     `json:"slug" gorm:"index"`
	ArchivedAt *time.Time `json:"archived_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt  time.Time  `json:"updated_at" gorm:"autoUpdateTime"`

	Groups []Group `json:"groups,omitempty" gorm:"foreignKey:TournamentID"`
}

// Group is a fixed-capacity cohort inside one tournament.
type Group struct {
	ID           string    `json:"id" gorm:"primaryKey"`
	TournamentID string    `json:"tournament_id" gorm:"not null;index:idx_groups_open,priority:1"`
	Bucket       int       `json:"bucket" gorm:"not null;default:0;index:idx_groups_open,priority:2"` // level bucket, 0 when bucketing is off
	Capacity     int       `json:"capacity" gorm:"not null"`
	MemberCount  int       `json:"member_count" gorm:"not null;default:0"`
	CreatedAt    time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt    time.Time `json:"updated_at" gorm:"autoUpdateTime"`

	Memberships []Membership `json:"memberships,omitempty" gorm:"foreignKey:GroupID"`
}

// HasEmptyPlace reports whether another player fits in the group.
func (g *Group) HasEmptyPlace() bool {
	return g.MemberCount < g.Capacity
}

// Membership is a player's participation record in one group.
// (player_id, tournament_id) is unique: one entry per tournament.
type Membership struct {
	ID            string     `json:"id" gorm:"primaryKey"`
	PlayerID      string     `json:"player_id" gorm:"not null;uniqueIndex:idx_membership_player_tournament,priority:1;uniqueIndex:idx_membership_player_group,priority:1"`
	GroupID       string     `json:"group_id" gorm:"not null;index;uniqueIndex:idx_membership_player_group,priority:2"`
	TournamentID  string     `json:"tournament_id" gorm:"not null;index;uniqueIndex:idx_membership_player_tournament,priority:2"`
	Score         int64      `json:"score" gorm:"not null;default:0;index"`
	ClaimedReward bool       `json:"claimed_reward" gorm:"not null;default:false"`
	ClaimedAt     *time.Time `json:"claimed_at,omitempty"`
	RewardAmount  int64      `json:"reward_amount" gorm:"not null;default:0"`
	EnteredAt     time.Time  `json:"entered_at" gorm:"autoCreateTime"`
	UpdatedAt     time.Time  `json:"updated_at" gorm:"autoUpdateTime"`

	Player *Player `json:"player,omitempty" gorm:"foreignKey:PlayerID"`
	Group  *Group  `json:"group,omitempty" gorm:"foreignKey:GroupID"`
}

// RankedMembership is a membership annotated with its rank inside its group.
type RankedMembership struct {
	MembershipID string `json:"membership_id"`
	PlayerID     string `json:"player_id"`
	Username     string `json:"username"`
	Country      string `json:"country"`
	GroupID      string `json:"group_id"`
	Score        int64  `json:"score"`
	Rank         int    `json:"rank"`
}
