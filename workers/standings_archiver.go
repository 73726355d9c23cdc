package workers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"tournament-league/models"
	"tournament-league/services"
)

// ObjectStore stores JSON documents, e.g. utils.R2Client.
type ObjectStore interface {
	PutJSON(ctx context.Context, key string, v any) (string, error)
}

// ArchivedGroup is one group's final standings.
type ArchivedGroup struct {
	GroupID   string                    `json:"group_id"`
	Bucket    int                       `json:"bucket"`
	Capacity  int                       `json:"capacity"`
	Standings []models.RankedMembership `json:"standings"`
}

// ArchivedStandings is the document written for a finished tournament.
type ArchivedStandings struct {
	TournamentID string          `json:"tournament_id"`
	Date         string          `json:"date"`
	Name         string          `json:"name"`
	ArchivedAt   time.Time       `json:"archived_at"`
	Groups       []ArchivedGroup `json:"groups"`
}

// StandingsArchiver uploads the final standings of finished tournaments.
type StandingsArchiver struct {
	registry *services.TournamentRegistry
	ranks    *services.RankEngine
	store    ObjectStore
	metrics  *services.Metrics
	log      *zap.Logger
}

func NewStandingsArchiver(registry *services.TournamentRegistry, ranks *services.RankEngine, store ObjectStore, metrics *services.Metrics, log *zap.Logger) *StandingsArchiver {
	return &StandingsArchiver{registry: registry, ranks: ranks, store: store, metrics: metrics, log: log}
}

// Run archives every finished tournament not archived yet. One failing
// tournament does not stop the others.
func (a *StandingsArchiver) Run(ctx context.Context) error {
	tournaments, err := a.registry.ListFinishedUnarchived(ctx)
	if err != nil {
		return fmt.Errorf("list finished tournaments: %w", err)
	}

	var errs []error
	for i := range tournaments {
		t := &tournaments[i]
		url, err := a.archive(ctx, t)
		if err != nil {
			a.log.Error("failed to archive standings", zap.String("tournament_id", t.ID), zap.Error(err))
			errs = append(errs, err)
			continue
		}
		a.metrics.StandingsArchived()
		a.log.Info("standings archived", zap.String("date", t.Date), zap.String("url", url))
	}
	return errors.Join(errs...)
}

func (a *StandingsArchiver) archive(ctx context.Context, t *models.Tournament) (string, error) {
	groups, err := a.registry.ListGroups(ctx, t.ID)
	if err != nil {
		return "", err
	}

	doc := ArchivedStandings{
		TournamentID: t.ID,
		Date:         t.Date,
		Name:         t.Name,
		ArchivedAt:   a.registry.Clock.Now().UTC(),
		Groups:       make([]ArchivedGroup, 0, len(groups)),
	}
	for _, g := range groups {
		standings, err := a.ranks.RankedGroup(ctx, g.ID)
		if err != nil {
			return "", err
		}
		doc.Groups = append(doc.Groups, ArchivedGroup{
			GroupID:   g.ID,
			Bucket:    g.Bucket,
			Capacity:  g.Capacity,
			Standings: standings,
		})
	}

	url, err := a.store.PutJSON(ctx, StandingsKey(t), doc)
	if err != nil {
		return "", err
	}
	if err := a.registry.MarkArchived(ctx, t.ID); err != nil {
		return "", fmt.Errorf("mark %s archived: %w", t.ID, err)
	}
	return url, nil
}

// StandingsKey is the object key of a tournament's archived standings.
func StandingsKey(t *models.Tournament) string {
	return fmt.Sprintf("standings/%s/%s.json", t.Date, t.Slug)
}
