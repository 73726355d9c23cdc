package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the league's prometheus collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	entries            *prometheus.CounterVec
	claims             *prometheus.CounterVec
	rewardsPaid        prometheus.Counter
	scoreUpdates       prometheus.Counter
	tournamentsCreated prometheus.Counter
	archivedStandings  prometheus.Counter
}

// NewMetrics registers the collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		entries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "league",
			Name:      "tournament_entries_total",
			Help:      "Tournament entry attempts by result.",
		}, []string{"result"}),
		claims: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "league",
			Name:      "reward_claims_total",
			Help:      "Reward claim attempts by result.",
		}, []string{"result"}),
		rewardsPaid: f.NewCounter(prometheus.CounterOpts{
			Namespace: "league",
			Name:      "reward_coins_paid_total",
			Help:      "Coins credited by reward settlement.",
		}),
		scoreUpdates: f.NewCounter(prometheus.CounterOpts{
			Namespace: "league",
			Name:      "score_updates_total",
			Help:      "Membership score updates.",
		}),
		tournamentsCreated: f.NewCounter(prometheus.CounterOpts{
			Namespace: "league",
			Name:      "tournaments_created_total",
			Help:      "Daily tournaments created.",
		}),
		archivedStandings: f.NewCounter(prometheus.CounterOpts{
			Namespace: "league",
			Name:      "standings_archived_total",
			Help:      "Finished tournaments whose standings were archived.",
		}),
	}
}

func (m *Metrics) entry(result string) {
	if m != nil {
		m.entries.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) claim(result string, amount int64) {
	if m == nil {
		return
	}
	m.claims.WithLabelValues(result).Inc()
	if amount > 0 {
		m.rewardsPaid.Add(float64(amount))
	}
}

func (m *Metrics) scoreUpdated() {
	if m != nil {
		m.scoreUpdates.Inc()
	}
}

func (m *Metrics) tournamentCreated() {
	if m != nil {
		m.tournamentsCreated.Inc()
	}
}

// StandingsArchived counts one archived tournament.
func (m *Metrics) StandingsArchived() {
	if m != nil {
		m.archivedStandings.Inc()
	}
}
