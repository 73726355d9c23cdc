package services

import (
	"time"

	"github.com/jonboulle/clockwork"

	"tournament-league/models"
)

// dateOf formats t's UTC calendar date the way tournaments store it.
func dateOf(t time.Time) string {
	return t.UTC().Format(models.DateLayout)
}

func today(clock clockwork.Clock) string {
	return dateOf(clock.Now())
}

// entryCutoff is the instant on now's UTC date after which entries close.
func entryCutoff(now time.Time, hour int) time.Time {
	now = now.UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, time.UTC)
}
