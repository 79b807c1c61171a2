package numbering

import (
	"context"
	"fmt"
	"time"

	"bizcore.io/governance/internal/domain"
	"bizcore.io/governance/internal/repository"
)

// Counter issues the next sequence value for a rule. It must run inside the
// transaction that also records the resulting number.
type Counter struct {
	loc *time.Location
}

// NewCounter returns a Counter that evaluates reset periods in loc.
func NewCounter(loc *time.Location) *Counter {
	if loc == nil {
		loc = time.UTC
	}
	return &Counter{loc: loc}
}

// Next locks the rule's counter, applies the reset policy relative to now,
// increments and persists it. The reset decision is taken only after the lock
// is held, so two callers straddling a period boundary cannot both reset.
func (c *Counter) Next(ctx context.Context, q repository.NumberingQueries, rule domain.NumberingRule, now time.Time) (int64, error) {
	cur, err := q.LockSequenceCounter(ctx, rule.EntityType)
	if err != nil {
		return 0, fmt.Errorf("lock sequence counter %s: %w", rule.EntityType, err)
	}

	today := dateOf(now.In(c.loc))
	switch {
	case rule.Reset == domain.ResetNever:
		cur.LastReset = time.Time{}
	case cur.LastReset.IsZero():
		// First number under a resetting policy opens the current period.
		// A counter carried over from a non-resetting rule keeps its value.
		cur.LastReset = today
	case needsReset(rule.Reset, cur.LastReset, today):
		cur.Value = 0
		cur.LastReset = today
	}
	cur.Value++

	if err := q.SaveSequenceCounter(ctx, cur); err != nil {
		return 0, fmt.Errorf("save sequence counter %s: %w", rule.EntityType, err)
	}
	return cur.Value, nil
}

func needsReset(policy domain.ResetPolicy, lastReset, today time.Time) bool {
	switch policy {
	case domain.ResetYearly:
		return lastReset.Year() != today.Year()
	case domain.ResetMonthly:
		return lastReset.Year() != today.Year() || lastReset.Month() != today.Month()
	default:
		return false
	}
}

// dateOf truncates t to its calendar date, keeping t's location.
func dateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
