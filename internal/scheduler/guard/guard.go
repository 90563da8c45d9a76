// Package guard holds the pure due-checks the scheduler runs before doing work.
package guard

import (
	"errors"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

var (
	ErrInvalidSchedule = errors.New("invalid_schedule")
	ErrNotDue          = errors.New("not_due")
)

// ParseSchedule parses a standard 5-field cron expression.
func ParseSchedule(expr string) (cron.Schedule, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, ErrInvalidSchedule
	}
	schedule, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, errors.Join(ErrInvalidSchedule, err)
	}
	return schedule, nil
}

// EnsureDue returns nil when the first activation of schedule after lastRun, evaluated
// in loc, is not after now. It also returns that activation.
func EnsureDue(schedule cron.Schedule, loc *time.Location, lastRun, now time.Time) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	next := schedule.Next(lastRun.In(loc))
	if next.IsZero() || next.After(now) {
		return next, ErrNotDue
	}
	return next, nil
}
