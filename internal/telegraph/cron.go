package telegraph

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// parseSchedule reads a five-field cron expression or a descriptor such as
// "@daily", with the same parser config validation uses.
func parseSchedule(expr string) (cron.Schedule, error) {
	sched, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, fmt.Errorf("telegraph: digest: invalid schedule %q: %w", expr, err)
	}
	return sched, nil
}

// untilNext returns the wait from now to the next fire time, or 0 when the
// schedule never fires again.
func untilNext(sched cron.Schedule, now time.Time) time.Duration {
	next := sched.Next(now)
	if next.IsZero() || !next.After(now) {
		return 0
	}
	return next.Sub(now)
}
