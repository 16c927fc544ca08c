package scheduler

import (
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"
)

// Strict 5-field cron only (minute hour dom month dow). No descriptors,
// no optional seconds: schedule rows come from user input and anything
// fancier than standard cron is a config error.
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ParseCron validates and parses a schedule's cron spec. Field syntax is
// standard cron: ranges, lists, steps, `*`, and named months/weekdays
// (e.g. "0 7 * * MON-FRI").
func ParseCron(spec string) (cron.Schedule, error) {
	trimmed := strings.TrimSpace(spec)
	if trimmed == "" {
		return nil, fmt.Errorf("cron spec is empty")
	}
	if n := len(strings.Fields(trimmed)); n != 5 {
		return nil, fmt.Errorf("cron spec %q: expected 5 fields, got %d", trimmed, n)
	}
	sched, err := cronParser.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("cron spec %q: %w", trimmed, err)
	}
	return sched, nil
}
