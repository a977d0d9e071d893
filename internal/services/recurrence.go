package services

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cast"
)

// NextOccurrence computes when a recurring campaign should run again after from.
// The pattern is either {"cron": "<5 field spec>"} or {"frequency": "daily|weekly|monthly"}
// with an optional "interval" multiplier.
func NextOccurrence(pattern map[string]any, from time.Time) (time.Time, error) {
	if len(pattern) == 0 {
		return time.Time{}, fmt.Errorf("recurrence: pattern is empty")
	}

	if spec := strings.TrimSpace(cast.ToString(pattern["cron"])); spec != "" {
		schedule, err := cron.ParseStandard(spec)
		if err != nil {
			return time.Time{}, fmt.Errorf("recurrence: parse cron %q: %w", spec, err)
		}
		return schedule.Next(from), nil
	}

	interval := cast.ToInt(pattern["interval"])
	if interval <= 0 {
		interval = 1
	}

	switch strings.ToLower(strings.TrimSpace(cast.ToString(pattern["frequency"]))) {
	case "hourly":
		return from.Add(time.Duration(interval) * time.Hour), nil
	case "daily":
		return from.AddDate(0, 0, interval), nil
	case "weekly":
		return from.AddDate(0, 0, 7*interval), nil
	case "monthly":
		return from.AddDate(0, interval, 0), nil
	default:
		return time.Time{}, fmt.Errorf("recurrence: unsupported frequency %v", pattern["frequency"])
	}
}
