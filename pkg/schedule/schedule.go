package schedule

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Schedule returns the next activation strictly after from.
type Schedule interface {
	Next(from time.Time) time.Time
}

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

type everySchedule struct {
	interval time.Duration
}

// Every runs at fixed intervals.
func Every(d time.Duration) Schedule {
	return &everySchedule{interval: d}
}

func (s *everySchedule) Next(from time.Time) time.Time {
	return from.Add(s.interval)
}

type cronSchedule struct {
	schedule cron.Schedule
}

// Cron creates a schedule from a cron expression. It panics on a malformed
// expression; use Parse for untrusted input.
func Cron(expr string) Schedule {
	s, err := Parse(expr)
	if err != nil {
		panic("invalid cron expression: " + err.Error())
	}
	return s
}

func (s *cronSchedule) Next(from time.Time) time.Time {
	return s.schedule.Next(from)
}

// Parse reads a schedule from config. A Go duration ("10m") yields Every;
// anything else is parsed as a cron expression or descriptor ("@hourly",
// "@every 1h").
func Parse(spec string) (Schedule, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil, fmt.Errorf("empty schedule")
	}
	if d, err := time.ParseDuration(spec); err == nil {
		if d <= 0 {
			return nil, fmt.Errorf("schedule interval must be positive, got %s", d)
		}
		return Every(d), nil
	}
	s, err := parser.Parse(spec)
	if err != nil {
		return nil, err
	}
	return &cronSchedule{schedule: s}, nil
}
