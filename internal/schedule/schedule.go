// Package schedule decides whether an agent is due at an invocation time.
//
// An external trigger fires on a fixed cadence (the tick window). An agent is
// due at time at when its schedule has an activation inside (at-window, at].
// However many activations fall into the window, the agent runs once.
package schedule

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

const (
	Always = "always"
	Never  = "never"
)

// Schedule is a parsed schedule expression.
type Schedule interface {
	// Due reports whether an activation lies in (at-window, at].
	Due(at time.Time, window time.Duration) bool
	String() string
}

// Parse parses a schedule expression. The empty string is treated as always.
func Parse(expr string) (Schedule, error) {
	expr = strings.TrimSpace(expr)
	switch strings.ToLower(expr) {
	case "", Always:
		return always{}, nil
	case Never:
		return never{}, nil
	}

	if d, ok := strings.CutPrefix(expr, "@every "); ok {
		return parseEvery(d)
	}
	if d, ok := strings.CutPrefix(strings.ToLower(expr), "every "); ok {
		return parseEvery(d)
	}

	sched, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, fmt.Errorf("parse schedule %q: %w", expr, err)
	}
	return cronSchedule{expr: expr, sched: sched}, nil
}

type always struct{}

func (always) Due(time.Time, time.Duration) bool { return true }
func (always) String() string                    { return Always }

type never struct{}

func (never) Due(time.Time, time.Duration) bool { return false }
func (never) String() string                    { return Never }

// every fires at multiples of interval counted from the Unix epoch.
type every struct {
	interval time.Duration
}

func parseEvery(s string) (Schedule, error) {
	d, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("parse interval %q: %w", s, err)
	}
	if d < time.Second {
		return nil, fmt.Errorf("interval %s is shorter than one second", d)
	}
	return every{interval: d}, nil
}

func (e every) Due(at time.Time, window time.Duration) bool {
	if window <= 0 {
		return false
	}
	// Time elapsed since the latest activation at or before at.
	since := time.Duration(at.UnixNano() % int64(e.interval))
	if since < 0 {
		since += e.interval
	}
	return since < window
}

func (e every) String() string {
	return "@every " + e.interval.String()
}

type cronSchedule struct {
	expr  string
	sched cron.Schedule
}

func (c cronSchedule) Due(at time.Time, window time.Duration) bool {
	if window <= 0 {
		return false
	}
	// Next returns the first activation strictly after its argument, so
	// starting at at-window yields the earliest activation in the window.
	next := c.sched.Next(at.Add(-window))
	if next.IsZero() {
		return false
	}
	return !next.After(at)
}

func (c cronSchedule) String() string {
	return c.expr
}
