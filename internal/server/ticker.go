package server

import (
	"context"
	"log/slog"
	"time"

	"github.com/stegverse/stegagents/internal/dispatch"
	"github.com/stegverse/stegagents/pkg/clog"
)

// Ticker triggers an invocation at every multiple of the dispatcher's tick
// window, for hosts without an external scheduler.
type Ticker struct {
	dispatcher *dispatch.Dispatcher
	interval   time.Duration
	now        func() time.Time
	after      func(time.Duration) <-chan time.Time
}

func NewTicker(d *dispatch.Dispatcher) *Ticker {
	return &Ticker{
		dispatcher: d,
		interval:   d.Window(),
		now:        time.Now,
		after:      time.After,
	}
}

// nextTick returns the first multiple of interval since the Unix epoch that
// is strictly after t.
func nextTick(t time.Time, interval time.Duration) time.Time {
	since := time.Duration(t.UnixNano() % int64(interval))
	if since < 0 {
		since += interval
	}
	return t.Add(interval - since)
}

// Run blocks until ctx is done.
func (t *Ticker) Run(ctx context.Context) error {
	for {
		next := nextTick(t.now(), t.interval)
		slog.DebugContext(ctx, "next tick scheduled", "at", next.UTC().Format(time.RFC3339))

		select {
		case <-ctx.Done():
			return nil
		case <-t.after(time.Until(next)):
		}

		report, err := t.dispatcher.Run(ctx, dispatch.Invocation{At: next})
		if err != nil {
			slog.ErrorContext(ctx, "scheduled invocation failed", clog.ErrorAttributeKey, err.Error())
			continue
		}
		slog.InfoContext(ctx, "scheduled invocation finished",
			"run_id", report.RunID,
			"written", report.Count(dispatch.StatusWritten),
			"failed", len(report.Failures()),
		)
	}
}
