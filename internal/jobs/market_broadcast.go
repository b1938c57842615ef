package jobs

import (
	"context"
	"time"

	"github.com/aristath/heartbeat/internal/clients/marketstatus"
	"github.com/aristath/heartbeat/internal/events"
	"github.com/aristath/heartbeat/internal/market"
	"github.com/aristath/heartbeat/internal/work"
)

// MarketBroadcast publishes the open-market snapshot on the tick's bus, for the
// SSE stream and any in-process listener.
type MarketBroadcast struct {
	name     string
	interval time.Duration
	feed     *marketstatus.Client
	calendar *market.Calendar
}

// NewMarketBroadcast creates the job. feed may be nil; the calendar answers
// whenever the feed cannot.
func NewMarketBroadcast(name string, interval time.Duration, feed *marketstatus.Client, calendar *market.Calendar) *MarketBroadcast {
	return &MarketBroadcast{
		name:     name,
		interval: interval,
		feed:     feed,
		calendar: calendar,
	}
}

// Name implements work.Job.
func (j *MarketBroadcast) Name() string {
	return j.name
}

// Interval implements work.Job.
func (j *MarketBroadcast) Interval() time.Duration {
	return j.interval
}

// Run implements work.Job.
func (j *MarketBroadcast) Run(ctx context.Context, tick *work.Tick) error {
	if tick.Broadcast == nil {
		return nil
	}

	source, open := j.snapshot(tick.Time)

	tick.Broadcast.Emit(events.MarketsStatusChanged, j.name, map[string]interface{}{
		"open_markets":  open,
		"open_count":    len(open),
		"market_active": tick.MarketActive,
		"source":        source,
		"tick":          tick.Number,
	})
	return nil
}

func (j *MarketBroadcast) snapshot(now time.Time) (string, []string) {
	if j.feed != nil {
		if _, err := j.feed.AnyMarketOpen(now); err == nil {
			return j.feed.Name(), j.feed.OpenCodes()
		}
	}
	if j.calendar != nil {
		return j.calendar.Name(), j.calendar.OpenMarkets(now)
	}
	return "none", []string{}
}
