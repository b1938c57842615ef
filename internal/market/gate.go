// Package market answers the single question the heartbeat needs for its
// cadence: is any market open right now.
package market

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/heartbeat/pkg/logger"
)

// Source is one provider of market state. Sources return an error when they
// cannot answer (disconnected, stale cache).
type Source interface {
	Name() string
	AnyMarketOpen(now time.Time) (bool, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc struct {
	Label string
	Fn    func(now time.Time) (bool, error)
}

// Name implements Source.
func (s SourceFunc) Name() string {
	return s.Label
}

// AnyMarketOpen implements Source.
func (s SourceFunc) AnyMarketOpen(now time.Time) (bool, error) {
	return s.Fn(now)
}

// Gate consults its sources in order and never fails: when none can answer it
// reports active, so the loop keeps the fast cadence.
type Gate struct {
	sources []Source
	log     zerolog.Logger

	mu         sync.Mutex
	outage     bool
	lastSource string
}

// NewGate creates a gate over sources, highest priority first.
func NewGate(log zerolog.Logger, sources ...Source) *Gate {
	return &Gate{
		sources: sources,
		log:     logger.Component(log, "market_gate"),
	}
}

// AnyMarketActive returns the first source's answer that succeeds, or true.
func (g *Gate) AnyMarketActive(now time.Time) bool {
	for _, source := range g.sources {
		open, err := source.AnyMarketOpen(now)
		if err != nil {
			g.log.Debug().Err(err).Str("source", source.Name()).Msg("Market source skipped")
			continue
		}
		g.recovered(source.Name())
		return open
	}

	g.unavailable()
	return true
}

// Source returns the name of the source that answered last, empty during an outage.
func (g *Gate) Source() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lastSource
}

func (g *Gate) recovered(name string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.outage {
		g.log.Info().Str("source", name).Msg("Market status available again")
		g.outage = false
	}
	g.lastSource = name
}

func (g *Gate) unavailable() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.outage {
		g.log.Warn().
			Int("sources", len(g.sources)).
			Msg("No market status source available, assuming markets are active")
		g.outage = true
	}
	g.lastSource = ""
}
