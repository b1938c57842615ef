package jobs

import (
	"testing"
	"time"

	"github.com/aristath/heartbeat/internal/config"
	"github.com/aristath/heartbeat/internal/market"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromSpecs(t *testing.T) {
	specs, err := config.ParseJobs([]byte(`
jobs:
  - name: prices:sync
    interval: 1s
    kind: http
    url: http://localhost:8001/jobs/prices
    timeout: 2s
  - name: markets:broadcast
    interval: 10s
    kind: market_broadcast
`))
	require.NoError(t, err)

	jobs, err := FromSpecs(specs, Deps{Calendar: market.NewCalendar(market.DefaultExchanges()), Log: zerolog.Nop()})
	require.NoError(t, err)
	require.Len(t, jobs, 2)

	trigger, ok := jobs[0].(*HTTPTrigger)
	require.True(t, ok)
	assert.Equal(t, "prices:sync", trigger.Name())
	assert.Equal(t, time.Second, trigger.Interval())
	assert.Equal(t, 2*time.Second, trigger.client.Timeout)

	broadcast, ok := jobs[1].(*MarketBroadcast)
	require.True(t, ok)
	assert.Equal(t, 10*time.Second, broadcast.Interval())
}

func TestFromSpecs_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		spec  config.JobSpec
		field string
	}{
		{"http without url", config.JobSpec{Name: "a", Interval: time.Second, Kind: KindHTTP}, "jobs[0].url"},
		{"unknown kind", config.JobSpec{Name: "a", Interval: time.Second, Kind: "ftp"}, "jobs[0].kind"},
		{"missing kind", config.JobSpec{Name: "a", Interval: time.Second}, "jobs[0].kind"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromSpecs([]config.JobSpec{tt.spec}, Deps{Log: zerolog.Nop()})

			var cfgErr *config.ConfigurationError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, tt.field, cfgErr.Field)
		})
	}
}
