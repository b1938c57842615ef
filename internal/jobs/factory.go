package jobs

import (
	"fmt"

	"github.com/aristath/heartbeat/internal/clients/marketstatus"
	"github.com/aristath/heartbeat/internal/config"
	"github.com/aristath/heartbeat/internal/market"
	"github.com/aristath/heartbeat/internal/work"
	"github.com/rs/zerolog"
)

// Job kinds accepted in the jobs file.
const (
	KindHTTP            = "http"
	KindMarketBroadcast = "market_broadcast"
)

// Deps are the collaborators jobs may need.
type Deps struct {
	Feed     *marketstatus.Client
	Calendar *market.Calendar
	Log      zerolog.Logger
}

// FromSpecs builds jobs from the jobs file entries, in file order.
func FromSpecs(specs []config.JobSpec, deps Deps) ([]work.Job, error) {
	jobs := make([]work.Job, 0, len(specs))
	for i, spec := range specs {
		switch spec.Kind {
		case KindHTTP:
			if spec.URL == "" {
				return nil, &config.ConfigurationError{
					Field: fmt.Sprintf("jobs[%d].url", i),
					Err:   fmt.Errorf("required for %s job %q", KindHTTP, spec.Name),
				}
			}
			jobs = append(jobs, NewHTTPTrigger(spec.Name, spec.URL, spec.Interval, spec.Timeout, deps.Log))
		case KindMarketBroadcast:
			jobs = append(jobs, NewMarketBroadcast(spec.Name, spec.Interval, deps.Feed, deps.Calendar))
		default:
			return nil, &config.ConfigurationError{
				Field: fmt.Sprintf("jobs[%d].kind", i),
				Err:   fmt.Errorf("unknown kind %q for job %q", spec.Kind, spec.Name),
			}
		}
	}
	return jobs, nil
}
