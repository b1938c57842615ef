package di

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/heartbeat/internal/config"
	"github.com/aristath/heartbeat/internal/jobs"
)

// RegisterJobs builds the jobs from the jobs file and registers them, in file
// order. Without a jobs file the registry stays empty.
func RegisterJobs(container *Container, log zerolog.Logger) error {
	path := container.Config.JobsFile
	if path == "" {
		log.Warn().Msg("No jobs file configured, the loop has nothing to run")
		return nil
	}

	specs, err := config.LoadJobs(path)
	if err != nil {
		return err
	}

	built, err := jobs.FromSpecs(specs, jobs.Deps{
		Feed:     container.MarketFeed,
		Calendar: container.Calendar,
		Log:      log,
	})
	if err != nil {
		return err
	}

	for _, job := range built {
		if err := container.Registry.Register(job); err != nil {
			return &config.ConfigurationError{Field: "jobs", Err: fmt.Errorf("registering %s: %w", job.Name(), err)}
		}
		log.Debug().Str("job", job.Name()).Dur("interval", job.Interval()).Msg("Job registered")
	}
	container.Jobs = built

	log.Info().Int("jobs", len(built)).Str("file", path).Msg("Jobs registered")
	return nil
}
