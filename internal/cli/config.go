package cli

import (
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/aristath/heartbeat/internal/config"
)

// overrides are the run flags that take precedence over the environment.
type overrides struct {
	fastCadence    time.Duration
	slowCadence    time.Duration
	lock           bool
	lockBackend    string
	startupTimeout time.Duration
	jobsFile       string
	port           int
}

func (o *overrides) register(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.DurationVar(&o.fastCadence, "fast-cadence", 0, "Tick cadence while any market is open")
	flags.DurationVar(&o.slowCadence, "slow-cadence", 0, "Tick cadence while all markets are closed")
	flags.BoolVar(&o.lock, "lock", true, "Enable the leader lease")
	flags.StringVar(&o.lockBackend, "lock-backend", "", "Lease backend (sqlite, mongo, memory)")
	flags.DurationVar(&o.startupTimeout, "startup-timeout", 0, "Give up if leadership is not won in time (0 waits forever)")
	flags.StringVar(&o.jobsFile, "jobs", "", "YAML file listing the jobs to register")
	flags.IntVar(&o.port, "port", 0, "HTTP status port")
}

// loadConfig reads the environment, then applies the flags the user set.
func loadConfig(cmd *cobra.Command, o *overrides) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if o == nil {
		return cfg, nil
	}

	flags := cmd.Flags()
	if flags.Changed("fast-cadence") {
		cfg.FastCadence = o.fastCadence
	}
	if flags.Changed("slow-cadence") {
		cfg.SlowCadence = o.slowCadence
	}
	if flags.Changed("lock") {
		cfg.Lock.Enabled = o.lock
	}
	if flags.Changed("lock-backend") {
		cfg.Lock.Backend = o.lockBackend
	}
	if flags.Changed("startup-timeout") {
		cfg.StartupTimeout = o.startupTimeout
	}
	if flags.Changed("jobs") {
		cfg.JobsFile = o.jobsFile
	}
	if flags.Changed("port") {
		cfg.Port = o.port
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
