package cli

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"

	"github.com/aristath/heartbeat/internal/di"
	"github.com/aristath/heartbeat/internal/lease"
)

var errLockDisabled = errors.New("leader lock is disabled (HEARTBEAT_LOCK_ENABLED=false)")

func newLeaseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lease",
		Short: "Inspect or clear the leader lease",
	}
	cmd.AddCommand(newLeaseShowCmd(), newLeaseReleaseCmd())
	return cmd
}

// openLeaseStore opens only the configured lease backend.
func openLeaseStore(cmd *cobra.Command) (*di.Container, error) {
	cfg, err := loadConfig(cmd, nil)
	if err != nil {
		return nil, err
	}
	if !cfg.Lock.Enabled {
		return nil, errLockDisabled
	}
	container := &di.Container{Config: cfg, Clock: clockwork.NewRealClock()}
	if err := di.InitializeLeaseStore(container, log); err != nil {
		return nil, err
	}
	return container, nil
}

func newLeaseShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the current leader and the persisted job clocks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			container, err := openLeaseStore(cmd)
			if err != nil {
				return err
			}
			defer container.Close()

			cfg := container.Config
			lock := lease.NewLock(container.LeaseStore, cfg.Lock.Key, "", cfg.Lock.TTL)
			out := cmd.OutOrStdout()

			record, err := lock.Current(cmd.Context())
			if errors.Is(err, lease.ErrNotFound) {
				record, err = nil, nil
			}
			if err != nil {
				return fmt.Errorf("read lease: %w", err)
			}
			if record == nil {
				fmt.Fprintf(out, "No leader holds %s.\n", cfg.Lock.Key)
			} else {
				now := container.Clock.Now()
				fmt.Fprintf(out, "Key:      %s\n", record.Key)
				fmt.Fprintf(out, "Holder:   %s\n", record.HolderID)
				fmt.Fprintf(out, "Acquired: %s\n", record.AcquiredAt.Format(time.RFC3339))
				fmt.Fprintf(out, "Expires:  %s (%s)\n", record.ExpiresAt.Format(time.RFC3339), remaining(record, now))
			}

			lastRuns, err := lock.LoadLastRuns(cmd.Context())
			if err != nil {
				return fmt.Errorf("read job clocks: %w", err)
			}
			if len(lastRuns) == 0 {
				return nil
			}

			names := make([]string, 0, len(lastRuns))
			for name := range lastRuns {
				names = append(names, name)
			}
			sort.Strings(names)

			fmt.Fprintln(out)
			fmt.Fprintf(out, "%-30s  %s\n", "JOB", "LAST RUN")
			fmt.Fprintf(out, "%-30s  %s\n", "---", "--------")
			for _, name := range names {
				fmt.Fprintf(out, "%-30s  %s\n", name, lastRuns[name].Format(time.RFC3339))
			}
			return nil
		},
	}
}

func remaining(record *lease.Record, now time.Time) string {
	if record.Expired(now) {
		return "expired"
	}
	return record.ExpiresAt.Sub(now).Round(time.Second).String() + " left"
}

func newLeaseReleaseCmd() *cobra.Command {
	var holder string
	cmd := &cobra.Command{
		Use:   "release",
		Short: "Release the lease on behalf of a holder that will not come back",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			container, err := openLeaseStore(cmd)
			if err != nil {
				return err
			}
			defer container.Close()

			key := container.Config.Lock.Key
			if err := container.LeaseStore.Release(cmd.Context(), key, holder); err != nil {
				return fmt.Errorf("release lease: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Released %s for %s.\n", key, holder)
			return nil
		},
	}
	cmd.Flags().StringVar(&holder, "holder", "", "Holder id that owns the lease")
	_ = cmd.MarkFlagRequired("holder")
	return cmd
}
