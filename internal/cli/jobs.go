package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aristath/heartbeat/internal/config"
)

func newJobsCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List the jobs a run would register",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if file == "" {
				file = envOr("HEARTBEAT_JOBS_FILE", "")
			}
			if file == "" {
				return errors.New("no jobs file: pass --jobs or set HEARTBEAT_JOBS_FILE")
			}

			specs, err := config.LoadJobs(file)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(specs) == 0 {
				fmt.Fprintln(out, "No jobs found.")
				return nil
			}

			fmt.Fprintf(out, "%-30s  %-10s  %-18s  %s\n", "NAME", "INTERVAL", "KIND", "TARGET")
			fmt.Fprintf(out, "%-30s  %-10s  %-18s  %s\n", "----", "--------", "----", "------")
			for _, spec := range specs {
				fmt.Fprintf(out, "%-30s  %-10s  %-18s  %s\n", spec.Name, spec.Interval, spec.Kind, spec.URL)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "jobs", "", "YAML jobs file (or HEARTBEAT_JOBS_FILE env)")
	return cmd
}
