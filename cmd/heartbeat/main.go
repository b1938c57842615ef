// Command heartbeat runs the market-aware job heartbeat.
package main

import (
	"fmt"
	"os"

	"github.com/aristath/heartbeat/internal/cli"
)

func main() {
	if err := cli.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
