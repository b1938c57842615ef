package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/aristath/heartbeat/internal/di"
	"github.com/aristath/heartbeat/internal/heartbeat"
	"github.com/aristath/heartbeat/internal/lease"
	"github.com/aristath/heartbeat/internal/server"
)

const shutdownTimeout = 10 * time.Second

func newRunCmd() *cobra.Command {
	var o overrides
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the heartbeat (or the legacy supervisors in LEGACY mode)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, &o)
			if err != nil {
				return err
			}

			holderID := lease.NewHolderID()
			container, err := di.Wire(cfg, holderID, nil, log)
			if err != nil {
				return err
			}
			defer container.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return serve(ctx, container)
		},
	}
	o.register(cmd)
	return cmd
}

// serve runs every long-lived component of the container until ctx is done
// or one of them fails.
func serve(ctx context.Context, container *di.Container) error {
	legacyMode := !container.Arbiter.HeartbeatActive()

	srvCfg := server.Config{
		Log:      log,
		Port:     container.Config.Port,
		Mode:     container.Arbiter,
		Lock:     container.Lock,
		Registry: container.Registry,
		Gate:     container.Gate,
		Bus:      container.EventBus,
	}
	if !legacyMode {
		srvCfg.Loop = container.Loop
	}
	if container.MarketFeed != nil {
		srvCfg.Feed = container.MarketFeed
	}
	if container.LeaseDB != nil {
		srvCfg.LeaseDB = container.LeaseDB
	}
	srv := server.New(srvCfg)

	if legacyMode {
		if _, err := container.Supervisors.StartAll(container.Jobs); err != nil {
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(srv.Start)
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Server forced to shutdown")
		}
		return nil
	})

	if container.MarketFeed != nil {
		g.Go(func() error {
			if err := container.MarketFeed.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	if legacyMode {
		container.Supervisors.Run()
		g.Go(func() error {
			<-gctx.Done()
			container.Supervisors.Stop()
			return nil
		})
	} else {
		g.Go(func() error {
			return container.Loop.Run(gctx)
		})
	}

	log.Info().
		Str("mode", container.Arbiter.CurrentMode().String()).
		Int("jobs", len(container.Jobs)).
		Int("port", container.Config.Port).
		Msg("Heartbeat started")

	err := g.Wait()
	if errors.Is(err, heartbeat.ErrStartupTimeout) {
		log.Error().Dur("timeout", container.Config.StartupTimeout).Msg("Leadership not acquired before the startup timeout")
	}
	return err
}
