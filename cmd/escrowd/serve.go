package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/armon/go-metrics"
	"github.com/spf13/cobra"

	"github.com/jdziat/agent-escrow/pkg/api"
	"github.com/jdziat/agent-escrow/pkg/schedule"
	"github.com/jdziat/agent-escrow/pkg/settlement"
)

func serveCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the settlement worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := flags.load(cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := openApp(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer a.Close()

			// SIGUSR1 dumps the in-memory metrics to stderr.
			dump := metrics.NewInmemSignal(a.sink, metrics.DefaultSignal, os.Stderr)
			defer dump.Stop()

			workerOpts := []settlement.Option{
				settlement.WithPollInterval(cfg.pollInterval()),
				settlement.Concurrency(cfg.Settlement.Concurrency),
			}
			if timeout := cfg.requestTimeout(); timeout > 0 {
				sched, err := schedule.Parse(cfg.Settlement.ExpirySchedule)
				if err != nil {
					return err
				}
				workerOpts = append(workerOpts, settlement.WithExpiry(a.resolver, timeout, sched))
			}
			worker := settlement.NewWorker(a.settler, workerOpts...)

			srv := &http.Server{
				Addr: cfg.HTTP.Listen,
				Handler: api.Handler(a.ledger, a.resolver, a.admin,
					api.WithLogger(log),
					api.WithAllowedOrigins(cfg.HTTP.AllowedOrigins...)),
				ReadHeaderTimeout: 10 * time.Second,
			}

			errs := make(chan error, 2)
			go func() {
				if err := worker.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
					errs <- err
				}
			}()
			go func() {
				log.Info("listening", "addr", srv.Addr, "oracle_mode", cfg.Oracle.Mode)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errs <- err
				}
			}()

			select {
			case <-ctx.Done():
			case err = <-errs:
				log.Error("shutting down after failure", "error", err)
			}
			stop()

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if shutdownErr := srv.Shutdown(shutdownCtx); shutdownErr != nil {
				log.Warn("http shutdown", "error", shutdownErr)
			}
			log.Info("stopped")
			return err
		},
	}
}
