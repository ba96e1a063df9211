package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/baiirun/workdesk/internal/service"
	"github.com/baiirun/workdesk/internal/sweep"
)

var (
	flagSweepOnce     bool
	flagSweepInterval time.Duration
	flagMetricsAddr   string
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Deliver due reminders and report deadline warnings",
	Long: `Deliver due reminders and report items whose deadline is close or missed.
Notices are written to the log. Runs until interrupted unless --once is given.
With --metrics-addr, Prometheus metrics are served on /metrics.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		// Rebuild the service so its counters land on the served registry.
		svc = service.New(store, store,
			service.WithDeadlines(cfg.Calculator()),
			service.WithLogger(log),
			service.WithRegisterer(reg),
		)
		sweeper := sweep.New(svc, store, sweep.LogNotifier{Log: log},
			sweep.WithLogger(log),
			sweep.WithRegisterer(reg),
		)

		if flagSweepOnce {
			report, err := sweeper.RunOnce(ctx)
			if err != nil {
				return err
			}
			if flagJSON {
				printJSON(report)
				return nil
			}
			fmt.Printf("Reminders sent: %d, failed: %d\n", report.RemindersSent, report.RemindersFailed)
			fmt.Printf("Warning: %d, breached: %d\n", len(report.Warning), len(report.Breached))
			return nil
		}

		interval := cfg.Sweep.Interval.Duration
		if cmd.Flags().Changed("interval") {
			interval = flagSweepInterval
		}
		if interval <= 0 {
			return fmt.Errorf("interval must be positive, got %s", interval)
		}
		addr := cfg.Sweep.MetricsAddr
		if cmd.Flags().Changed("metrics-addr") {
			addr = flagMetricsAddr
		}

		g, gCtx := errgroup.WithContext(ctx)
		g.Go(func() error {
			return sweeper.Run(gCtx, interval)
		})
		if addr != "" {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
			srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

			g.Go(func() error {
				log.Info("serving metrics", "addr", addr)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("metrics server: %w", err)
				}
				return nil
			})
			g.Go(func() error {
				<-gCtx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			})
		}
		return g.Wait()
	},
}

func init() {
	sweepCmd.Flags().BoolVar(&flagSweepOnce, "once", false, "run a single sweep and exit")
	sweepCmd.Flags().DurationVar(&flagSweepInterval, "interval", time.Minute, "time between sweeps (default from config)")
	sweepCmd.Flags().StringVar(&flagMetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9090")
	rootCmd.AddCommand(sweepCmd)
}
