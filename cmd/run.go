package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/matrixise/balance-poller/internal/blockchain"
	"github.com/matrixise/balance-poller/internal/config"
	"github.com/matrixise/balance-poller/internal/health"
	"github.com/matrixise/balance-poller/internal/logger"
	"github.com/matrixise/balance-poller/internal/metrics"
	"github.com/matrixise/balance-poller/internal/poller"
	"github.com/matrixise/balance-poller/internal/scheduler"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 5 * time.Second

var once bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Poll the account balance",
	Long: `Query the account balance at a fixed interval and print one line per poll.
Runs until interrupted (SIGINT/SIGTERM) unless --once is given.`,
	RunE: runPoller,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().String("address", "", "account address to monitor (0x...)")
	runCmd.Flags().StringSlice("rpc-url", nil, "JSON-RPC endpoint, repeat for failover")
	runCmd.Flags().String("interval", "", "poll interval - duration (10s, 1m) or cron (\"*/5 * * * *\")")
	runCmd.Flags().BoolVar(&once, "once", false, "poll once and exit")
}

func runPoller(cmd *cobra.Command, args []string) error {
	logger.Setup(logLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("Signal received, graceful shutdown", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	cfg, err := config.LoadWithFlags(cfgFile, cmd.Flags())
	if err != nil {
		slog.Error("Configuration error", "error", err)
		return err
	}
	logger.Setup(cfg.LogLevel)

	slog.Info("Configuration loaded",
		"config_path", cfgFile,
		"address", cfg.PollerAddress().Hex(),
		"endpoints", len(cfg.RPCUrls),
		"interval", cfg.ScheduleInterval(),
		"align_to_clock", cfg.AlignToClock)

	client, err := blockchain.NewClient(cfg.RPCUrls, cfg.GetRequestTimeout())
	if err != nil {
		slog.Error("Failed to create RPC client", "error", err)
		return err
	}
	defer client.Close()

	if len(cfg.RPCUrls) > 1 {
		slog.Info("RPC failover enabled", "endpoints", len(cfg.RPCUrls), "primary", client.Primary())
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	recorder, err := metrics.NewRecorder(registry)
	if err != nil {
		return err
	}

	// The poller is assigned before the scheduler starts
	var p *poller.Poller
	var sched *scheduler.Scheduler
	var expectedInterval time.Duration
	var schedule string

	if cfg.UsesScheduler() {
		sched, err = scheduler.NewScheduler(ctx, scheduler.Config{
			Interval:       cfg.ScheduleInterval(),
			Timezone:       cfg.GetTimezone(),
			RunImmediately: cfg.ShouldRunImmediately(),
			Logger:         slog.Default(),
		}, func(jobCtx context.Context) {
			p.Poll(jobCtx)
		})
		if err != nil {
			slog.Error("Failed to create scheduler", "error", err)
			return fmt.Errorf("scheduler creation failed: %w", err)
		}
		defer sched.Stop()

		expectedInterval, err = sched.GetExpectedInterval()
		if err != nil {
			return fmt.Errorf("scheduler interval: %w", err)
		}
		schedule = scheduler.DescribeSchedule(cfg.ScheduleInterval(), cfg.GetTimezone())
	} else {
		expectedInterval, err = cfg.GetInterval()
		if err != nil {
			return fmt.Errorf("invalid interval: %w", err)
		}
		schedule = "every " + expectedInterval.String()
	}

	checker := health.NewChecker(client, expectedInterval, nil)

	p, err = poller.New(poller.Config{
		Address:        cfg.PollerAddress(),
		Interval:       expectedInterval,
		Timeout:        cfg.GetRequestTimeout(),
		Decimals:       cfg.Decimals,
		Precision:      cfg.Precision,
		Symbol:         cfg.Symbol,
		Location:       cfg.GetTimezone(),
		DelayFirstPoll: !cfg.ShouldRunImmediately(),
		Output:         cmd.OutOrStdout(),
		Logger:         slog.Default(),
		Observers:      []poller.Observer{recorder, checker},
	}, client)
	if err != nil {
		return err
	}

	if once {
		p.Poll(ctx)
		return nil
	}

	if cfg.HTTPPort != 0 {
		httpServer := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
			Handler:           health.NewRouter(checker, registry),
			ReadHeaderTimeout: 5 * time.Second,
		}

		go func() {
			slog.Info("HTTP server starting", "port", cfg.HTTPPort, "endpoints", "/health, /metrics")
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("HTTP server error", "error", err)
			}
		}()

		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer shutdownCancel()
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				slog.Error("HTTP server shutdown error", "error", err)
			}
		}()
	}

	fmt.Fprintf(cmd.OutOrStdout(), "🚀 Balance monitor active (%s via %s, %s)\n",
		cfg.PollerAddress().Hex(), client.Primary(), schedule)

	if sched != nil {
		if err := sched.Start(); err != nil {
			slog.Error("Failed to start scheduler", "error", err)
			return fmt.Errorf("scheduler start failed: %w", err)
		}
		<-ctx.Done()
		slog.Info("Shutdown requested, stopping scheduler")
		return nil
	}

	if err := p.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	slog.Info("Shutdown requested, poller stopped")
	return nil
}
