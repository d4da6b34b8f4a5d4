package cmd

import (
	"log/slog"

	"github.com/matrixise/balance-poller/internal/config"
	"github.com/matrixise/balance-poller/internal/logger"
	"github.com/matrixise/balance-poller/internal/scheduler"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate-config",
	Short: "Validate configuration file",
	Long:  `Validate the configuration file, .env and environment without polling.`,
	RunE:  validateConfig,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func validateConfig(cmd *cobra.Command, args []string) error {
	logger.Setup(logLevel)

	cfg, err := config.LoadWithFlags(cfgFile, cmd.Flags())
	if err != nil {
		slog.Error("Configuration validation failed", "error", err)
		return err
	}

	schedule := "every " + cfg.ScheduleInterval()
	if cfg.UsesScheduler() {
		schedule = scheduler.DescribeSchedule(cfg.ScheduleInterval(), cfg.GetTimezone())
	}

	slog.Info("✓ Configuration valid",
		"address", cfg.PollerAddress().Hex(),
		"rpc_urls", cfg.RPCUrls,
		"schedule", schedule,
		"request_timeout", cfg.GetRequestTimeout(),
		"symbol", cfg.Symbol,
		"log_level", cfg.LogLevel,
		"http_port", cfg.HTTPPort,
	)

	return nil
}
