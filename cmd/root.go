package cmd

import (
	"github.com/spf13/cobra"
)

var (
	cfgFile  string
	logLevel string
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "balance-poller",
	Short: "Periodic account balance monitor",
	Long: `balance-poller queries the balance of one account over JSON-RPC
(eth_getBalance) at a fixed interval and prints one timestamped line per poll.
Multiple endpoints can be configured for failover; an optional HTTP server
exposes /health and /metrics.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.toml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
}
