package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable, e.g. BALANCE_POLLER_ADDRESS
const EnvPrefix = "BALANCE_POLLER"

// configKeys lists every key that can be set from the environment
var configKeys = []string{
	"rpc_url",
	"rpc_urls",
	"address",
	"symbol",
	"decimals",
	"precision",
	"interval",
	"align_to_clock",
	"request_timeout",
	"log_level",
	"http_port",
	"timezone",
	"run_immediately",
}

// flagKeys maps command-line flag names to config keys
var flagKeys = map[string]string{
	"address":   "address",
	"rpc-url":   "rpc_urls",
	"interval":  "interval",
	"log-level": "log_level",
}

// Load reads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	return LoadWithFlags(configPath, nil)
}

// LoadWithFlags is Load with command-line flags taking precedence over
// environment and file values. Only flags the user actually set override.
func LoadWithFlags(configPath string, flags *pflag.FlagSet) (*Config, error) {
	// .env never overrides variables already present in the environment
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()

	// 1. Defaults
	v.SetDefault("rpc_url", DefaultRPCURL)
	v.SetDefault("interval", DefaultInterval)
	v.SetDefault("align_to_clock", false)
	v.SetDefault("request_timeout", DefaultRequestTimeout)
	v.SetDefault("symbol", DefaultSymbol)
	v.SetDefault("decimals", DefaultDecimals)
	v.SetDefault("precision", DefaultPrecision)
	v.SetDefault("timezone", DefaultTimezone)
	v.SetDefault("run_immediately", true)
	v.SetDefault("log_level", DefaultLogLevel)
	v.SetDefault("http_port", 0)

	// 2. Config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("toml")
		v.AddConfigPath(".")
	}

	// 3. Environment variables: BALANCE_POLLER_RPC_URL -> rpc_url
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	for _, key := range configKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind env for %s: %w", key, err)
		}
	}

	// 4. Flags
	if flags != nil {
		for name, key := range flagKeys {
			f := flags.Lookup(name)
			if f == nil {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return nil, fmt.Errorf("failed to bind flag --%s: %w", name, err)
			}
		}
	}

	// 5. Read config file
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	// 6. Unmarshal into struct
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Comma-separated RPC URLs from env or flag
	if raw := v.GetString("rpc_urls"); strings.Contains(raw, ",") {
		cfg.RPCUrls = splitList(raw)
	}

	// 7. Normalize: fold single rpc_url into rpc_urls
	if err := cfg.Normalize(); err != nil {
		return nil, fmt.Errorf("config normalization failed: %w", err)
	}

	// 8. Validate
	validate := NewValidator()
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
