package config

import (
	"errors"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/matrixise/balance-poller/internal/scheduler"
)

const (
	DefaultRPCURL         = "https://polygon-rpc.com"
	DefaultInterval       = "10s"
	DefaultRequestTimeout = "10s"
	DefaultSymbol         = "ETH/MATIC"
	DefaultDecimals       = 18
	DefaultPrecision      = 5
	DefaultTimezone       = "Local"
	DefaultLogLevel       = "info"
)

// Config represents the application configuration
type Config struct {
	RPCUrl         string   `mapstructure:"rpc_url" validate:"omitempty,url"`
	RPCUrls        []string `mapstructure:"rpc_urls" validate:"required,min=1,dive,required,url"`
	Address        string   `mapstructure:"address" validate:"required,eth_addr"`
	Symbol         string   `mapstructure:"symbol" validate:"omitempty,max=32"`
	Decimals       uint8    `mapstructure:"decimals" validate:"omitempty,max=36"`
	Precision      int32    `mapstructure:"precision" validate:"omitempty,min=1,max=18"`
	Interval       string   `mapstructure:"interval" validate:"omitempty,schedule"`
	AlignToClock   bool     `mapstructure:"align_to_clock"`
	RequestTimeout string   `mapstructure:"request_timeout" validate:"omitempty,duration"`
	LogLevel       string   `mapstructure:"log_level" validate:"omitempty,oneof=debug info warn error"`
	HTTPPort       int      `mapstructure:"http_port" validate:"omitempty,min=1024,max=65535"`
	Timezone       string   `mapstructure:"timezone" validate:"omitempty,tz"`
	RunImmediately *bool    `mapstructure:"run_immediately"`
}

// Normalize folds the single rpc_url into rpc_urls. rpc_urls takes precedence.
func (c *Config) Normalize() error {
	urls := make([]string, 0, len(c.RPCUrls))
	for _, u := range c.RPCUrls {
		if u = strings.TrimSpace(u); u != "" {
			urls = append(urls, u)
		}
	}

	if len(urls) == 0 {
		if strings.TrimSpace(c.RPCUrl) == "" {
			return errors.New("either rpc_url or rpc_urls must be set")
		}
		urls = []string{strings.TrimSpace(c.RPCUrl)}
	}

	c.RPCUrls = urls
	c.RPCUrl = ""
	c.Address = strings.TrimSpace(c.Address)
	return nil
}

// Endpoint returns the primary RPC endpoint
func (c *Config) Endpoint() string {
	if len(c.RPCUrls) > 0 {
		return c.RPCUrls[0]
	}
	return c.RPCUrl
}

// PollerAddress returns the configured account as a checksummed address
func (c *Config) PollerAddress() common.Address {
	return common.HexToAddress(c.Address)
}

// GetTimezone returns the location used for printed timestamps and cron schedules
func (c *Config) GetTimezone() *time.Location {
	if c.Timezone == "" || c.Timezone == DefaultTimezone {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// ShouldRunImmediately reports whether the first poll happens at startup
func (c *Config) ShouldRunImmediately() bool {
	if c.RunImmediately == nil {
		return true
	}
	return *c.RunImmediately
}

// IsCronExpression reports whether the interval is a cron expression
func (c *Config) IsCronExpression() bool {
	return scheduler.IsCronExpression(c.Interval)
}

// UsesScheduler reports whether polls run on a cron schedule instead of a ticker
func (c *Config) UsesScheduler() bool {
	return c.AlignToClock || c.IsCronExpression()
}

// ScheduleInterval returns the interval string with the default applied
func (c *Config) ScheduleInterval() string {
	if c.Interval == "" {
		return DefaultInterval
	}
	return c.Interval
}

// GetInterval returns the ticker interval. Cron expressions have none.
func (c *Config) GetInterval() (time.Duration, error) {
	if c.IsCronExpression() {
		return 0, errors.New("interval is a cron expression")
	}
	return time.ParseDuration(c.ScheduleInterval())
}

// GetRequestTimeout returns the per-request timeout
func (c *Config) GetRequestTimeout() time.Duration {
	timeout := c.RequestTimeout
	if timeout == "" {
		timeout = DefaultRequestTimeout
	}
	d, err := time.ParseDuration(timeout)
	if err != nil || d <= 0 {
		d, _ = time.ParseDuration(DefaultRequestTimeout)
	}
	return d
}
