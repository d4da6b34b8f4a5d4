package poller

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jonboulle/clockwork"
	"github.com/matrixise/balance-poller/internal/blockchain"
)

const (
	DefaultInterval  = 10 * time.Second
	DefaultTimeout   = 10 * time.Second
	DefaultDecimals  = 18
	DefaultPrecision = 5
	DefaultSymbol    = "ETH/MATIC"
)

// BalanceFetcher performs a single balance lookup
type BalanceFetcher interface {
	GetBalance(ctx context.Context, address common.Address) (*big.Int, error)
}

// Observer is notified with every reading after it is printed
type Observer interface {
	Observe(Reading)
}

// Config holds poller configuration. Zero values fall back to defaults.
type Config struct {
	Address        common.Address
	Interval       time.Duration   // Start-to-start spacing between polls
	Timeout        time.Duration   // Upper bound for one request
	Decimals       uint8           // Base-unit exponent, 18 for wei
	Precision      int32           // Fractional digits printed
	Symbol         string          // Unit label printed after the amount
	Location       *time.Location  // Zone for printed timestamps (default: local)
	DelayFirstPoll bool            // Wait one interval before the first poll
	Output         io.Writer       // Destination for balance lines (default: stdout)
	Clock          clockwork.Clock // Time source (default: wall clock)
	Logger         *slog.Logger
	Observers      []Observer
}

// Poller repeatedly fetches and reports the balance of one account
type Poller struct {
	fetcher        BalanceFetcher
	address        common.Address
	interval       time.Duration
	timeout        time.Duration
	decimals       uint8
	precision      int32
	symbol         string
	location       *time.Location
	delayFirstPoll bool
	out            io.Writer
	clock          clockwork.Clock
	logger         *slog.Logger
	observers      []Observer
}

// New creates a poller for cfg.Address using fetcher
func New(cfg Config, fetcher BalanceFetcher) (*Poller, error) {
	if fetcher == nil {
		return nil, errors.New("balance fetcher is required")
	}
	if cfg.Interval < 0 {
		return nil, fmt.Errorf("interval must be positive (got %s)", cfg.Interval)
	}
	if cfg.Timeout < 0 {
		return nil, fmt.Errorf("timeout must be positive (got %s)", cfg.Timeout)
	}
	if cfg.Precision < 0 {
		return nil, fmt.Errorf("precision must not be negative (got %d)", cfg.Precision)
	}

	if cfg.Interval == 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Decimals == 0 {
		cfg.Decimals = DefaultDecimals
	}
	if cfg.Precision == 0 {
		cfg.Precision = DefaultPrecision
	}
	if cfg.Symbol == "" {
		cfg.Symbol = DefaultSymbol
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.Output == nil {
		cfg.Output = os.Stdout
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Poller{
		fetcher:        fetcher,
		address:        cfg.Address,
		interval:       cfg.Interval,
		timeout:        cfg.Timeout,
		decimals:       cfg.Decimals,
		precision:      cfg.Precision,
		symbol:         cfg.Symbol,
		location:       cfg.Location,
		delayFirstPoll: cfg.DelayFirstPoll,
		out:            cfg.Output,
		clock:          cfg.Clock,
		logger:         cfg.Logger,
		observers:      cfg.Observers,
	}, nil
}

// Interval returns the configured poll spacing
func (p *Poller) Interval() time.Duration {
	return p.interval
}

// Fetch performs one balance request and classifies the outcome.
// It never returns an error; failures are carried in the reading.
func (p *Poller) Fetch(ctx context.Context) Reading {
	start := p.clock.Now()
	reading := Reading{Time: start.In(p.location)}

	reqCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	wei, err := p.fetcher.GetBalance(reqCtx, p.address)
	reading.Latency = p.clock.Since(start)

	var rpcErr *blockchain.RPCError
	switch {
	case errors.As(err, &rpcErr):
		reading.Outcome = OutcomeEmpty
		reading.Err = rpcErr
	case errors.Is(err, blockchain.ErrEmptyResult):
		reading.Outcome = OutcomeEmpty
	case err != nil:
		reading.Outcome = OutcomeFailed
		reading.Err = err
	case wei == nil:
		reading.Outcome = OutcomeEmpty
	case wei.Sign() < 0:
		reading.Outcome = OutcomeFailed
		reading.Err = fmt.Errorf("negative balance %s", wei)
	default:
		reading.Outcome = OutcomeSuccess
		reading.Wei = wei
		reading.Amount = blockchain.ToDecimal(wei, p.decimals)
	}

	return reading
}

// Poll fetches the balance, prints one line and notifies observers
func (p *Poller) Poll(ctx context.Context) Reading {
	reading := p.Fetch(ctx)

	if _, err := fmt.Fprintln(p.out, reading.Line(p.precision, p.symbol)); err != nil {
		p.logger.Error("Failed to write balance line", "error", err)
	}

	switch reading.Outcome {
	case OutcomeSuccess:
		p.logger.Debug("Balance retrieved",
			"address", p.address.Hex(),
			"wei", reading.Wei.String(),
			"balance", blockchain.HumanBalance(reading.Wei, p.decimals),
			"latency", reading.Latency)
	case OutcomeEmpty:
		p.logger.Warn("RPC returned no balance",
			"address", p.address.Hex(),
			"error", reading.Err,
			"latency", reading.Latency)
	default:
		p.logger.Warn("Balance poll failed",
			"address", p.address.Hex(),
			"error", reading.Err,
			"latency", reading.Latency)
	}

	for _, o := range p.observers {
		o.Observe(reading)
	}

	return reading
}

// Run polls at the fixed interval until ctx is cancelled.
//
// Polls are spaced start-to-start: a slow request does not push later polls
// back. Polls never overlap; a tick missed while a request is in flight is
// dropped.
func (p *Poller) Run(ctx context.Context) error {
	ticker := p.clock.NewTicker(p.interval)
	defer ticker.Stop()

	p.logger.Info("Poller started",
		"address", p.address.Hex(),
		"interval", p.interval,
		"timeout", p.timeout)

	if !p.delayFirstPoll {
		p.Poll(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Poller stopped")
			return ctx.Err()
		case <-ticker.Chan():
			if ctx.Err() != nil {
				continue
			}
			p.Poll(ctx)
		}
	}
}
