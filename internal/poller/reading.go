package poller

import (
	"fmt"
	"math/big"
	"time"

	"github.com/shopspring/decimal"
)

// Outcome classifies a single poll
type Outcome int

const (
	// OutcomeSuccess means the node returned a balance
	OutcomeSuccess Outcome = iota
	// OutcomeEmpty means the node answered without a balance
	OutcomeEmpty
	// OutcomeFailed covers transport errors, timeouts and unparseable results
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeEmpty:
		return "empty"
	case OutcomeFailed:
		return "failed"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

const timestampLayout = "15:04:05"

// Reading is the result of one poll. Wei and Amount are only set on success.
type Reading struct {
	Time    time.Time
	Outcome Outcome
	Wei     *big.Int
	Amount  decimal.Decimal
	Err     error
	Latency time.Duration
}

// Line renders the reading as a single console line
func (r Reading) Line(precision int32, symbol string) string {
	ts := r.Time.Format(timestampLayout)

	switch r.Outcome {
	case OutcomeSuccess:
		return fmt.Sprintf("✅ [%s] Balance: %s %s", ts, r.Amount.StringFixed(precision), symbol)
	case OutcomeEmpty:
		if r.Err != nil {
			return fmt.Sprintf("❌ [%s] RPC responded with empty data: %v", ts, r.Err)
		}
		return fmt.Sprintf("❌ [%s] RPC responded with empty data", ts)
	default:
		return fmt.Sprintf("📡 [%s] Connection failed: %s", ts, r.errorDescription())
	}
}

func (r Reading) errorDescription() string {
	if r.Err == nil || r.Err.Error() == "" {
		return "unknown error"
	}
	return r.Err.Error()
}
