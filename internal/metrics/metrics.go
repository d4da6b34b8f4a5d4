package metrics

import (
	"fmt"

	"github.com/matrixise/balance-poller/internal/poller"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "balance_poller"

// Recorder turns poll readings into prometheus metrics
type Recorder struct {
	polls    *prometheus.CounterVec
	balance  prometheus.Gauge
	duration prometheus.Histogram
	lastPoll prometheus.Gauge
}

// NewRecorder creates the collectors and registers them with reg
func NewRecorder(reg prometheus.Registerer) (*Recorder, error) {
	r := &Recorder{
		polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "polls_total",
			Help:      "Balance polls by outcome.",
		}, []string{"outcome"}),
		balance: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "balance",
			Help:      "Last successfully retrieved balance in token units.",
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "poll_duration_seconds",
			Help:      "Duration of eth_getBalance requests.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		lastPoll: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_poll_timestamp_seconds",
			Help:      "Unix time of the last poll, whatever its outcome.",
		}),
	}

	for _, c := range []prometheus.Collector{r.polls, r.balance, r.duration, r.lastPoll} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register collector: %w", err)
		}
	}

	// Expose every outcome from the start, even before it happens
	for _, o := range []poller.Outcome{poller.OutcomeSuccess, poller.OutcomeEmpty, poller.OutcomeFailed} {
		r.polls.WithLabelValues(o.String())
	}

	return r, nil
}

// Observe implements poller.Observer
func (r *Recorder) Observe(reading poller.Reading) {
	r.polls.WithLabelValues(reading.Outcome.String()).Inc()
	r.duration.Observe(reading.Latency.Seconds())
	r.lastPoll.Set(float64(reading.Time.UnixNano()) / 1e9)

	if reading.Outcome == poller.OutcomeSuccess {
		r.balance.Set(reading.Amount.InexactFloat64())
	}
}
