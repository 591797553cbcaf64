package observability

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// BlindBoxMetrics tracks contract invocations and their value flow.
type BlindBoxMetrics struct {
	invocations  *prometheus.CounterVec
	latency      *prometheus.HistogramVec
	minted       prometheus.Counter
	transfers    *prometheus.CounterVec
	voters       prometheus.Histogram
	instructions *prometheus.CounterVec
}

var (
	blindBoxOnce     sync.Once
	blindBoxRegistry *BlindBoxMetrics
)

// BlindBox returns the lazily-initialised blind-box metrics registry.
func BlindBox() *BlindBoxMetrics {
	blindBoxOnce.Do(func() {
		blindBoxRegistry = &BlindBoxMetrics{
			invocations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "ddbox",
				Subsystem: "contract",
				Name:      "invocations_total",
				Help:      "Total contract invocations segmented by action and outcome.",
			}, []string{"action", "outcome"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "ddbox",
				Subsystem: "contract",
				Name:      "invocation_duration_seconds",
				Help:      "Latency distribution for contract invocations including commit.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"action"}),
			minted: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "ddbox",
				Subsystem: "allocator",
				Name:      "units_minted_total",
				Help:      "Units issued by committed deposits.",
			}),
			transfers: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "ddbox",
				Subsystem: "settlement",
				Name:      "payout_transfers_total",
				Help:      "Payout transfers emitted by committed settlements segmented by denomination.",
			}, []string{"denom"}),
			voters: prometheus.NewHistogram(prometheus.HistogramOpts{
				Namespace: "ddbox",
				Subsystem: "settlement",
				Name:      "voters",
				Help:      "Number of voters processed per settlement.",
				Buckets:   []float64{0, 1, 10, 50, 100, 250, 500, 1000},
			}),
			instructions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "ddbox",
				Subsystem: "ledger",
				Name:      "instructions_total",
				Help:      "Instructions forwarded to the external unit ledger segmented by action.",
			}, []string{"action"}),
		}
		prometheus.MustRegister(
			blindBoxRegistry.invocations,
			blindBoxRegistry.latency,
			blindBoxRegistry.minted,
			blindBoxRegistry.transfers,
			blindBoxRegistry.voters,
			blindBoxRegistry.instructions,
		)
	})
	return blindBoxRegistry
}

func normalizeLabel(v string) string {
	trimmed := strings.TrimSpace(strings.ToLower(v))
	if trimmed == "" {
		return "unknown"
	}
	return trimmed
}

// ObserveInvocation records the outcome and duration of one invocation.
func (m *BlindBoxMetrics) ObserveInvocation(action string, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	action = normalizeLabel(action)
	m.invocations.WithLabelValues(action, outcome).Inc()
	m.latency.WithLabelValues(action).Observe(elapsed.Seconds())
}

// RecordMinted adds committed unit issuance.
func (m *BlindBoxMetrics) RecordMinted(units uint64) {
	if m == nil || units == 0 {
		return
	}
	m.minted.Add(float64(units))
}

// RecordSettlement records a committed settlement run.
func (m *BlindBoxMetrics) RecordSettlement(voters int, denom string, transfers int) {
	if m == nil {
		return
	}
	m.voters.Observe(float64(voters))
	if transfers > 0 {
		m.transfers.WithLabelValues(normalizeLabel(denom)).Add(float64(transfers))
	}
}

// RecordInstruction counts an instruction forwarded to the external ledger.
func (m *BlindBoxMetrics) RecordInstruction(action string) {
	if m == nil {
		return
	}
	m.instructions.WithLabelValues(normalizeLabel(action)).Inc()
}
