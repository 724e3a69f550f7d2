package proposal

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "cloak"

// Metrics are the Prometheus collectors of a Processor.
type Metrics struct {
	proposals *prometheus.CounterVec
	txResults *prometheus.CounterVec
	digests   *prometheus.CounterVec
	duration  prometheus.Histogram
}

// NewMetrics creates the collectors and registers them with reg. A nil
// reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		proposals: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "proposals_total",
				Help:      "Number of block proposals verified, by verdict.",
			},
			[]string{"status"},
		),
		txResults: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tx_results_total",
				Help:      "Number of transactions verified, by result code.",
			},
			[]string{"code"},
		),
		digests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "vote_extension_digests_total",
				Help:      "Number of vote extension digests verified, by result.",
			},
			[]string{"result"},
		),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "proposal_verification_seconds",
			Help:      "Time taken to verify a block proposal.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		}),
	}
	if reg != nil {
		for _, c := range []prometheus.Collector{m.proposals, m.txResults, m.digests, m.duration} {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

func (m *Metrics) observeResult(code ErrorCode) {
	m.txResults.WithLabelValues(strconv.FormatUint(uint64(code), 10)).Inc()
}

func (m *Metrics) observeDigest(code ErrorCode) {
	m.digests.WithLabelValues(code.String()).Inc()
}
