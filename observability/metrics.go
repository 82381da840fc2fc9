package observability

import (
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type rpcMetrics struct {
	requests  *prometheus.CounterVec
	errors    *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttles *prometheus.CounterVec
}

var (
	rpcMetricsOnce sync.Once
	rpcRegistry    *rpcMetrics

	ledgerMetricsOnce sync.Once
	ledgerRegistry    *LedgerMetrics
)

// RPC returns the lazily-initialised registry used to record JSON-RPC
// activity.
func RPC() *rpcMetrics {
	rpcMetricsOnce.Do(func() {
		rpcRegistry = &rpcMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "offerswap",
				Subsystem: "rpc",
				Name:      "requests_total",
				Help:      "Total JSON-RPC requests segmented by method and outcome.",
			}, []string{"method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "offerswap",
				Subsystem: "rpc",
				Name:      "errors_total",
				Help:      "Total JSON-RPC errors segmented by method and error code.",
			}, []string{"method", "code"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "offerswap",
				Subsystem: "rpc",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for JSON-RPC handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"method"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "offerswap",
				Subsystem: "rpc",
				Name:      "throttles_total",
				Help:      "Count of requests rejected by the rate limiter.",
			}, []string{"reason"}),
		}
		prometheus.MustRegister(
			rpcRegistry.requests,
			rpcRegistry.errors,
			rpcRegistry.latency,
			rpcRegistry.throttles,
		)
	})
	return rpcRegistry
}

// Observe records the outcome of a JSON-RPC call. code is the JSON-RPC error
// code, zero on success.
func (m *rpcMetrics) Observe(method string, code int, duration time.Duration) {
	if m == nil {
		return
	}
	if method == "" {
		method = "unknown"
	}
	outcome := "success"
	if code != 0 {
		outcome = "error"
		m.errors.WithLabelValues(method, fmt.Sprintf("%d", code)).Inc()
	}
	m.requests.WithLabelValues(method, outcome).Inc()
	m.latency.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordThrottle counts a rejected request. Reasons should be stable strings
// such as "rate_limit".
func (m *rpcMetrics) RecordThrottle(reason string) {
	if m == nil {
		return
	}
	if reason == "" {
		reason = "unspecified"
	}
	m.throttles.WithLabelValues(reason).Inc()
}

// LedgerMetrics tracks block production and the swap protocol.
type LedgerMetrics struct {
	blocks         prometheus.Counter
	height         prometheus.Gauge
	blockDuration  prometheus.Histogram
	transactions   *prometheus.CounterVec
	offersMade     prometheus.Counter
	offersTaken    prometheus.Counter
	openOffers     prometheus.Gauge
	oldestOfferAge prometheus.Gauge
	mempoolSize    prometheus.Gauge
}

// Ledger returns the singleton ledger metrics registry.
func Ledger() *LedgerMetrics {
	ledgerMetricsOnce.Do(func() {
		ledgerRegistry = &LedgerMetrics{
			blocks: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "offerswap",
				Subsystem: "ledger",
				Name:      "blocks_total",
				Help:      "Number of blocks committed.",
			}),
			height: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "offerswap",
				Subsystem: "ledger",
				Name:      "height",
				Help:      "Height of the latest committed block.",
			}),
			blockDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
				Namespace: "offerswap",
				Subsystem: "ledger",
				Name:      "block_duration_seconds",
				Help:      "Time spent applying and committing a block.",
				Buckets:   prometheus.DefBuckets,
			}),
			transactions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "offerswap",
				Subsystem: "ledger",
				Name:      "transactions_total",
				Help:      "Applied transactions segmented by type and result code.",
			}, []string{"type", "code"}),
			offersMade: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "offerswap",
				Subsystem: "escrow",
				Name:      "offers_made_total",
				Help:      "Offers opened.",
			}),
			offersTaken: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "offerswap",
				Subsystem: "escrow",
				Name:      "offers_taken_total",
				Help:      "Offers fulfilled and closed.",
			}),
			openOffers: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "offerswap",
				Subsystem: "escrow",
				Name:      "open_offers",
				Help:      "Offers currently holding funds in a vault.",
			}),
			oldestOfferAge: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "offerswap",
				Subsystem: "escrow",
				Name:      "oldest_open_offer_age_blocks",
				Help:      "Blocks elapsed since the oldest open offer was made. Open offers cannot be cancelled, so a growing value means locked funds.",
			}),
			mempoolSize: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "offerswap",
				Subsystem: "ledger",
				Name:      "mempool_size",
				Help:      "Transactions waiting for inclusion.",
			}),
		}
		prometheus.MustRegister(
			ledgerRegistry.blocks,
			ledgerRegistry.height,
			ledgerRegistry.blockDuration,
			ledgerRegistry.transactions,
			ledgerRegistry.offersMade,
			ledgerRegistry.offersTaken,
			ledgerRegistry.openOffers,
			ledgerRegistry.oldestOfferAge,
			ledgerRegistry.mempoolSize,
		)
	})
	return ledgerRegistry
}

// ObserveBlock records a committed block.
func (m *LedgerMetrics) ObserveBlock(height uint64, duration time.Duration) {
	if m == nil {
		return
	}
	m.blocks.Inc()
	m.height.Set(float64(height))
	m.blockDuration.Observe(duration.Seconds())
}

// ObserveTransaction records an applied transaction. code is empty on
// success.
func (m *LedgerMetrics) ObserveTransaction(txType, code string) {
	if m == nil {
		return
	}
	if code == "" {
		code = "ok"
	}
	m.transactions.WithLabelValues(txType, code).Inc()
}

func (m *LedgerMetrics) OfferMade() {
	if m != nil {
		m.offersMade.Inc()
	}
}

func (m *LedgerMetrics) OfferTaken() {
	if m != nil {
		m.offersTaken.Inc()
	}
}

// SetOpenOffers publishes the open offer count and the age of the oldest.
func (m *LedgerMetrics) SetOpenOffers(count int, oldestAge uint64) {
	if m == nil {
		return
	}
	m.openOffers.Set(float64(count))
	m.oldestOfferAge.Set(float64(oldestAge))
}

func (m *LedgerMetrics) SetMempoolSize(n int) {
	if m != nil {
		m.mempoolSize.Set(float64(n))
	}
}
