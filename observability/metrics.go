package observability

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "arbvault"

type moduleMetrics struct {
	requests  *prometheus.CounterVec
	errors    *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttles *prometheus.CounterVec
}

type RuntimeMetrics struct {
	calls    *prometheus.CounterVec
	duration *prometheus.HistogramVec
	height   prometheus.Gauge
	events   *prometheus.CounterVec
}

type RouterMetrics struct {
	swaps       *prometheus.CounterVec
	fees        *prometheus.CounterVec
	batchVolume prometheus.Counter
	totalVolume prometheus.Gauge
}

type VaultMetrics struct {
	deposits     prometheus.Counter
	withdrawals  prometheus.Counter
	arbitrage    *prometheus.CounterVec
	profit       prometheus.Counter
	executorFees prometheus.Counter
	totalShares  prometheus.Gauge
	balance      prometheus.Gauge
}

var (
	moduleMetricsOnce sync.Once
	moduleRegistry    *moduleMetrics

	runtimeMetricsOnce sync.Once
	runtimeRegistry    *RuntimeMetrics

	routerMetricsOnce sync.Once
	routerRegistry    *RouterMetrics

	vaultMetricsOnce sync.Once
	vaultRegistry    *VaultMetrics
)

// ModuleMetrics returns the lazily-initialised registry used to record HTTP
// handler activity.
func ModuleMetrics() *moduleMetrics {
	moduleMetricsOnce.Do(func() {
		moduleRegistry = &moduleMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total HTTP requests segmented by module, method and outcome.",
			}, []string{"module", "method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "errors_total",
				Help:      "Total HTTP errors segmented by module, method and status code.",
			}, []string{"module", "method", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for HTTP handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"module", "method"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "throttles_total",
				Help:      "Count of requests rejected by throttling policies.",
			}, []string{"module", "reason"}),
		}
		prometheus.MustRegister(
			moduleRegistry.requests,
			moduleRegistry.errors,
			moduleRegistry.latency,
			moduleRegistry.throttles,
		)
	})
	return moduleRegistry
}

// Observe records the outcome of a request. The status code should be the HTTP
// status that was ultimately written to the response writer.
func (m *moduleMetrics) Observe(module, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if module == "" {
		module = "unknown"
	}
	if method == "" {
		method = "unknown"
	}
	outcome := "success"
	if status >= 400 {
		outcome = "error"
	}
	m.requests.WithLabelValues(module, method, outcome).Inc()
	if status >= 400 {
		m.errors.WithLabelValues(module, method, fmt.Sprintf("%d", status)).Inc()
	}
	m.latency.WithLabelValues(module, method).Observe(duration.Seconds())
}

// RecordThrottle increments the throttle counter for the supplied module and
// reason. Reasons should be stable strings such as "rate_limit".
func (m *moduleMetrics) RecordThrottle(module, reason string) {
	if m == nil {
		return
	}
	if module == "" {
		module = "unknown"
	}
	if reason == "" {
		reason = "unspecified"
	}
	m.throttles.WithLabelValues(module, reason).Inc()
}

// Runtime returns the registry tracking ledger calls.
func Runtime() *RuntimeMetrics {
	runtimeMetricsOnce.Do(func() {
		runtimeRegistry = &RuntimeMetrics{
			calls: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "runtime",
				Name:      "calls_total",
				Help:      "Ledger calls segmented by entry point and outcome (committed or the error code).",
			}, []string{"entry", "outcome"}),
			duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "runtime",
				Name:      "call_duration_seconds",
				Help:      "Time spent executing and committing a ledger call.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"entry"}),
			height: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "runtime",
				Name:      "commit_height",
				Help:      "Number of calls committed since the state was created.",
			}),
			events: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "runtime",
				Name:      "events_total",
				Help:      "Committed events segmented by type.",
			}, []string{"type"}),
		}
		prometheus.MustRegister(runtimeRegistry.calls, runtimeRegistry.duration, runtimeRegistry.height, runtimeRegistry.events)
	})
	return runtimeRegistry
}

// ObserveCall records one finished call. outcome is "committed" or a stable
// error code.
func (m *RuntimeMetrics) ObserveCall(entry, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	if entry == "" {
		entry = "unknown"
	}
	if outcome == "" {
		outcome = "unknown"
	}
	m.calls.WithLabelValues(entry, outcome).Inc()
	m.duration.WithLabelValues(entry).Observe(duration.Seconds())
}

func (m *RuntimeMetrics) SetHeight(height uint64) {
	if m == nil {
		return
	}
	m.height.Set(float64(height))
}

func (m *RuntimeMetrics) RecordEvent(eventType string) {
	if m == nil {
		return
	}
	eventType = strings.TrimSpace(eventType)
	if eventType == "" {
		eventType = "unknown"
	}
	m.events.WithLabelValues(eventType).Inc()
}

// Router returns the registry tracking swap dispatch.
func Router() *RouterMetrics {
	routerMetricsOnce.Do(func() {
		routerRegistry = &RouterMetrics{
			swaps: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "router",
				Name:      "swaps_total",
				Help:      "Committed swaps segmented by venue.",
			}, []string{"venue"}),
			fees: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "router",
				Name:      "fees_total",
				Help:      "Router fees charged, in token base units, segmented by token.",
			}, []string{"token"}),
			batchVolume: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "router",
				Name:      "volume_total",
				Help:      "Net volume committed by batches since process start.",
			}),
			totalVolume: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "router",
				Name:      "total_volume",
				Help:      "Cumulative volume recorded in router state.",
			}),
		}
		prometheus.MustRegister(routerRegistry.swaps, routerRegistry.fees, routerRegistry.batchVolume, routerRegistry.totalVolume)
	})
	return routerRegistry
}

func (m *RouterMetrics) RecordSwap(venue, token string, fee uint64) {
	if m == nil {
		return
	}
	if venue == "" {
		venue = "unknown"
	}
	m.swaps.WithLabelValues(venue).Inc()
	if fee > 0 {
		m.fees.WithLabelValues(normalizeToken(token)).Add(float64(fee))
	}
}

func (m *RouterMetrics) RecordBatch(volume, totalVolume uint64) {
	if m == nil {
		return
	}
	m.batchVolume.Add(float64(volume))
	m.totalVolume.Set(float64(totalVolume))
}

// Vault returns the registry tracking pooled capital.
func Vault() *VaultMetrics {
	vaultMetricsOnce.Do(func() {
		vaultRegistry = &VaultMetrics{
			deposits: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "vault",
				Name:      "deposits_total",
				Help:      "Committed deposits.",
			}),
			withdrawals: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "vault",
				Name:      "withdrawals_total",
				Help:      "Committed withdrawals.",
			}),
			arbitrage: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "vault",
				Name:      "arbitrage_total",
				Help:      "Arbitrage attempts segmented by outcome.",
			}, []string{"outcome"}),
			profit: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "vault",
				Name:      "profit_total",
				Help:      "Profit retained by the vault from committed arbitrage.",
			}),
			executorFees: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "vault",
				Name:      "executor_fees_total",
				Help:      "Profit paid to arbitrage executors.",
			}),
			totalShares: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "vault",
				Name:      "total_shares",
				Help:      "Outstanding vault shares.",
			}),
			balance: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "vault",
				Name:      "balance",
				Help:      "Vault holdings of its asset.",
			}),
		}
		prometheus.MustRegister(
			vaultRegistry.deposits,
			vaultRegistry.withdrawals,
			vaultRegistry.arbitrage,
			vaultRegistry.profit,
			vaultRegistry.executorFees,
			vaultRegistry.totalShares,
			vaultRegistry.balance,
		)
	})
	return vaultRegistry
}

func (m *VaultMetrics) RecordDeposit() {
	if m == nil {
		return
	}
	m.deposits.Inc()
}

func (m *VaultMetrics) RecordWithdrawal() {
	if m == nil {
		return
	}
	m.withdrawals.Inc()
}

// RecordArbitrage counts an attempt. Profit counters only move for committed
// attempts.
func (m *VaultMetrics) RecordArbitrage(outcome string, vaultProfit, executorFee uint64) {
	if m == nil {
		return
	}
	if outcome == "" {
		outcome = "unknown"
	}
	m.arbitrage.WithLabelValues(outcome).Inc()
	if outcome == "committed" {
		m.profit.Add(float64(vaultProfit))
		m.executorFees.Add(float64(executorFee))
	}
}

func (m *VaultMetrics) SetValuation(balance, totalShares uint64) {
	if m == nil {
		return
	}
	m.balance.Set(float64(balance))
	m.totalShares.Set(float64(totalShares))
}

func normalizeToken(token string) string {
	normalized := strings.TrimSpace(strings.ToUpper(token))
	if normalized == "" {
		return "UNKNOWN"
	}
	return normalized
}
