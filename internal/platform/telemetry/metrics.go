// Package telemetry exposes prometheus metrics for the transactional
// consistency layer: unit-of-work outcomes and latency, retry volume,
// the store's transaction capability, and invariant conflicts surfaced
// to callers.
package telemetry

import (
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricPrefix = "clinicore_"

var (
	registerOnce sync.Once

	txUnits    *prometheus.CounterVec
	txRetries  *prometheus.CounterVec
	txDuration *prometheus.HistogramVec

	txCapability prometheus.Gauge

	conflicts *prometheus.CounterVec
)

// Init registers the consistency-layer metrics. Safe to call more than
// once; only the first call registers.
func Init() {
	registerOnce.Do(func() {
		txUnits = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "tx_units_total",
				Help: "Units of work by name and outcome",
			},
			[]string{"unit", "outcome"},
		)
		txRetries = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "tx_retries_total",
				Help: "Transient-conflict retries by unit name",
			},
			[]string{"unit"},
		)
		txDuration = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "tx_duration_seconds",
				Help:    "Unit-of-work duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"unit", "outcome"},
		)

		txCapability = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "tx_capability_supported",
				Help: "1 when the store runs multi-document transactions, 0 when units fall back to sequential writes",
			},
		)

		conflicts = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "consistency_conflicts_total",
				Help: "Invariant conflicts surfaced to callers by resource and kind",
			},
			[]string{"resource", "kind"},
		)

		prometheus.MustRegister(
			txUnits,
			txRetries,
			txDuration,
			txCapability,
			conflicts,
		)
	})
}

// ObserveTx records one finished unit of work.
func ObserveTx(unit, outcome string, duration time.Duration) {
	if unit == "" {
		unit = "unknown"
	}
	if txUnits != nil {
		txUnits.WithLabelValues(unit, outcome).Inc()
	}
	if txDuration != nil {
		txDuration.WithLabelValues(unit, outcome).Observe(duration.Seconds())
	}
}

// AddTxRetry counts one transient-conflict retry.
func AddTxRetry(unit string) {
	if unit == "" {
		unit = "unknown"
	}
	if txRetries != nil {
		txRetries.WithLabelValues(unit).Inc()
	}
}

// SetTxCapability records the probed or downgraded capability state.
func SetTxCapability(supported bool) {
	if txCapability == nil {
		return
	}
	if supported {
		txCapability.Set(1)
	} else {
		txCapability.Set(0)
	}
}

// AddConflict counts a version, stock, or slot conflict returned to a
// caller. Kind is one of "version", "stock", "slot".
func AddConflict(resource, kind string) {
	if conflicts != nil {
		conflicts.WithLabelValues(resource, kind).Inc()
	}
}

// EchoHandler serves the prometheus text exposition for /metrics.
func EchoHandler() echo.HandlerFunc {
	return echo.WrapHandler(promhttp.Handler())
}
