package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"nftmarket/core/events"
	"nftmarket/native/marketplace"
)

type MarketMetrics struct {
	instructions *prometheus.CounterVec
	latency      *prometheus.HistogramVec
	height       prometheus.Gauge
	activeList   *prometheus.GaugeVec
	events       *prometheus.CounterVec
	saleVolume   *prometheus.CounterVec
	feesCollect  *prometheus.CounterVec
}

var (
	marketOnce     sync.Once
	marketRegistry *MarketMetrics
)

func Market() *MarketMetrics {
	marketOnce.Do(func() {
		marketRegistry = &MarketMetrics{
			instructions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "nftmarket_instructions_total",
				Help: "Count of ledger instructions by kind and outcome.",
			}, []string{"instruction", "outcome"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "nftmarket_instruction_duration_seconds",
				Help:    "Time spent executing and committing ledger instructions.",
				Buckets: prometheus.DefBuckets,
			}, []string{"instruction"}),
			height: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "nftmarket_ledger_height",
				Help: "Height of the last committed ledger instruction.",
			}),
			activeList: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "nftmarket_active_listings",
				Help: "Listings currently escrowed per marketplace.",
			}, []string{"marketplace"}),
			events: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "nftmarket_events_total",
				Help: "Count of committed marketplace events by type.",
			}, []string{"type"}),
			saleVolume: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "nftmarket_sale_volume_lamports_total",
				Help: "Lamports paid by buyers per marketplace.",
			}, []string{"marketplace"}),
			feesCollect: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "nftmarket_fees_lamports_total",
				Help: "Lamports routed to the treasury per marketplace.",
			}, []string{"marketplace"}),
		}
		prometheus.MustRegister(
			marketRegistry.instructions,
			marketRegistry.latency,
			marketRegistry.height,
			marketRegistry.activeList,
			marketRegistry.events,
			marketRegistry.saleVolume,
			marketRegistry.feesCollect,
		)
	})
	return marketRegistry
}

// ObserveInstruction records one ledger instruction. err is nil for
// committed instructions.
func (m *MarketMetrics) ObserveInstruction(kind string, err error, duration time.Duration) {
	if m == nil {
		return
	}
	if kind == "" {
		kind = "unknown"
	}
	outcome := "committed"
	if err != nil {
		outcome = "rejected"
	}
	m.instructions.WithLabelValues(kind, outcome).Inc()
	m.latency.WithLabelValues(kind).Observe(duration.Seconds())
}

func (m *MarketMetrics) SetHeight(height uint64) {
	if m == nil {
		return
	}
	m.height.Set(float64(height))
}

// Emit implements events.Emitter so the registry can be attached to the
// ledger's committed event stream.
func (m *MarketMetrics) Emit(evt events.Event) {
	if m == nil || evt == nil {
		return
	}
	m.events.WithLabelValues(evt.EventType()).Inc()
	body := events.BodyOf(evt)
	if body == nil {
		return
	}
	market := body.Attributes["marketplace"]
	switch evt.EventType() {
	case marketplace.EventTypeListingCreated:
		m.activeList.WithLabelValues(market).Inc()
	case marketplace.EventTypeListingDelisted:
		m.activeList.WithLabelValues(market).Dec()
	case marketplace.EventTypeListingPurchased:
		m.activeList.WithLabelValues(market).Dec()
		if price, err := strconv.ParseUint(body.Attributes["price"], 10, 64); err == nil {
			m.saleVolume.WithLabelValues(market).Add(float64(price))
		}
		if fee, err := strconv.ParseUint(body.Attributes["fee"], 10, 64); err == nil {
			m.feesCollect.WithLabelValues(market).Add(float64(fee))
		}
	}
}
