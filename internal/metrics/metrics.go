// Package metrics exposes pool and farm activity as Prometheus metrics.
package metrics

import (
	"context"
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/nulln0ne/cpamm/internal/asset"
	"github.com/nulln0ne/cpamm/internal/events"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "cpamm"

// Collector is an events.Sink that counts events and tracks reserves.
type Collector struct {
	gatherer prometheus.Gatherer

	events    *prometheus.CounterVec
	swaps     *prometheus.CounterVec
	lastEvent *prometheus.GaugeVec
	reserves  *prometheus.GaugeVec
	shares    *prometheus.GaugeVec
}

var _ events.Sink = (*Collector)(nil)

// New registers the collectors with reg. gatherer serves them over HTTP.
func New(reg prometheus.Registerer, gatherer prometheus.Gatherer) *Collector {
	f := promauto.With(reg)
	return &Collector{
		gatherer: gatherer,
		events: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Number of recorded pool and farm events",
		}, []string{"source", "kind"}),
		swaps: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "swaps_total",
			Help:      "Number of executed swaps by input asset",
		}, []string{"pool", "token_in"}),
		lastEvent: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_event_timestamp_seconds",
			Help:      "Unix time of the most recent event per source",
		}, []string{"source"}),
		reserves: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "reserve",
			Help:      "Tradable reserve in base units, approximated as a float",
		}, []string{"pool", "asset"}),
		shares: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "total_shares",
			Help:      "Outstanding pool shares in base units, approximated as a float",
		}, []string{"pool"}),
	}
}

// NewDefault registers with the default Prometheus registry.
func NewDefault() *Collector {
	return New(prometheus.DefaultRegisterer, prometheus.DefaultGatherer)
}

func (c *Collector) Record(_ context.Context, e events.Event) error {
	source := e.Source.Hex()
	c.events.WithLabelValues(source, string(e.Kind)).Inc()
	c.lastEvent.WithLabelValues(source).Set(float64(e.Time.Unix()))
	if e.Kind == events.KindSwap {
		c.swaps.WithLabelValues(source, e.Attrs["token_in"]).Inc()
	}
	return nil
}

// ObserveReserves records the reserves and share supply of a pool.
func (c *Collector) ObserveReserves(pool common.Address, assetA asset.Asset, reserveA *uint256.Int, assetB asset.Asset, reserveB *uint256.Int, totalShares *uint256.Int) {
	p := pool.Hex()
	c.reserves.WithLabelValues(p, assetA.String()).Set(toFloat(reserveA))
	c.reserves.WithLabelValues(p, assetB.String()).Set(toFloat(reserveB))
	c.shares.WithLabelValues(p).Set(toFloat(totalShares))
}

// Handler serves the gathered metrics.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}

func toFloat(v *uint256.Int) float64 {
	f, _ := new(big.Float).SetInt(v.ToBig()).Float64()
	return f
}
