// Package metrics exposes the engine's prometheus client_golang metrics,
// grounded on the dependency the teacher repo's go.mod already carries
// (github.com/prometheus/client_golang) -- no teacher source wires it
// concretely, so the gauge/counter names and labels here are this engine's
// own, covering the operations spec §6 exposes.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	FillsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dexcore",
		Subsystem: "matching",
		Name:      "fills_total",
		Help:      "Total fill segments executed, labeled by market and liquidity source.",
	}, []string{"market_index", "source"})

	FillRejectionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dexcore",
		Subsystem: "matching",
		Name:      "fill_rejections_total",
		Help:      "Total fills rejected, labeled by reason.",
	}, []string{"reason"})

	LiquidationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dexcore",
		Subsystem: "liquidation",
		Name:      "liquidations_total",
		Help:      "Total liquidations executed, labeled by mode (partial/full).",
	}, []string{"mode"})

	FundingUpdatesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dexcore",
		Subsystem: "funding",
		Name:      "rate_updates_total",
		Help:      "Total funding-rate updates applied, labeled by market.",
	}, []string{"market_index"})

	OpenInterestGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "dexcore",
		Subsystem: "market",
		Name:      "open_interest_base",
		Help:      "Current absolute open interest in base units, labeled by market and side.",
	}, []string{"market_index", "side"})
)

// Register registers every collector in this package against reg. Callers
// typically pass prometheus.DefaultRegisterer.
func Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{
		FillsTotal,
		FillRejectionsTotal,
		LiquidationsTotal,
		FundingUpdatesTotal,
		OpenInterestGauge,
	} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
