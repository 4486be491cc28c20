// Package metrics implements the in-process Prometheus registry used for
// diagnostics (§11 DOMAIN STACK): per-handler drop/failure/rate gauges
// and the renderer's frame-time histogram backing the §4.7 frame-budget
// check. Nothing here is scraped over the network in normal operation —
// it is exposed locally for the `opentpt status` control-plane call and
// optional dev inspection.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HandlerFramesDropped counts snapshots dropped from a handler's
	// depth-2 queue due to overflow (§4.1 publish step 2).
	HandlerFramesDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opentpt_handler_frames_dropped_total",
			Help: "Snapshots dropped from a sensor handler's bounded queue",
		},
		[]string{"handler"},
	)

	// HandlerConsecutiveFailures tracks the live backoff failure streak
	// per handler, for the "degraded source" diagnostic.
	HandlerConsecutiveFailures = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "opentpt_handler_consecutive_failures",
			Help: "Current consecutive read-failure count for a sensor handler",
		},
		[]string{"handler"},
	)

	// HandlerUpdateRateHz reports each handler's observed publish rate.
	HandlerUpdateRateHz = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "opentpt_handler_update_rate_hz",
			Help: "Observed snapshot publish rate per sensor handler",
		},
		[]string{"handler"},
	)

	// RenderFrameSeconds is the per-frame render-time distribution, used
	// to detect the "5 consecutive frames exceed render_budget_ms" §4.7
	// condition from the outside (dashboards, `opentpt status`).
	RenderFrameSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "opentpt_render_frame_seconds",
			Help:    "Wall-clock time spent rendering one frame",
			Buckets: prometheus.ExponentialBuckets(0.0005, 1.6, 12), // 0.5ms .. ~100ms
		},
	)

	// RenderBudgetExceededTotal counts frames whose render time exceeded
	// render_budget_ms.
	RenderBudgetExceededTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "opentpt_render_budget_exceeded_total",
			Help: "Frames whose render time exceeded the configured budget",
		},
	)

	// RenderDisplayErrorsTotal counts recovered display errors in the
	// renderer's inner retry loop (§4.7 Crash recovery).
	RenderDisplayErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "opentpt_render_display_errors_total",
			Help: "Recovered display errors tolerated by the renderer's inner retry loop",
		},
	)

	// PitViolationsTotal counts pit-lane speed-limit violations.
	PitViolationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "opentpt_pit_violations_total",
			Help: "Pit-lane speed-limit violations recorded by the pit-timer engine",
		},
	)

	// FuelStatus reports the fuel tracker's current tri-state warning
	// level as a gauge (0=ok, 1=warning, 2=critical).
	FuelStatus = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "opentpt_fuel_status",
			Help: "Fuel tracker tri-state level: 0=ok, 1=warning, 2=critical",
		},
	)

	// LapTimingOutOfOrderCrossingsTotal counts sector-line crossings the
	// lap-timing engine ignored because they arrived out of lap order
	// (§4.3's "ignored with a warning count"); persistent growth is the
	// diagnostic §7 calls out for a protocol violation.
	LapTimingOutOfOrderCrossingsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "opentpt_laptiming_out_of_order_crossings_total",
			Help: "Sector-line crossings ignored for arriving out of lap order",
		},
	)
)
