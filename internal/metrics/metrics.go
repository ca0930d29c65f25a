package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// TelemetryFramesTotal counts decoded serial frames.
	TelemetryFramesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "paneldash_telemetry_frames_total",
			Help: "Total number of telemetry frames decoded from the serial link.",
		},
	)

	// TelemetryFrameErrorsTotal counts discarded frames.
	TelemetryFrameErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "paneldash_telemetry_frame_errors_total",
			Help: "Total number of serial frames discarded as malformed or oversized.",
		},
	)

	// SyncCyclesTotal counts coordinator poll cycles by terminal result.
	SyncCyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "paneldash_sync_cycles_total",
			Help: "Total number of entity sync cycles by result.",
		},
		[]string{"result"}, // synced/partial/failed
	)

	// HTTPRequestsTotal counts REST attempts by method and outcome class.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "paneldash_http_requests_total",
			Help: "Total number of REST requests by method and outcome.",
		},
		[]string{"method", "outcome"}, // outcome: ok/transport/protocol/precondition
	)

	// ParseJobsTotal counts async parse jobs.
	ParseJobsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "paneldash_parse_jobs_total",
			Help: "Total number of bulk payloads routed through the parse worker.",
		},
	)

	// UIGateDropsTotal counts display updates dropped on gate timeout.
	UIGateDropsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "paneldash_ui_gate_drops_total",
			Help: "Total number of display updates dropped because the UI gate stayed busy.",
		},
	)
)

func init() {
	prometheus.MustRegister(TelemetryFramesTotal)
	prometheus.MustRegister(TelemetryFrameErrorsTotal)
	prometheus.MustRegister(SyncCyclesTotal)
	prometheus.MustRegister(HTTPRequestsTotal)
	prometheus.MustRegister(ParseJobsTotal)
	prometheus.MustRegister(UIGateDropsTotal)
}
