// Package metrics implements Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FramesCapturedTotal counts frames read from the active handle
	FramesCapturedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "netanalyzer_frames_captured_total",
			Help: "Total number of frames read from the capture handle",
		},
		[]string{"device"},
	)

	// FramesDiscardedTotal counts frames dropped before reaching the report
	FramesDiscardedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "netanalyzer_frames_discarded_total",
			Help: "Total number of frames discarded before aggregation",
		},
		[]string{"reason"}, // state | queue_full | dissect
	)

	// ReportMergesTotal counts records merged into the report
	ReportMergesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "netanalyzer_report_merges_total",
			Help: "Total number of packet records merged into the report",
		},
	)

	// ReportConversations tracks the number of conversations in the report
	ReportConversations = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "netanalyzer_report_conversations",
			Help: "Current number of conversations in the report",
		},
	)

	// FlushTotal counts flush cycles by result
	FlushTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "netanalyzer_flush_total",
			Help: "Total number of report flush cycles",
		},
		[]string{"result"}, // ok | error
	)

	// FlushDurationSeconds measures snapshot + write latency
	FlushDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "netanalyzer_flush_duration_seconds",
			Help:    "Latency of report flushes in seconds",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 16), // 100µs to ~3s
		},
	)

	// CaptureErrorsTotal counts capture-layer errors by stage
	CaptureErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "netanalyzer_capture_errors_total",
			Help: "Total number of capture errors",
		},
		[]string{"stage"}, // read | filter | device
	)

	// ErrorQueueLength tracks pending operator-visible errors
	ErrorQueueLength = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "netanalyzer_error_queue_length",
			Help: "Number of errors waiting in the session error queue",
		},
	)

	// WorkerQueueDepth tracks dissection tasks waiting for a worker
	WorkerQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "netanalyzer_worker_queue_depth",
			Help: "Number of dissection tasks queued in the worker pool",
		},
	)

	// ControlRequestsTotal counts control socket requests by method and outcome
	ControlRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "netanalyzer_control_requests_total",
			Help: "Total number of control plane requests",
		},
		[]string{"method", "result"}, // result: ok | error
	)

	// SessionState tracks the capture state
	SessionState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "netanalyzer_session_state",
			Help: "Current capture state (0=stopped, 1=capturing, 2=paused)",
		},
	)
)

// Session state values for the SessionState gauge
const (
	SessionStateStopped   = 0
	SessionStateCapturing = 1
	SessionStatePaused    = 2
)
