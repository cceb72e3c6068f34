// Package metrics provides Prometheus metrics for archpub runs. Because the
// tool is a short-lived CLI, metrics are written to a node-exporter textfile
// at exit instead of being served.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const Namespace = "archpub"

var (
	// APIRequestsTotal counts Confluence REST calls by operation and HTTP status.
	APIRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "confluence_requests_total",
		Help:      "Total Confluence API requests by operation and status",
	}, []string{"operation", "status"})

	// APIRequestDuration measures Confluence REST latency.
	APIRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: Namespace,
		Name:      "confluence_request_duration_seconds",
		Help:      "Confluence API latency by operation",
		Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
	}, []string{"operation"})

	// PagesTotal counts publish outcomes: created or updated.
	PagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "pages_total",
		Help:      "Pages published by action",
	}, []string{"action"})

	// AttachmentsTotal counts attachment handling: uploaded or skipped.
	AttachmentsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "attachments_total",
		Help:      "Attachments handled by action",
	}, []string{"action"})

	// AttachmentWait measures how long the attachment took to become listed.
	AttachmentWait = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: Namespace,
		Name:      "attachment_wait_seconds",
		Help:      "Time until an uploaded attachment became visible",
		Buckets:   []float64{.1, .5, 1, 2, 5, 10, 30, 60},
	})

	// AttachmentWaitTimeouts counts settle waits that gave up.
	AttachmentWaitTimeouts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "attachment_wait_timeouts_total",
		Help:      "Attachment readiness polls that timed out",
	})

	// GenerationsTotal counts content generation by generator and status.
	GenerationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "content_generations_total",
		Help:      "Content generations by generator and status",
	}, []string{"generator", "status"})

	// GenerationDuration measures content generation latency.
	GenerationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: Namespace,
		Name:      "content_generation_duration_seconds",
		Help:      "Content generation latency by generator",
		Buckets:   []float64{.01, .1, .5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"generator"})

	// DiagramRenders counts diagram renders by status.
	DiagramRenders = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "diagram_renders_total",
		Help:      "Diagram render attempts by status",
	}, []string{"status"})

	// LastRunTimestamp records when the tool last completed a command.
	LastRunTimestamp = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: Namespace,
		Name:      "last_run_timestamp_seconds",
		Help:      "Unix time of the last completed run by command and status",
	}, []string{"command", "status"})
)

// Status converts an error into a label value.
func Status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// HTTPStatus converts a status code into a label value.
func HTTPStatus(code int) string {
	if code == 0 {
		return "transport_error"
	}
	return fmt.Sprintf("%d", code)
}

// ObserveAPI records one Confluence request.
func ObserveAPI(operation string, code int, started time.Time) {
	APIRequestsTotal.WithLabelValues(operation, HTTPStatus(code)).Inc()
	APIRequestDuration.WithLabelValues(operation).Observe(time.Since(started).Seconds())
}

// MarkRun stamps the completion time of a command.
func MarkRun(command string, err error) {
	LastRunTimestamp.WithLabelValues(command, Status(err)).SetToCurrentTime()
}

// WriteTextfile dumps the default registry to path. An empty path is a no-op.
func WriteTextfile(path string) error {
	if path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, prometheus.DefaultGatherer); err != nil {
		return fmt.Errorf("failed to write metrics to %s: %w", path, err)
	}
	return nil
}
