// Package metrics exposes Prometheus metrics for the job server.
package metrics

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"

	"github.com/clipper-ai/clipperd/pkg/models"
	"github.com/clipper-ai/clipperd/pkg/store"
)

// Exporter serves Prometheus-compatible metrics driven by store aggregates
type Exporter struct {
	store     store.Store
	startTime time.Time
}

// NewExporter creates a metrics exporter reading from the given store
func NewExporter(s store.Store) *Exporter {
	return &Exporter{
		store:     s,
		startTime: time.Now(),
	}
}

// ServeHTTP serves metrics at /metrics
func (e *Exporter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")

	jobMetrics, err := e.store.JobMetrics()
	if err != nil {
		http.Error(w, fmt.Sprintf("Error collecting job metrics: %v", err), http.StatusInternalServerError)
		return
	}

	statuses := []models.JobStatus{
		models.JobStatusPending,
		models.JobStatusProcessing,
		models.JobStatusCompleted,
		models.JobStatusFailed,
	}
	types := []models.JobType{
		models.JobTypeProcessUpload,
		models.JobTypeDownloadVideo,
		models.JobTypeAnalyzeVideo,
		models.JobTypeRenderClip,
	}

	// clipperd_jobs_total{state}. Every state is exported even at 0.
	fmt.Fprintf(w, "# HELP clipperd_jobs_total Total number of jobs by state\n")
	fmt.Fprintf(w, "# TYPE clipperd_jobs_total counter\n")
	for _, s := range statuses {
		fmt.Fprintf(w, "clipperd_jobs_total{state=\"%s\"} %d\n", s, jobMetrics.JobsByState[s])
	}

	fmt.Fprintf(w, "\n# HELP clipperd_jobs_by_type Total number of jobs by type\n")
	fmt.Fprintf(w, "# TYPE clipperd_jobs_by_type counter\n")
	for _, t := range types {
		fmt.Fprintf(w, "clipperd_jobs_by_type{type=\"%s\"} %d\n", t, jobMetrics.JobsByType[t])
	}

	fmt.Fprintf(w, "\n# HELP clipperd_active_jobs Number of currently executing jobs\n")
	fmt.Fprintf(w, "# TYPE clipperd_active_jobs gauge\n")
	fmt.Fprintf(w, "clipperd_active_jobs %d\n", jobMetrics.ActiveJobs)

	fmt.Fprintf(w, "\n# HELP clipperd_queue_length Number of jobs waiting in the queue\n")
	fmt.Fprintf(w, "# TYPE clipperd_queue_length gauge\n")
	fmt.Fprintf(w, "clipperd_queue_length %d\n", jobMetrics.QueueLength)

	fmt.Fprintf(w, "\n# HELP clipperd_job_duration_seconds Average completed job duration in seconds\n")
	fmt.Fprintf(w, "# TYPE clipperd_job_duration_seconds gauge\n")
	fmt.Fprintf(w, "clipperd_job_duration_seconds %.2f\n", jobMetrics.AvgDuration)

	fmt.Fprintf(w, "\n# HELP clipperd_uptime_seconds Time since the server started\n")
	fmt.Fprintf(w, "# TYPE clipperd_uptime_seconds gauge\n")
	fmt.Fprintf(w, "clipperd_uptime_seconds %.0f\n", time.Since(e.startTime).Seconds())

	// Append the client library's default registry (runtime and process
	// collectors) through the text encoder
	fmt.Fprintf(w, "\n")

	metricFamilies, err := promclient.DefaultGatherer.Gather()
	if err != nil {
		fmt.Fprintf(w, "# Error gathering Prometheus metrics: %v\n", err)
		return
	}

	var buf bytes.Buffer
	encoder := expfmt.NewEncoder(&buf, expfmt.FmtText)
	for _, mf := range metricFamilies {
		if err := encoder.Encode(mf); err != nil {
			fmt.Fprintf(w, "# Error encoding metric %s: %v\n", mf.GetName(), err)
		}
	}
	w.Write(buf.Bytes())
}
