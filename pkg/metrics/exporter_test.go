package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/clipper-ai/clipperd/pkg/models"
	"github.com/clipper-ai/clipperd/pkg/store"
)

func TestExporterServesJobMetrics(t *testing.T) {
	st := store.NewMemoryStore()

	started := time.Now().Add(-10 * time.Second)
	ended := started.Add(2 * time.Second)
	st.InsertJob(&models.Job{
		ID: "a", Type: models.JobTypeProcessUpload, Status: models.JobStatusCompleted,
		StartedAt: &started, EndedAt: &ended, CreatedAt: time.Now(),
	})
	st.InsertJob(&models.Job{
		ID: "b", Type: models.JobTypeDownloadVideo, Status: models.JobStatusPending,
		CreatedAt: time.Now(),
	})

	exporter := NewExporter(st)
	srv := httptest.NewServer(exporter)
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read body: %v", err)
	}
	out := string(body)

	expected := []string{
		`clipperd_jobs_total{state="completed"} 1`,
		`clipperd_jobs_total{state="pending"} 1`,
		`clipperd_jobs_total{state="failed"} 0`,
		`clipperd_jobs_by_type{type="process_upload"} 1`,
		"clipperd_active_jobs 0",
		"clipperd_queue_length 1",
		"clipperd_job_duration_seconds 2.00",
		"clipperd_uptime_seconds",
	}
	for _, want := range expected {
		if !strings.Contains(out, want) {
			t.Errorf("Expected metrics output to contain %q", want)
		}
	}

	// The default registry's runtime collectors ride along
	if !strings.Contains(out, "go_goroutines") {
		t.Error("Expected runtime metrics appended to the exposition")
	}
}
