package queue

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/clipper-ai/clipperd/pkg/download"
	"github.com/clipper-ai/clipperd/pkg/models"
	"github.com/clipper-ai/clipperd/pkg/pipeline"
	"github.com/clipper-ai/clipperd/pkg/runner"
	"github.com/clipper-ai/clipperd/pkg/store"
)

type brokenPrimary struct{}

func (brokenPrimary) Name() string { return "yt-dlp" }
func (brokenPrimary) Resolve(ctx context.Context, url, outputDir string) (string, error) {
	return "", errors.New("yt-dlp failed: HTTP Error 403")
}

// scriptedInvoker fakes the analysis and render programs
type scriptedInvoker struct{}

func (scriptedInvoker) Invoke(ctx context.Context, program string, args []string, onLine runner.LineFunc) (runner.Result, error) {
	script := filepath.Base(args[0])
	switch script {
	case "detector.py":
		return runner.Result{Payload: map[string]interface{}{
			"clips": []interface{}{
				map[string]interface{}{"start": 5.0, "end": 20.0, "score": 0.95},
			},
		}}, nil
	case "render_clip.py":
		return runner.Result{Payload: map[string]interface{}{"success": true}}, nil
	}
	return runner.Result{}, errors.New("unknown script " + script)
}

// TestURLJobThenExport walks a URL submission through download fallback and
// analysis, then exports a clip from the resolved video
func TestURLJobThenExport(t *testing.T) {
	media := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("video bytes"))
	}))
	defer media.Close()

	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"url": media.URL, "filename": "clip"})
	}))
	defer provider.Close()

	uploadDir := t.TempDir()
	outputDir := t.TempDir()

	chain := download.NewChain([]download.Provider{{Name: "cobalt-main", URL: provider.URL}})
	chain.Primary = brokenPrimary{}
	chain.Pause = 0

	proc := pipeline.New(chain, "python", uploadDir, outputDir)
	proc.Invoker = scriptedInvoker{}

	st := store.NewMemoryStore()
	s := New(st, proc)

	// Submit the URL job: primary fails, the provider serves the bytes
	job, err := s.Submit(models.JobTypeDownloadVideo, models.JobData{URL: "https://example.com/watch?v=abc"})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	waitFor(t, s.Idle, "download job to settle")

	done, err := s.Get(job.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if done.Status != models.JobStatusCompleted {
		t.Fatalf("Expected completed, got %s (%s)", done.Status, done.Error)
	}
	if filepath.Base(done.Data.FilePath) != "clip.mp4" {
		t.Errorf("Expected fallback download stored as clip.mp4, got %s", done.Data.FilePath)
	}
	if done.Result == nil || len(done.Result.Clips) != 1 {
		t.Fatalf("Expected one detected clip, got %+v", done.Result)
	}
	if done.Result.Clips[0].Start != 5.0 {
		t.Errorf("Clip bounds did not survive the pipeline: %+v", done.Result.Clips[0])
	}

	// Export a clip from the analyzed video
	start, end := 5.0, 20.0
	export, err := s.Submit(models.JobTypeRenderClip, models.JobData{
		OriginalJobID: done.ID,
		SourcePath:    done.Data.FilePath,
		Start:         &start,
		End:           &end,
		Ratio:         9.0 / 16.0,
	})
	if err != nil {
		t.Fatalf("Export submit failed: %v", err)
	}

	waitFor(t, s.Idle, "export job to settle")

	rendered, _ := s.Get(export.ID)
	if rendered.Status != models.JobStatusCompleted {
		t.Fatalf("Expected export completed, got %s (%s)", rendered.Status, rendered.Error)
	}
	if rendered.Result == nil || rendered.Result.OutputFilename != "clip-"+export.ID+".mp4" {
		t.Errorf("Expected output clip-%s.mp4, got %+v", export.ID, rendered.Result)
	}
	if !strings.HasPrefix(rendered.Result.LocalPath, outputDir) {
		t.Errorf("Expected rendered clip under the output dir, got %s", rendered.Result.LocalPath)
	}

	// Both jobs are in the durable history, newest first
	all := s.List()
	if len(all) != 2 {
		t.Fatalf("Expected 2 jobs in history, got %d", len(all))
	}
}
