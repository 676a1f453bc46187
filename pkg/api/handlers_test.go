package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"

	"github.com/clipper-ai/clipperd/pkg/models"
	"github.com/clipper-ai/clipperd/pkg/store"
	"github.com/clipper-ai/clipperd/pkg/upload"
)

// stubJobs is a canned JobService recording submissions
type stubJobs struct {
	submitted []struct {
		Type models.JobType
		Data models.JobData
	}
	jobs map[string]*models.Job
}

func newStubJobs() *stubJobs {
	return &stubJobs{jobs: make(map[string]*models.Job)}
}

func (s *stubJobs) Submit(jobType models.JobType, data models.JobData) (*models.Job, error) {
	s.submitted = append(s.submitted, struct {
		Type models.JobType
		Data models.JobData
	}{jobType, data})

	job := &models.Job{
		ID:        fmt.Sprintf("job-%d", len(s.submitted)),
		Type:      jobType,
		Status:    models.JobStatusPending,
		Data:      data,
		CreatedAt: time.Now(),
	}
	s.jobs[job.ID] = job
	return job, nil
}

func (s *stubJobs) Get(id string) (*models.Job, error) {
	job, ok := s.jobs[id]
	if !ok {
		return nil, store.ErrJobNotFound
	}
	return job, nil
}

func (s *stubJobs) List() []*models.Job {
	var out []*models.Job
	for _, job := range s.jobs {
		out = append(out, job)
	}
	return out
}

func newTestServer(t *testing.T, jobs JobService) (*httptest.Server, string) {
	t.Helper()
	outputDir := t.TempDir()
	handler := NewHandler(jobs, upload.NewSaver(t.TempDir()), store.NewMemoryStore(), outputDir)

	r := mux.NewRouter()
	handler.RegisterRoutes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, outputDir
}

func uploadRequest(t *testing.T, url, filename, content string) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("video", filename)
	if err != nil {
		t.Fatalf("Failed to build form: %v", err)
	}
	part.Write([]byte(content))
	writer.Close()

	resp, err := http.Post(url+"/api/jobs/upload", writer.FormDataContentType(), &buf)
	if err != nil {
		t.Fatalf("Upload request failed: %v", err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, out interface{}) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
}

func TestUploadVideo(t *testing.T) {
	jobs := newStubJobs()
	srv, _ := newTestServer(t, jobs)

	resp := uploadRequest(t, srv.URL, "talk.mp4", "video bytes")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}

	var body struct {
		Success bool   `json:"success"`
		JobID   string `json:"jobId"`
	}
	decodeBody(t, resp, &body)
	if !body.Success || body.JobID == "" {
		t.Errorf("Unexpected response: %+v", body)
	}

	if len(jobs.submitted) != 1 {
		t.Fatalf("Expected 1 submission, got %d", len(jobs.submitted))
	}
	sub := jobs.submitted[0]
	if sub.Type != models.JobTypeProcessUpload {
		t.Errorf("Expected process_upload, got %s", sub.Type)
	}
	if sub.Data.OriginalName != "talk.mp4" {
		t.Errorf("Expected original name talk.mp4, got %s", sub.Data.OriginalName)
	}
	if sub.Data.FilePath == "" || sub.Data.Filename == "" {
		t.Errorf("Expected stored file references, got %+v", sub.Data)
	}
}

func TestUploadVideoMissingFile(t *testing.T) {
	srv, _ := newTestServer(t, newStubJobs())

	resp, err := http.Post(srv.URL+"/api/jobs/upload", "multipart/form-data", nil)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", resp.StatusCode)
	}

	var body struct {
		Error string `json:"error"`
	}
	decodeBody(t, resp, &body)
	if body.Error != "No video file provided" {
		t.Errorf("Unexpected error message: %q", body.Error)
	}
}

// TestUploadDedup verifies repeat uploads under the same name point the new
// job at the already stored file
func TestUploadDedup(t *testing.T) {
	jobs := newStubJobs()
	srv, _ := newTestServer(t, jobs)

	resp := uploadRequest(t, srv.URL, "talk.mp4", "bytes")
	resp.Body.Close()
	resp = uploadRequest(t, srv.URL, "talk.mp4", "bytes")
	resp.Body.Close()

	if len(jobs.submitted) != 2 {
		t.Fatalf("Expected 2 submissions, got %d", len(jobs.submitted))
	}
	if jobs.submitted[0].Data.FilePath != jobs.submitted[1].Data.FilePath {
		t.Errorf("Expected both jobs to share the stored file, got %s vs %s",
			jobs.submitted[0].Data.FilePath, jobs.submitted[1].Data.FilePath)
	}
	if jobs.submitted[1].Data.Filename != jobs.submitted[0].Data.Filename {
		t.Errorf("Expected second job to reuse the stored filename, got %s vs %s",
			jobs.submitted[1].Data.Filename, jobs.submitted[0].Data.Filename)
	}
}

func TestSubmitURL(t *testing.T) {
	jobs := newStubJobs()
	srv, _ := newTestServer(t, jobs)

	resp, err := http.Post(srv.URL+"/api/jobs/url", "application/json",
		strings.NewReader(`{"url":"https://example.com/watch?v=abc"}`))
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	if len(jobs.submitted) != 1 || jobs.submitted[0].Type != models.JobTypeDownloadVideo {
		t.Fatalf("Expected one download_video submission, got %+v", jobs.submitted)
	}
	if jobs.submitted[0].Data.URL != "https://example.com/watch?v=abc" {
		t.Errorf("URL not forwarded: %s", jobs.submitted[0].Data.URL)
	}
}

func TestSubmitURLMissing(t *testing.T) {
	srv, _ := newTestServer(t, newStubJobs())

	for _, body := range []string{`{}`, `{"url":""}`, `not json`} {
		resp, err := http.Post(srv.URL+"/api/jobs/url", "application/json", strings.NewReader(body))
		if err != nil {
			t.Fatalf("Request failed: %v", err)
		}
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("Body %q: expected 400, got %d", body, resp.StatusCode)
		}
		resp.Body.Close()
	}
}

func TestListJobsEmpty(t *testing.T) {
	srv, _ := newTestServer(t, newStubJobs())

	resp, err := http.Get(srv.URL + "/api/jobs")
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	var jobs []models.Job
	decodeBody(t, resp, &jobs)
	if jobs == nil {
		t.Error("Expected empty array, got null")
	}
	if len(jobs) != 0 {
		t.Errorf("Expected no jobs, got %d", len(jobs))
	}
}

func TestGetJob(t *testing.T) {
	jobs := newStubJobs()
	failed := &models.Job{
		ID:     "failed-job",
		Type:   models.JobTypeDownloadVideo,
		Status: models.JobStatusFailed,
		Error:  "all download providers failed: yt-dlp: timeout",
	}
	jobs.jobs[failed.ID] = failed

	srv, _ := newTestServer(t, jobs)

	// A failed job still answers 200
	resp, err := http.Get(srv.URL + "/api/jobs/failed-job")
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected 200 for failed job, got %d", resp.StatusCode)
	}
	var got models.Job
	decodeBody(t, resp, &got)
	if got.Status != models.JobStatusFailed || got.Error == "" {
		t.Errorf("Failure not visible in body: %+v", got)
	}

	resp, err = http.Get(srv.URL + "/api/jobs/missing")
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", resp.StatusCode)
	}
}

func TestExportClip(t *testing.T) {
	jobs := newStubJobs()
	source := &models.Job{
		ID:     "source-job",
		Type:   models.JobTypeProcessUpload,
		Status: models.JobStatusCompleted,
		Data:   models.JobData{FilePath: "/uploads/123-000000001.mp4"},
	}
	jobs.jobs[source.ID] = source

	srv, _ := newTestServer(t, jobs)

	resp, err := http.Post(srv.URL+"/api/jobs/export", "application/json",
		strings.NewReader(`{"jobId":"source-job","start":12.5,"end":47.0}`))
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}

	var body struct {
		Success     bool   `json:"success"`
		ExportJobID string `json:"exportJobId"`
	}
	decodeBody(t, resp, &body)
	if !body.Success || body.ExportJobID == "" {
		t.Errorf("Unexpected response: %+v", body)
	}

	sub := jobs.submitted[len(jobs.submitted)-1]
	if sub.Type != models.JobTypeRenderClip {
		t.Errorf("Expected render_clip, got %s", sub.Type)
	}
	if sub.Data.SourcePath != "/uploads/123-000000001.mp4" {
		t.Errorf("Expected source path from original job, got %s", sub.Data.SourcePath)
	}
	if sub.Data.OriginalJobID != "source-job" {
		t.Errorf("Expected original job id, got %s", sub.Data.OriginalJobID)
	}
	if sub.Data.Start == nil || *sub.Data.Start != 12.5 || sub.Data.End == nil || *sub.Data.End != 47.0 {
		t.Errorf("Clip bounds not forwarded: %+v", sub.Data)
	}
	if sub.Data.Ratio != 9.0/16.0 {
		t.Errorf("Expected default ratio 9/16, got %f", sub.Data.Ratio)
	}
}

func TestExportClipValidation(t *testing.T) {
	jobs := newStubJobs()
	jobs.jobs["no-file"] = &models.Job{ID: "no-file", Type: models.JobTypeDownloadVideo}
	srv, _ := newTestServer(t, jobs)

	cases := []struct {
		body string
		want int
	}{
		{`{"start":1,"end":2}`, http.StatusBadRequest},            // no jobId
		{`{"jobId":"source-job","end":2}`, http.StatusBadRequest}, // no start
		{`{"jobId":"source-job","start":1}`, http.StatusBadRequest},
		{`{"jobId":"missing","start":1,"end":2}`, http.StatusNotFound},
		{`{"jobId":"no-file","start":1,"end":2}`, http.StatusNotFound}, // job without video
	}
	for _, tc := range cases {
		resp, err := http.Post(srv.URL+"/api/jobs/export", "application/json", strings.NewReader(tc.body))
		if err != nil {
			t.Fatalf("Request failed: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != tc.want {
			t.Errorf("Body %q: expected %d, got %d", tc.body, tc.want, resp.StatusCode)
		}
	}
}

func TestExportClipExplicitRatio(t *testing.T) {
	jobs := newStubJobs()
	jobs.jobs["src"] = &models.Job{ID: "src", Data: models.JobData{FilePath: "/uploads/a.mp4"}}
	srv, _ := newTestServer(t, jobs)

	resp, err := http.Post(srv.URL+"/api/jobs/export", "application/json",
		strings.NewReader(`{"jobId":"src","start":0,"end":5,"ratio":1.0}`))
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	resp.Body.Close()

	sub := jobs.submitted[len(jobs.submitted)-1]
	if sub.Data.Ratio != 1.0 {
		t.Errorf("Expected ratio 1.0, got %f", sub.Data.Ratio)
	}
}

func TestDownloadFile(t *testing.T) {
	srv, outputDir := newTestServer(t, newStubJobs())

	path := filepath.Join(outputDir, "clip-job-1.mp4")
	if err := os.WriteFile(path, []byte("rendered clip"), 0644); err != nil {
		t.Fatalf("Failed to write clip: %v", err)
	}

	resp, err := http.Get(srv.URL + "/api/jobs/download/clip-job-1.mp4")
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	if cd := resp.Header.Get("Content-Disposition"); !strings.Contains(cd, "clip-job-1.mp4") {
		t.Errorf("Expected attachment disposition, got %q", cd)
	}

	resp, err = http.Get(srv.URL + "/api/jobs/download/missing.mp4")
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", resp.StatusCode)
	}
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t, newStubJobs())

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}

	var body struct {
		Status string `json:"status"`
		Uptime string `json:"uptime"`
	}
	decodeBody(t, resp, &body)
	if body.Status != "ok" {
		t.Errorf("Expected ok status, got %q", body.Status)
	}
	if body.Uptime == "" {
		t.Error("Expected uptime in health response")
	}
}

func TestRootBanner(t *testing.T) {
	srv, _ := newTestServer(t, newStubJobs())

	resp, err := http.Get(srv.URL + "/")
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	buf := make([]byte, 256)
	n, _ := resp.Body.Read(buf)
	if !strings.Contains(string(buf[:n]), "clipperd API is running") {
		t.Errorf("Unexpected banner: %q", buf[:n])
	}
}
