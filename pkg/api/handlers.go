// Package api exposes the HTTP surface of the job server: upload and URL
// intake, job status queries, clip export, and artifact downloads.
package api

import (
	"encoding/json"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gorilla/mux"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/clipper-ai/clipperd/pkg/models"
	"github.com/clipper-ai/clipperd/pkg/upload"
)

// maxUploadMemory bounds the in-memory part of multipart parsing; larger
// bodies spill to temp files
const maxUploadMemory = 32 << 20

// JobService is the scheduler surface the handlers depend on
type JobService interface {
	Submit(jobType models.JobType, data models.JobData) (*models.Job, error)
	Get(id string) (*models.Job, error)
	List() []*models.Job
}

// HealthChecker reports whether the durable store is reachable
type HealthChecker interface {
	HealthCheck() error
}

// Handler handles job API requests
type Handler struct {
	jobs      JobService
	saver     *upload.Saver
	health    HealthChecker
	outputDir string
	startTime time.Time
}

// NewHandler creates a new API handler
func NewHandler(jobs JobService, saver *upload.Saver, health HealthChecker, outputDir string) *Handler {
	return &Handler{
		jobs:      jobs,
		saver:     saver,
		health:    health,
		outputDir: outputDir,
		startTime: time.Now(),
	}
}

// RegisterRoutes registers all API routes
func (h *Handler) RegisterRoutes(r *mux.Router) {
	// Specific routes before parameterized ones
	r.HandleFunc("/api/jobs/upload", h.UploadVideo).Methods("POST")
	r.HandleFunc("/api/jobs/url", h.SubmitURL).Methods("POST")
	r.HandleFunc("/api/jobs/export", h.ExportClip).Methods("POST")
	r.HandleFunc("/api/jobs/download/{filename}", h.DownloadFile).Methods("GET")
	r.HandleFunc("/api/jobs", h.ListJobs).Methods("GET")
	r.HandleFunc("/api/jobs/{id}", h.GetJob).Methods("GET")

	r.HandleFunc("/health", h.Health).Methods("GET")
	r.HandleFunc("/", h.Root).Methods("GET")

	// Stored uploads and rendered clips are reachable by generated name
	r.PathPrefix("/uploads/").Handler(
		http.StripPrefix("/uploads/", http.FileServer(http.Dir(h.saver.Dir))))
	r.PathPrefix("/outputs/").Handler(
		http.StripPrefix("/outputs/", http.FileServer(http.Dir(h.outputDir))))
}

// UploadVideo handles multipart video uploads with name-keyed deduplication
func (h *Handler) UploadVideo(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		writeError(w, http.StatusBadRequest, "No video file provided")
		return
	}

	file, header, err := r.FormFile("video")
	if err != nil {
		writeError(w, http.StatusBadRequest, "No video file provided")
		return
	}
	defer file.Close()

	saved, err := h.saver.Save(file, header.Filename)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to store upload")
		return
	}

	if saved.Reused {
		log.Printf("Reusing existing file: %s for %s", saved.Filename, header.Filename)
	} else {
		log.Printf("New file cached: %s -> %s", header.Filename, saved.Filename)
	}

	job, err := h.jobs.Submit(models.JobTypeProcessUpload, models.JobData{
		FilePath:     saved.Path,
		OriginalName: header.Filename,
		Filename:     saved.Filename,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"jobId":   job.ID,
		"message": "Upload received, processing started",
	})
}

type urlRequest struct {
	URL string `json:"url"`
}

// SubmitURL queues a remote video for download and analysis
func (h *Handler) SubmitURL(w http.ResponseWriter, r *http.Request) {
	var req urlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.URL == "" {
		writeError(w, http.StatusBadRequest, "No URL provided")
		return
	}

	job, err := h.jobs.Submit(models.JobTypeDownloadVideo, models.JobData{URL: req.URL})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"jobId":   job.ID,
		"message": "URL job queued",
	})
}

// ListJobs returns the full job history, newest first
func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	jobs := h.jobs.List()
	if jobs == nil {
		jobs = []*models.Job{}
	}
	writeJSON(w, http.StatusOK, jobs)
}

// GetJob returns one job. A failed job still answers 200, since failure is
// communicated through the job body, not the transport status.
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	job, err := h.jobs.Get(id)
	if err != nil {
		writeError(w, http.StatusNotFound, "Job not found")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

type exportRequest struct {
	JobID string   `json:"jobId"`
	Start *float64 `json:"start"`
	End   *float64 `json:"end"`
	Ratio float64  `json:"ratio"`
}

// ExportClip queues a render job cutting a clip out of a completed job's video
func (h *Handler) ExportClip(w http.ResponseWriter, r *http.Request) {
	var req exportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Missing parameters")
		return
	}
	if req.JobID == "" || req.Start == nil || req.End == nil {
		writeError(w, http.StatusBadRequest, "Missing parameters")
		return
	}

	source, err := h.jobs.Get(req.JobID)
	if err != nil || source.Data.FilePath == "" {
		writeError(w, http.StatusNotFound, "Job or video file not found")
		return
	}

	ratio := req.Ratio
	if ratio == 0 {
		ratio = 9.0 / 16.0
	}

	job, err := h.jobs.Submit(models.JobTypeRenderClip, models.JobData{
		OriginalJobID: req.JobID,
		SourcePath:    source.Data.FilePath,
		Start:         req.Start,
		End:           req.End,
		Ratio:         ratio,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":     true,
		"exportJobId": job.ID,
	})
}

// DownloadFile streams a rendered clip from the output directory
func (h *Handler) DownloadFile(w http.ResponseWriter, r *http.Request) {
	// Base() strips any path traversal attempt from the name
	filename := filepath.Base(mux.Vars(r)["filename"])
	path := filepath.Join(h.outputDir, filename)

	if _, err := os.Stat(path); err != nil {
		writeError(w, http.StatusNotFound, "File not found")
		return
	}

	w.Header().Set("Content-Disposition", "attachment; filename=\""+filename+"\"")
	http.ServeFile(w, r, path)
}

// Health reports service liveness, store reachability, and a system snapshot
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	if h.health != nil {
		if err := h.health.HealthCheck(); err != nil {
			status = "degraded"
		}
	}

	system := map[string]interface{}{}
	if cores, err := cpu.Counts(true); err == nil {
		system["cpu_threads"] = cores
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		system["memory_total_bytes"] = vm.Total
		system["memory_used_percent"] = vm.UsedPercent
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    status,
		"timestamp": time.Now(),
		"uptime":    time.Since(h.startTime).String(),
		"system":    system,
	})
}

// Root answers a plain banner so a browser hit shows something useful
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("clipperd API is running. Use /api/jobs for interactions.\n"))
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
