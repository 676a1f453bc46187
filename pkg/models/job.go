package models

import (
	"fmt"
	"time"
)

// JobStatus represents the lifecycle state of a job
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Terminal reports whether the status is a terminal state
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// JobType determines which pipeline stages run for a job
type JobType string

const (
	JobTypeProcessUpload JobType = "process_upload"
	JobTypeDownloadVideo JobType = "download_video"
	JobTypeAnalyzeVideo  JobType = "analyze_video"
	JobTypeRenderClip    JobType = "render_clip"
)

// Valid reports whether t is a known job type
func (t JobType) Valid() bool {
	switch t {
	case JobTypeProcessUpload, JobTypeDownloadVideo, JobTypeAnalyzeVideo, JobTypeRenderClip:
		return true
	}
	return false
}

// Clip is a single highlight detected by the analysis program
type Clip struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Score float64 `json:"score,omitempty"`
	Text  string  `json:"text,omitempty"`
}

// JobData carries the type-dependent inputs and stage side effects of a job.
// One struct covers every job type; ValidateFor checks the fields the given
// type actually requires before its first stage runs.
type JobData struct {
	// Upload / analysis inputs
	FilePath     string `json:"filePath,omitempty"`
	Filename     string `json:"filename,omitempty"`
	OriginalName string `json:"originalName,omitempty"`

	// Download input
	URL string `json:"url,omitempty"`

	// Render inputs
	OriginalJobID string   `json:"originalJobId,omitempty"`
	SourcePath    string   `json:"sourcePath,omitempty"`
	Start         *float64 `json:"start,omitempty"`
	End           *float64 `json:"end,omitempty"`
	Ratio         float64  `json:"ratio,omitempty"`

	// Accumulated by the analyze stage
	Clips []Clip `json:"clips,omitempty"`
}

// ValidateFor checks that the data carries what the given job type needs
func (d *JobData) ValidateFor(t JobType) error {
	switch t {
	case JobTypeProcessUpload, JobTypeAnalyzeVideo:
		if d.FilePath == "" {
			return fmt.Errorf("job type %s requires filePath", t)
		}
	case JobTypeDownloadVideo:
		if d.URL == "" {
			return fmt.Errorf("job type %s requires url", t)
		}
	case JobTypeRenderClip:
		if d.SourcePath == "" {
			return fmt.Errorf("job type %s requires sourcePath", t)
		}
		if d.Start == nil || d.End == nil {
			return fmt.Errorf("job type %s requires start and end", t)
		}
	default:
		return fmt.Errorf("unknown job type %q", t)
	}
	return nil
}

// StageResult is the union of stage outputs for a completed job
type StageResult struct {
	// Analyze stage
	VideoPath string `json:"videoPath,omitempty"`
	Clips     []Clip `json:"clips,omitempty"`

	// Render stage
	OutputFilename string `json:"outputFilename,omitempty"`
	LocalPath      string `json:"localPath,omitempty"`
}

// Job represents one unit of pipeline work with a durable record
type Job struct {
	ID        string       `json:"id"`
	Type      JobType      `json:"type"`
	Status    JobStatus    `json:"status"`
	Progress  int          `json:"progress"` // 0-100%, non-decreasing while processing
	Data      JobData      `json:"data"`
	Result    *StageResult `json:"result"`
	Error     string       `json:"error,omitempty"`
	CreatedAt time.Time    `json:"createdAt"`
	StartedAt *time.Time   `json:"startTime,omitempty"`
	EndedAt   *time.Time   `json:"endTime,omitempty"`
}

// Clone returns an independent copy safe to hand to readers while the
// scheduler keeps mutating the original
func (j *Job) Clone() *Job {
	dup := *j
	if j.Result != nil {
		res := *j.Result
		res.Clips = append([]Clip(nil), j.Result.Clips...)
		dup.Result = &res
	}
	dup.Data.Clips = append([]Clip(nil), j.Data.Clips...)
	if j.StartedAt != nil {
		t := *j.StartedAt
		dup.StartedAt = &t
	}
	if j.EndedAt != nil {
		t := *j.EndedAt
		dup.EndedAt = &t
	}
	return &dup
}
