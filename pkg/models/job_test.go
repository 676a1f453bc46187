package models

import (
	"encoding/json"
	"testing"
	"time"
)

func TestJobTypeValid(t *testing.T) {
	for _, jt := range []JobType{JobTypeProcessUpload, JobTypeDownloadVideo, JobTypeAnalyzeVideo, JobTypeRenderClip} {
		if !jt.Valid() {
			t.Errorf("Expected %s to be valid", jt)
		}
	}
	if JobType("transcode").Valid() {
		t.Error("Expected unknown type to be invalid")
	}
}

func TestStatusTerminal(t *testing.T) {
	if JobStatusPending.Terminal() || JobStatusProcessing.Terminal() {
		t.Error("pending and processing are not terminal")
	}
	if !JobStatusCompleted.Terminal() || !JobStatusFailed.Terminal() {
		t.Error("completed and failed are terminal")
	}
}

func TestValidateFor(t *testing.T) {
	start, end := 1.0, 2.0

	valid := []struct {
		jobType JobType
		data    JobData
	}{
		{JobTypeProcessUpload, JobData{FilePath: "/uploads/a.mp4"}},
		{JobTypeAnalyzeVideo, JobData{FilePath: "/uploads/a.mp4"}},
		{JobTypeDownloadVideo, JobData{URL: "https://example.com/v"}},
		{JobTypeRenderClip, JobData{SourcePath: "/uploads/a.mp4", Start: &start, End: &end}},
	}
	for _, tc := range valid {
		if err := tc.data.ValidateFor(tc.jobType); err != nil {
			t.Errorf("Expected %s with %+v to validate, got %v", tc.jobType, tc.data, err)
		}
	}

	invalid := []struct {
		jobType JobType
		data    JobData
	}{
		{JobTypeProcessUpload, JobData{URL: "https://example.com/v"}},
		{JobTypeDownloadVideo, JobData{FilePath: "/uploads/a.mp4"}},
		{JobTypeRenderClip, JobData{SourcePath: "/uploads/a.mp4", Start: &start}},
		{JobTypeRenderClip, JobData{Start: &start, End: &end}},
		{JobType("transcode"), JobData{}},
	}
	for _, tc := range invalid {
		if err := tc.data.ValidateFor(tc.jobType); err == nil {
			t.Errorf("Expected %s with %+v to fail validation", tc.jobType, tc.data)
		}
	}
}

func TestCloneIndependence(t *testing.T) {
	started := time.Now()
	job := &Job{
		ID:        "job-1",
		Type:      JobTypeAnalyzeVideo,
		Status:    JobStatusProcessing,
		Progress:  40,
		Data:      JobData{FilePath: "/uploads/a.mp4", Clips: []Clip{{Start: 1, End: 2}}},
		Result:    &StageResult{Clips: []Clip{{Start: 1, End: 2}}},
		StartedAt: &started,
		CreatedAt: time.Now(),
	}

	dup := job.Clone()
	dup.Progress = 90
	dup.Data.Clips[0].Start = 99
	dup.Result.Clips[0].End = 99
	*dup.StartedAt = started.Add(time.Hour)

	if job.Progress != 40 {
		t.Errorf("Clone mutation changed original progress: %d", job.Progress)
	}
	if job.Data.Clips[0].Start != 1 {
		t.Errorf("Clone shares data clips slice: %+v", job.Data.Clips[0])
	}
	if job.Result.Clips[0].End != 2 {
		t.Errorf("Clone shares result clips slice: %+v", job.Result.Clips[0])
	}
	if !job.StartedAt.Equal(started) {
		t.Errorf("Clone shares timestamp pointer: %v", job.StartedAt)
	}
}

// TestJobJSONShape pins the wire field names clients depend on
func TestJobJSONShape(t *testing.T) {
	started := time.Now()
	job := &Job{
		ID:        "job-1",
		Type:      JobTypeRenderClip,
		Status:    JobStatusCompleted,
		Progress:  100,
		Result:    &StageResult{OutputFilename: "clip-job-1.mp4"},
		StartedAt: &started,
		CreatedAt: time.Now(),
	}

	data, err := json.Marshal(job)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var raw map[string]interface{}
	json.Unmarshal(data, &raw)
	for _, key := range []string{"id", "type", "status", "progress", "result", "createdAt", "startTime"} {
		if _, ok := raw[key]; !ok {
			t.Errorf("Expected %q in job JSON, got keys %v", key, raw)
		}
	}
	if _, ok := raw["endTime"]; ok {
		t.Error("Unset endTime must be omitted")
	}
	if _, ok := raw["error"]; ok {
		t.Error("Empty error must be omitted")
	}
}
