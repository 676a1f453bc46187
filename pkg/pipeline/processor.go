// Package pipeline executes the per-type stage sequence of a job: download
// then analyze for URL jobs, analyze for uploads, render for clip exports.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"path/filepath"
	"strconv"

	"github.com/clipper-ai/clipperd/pkg/models"
	"github.com/clipper-ai/clipperd/pkg/runner"
)

// ProgressFunc is the progress sink a stage reports checkpoints to. Values
// are percentages and must never decrease within one job.
type ProgressFunc func(percent int)

// Invoker abstracts the external process gateway for tests
type Invoker interface {
	Invoke(ctx context.Context, program string, args []string, onLine runner.LineFunc) (runner.Result, error)
}

// Resolver abstracts the download fallback chain for tests
type Resolver interface {
	Resolve(ctx context.Context, url, outputDir string) (string, error)
}

// InvokerFunc adapts a function to the Invoker interface
type InvokerFunc func(ctx context.Context, program string, args []string, onLine runner.LineFunc) (runner.Result, error)

func (f InvokerFunc) Invoke(ctx context.Context, program string, args []string, onLine runner.LineFunc) (runner.Result, error) {
	return f(ctx, program, args, onLine)
}

// StageError marks a failure signaled by an external analysis or render
// program, as opposed to a transport or acquisition failure
type StageError struct {
	Stage string
	Msg   string
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage failed: %s", e.Stage, e.Msg)
}

// Processor runs the stage pipeline for one job at a time. It owns no job
// lifecycle state; the scheduler hands it a job it exclusively executes and
// takes the result back on settlement.
type Processor struct {
	Invoker Invoker
	Chain   Resolver

	Python        string // interpreter for the analysis/render programs
	ScriptDir     string // directory holding the external programs
	AnalyzeScript string
	RenderScript  string

	UploadDir string // destination for downloaded videos
	OutputDir string // destination for rendered clips
}

// New creates a Processor with the real gateway and default script names
func New(chain Resolver, scriptDir, uploadDir, outputDir string) *Processor {
	return &Processor{
		Invoker:       InvokerFunc(runner.Invoke),
		Chain:         chain,
		Python:        "python3",
		ScriptDir:     scriptDir,
		AnalyzeScript: "detector.py",
		RenderScript:  "render_clip.py",
		UploadDir:     uploadDir,
		OutputDir:     outputDir,
	}
}

// Process runs the job's stages in order and returns the union of their
// outputs. It may extend job.Data with stage side effects (resolved file
// path, detected clips) but never transitions job status; that is the
// scheduler's job.
func (p *Processor) Process(ctx context.Context, job *models.Job, progress ProgressFunc) (*models.StageResult, error) {
	if progress == nil {
		progress = func(int) {}
	}

	// Shape validation happens at stage entry, before any work runs
	if err := job.Data.ValidateFor(job.Type); err != nil {
		return nil, err
	}

	if job.Type == models.JobTypeRenderClip {
		return p.render(ctx, job, progress)
	}

	if job.Type == models.JobTypeDownloadVideo {
		progress(10)
		path, err := p.Chain.Resolve(ctx, job.Data.URL, p.UploadDir)
		if err != nil {
			return nil, err
		}
		job.Data.FilePath = path
		job.Data.Filename = filepath.Base(path)
		job.Data.OriginalName = filepath.Base(path)
		progress(30)
	}

	return p.analyze(ctx, job, progress)
}

// analyze invokes the highlight detection program against the job's video
func (p *Processor) analyze(ctx context.Context, job *models.Job, progress ProgressFunc) (*models.StageResult, error) {
	videoPath, err := filepath.Abs(job.Data.FilePath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve video path: %w", err)
	}

	progress(40)
	log.Printf("Analyzing video: %s", videoPath)

	script := filepath.Join(p.ScriptDir, p.AnalyzeScript)
	result, err := p.Invoker.Invoke(ctx, p.Python, []string{script, videoPath}, func(line string) {
		log.Printf("[detector] %s", line)
	})
	if err != nil {
		return nil, &StageError{Stage: "analyze", Msg: err.Error()}
	}

	if !result.Structured() {
		return nil, &StageError{Stage: "analyze", Msg: "program produced no structured payload"}
	}
	if msg, ok := result.ErrorField(); ok {
		return nil, &StageError{Stage: "analyze", Msg: msg}
	}

	clips, err := clipsFromPayload(result.Payload)
	if err != nil {
		return nil, &StageError{Stage: "analyze", Msg: err.Error()}
	}
	job.Data.Clips = clips

	progress(90)
	return &models.StageResult{VideoPath: videoPath, Clips: clips}, nil
}

// render invokes the clip render program with positional arguments
// (sourcePath, start, end, ratio, outputPath)
func (p *Processor) render(ctx context.Context, job *models.Job, progress ProgressFunc) (*models.StageResult, error) {
	progress(10)

	outputFilename := fmt.Sprintf("clip-%s.mp4", job.ID)
	outputPath := filepath.Join(p.OutputDir, outputFilename)
	log.Printf("Rendering clip to %s", outputPath)

	script := filepath.Join(p.ScriptDir, p.RenderScript)
	args := []string{
		script,
		job.Data.SourcePath,
		strconv.FormatFloat(*job.Data.Start, 'f', -1, 64),
		strconv.FormatFloat(*job.Data.End, 'f', -1, 64),
		strconv.FormatFloat(job.Data.Ratio, 'f', -1, 64),
		outputPath,
	}

	result, err := p.Invoker.Invoke(ctx, p.Python, args, func(line string) {
		log.Printf("[render] %s", line)
	})
	if err != nil {
		return nil, &StageError{Stage: "render", Msg: err.Error()}
	}
	if msg, ok := result.ErrorField(); ok {
		return nil, &StageError{Stage: "render", Msg: msg}
	}

	progress(100)
	return &models.StageResult{OutputFilename: outputFilename, LocalPath: outputPath}, nil
}

// clipsFromPayload extracts the mandatory clips sequence from the analysis
// payload
func clipsFromPayload(payload map[string]interface{}) ([]models.Clip, error) {
	raw, ok := payload["clips"]
	if !ok {
		return nil, fmt.Errorf("payload carries no clips")
	}

	// Round-trip through JSON to convert the untyped payload entries
	b, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid clips payload: %w", err)
	}
	var clips []models.Clip
	if err := json.Unmarshal(b, &clips); err != nil {
		return nil, fmt.Errorf("invalid clips payload: %w", err)
	}
	return clips, nil
}
