// Package queue implements the job scheduler: a single-writer FIFO queue
// that admits jobs in submission order and executes them one at a time.
//
// The scheduler exclusively owns job lifecycle: it creates records, performs
// every status transition, and persists each transition to the injected
// store. The processor only ever sees the one job it is currently executing.
package queue

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/clipper-ai/clipperd/pkg/models"
	"github.com/clipper-ai/clipperd/pkg/pipeline"
	"github.com/clipper-ai/clipperd/pkg/retry"
	"github.com/clipper-ai/clipperd/pkg/store"
)

// Processor executes the stage pipeline for one job
type Processor interface {
	Process(ctx context.Context, job *models.Job, progress pipeline.ProgressFunc) (*models.StageResult, error)
}

// Scheduler owns the FIFO queue, the re-entrancy guard, and the in-memory
// registry of jobs created during this process lifetime. Construct one per
// store; there is no package-level instance.
type Scheduler struct {
	store     store.Store
	processor Processor
	retryCfg  retry.Config

	mu         sync.Mutex
	fifo       []string
	registry   map[string]*models.Job
	processing bool
}

// New creates a Scheduler draining into the given processor
func New(st store.Store, proc Processor) *Scheduler {
	return &Scheduler{
		store:     st,
		processor: proc,
		retryCfg:  retry.DefaultConfig(),
		registry:  make(map[string]*models.Job),
	}
}

// Submit creates a job, persists its pending record, admits it to the FIFO
// and triggers a drain. It returns as soon as the record is durable and
// never blocks on job execution. A persistence failure means no job was
// created and is returned to the caller.
func (s *Scheduler) Submit(jobType models.JobType, data models.JobData) (*models.Job, error) {
	if !jobType.Valid() {
		return nil, fmt.Errorf("unknown job type %q", jobType)
	}

	job := &models.Job{
		ID:        uuid.New().String(),
		Type:      jobType,
		Status:    models.JobStatusPending,
		Progress:  0,
		Data:      data,
		CreatedAt: time.Now(),
	}

	if err := s.store.InsertJob(job); err != nil {
		return nil, fmt.Errorf("failed to persist job: %w", err)
	}

	s.mu.Lock()
	s.registry[job.ID] = job
	s.fifo = append(s.fifo, job.ID)
	snapshot := job.Clone()
	s.mu.Unlock()

	go s.drain()

	return snapshot, nil
}

// Get returns the job with the given id. The registry is checked first: it
// reflects in-flight progress that is not yet persisted. Jobs from earlier
// process lifetimes come from the store.
func (s *Scheduler) Get(id string) (*models.Job, error) {
	s.mu.Lock()
	job, ok := s.registry[id]
	if ok {
		snapshot := job.Clone()
		s.mu.Unlock()
		return snapshot, nil
	}
	s.mu.Unlock()

	return s.store.GetJob(id)
}

// List returns the full job history, newest first, every type included
func (s *Scheduler) List() []*models.Job {
	return s.store.GetAllJobs()
}

// Idle reports whether no job is executing and the FIFO is empty
func (s *Scheduler) Idle() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.processing && len(s.fifo) == 0
}

// Recover handles jobs left behind by a previous process: persisted pending
// jobs are re-admitted to the FIFO in submission order, and jobs orphaned in
// processing are marked failed, since a crashed execution cannot be resumed.
func (s *Scheduler) Recover() {
	for _, job := range s.store.GetJobsByStatus(models.JobStatusProcessing) {
		now := time.Now()
		job.Status = models.JobStatusFailed
		job.Error = "orphaned by restart"
		job.EndedAt = &now
		if err := s.store.UpdateJob(job); err != nil {
			log.Printf("Scheduler: failed to fail orphaned job %s: %v", job.ID, err)
		} else {
			log.Printf("Scheduler: job %s orphaned by restart, marked failed", job.ID)
		}
	}

	pending := s.store.GetJobsByStatus(models.JobStatusPending)
	if len(pending) == 0 {
		return
	}

	s.mu.Lock()
	for _, job := range pending {
		if _, ok := s.registry[job.ID]; ok {
			continue
		}
		s.registry[job.ID] = job
		s.fifo = append(s.fifo, job.ID)
	}
	s.mu.Unlock()

	log.Printf("Scheduler: re-admitted %d pending jobs", len(pending))
	go s.drain()
}

// drain pops and executes queued jobs until the FIFO is empty. The
// processing flag is the re-entrancy guard: while one invocation is
// executing a job, every other invocation returns immediately, and the
// executing one loops straight into the next entry on settlement, so forward
// progress needs no poll loop.
func (s *Scheduler) drain() {
	for {
		s.mu.Lock()
		if s.processing || len(s.fifo) == 0 {
			s.mu.Unlock()
			return
		}

		id := s.fifo[0]
		s.fifo = s.fifo[1:]
		job, ok := s.registry[id]
		if !ok {
			s.mu.Unlock()
			continue
		}

		s.processing = true
		now := time.Now()
		job.Status = models.JobStatusProcessing
		job.StartedAt = &now
		work := job.Clone()
		s.mu.Unlock()

		s.persist(work)

		// The processor works on a detached copy; Data mutations are merged
		// back on settlement so status readers never race a running stage
		result, err := s.processor.Process(context.Background(), work, func(p int) {
			s.reportProgress(id, p)
		})

		s.settle(id, work, result, err)

		s.mu.Lock()
		s.processing = false
		s.mu.Unlock()
	}
}

// reportProgress records a progress checkpoint in the registry. Progress is
// monotonic while processing; late or out-of-order reports never lower it.
func (s *Scheduler) reportProgress(id string, percent int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.registry[id]
	if !ok || job.Status != models.JobStatusProcessing {
		return
	}
	if percent > job.Progress {
		job.Progress = percent
	}
}

// settle records the terminal state of an executed job and persists it. A
// processor failure of any kind becomes status=failed and never escapes to
// crash the scheduler or block the jobs behind it.
func (s *Scheduler) settle(id string, work *models.Job, result *models.StageResult, procErr error) {
	s.mu.Lock()
	job, ok := s.registry[id]
	if !ok {
		s.mu.Unlock()
		return
	}

	now := time.Now()
	job.Data = work.Data
	job.EndedAt = &now

	if procErr != nil {
		job.Status = models.JobStatusFailed
		job.Error = procErr.Error()
		log.Printf("Job %s failed: %v", id, procErr)
	} else {
		job.Status = models.JobStatusCompleted
		job.Progress = 100
		job.Result = result
	}

	snapshot := job.Clone()
	s.mu.Unlock()

	s.persist(snapshot)
}

// persist writes a transition with retries. A terminal state that cannot be
// written is logged loudly rather than silently dropped; the registry still
// carries the truth for this process lifetime.
func (s *Scheduler) persist(job *models.Job) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	err := retry.Do(ctx, s.retryCfg, func() error {
		return s.store.UpdateJob(job)
	})
	if err != nil {
		log.Printf("Scheduler: failed to persist job %s (status %s): %v", job.ID, job.Status, err)
	}
}
