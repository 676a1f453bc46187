package store

import (
	"sort"
	"sync"

	"github.com/clipper-ai/clipperd/pkg/models"
)

// MemoryStore is an in-memory implementation of the job store, used by tests
// and by --db="" runs where durability is not wanted
type MemoryStore struct {
	jobs map[string]*models.Job
	mu   sync.RWMutex
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs: make(map[string]*models.Job),
	}
}

// InsertJob adds a job to the store
func (s *MemoryStore) InsertJob(job *models.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.jobs[job.ID] = job.Clone()
	return nil
}

// UpdateJob replaces the mutable fields of an existing job
func (s *MemoryStore) UpdateJob(job *models.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.jobs[job.ID]
	if !ok {
		return ErrJobNotFound
	}

	dup := job.Clone()
	// Type and created_at are immutable after insert
	dup.Type = existing.Type
	dup.CreatedAt = existing.CreatedAt
	s.jobs[job.ID] = dup
	return nil
}

// GetJob retrieves a job by ID
func (s *MemoryStore) GetJob(id string) (*models.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	return job.Clone(), nil
}

// GetAllJobs returns every job, newest first
func (s *MemoryStore) GetAllJobs() []*models.Job {
	s.mu.RLock()
	defer s.mu.RUnlock()

	jobs := make([]*models.Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		jobs = append(jobs, job.Clone())
	}
	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})
	return jobs
}

// GetJobsByStatus returns jobs in the given status, oldest first
func (s *MemoryStore) GetJobsByStatus(status models.JobStatus) []*models.Job {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var jobs []*models.Job
	for _, job := range s.jobs {
		if job.Status == status {
			jobs = append(jobs, job.Clone())
		}
	}
	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.Before(jobs[j].CreatedAt)
	})
	return jobs
}

// JobMetrics aggregates job statistics
func (s *MemoryStore) JobMetrics() (*JobMetrics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	metrics := &JobMetrics{
		JobsByState: make(map[models.JobStatus]int),
		JobsByType:  make(map[models.JobType]int),
	}

	var durationSum float64
	var durationCount int
	for _, job := range s.jobs {
		metrics.JobsByState[job.Status]++
		metrics.JobsByType[job.Type]++
		metrics.TotalJobs++

		if job.Status == models.JobStatusCompleted && job.StartedAt != nil && job.EndedAt != nil {
			durationSum += job.EndedAt.Sub(*job.StartedAt).Seconds()
			durationCount++
		}
	}

	metrics.ActiveJobs = metrics.JobsByState[models.JobStatusProcessing]
	metrics.QueueLength = metrics.JobsByState[models.JobStatusPending]
	if durationCount > 0 {
		metrics.AvgDuration = durationSum / float64(durationCount)
	}

	return metrics, nil
}

// HealthCheck always succeeds for the in-memory store
func (s *MemoryStore) HealthCheck() error {
	return nil
}

// Close is a no-op for the in-memory store
func (s *MemoryStore) Close() error {
	return nil
}

// Ensure both implementations satisfy the interface
var _ Store = (*MemoryStore)(nil)
var _ Store = (*SQLiteStore)(nil)
