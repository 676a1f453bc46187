package store

import (
	"errors"

	"github.com/clipper-ai/clipperd/pkg/models"
)

var (
	// ErrJobNotFound is returned when a job id has no durable record
	ErrJobNotFound = errors.New("job not found")

	// ErrUnsupportedDatabase is returned for unknown store types
	ErrUnsupportedDatabase = errors.New("unsupported database type")
)

// Store defines the interface for job persistence.
// Both SQLite and the in-memory store implement this interface.
//
// InsertJob writes the full record once; UpdateJob only touches the mutable
// columns (status, progress, data, result, error, timestamps). The id, type
// and created_at columns are immutable after insert. Data and Result
// round-trip through the store as opaque JSON payloads.
type Store interface {
	InsertJob(job *models.Job) error
	UpdateJob(job *models.Job) error
	GetJob(id string) (*models.Job, error)
	GetAllJobs() []*models.Job
	GetJobsByStatus(status models.JobStatus) []*models.Job

	// Lifecycle
	Close() error
	HealthCheck() error

	// Aggregates for the metrics endpoint
	JobMetrics() (*JobMetrics, error)
}

// JobMetrics contains aggregated job statistics for the metrics endpoint
type JobMetrics struct {
	JobsByState map[models.JobStatus]int
	JobsByType  map[models.JobType]int
	ActiveJobs  int
	QueueLength int
	AvgDuration float64 // seconds, completed jobs only
	TotalJobs   int
}

// Config holds database configuration
type Config struct {
	Type string // "sqlite" or "memory"
	Path string // database file path for sqlite
}

// New creates a store based on configuration
func New(config Config) (Store, error) {
	switch config.Type {
	case "memory":
		return NewMemoryStore(), nil
	case "sqlite", "":
		path := config.Path
		if path == "" {
			path = "jobs.db"
		}
		return NewSQLiteStore(path)
	default:
		return nil, ErrUnsupportedDatabase
	}
}
