package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/clipper-ai/clipperd/pkg/models"
)

// SQLiteStore is a SQLite-based implementation of the job store
type SQLiteStore struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLiteStore creates a new SQLite store
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// Configure SQLite connection string for single-writer access
	// - _journal_mode=WAL: readers don't block the writer
	// - _busy_timeout=10000: wait up to 10 seconds when database is locked
	// - _synchronous=NORMAL: balance between safety and performance
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=10000&_synchronous=NORMAL", dbPath)

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Single connection: the scheduler is the only writer and serialized
	// access avoids SQLITE_BUSY entirely
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(30 * time.Minute)

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// initSchema creates the database schema
func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS jobs (
		id TEXT PRIMARY KEY,
		type TEXT NOT NULL,
		status TEXT NOT NULL,
		progress INTEGER NOT NULL DEFAULT 0,
		data TEXT,
		result TEXT,
		error TEXT,
		created_at DATETIME NOT NULL,
		started_at DATETIME,
		ended_at DATETIME
	);

	CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);
	CREATE INDEX IF NOT EXISTS idx_jobs_created_at ON jobs(created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// InsertJob writes the initial record for a newly created job
func (s *SQLiteStore) InsertJob(job *models.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(job.Data)
	if err != nil {
		return fmt.Errorf("failed to marshal data: %w", err)
	}

	result, err := marshalResult(job.Result)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(`
		INSERT INTO jobs
		(id, type, status, progress, data, result, error, created_at, started_at, ended_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, job.ID, job.Type, job.Status, job.Progress, string(data), result, job.Error,
		job.CreatedAt, job.StartedAt, job.EndedAt)

	return err
}

// UpdateJob persists the mutable columns of an existing job. Type and
// created_at are never touched after insert; data is rewritten because the
// processor accumulates stage side effects into it while the job runs.
func (s *SQLiteStore) UpdateJob(job *models.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(job.Data)
	if err != nil {
		return fmt.Errorf("failed to marshal data: %w", err)
	}

	result, err := marshalResult(job.Result)
	if err != nil {
		return err
	}

	res, err := s.db.Exec(`
		UPDATE jobs
		SET status = ?, progress = ?, data = ?, result = ?, error = ?, started_at = ?, ended_at = ?
		WHERE id = ?
	`, job.Status, job.Progress, string(data), result, job.Error, job.StartedAt, job.EndedAt, job.ID)
	if err != nil {
		return err
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrJobNotFound
	}
	return nil
}

// GetJob retrieves a job by ID
func (s *SQLiteStore) GetJob(id string) (*models.Job, error) {
	row := s.db.QueryRow(`
		SELECT id, type, status, progress, data, result, error, created_at, started_at, ended_at
		FROM jobs WHERE id = ?
	`, id)

	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, ErrJobNotFound
	}
	return job, err
}

// GetAllJobs returns every job, newest first
func (s *SQLiteStore) GetAllJobs() []*models.Job {
	return s.queryJobs(`
		SELECT id, type, status, progress, data, result, error, created_at, started_at, ended_at
		FROM jobs ORDER BY created_at DESC
	`)
}

// GetJobsByStatus returns jobs in the given status, oldest first (submission
// order, which is the order the restart recovery path re-admits them in)
func (s *SQLiteStore) GetJobsByStatus(status models.JobStatus) []*models.Job {
	return s.queryJobs(`
		SELECT id, type, status, progress, data, result, error, created_at, started_at, ended_at
		FROM jobs WHERE status = ? ORDER BY created_at ASC
	`, string(status))
}

func (s *SQLiteStore) queryJobs(query string, args ...interface{}) []*models.Job {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return []*models.Job{}
	}
	defer rows.Close()

	var jobs []*models.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			continue
		}
		jobs = append(jobs, job)
	}
	return jobs
}

// JobMetrics aggregates job statistics without loading full payloads
func (s *SQLiteStore) JobMetrics() (*JobMetrics, error) {
	metrics := &JobMetrics{
		JobsByState: make(map[models.JobStatus]int),
		JobsByType:  make(map[models.JobType]int),
	}

	rows, err := s.db.Query(`SELECT status, type, COUNT(*) FROM jobs GROUP BY status, type`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var status, jobType string
		var count int
		if err := rows.Scan(&status, &jobType, &count); err != nil {
			return nil, err
		}
		metrics.JobsByState[models.JobStatus(status)] += count
		metrics.JobsByType[models.JobType(jobType)] += count
		metrics.TotalJobs += count
	}

	metrics.ActiveJobs = metrics.JobsByState[models.JobStatusProcessing]
	metrics.QueueLength = metrics.JobsByState[models.JobStatusPending]

	var avg sql.NullFloat64
	err = s.db.QueryRow(`
		SELECT AVG((julianday(ended_at) - julianday(started_at)) * 86400.0)
		FROM jobs
		WHERE status = ? AND started_at IS NOT NULL AND ended_at IS NOT NULL
	`, string(models.JobStatusCompleted)).Scan(&avg)
	if err != nil {
		return nil, err
	}
	if avg.Valid {
		metrics.AvgDuration = avg.Float64
	}

	return metrics, nil
}

// HealthCheck verifies the database is reachable
func (s *SQLiteStore) HealthCheck() error {
	return s.db.Ping()
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// rowScanner abstracts *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row rowScanner) (*models.Job, error) {
	var job models.Job
	var dataJSON, resultJSON, errMsg sql.NullString
	var startedAt, endedAt sql.NullTime

	err := row.Scan(&job.ID, &job.Type, &job.Status, &job.Progress, &dataJSON, &resultJSON,
		&errMsg, &job.CreatedAt, &startedAt, &endedAt)
	if err != nil {
		return nil, err
	}

	if dataJSON.Valid && dataJSON.String != "" && dataJSON.String != "null" {
		if err := json.Unmarshal([]byte(dataJSON.String), &job.Data); err != nil {
			return nil, fmt.Errorf("failed to unmarshal data: %w", err)
		}
	}

	if resultJSON.Valid && resultJSON.String != "" && resultJSON.String != "null" {
		job.Result = &models.StageResult{}
		if err := json.Unmarshal([]byte(resultJSON.String), job.Result); err != nil {
			return nil, fmt.Errorf("failed to unmarshal result: %w", err)
		}
	}

	if errMsg.Valid {
		job.Error = errMsg.String
	}
	if startedAt.Valid {
		job.StartedAt = &startedAt.Time
	}
	if endedAt.Valid {
		job.EndedAt = &endedAt.Time
	}

	return &job, nil
}

// marshalResult encodes the result column; a nil result stays NULL so the
// round-trip preserves "no result yet"
func marshalResult(result *models.StageResult) (interface{}, error) {
	if result == nil {
		return nil, nil
	}
	b, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}
	return string(b), nil
}
