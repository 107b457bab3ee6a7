package services

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/lightfield-labs/prism/internal/lib"
	"github.com/lightfield-labs/prism/internal/models"
)

const stateFileName = "state.json"

// JobStore is the durable, file-backed registry of job records, one
// directory per job id. It assumes a single writer per job id at any
// instant; concurrent updates on the same id are last-write-wins.
type JobStore struct {
	baseDir string
	logger  *lib.Logger
}

// NewJobStore creates a job store rooted at baseDir
func NewJobStore(baseDir string, logger *lib.Logger) *JobStore {
	return &JobStore{baseDir: baseDir, logger: logger}
}

// JobDir returns the directory path for a specific job
func (s *JobStore) JobDir(jobID string) string {
	return filepath.Join(s.baseDir, jobID)
}

// statePath returns the full path to a job's state file
func (s *JobStore) statePath(jobID string) string {
	return filepath.Join(s.JobDir(jobID), stateFileName)
}

// Create writes a new idle job record
func (s *JobStore) Create(jobID string, jobType models.JobType, data map[string]any) (*models.Job, error) {
	if !models.IsValidJobType(jobType) {
		return nil, fmt.Errorf("invalid job type: %s", jobType)
	}
	if data == nil {
		data = map[string]any{}
	}

	now := time.Now()
	job := &models.Job{
		JobID:     jobID,
		JobType:   jobType,
		Status:    models.JobStatusIdle,
		Data:      data,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.save(job); err != nil {
		return nil, err
	}

	lib.LogJobCreated(s.logger, jobID, string(jobType))
	return job, nil
}

// Get loads a job record from disk. A missing record is an error; use
// Update's nil return when absence is an expected state.
func (s *JobStore) Get(jobID string) (*models.Job, error) {
	data, err := os.ReadFile(s.statePath(jobID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, lib.ErrJobNotFound(jobID)
		}
		return nil, fmt.Errorf("failed to read job record: %w", err)
	}

	var job models.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, lib.ErrCorruptedJobState(jobID, err)
	}
	return &job, nil
}

// Update loads, mutates, and rewrites a job record. A missing record
// returns (nil, nil) rather than an error. An empty status leaves the
// stored status untouched; data is shallow-merged into the stored map,
// never swapped wholesale.
func (s *JobStore) Update(jobID string, status models.JobStatus, data map[string]any) (*models.Job, error) {
	if _, err := os.Stat(s.statePath(jobID)); os.IsNotExist(err) {
		return nil, nil
	}

	job, err := s.Get(jobID)
	if err != nil {
		return nil, err
	}

	if status != "" {
		if !models.IsValidJobStatus(status) {
			return nil, fmt.Errorf("invalid job status: %s", status)
		}
		job.Status = status
	}

	if job.Data == nil {
		job.Data = map[string]any{}
	}
	for k, v := range data {
		job.Data[k] = v
	}

	job.UpdatedAt = time.Now()

	if err := s.save(job); err != nil {
		return nil, err
	}
	return job, nil
}

// List scans all records, filters by type and status (empty = any) and
// returns them newest-first by creation time.
func (s *JobStore) List(jobType models.JobType, status models.JobStatus) ([]*models.Job, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []*models.Job{}, nil
		}
		return nil, fmt.Errorf("failed to read jobs directory: %w", err)
	}

	var jobs []*models.Job
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		job, err := s.Get(entry.Name())
		if err != nil {
			s.logger.Warn("Skipping unreadable job record", "job_id", entry.Name(), "error", err)
			continue
		}
		if jobType != "" && job.JobType != jobType {
			continue
		}
		if status != "" && job.Status != status {
			continue
		}
		jobs = append(jobs, job)
	}

	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})

	return jobs, nil
}

// Cleanup removes terminal job records whose state file was last modified
// more than ageHours ago. Records still idle or processing are preserved
// regardless of age: an active job's bookkeeping must never silently
// disappear. Returns the ids of removed jobs.
func (s *JobStore) Cleanup(ageHours float64) ([]string, error) {
	jobs, err := s.List("", "")
	if err != nil {
		return nil, err
	}

	cutoff := time.Now().Add(-time.Duration(ageHours * float64(time.Hour)))
	var removed []string

	for _, job := range jobs {
		if !job.Status.IsTerminal() {
			continue
		}
		modTime := lib.GetFileModTime(s.statePath(job.JobID))
		if modTime.IsZero() || !modTime.Before(cutoff) {
			continue
		}

		if err := os.RemoveAll(s.JobDir(job.JobID)); err != nil {
			s.logger.Warn("Failed to remove job directory", "job_id", job.JobID, "error", err)
			continue
		}
		removed = append(removed, job.JobID)
	}

	if len(removed) > 0 {
		s.logger.Info("Cleaned up job records", "removed", len(removed), "age_hours", ageHours)
	}
	return removed, nil
}

// save writes a record with the atomic temp+rename pattern so a crash
// mid-write cannot corrupt state.json
func (s *JobStore) save(job *models.Job) error {
	jobDir := s.JobDir(job.JobID)
	if err := os.MkdirAll(jobDir, 0755); err != nil {
		return fmt.Errorf("failed to create job directory: %w", err)
	}

	data, err := json.MarshalIndent(job, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal job record: %w", err)
	}

	tempFile := filepath.Join(jobDir, fmt.Sprintf(".state.tmp.%s", uuid.New().String()))
	if err := os.WriteFile(tempFile, data, 0644); err != nil {
		return fmt.Errorf("failed to write temp state file: %w", err)
	}

	if err := os.Rename(tempFile, s.statePath(job.JobID)); err != nil {
		_ = os.Remove(tempFile)
		return fmt.Errorf("failed to save job record: %w", err)
	}

	return nil
}
