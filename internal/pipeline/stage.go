package pipeline

import (
	"fmt"

	"github.com/lightfield-labs/prism/internal/lib"
	"github.com/lightfield-labs/prism/internal/models"
	"github.com/lightfield-labs/prism/internal/services"
)

// StartResponse is returned immediately when a stage is started; the spawn
// never waits for remote completion.
type StartResponse struct {
	JobID      string               `json:"job_id"`
	Stage      models.Stage         `json:"stage"`
	Status     models.JobStatus     `json:"status"`
	Progress   float64              `json:"progress"`
	ETASeconds float64              `json:"eta_seconds"`
	ImageCount int                  `json:"image_count,omitempty"`
	Cost       *models.CostEstimate `json:"cost,omitempty"`
}

// StageStatus is the typed view of a stage's latest progress snapshot
type StageStatus struct {
	JobID            string           `json:"job_id"`
	Stage            models.Stage     `json:"stage"`
	Status           models.JobStatus `json:"status"`
	WorkerStage      string           `json:"worker_stage"` // sub-stage reported by the remote worker
	Progress         float64          `json:"progress"`     // local 0-100
	OverallProgress  float64          `json:"overall_progress"`
	CurrentOperation string           `json:"current_operation,omitempty"`
	ImagesProcessed  int              `json:"images_processed,omitempty"`
	TotalImages      int              `json:"total_images,omitempty"`
	ElapsedSeconds   float64          `json:"elapsed_seconds,omitempty"`
	ETASeconds       *float64         `json:"eta_seconds,omitempty"`
	Error            string           `json:"error,omitempty"`
	ArtifactPath     string           `json:"artifact_path,omitempty"`

	// Rendering-only fields
	TotalBatches   int     `json:"total_batches,omitempty"`
	CurrentBatch   int     `json:"current_batch,omitempty"`
	CurrentFrame   int     `json:"current_frame,omitempty"`
	RenderingSpeed float64 `json:"rendering_speed,omitempty"` // frames/sec

	// Training-only fields
	CostSoFarUSD float64 `json:"cost_so_far_usd,omitempty"`
}

// orchestrator carries the dependencies shared by all three stage
// orchestrators. The compute client is injected once at startup.
type orchestrator struct {
	client *services.ComputeClient
	store  *services.JobStore
	config *models.ProjectConfig
	logger *lib.Logger
}

// deriveForStart resolves an upstream job id into this stage's identity.
// Any id in the chain works because every id reduces to the root.
func deriveForStart(upstreamID string, stage models.Stage) (models.JobIdentity, error) {
	upstream, err := models.ParseJobID(upstreamID)
	if err != nil {
		return models.JobIdentity{}, err
	}
	return upstream.Derive(stage), nil
}

// deriveForRetry resolves a failed job id into the next attempt generation
// of the same stage. The failed record stays behind as history.
func deriveForRetry(failedJobID string, stage models.Stage) (models.JobIdentity, error) {
	failed, err := models.ParseJobID(failedJobID)
	if err != nil {
		return models.JobIdentity{}, err
	}
	if failed.Stage != stage {
		return models.JobIdentity{}, fmt.Errorf("job %q is a %s job, not %s", failedJobID, failed.Stage, stage)
	}
	return failed.NextAttempt(), nil
}

// spawnStage creates the job record, spawns the remote function, and flips
// the record to processing once the spawn succeeds. It returns as soon as
// the platform accepts the call.
func (o *orchestrator) spawnStage(ident models.JobIdentity, function string, args map[string]any, data map[string]any) error {
	jobID := ident.String()
	lib.LogStageStart(o.logger, string(ident.Stage), jobID)

	if data == nil {
		data = map[string]any{}
	}
	data["root_id"] = ident.Root
	data["attempt"] = ident.Attempt
	data["function"] = function

	if _, err := o.store.Create(jobID, ident.JobType(), data); err != nil {
		return err
	}

	handle, err := o.client.CallFunction(function, args, o.config.Retry.MaxAttempts)
	if err != nil {
		if _, updateErr := o.store.Update(jobID, models.JobStatusFailed, map[string]any{"error": err.Error()}); updateErr != nil {
			o.logger.Warn("Failed to record spawn failure", "job_id", jobID, "error", updateErr)
		}
		return err
	}

	if _, err := o.store.Update(jobID, models.JobStatusProcessing, map[string]any{"call_id": handle.CallID}); err != nil {
		o.logger.Warn("Failed to record spawn handle", "job_id", jobID, "error", err)
	}
	return nil
}

// pollSnapshot fetches the latest progress snapshot for a job. A degraded
// progress read (volume error, not file-absence) reports the initializing
// state rather than surfacing an error to the status caller.
func (o *orchestrator) pollSnapshot(jobID string) *models.ProgressSnapshot {
	snapshot, err := o.client.GetProgress(jobID)
	if err != nil {
		o.logger.Warn("Progress read degraded, reporting initializing", "job_id", jobID, "error", err)
		return models.InitializingSnapshot()
	}
	return snapshot
}

// statusFromSnapshot maps a raw snapshot into the common typed status and
// persists terminal transitions on the job record.
func (o *orchestrator) statusFromSnapshot(ident models.JobIdentity, snapshot *models.ProgressSnapshot, artifactPath string) *StageStatus {
	jobID := ident.String()

	status := &StageStatus{
		JobID:            jobID,
		Stage:            ident.Stage,
		Status:           models.JobStatusProcessing,
		WorkerStage:      snapshot.Stage,
		Progress:         snapshot.Progress,
		OverallProgress:  snapshot.Progress,
		CurrentOperation: snapshot.CurrentOperation,
		ImagesProcessed:  snapshot.ImagesProcessed,
		TotalImages:      snapshot.TotalImages,
		ElapsedSeconds:   snapshot.ElapsedTime,
		Error:            snapshot.Error,
	}

	switch {
	case snapshot.Failed():
		status.Status = models.JobStatusFailed
		lib.LogStageFailed(o.logger, string(ident.Stage), jobID, snapshot.Error)
		o.persistStatus(jobID, models.JobStatusFailed, map[string]any{"error": snapshot.Error})
	// Completion keys on the worker's explicit status, never on raw local
	// progress: a sub-stage at local 100 (prepare done, train not started)
	// is not job completion.
	case snapshot.Status == "complete":
		status.Status = models.JobStatusComplete
		status.Progress = 100
		status.OverallProgress = 100
		status.ArtifactPath = artifactPath
		o.persistStatus(jobID, models.JobStatusComplete, nil)
	case snapshot.Stage == models.StageInitializing:
		status.Status = models.JobStatusIdle
	}

	lib.LogStageStatus(o.logger, string(ident.Stage), jobID, status.Progress, status.CurrentOperation)
	return status
}

// persistStatus records a terminal transition, tolerating a missing record
// (status can be queried for jobs started by another process)
func (o *orchestrator) persistStatus(jobID string, status models.JobStatus, data map[string]any) {
	job, err := o.store.Update(jobID, "", nil)
	if err != nil || job == nil {
		return
	}
	// Terminal records never transition again
	if job.Status.IsTerminal() {
		return
	}
	if _, err := o.store.Update(jobID, status, data); err != nil {
		o.logger.Warn("Failed to persist status transition", "job_id", jobID, "error", err)
	}
}
