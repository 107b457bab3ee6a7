package pipeline

import (
	"github.com/lightfield-labs/prism/internal/lib"
	"github.com/lightfield-labs/prism/internal/models"
	"github.com/lightfield-labs/prism/internal/services"
)

const (
	reconstructionFunction = "run_reconstruction"

	// Start-time ETA assumption for a camera-pose recovery run
	reconstructionAssumedSeconds = 12 * 60
)

// ReconstructionOrchestrator drives the camera-pose recovery stage
type ReconstructionOrchestrator struct {
	orchestrator
}

// NewReconstructionOrchestrator wires the reconstruction stage
func NewReconstructionOrchestrator(client *services.ComputeClient, store *services.JobStore, config *models.ProjectConfig, logger *lib.Logger) *ReconstructionOrchestrator {
	return &ReconstructionOrchestrator{orchestrator{client: client, store: store, config: config, logger: logger}}
}

// Start derives the reconstruction job id from the upload's root id and
// spawns the remote function, returning without waiting for completion.
func (o *ReconstructionOrchestrator) Start(uploadID string) (*StartResponse, error) {
	ident, err := deriveForStart(uploadID, models.StageReconstruction)
	if err != nil {
		return nil, err
	}
	return o.start(ident)
}

// Retry mints the next attempt generation for a failed reconstruction job
func (o *ReconstructionOrchestrator) Retry(failedJobID string) (*StartResponse, error) {
	ident, err := deriveForRetry(failedJobID, models.StageReconstruction)
	if err != nil {
		return nil, err
	}
	return o.start(ident)
}

func (o *ReconstructionOrchestrator) start(ident models.JobIdentity) (*StartResponse, error) {
	// Image count is display only; minimum-count validation happened at
	// upload time. A failed listing must not block the spawn.
	imageCount := 0
	if entries, err := o.client.ListFiles(ident.ImagesPath()); err != nil {
		o.logger.Warn("Could not list images for count", "root_id", ident.Root, "error", err)
	} else {
		imageCount = len(entries)
	}

	args := map[string]any{
		"job_id":     ident.String(),
		"image_dir":  ident.ImagesPath(),
		"output_dir": ident.ReconstructionPath(),
		"gpu_type":   o.config.Compute.GPUType,
	}

	if err := o.spawnStage(ident, reconstructionFunction, args, map[string]any{"image_count": imageCount}); err != nil {
		return nil, err
	}

	return &StartResponse{
		JobID:      ident.String(),
		Stage:      models.StageReconstruction,
		Status:     models.JobStatusProcessing,
		Progress:   0,
		ETASeconds: reconstructionAssumedSeconds,
		ImageCount: imageCount,
	}, nil
}

// GetStatus maps the latest worker snapshot into a typed status
func (o *ReconstructionOrchestrator) GetStatus(jobID string) (*StageStatus, error) {
	ident, err := models.ParseJobID(jobID)
	if err != nil {
		return nil, err
	}

	snapshot := o.pollSnapshot(jobID)
	status := o.statusFromSnapshot(ident, snapshot, ident.ReconstructionPath())

	if eta, ok := EstimateRemaining(snapshot.ElapsedTime, status.OverallProgress); ok {
		status.ETASeconds = &eta
	}
	return status, nil
}
