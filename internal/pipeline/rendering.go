package pipeline

import (
	"fmt"

	"github.com/lightfield-labs/prism/internal/lib"
	"github.com/lightfield-labs/prism/internal/models"
	"github.com/lightfield-labs/prism/internal/services"
)

const (
	renderingFunction = "render_frames"

	// Start-time ETA assumption, frames per second of render throughput
	assumedRenderSpeed = 2.0
)

// RenderingOrchestrator drives the frame-rendering stage. Frames are
// produced in fixed-size batches that the result assembler downloads after
// completion.
type RenderingOrchestrator struct {
	orchestrator
}

// NewRenderingOrchestrator wires the rendering stage
func NewRenderingOrchestrator(client *services.ComputeClient, store *services.JobStore, config *models.ProjectConfig, logger *lib.Logger) *RenderingOrchestrator {
	return &RenderingOrchestrator{orchestrator{client: client, store: store, config: config, logger: logger}}
}

// Start derives the rendering job id from the training job's root and
// spawns rendering for totalFrames frames
func (o *RenderingOrchestrator) Start(trainingID string, totalFrames int) (*StartResponse, error) {
	if totalFrames <= 0 {
		return nil, fmt.Errorf("total_frames must be > 0, got %d", totalFrames)
	}
	ident, err := deriveForStart(trainingID, models.StageRendering)
	if err != nil {
		return nil, err
	}
	return o.start(ident, totalFrames)
}

// Retry mints the next attempt generation for a failed rendering job,
// reusing the frame count recorded on the failed record
func (o *RenderingOrchestrator) Retry(failedJobID string) (*StartResponse, error) {
	ident, err := deriveForRetry(failedJobID, models.StageRendering)
	if err != nil {
		return nil, err
	}

	failed, err := o.store.Get(failedJobID)
	if err != nil {
		return nil, err
	}
	totalFrames := intFromData(failed.Data, "total_frames")
	if totalFrames <= 0 {
		return nil, fmt.Errorf("failed job %q has no recorded frame count", failedJobID)
	}

	return o.start(ident, totalFrames)
}

func (o *RenderingOrchestrator) start(ident models.JobIdentity, totalFrames int) (*StartResponse, error) {
	fpb := o.config.Rendering.FramesPerBatch
	totalBatches := (totalFrames + fpb - 1) / fpb

	args := map[string]any{
		"job_id":           ident.String(),
		"model_dir":        ident.ModelPath(),
		"frames_dir":       ident.FramesPath(),
		"total_frames":     totalFrames,
		"frames_per_batch": fpb,
		"gpu_type":         o.config.Compute.GPUType,
	}

	data := map[string]any{
		"total_frames":  totalFrames,
		"total_batches": totalBatches,
	}
	if err := o.spawnStage(ident, renderingFunction, args, data); err != nil {
		return nil, err
	}

	return &StartResponse{
		JobID:      ident.String(),
		Stage:      models.StageRendering,
		Status:     models.JobStatusProcessing,
		Progress:   0,
		ETASeconds: float64(totalFrames) / assumedRenderSpeed,
	}, nil
}

// GetStatus maps the worker snapshot into a typed status with batch
// position and measured rendering speed
func (o *RenderingOrchestrator) GetStatus(jobID string) (*StageStatus, error) {
	ident, err := models.ParseJobID(jobID)
	if err != nil {
		return nil, err
	}

	snapshot := o.pollSnapshot(jobID)
	status := o.statusFromSnapshot(ident, snapshot, ident.FramesPath())

	totalFrames := snapshot.TotalImages
	if totalFrames == 0 {
		if job, err := o.store.Get(jobID); err == nil {
			totalFrames = intFromData(job.Data, "total_frames")
		}
	}

	fpb := o.config.Rendering.FramesPerBatch
	if totalFrames > 0 {
		status.TotalImages = totalFrames
		status.TotalBatches = (totalFrames + fpb - 1) / fpb
	}
	status.CurrentBatch = snapshot.ImagesProcessed / fpb
	status.CurrentFrame = snapshot.ImagesProcessed % fpb

	if snapshot.ElapsedTime > 0 && snapshot.ImagesProcessed > 0 {
		speed := float64(snapshot.ImagesProcessed) / snapshot.ElapsedTime
		status.RenderingSpeed = speed

		if totalFrames > snapshot.ImagesProcessed && status.Status == models.JobStatusProcessing {
			eta := float64(totalFrames-snapshot.ImagesProcessed) / speed
			status.ETASeconds = &eta
		}
	}

	return status, nil
}

func intFromData(data map[string]any, key string) int {
	switch v := data[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		// JSON round-trip stores numbers as float64
		return int(v)
	default:
		return 0
	}
}
