package pipeline

import (
	"github.com/lightfield-labs/prism/internal/lib"
	"github.com/lightfield-labs/prism/internal/models"
	"github.com/lightfield-labs/prism/internal/services"
)

const trainingFunction = "train_model"

// TrainingOrchestrator drives the scene-model training stage. It is the
// consumer of the stage weight table and the cost model: training is the
// long, expensive middle of the pipeline.
type TrainingOrchestrator struct {
	orchestrator
}

// NewTrainingOrchestrator wires the training stage
func NewTrainingOrchestrator(client *services.ComputeClient, store *services.JobStore, config *models.ProjectConfig, logger *lib.Logger) *TrainingOrchestrator {
	return &TrainingOrchestrator{orchestrator{client: client, store: store, config: config, logger: logger}}
}

// Start derives the training job id from the reconstruction job's root and
// spawns training. The cost estimate is computed up front from the fixed
// per-stage duration assumptions, not from measured usage.
func (o *TrainingOrchestrator) Start(reconstructionID string) (*StartResponse, error) {
	ident, err := deriveForStart(reconstructionID, models.StageTraining)
	if err != nil {
		return nil, err
	}
	return o.start(ident)
}

// Retry mints the next attempt generation for a failed training job
func (o *TrainingOrchestrator) Retry(failedJobID string) (*StartResponse, error) {
	ident, err := deriveForRetry(failedJobID, models.StageTraining)
	if err != nil {
		return nil, err
	}
	return o.start(ident)
}

func (o *TrainingOrchestrator) start(ident models.JobIdentity) (*StartResponse, error) {
	cost := EstimateTrainingCost(o.config.Training.StageDurationsMin, o.config.Compute.GPUType)

	args := map[string]any{
		"job_id":             ident.String(),
		"reconstruction_dir": ident.ReconstructionPath(),
		"model_dir":          ident.ModelPath(),
		"gpu_type":           o.config.Compute.GPUType,
	}

	data := map[string]any{
		"estimated_cost_usd": cost.TotalUSD,
		"gpu_type":           cost.GPUType,
	}
	if err := o.spawnStage(ident, trainingFunction, args, data); err != nil {
		return nil, err
	}

	return &StartResponse{
		JobID:      ident.String(),
		Stage:      models.StageTraining,
		Status:     models.JobStatusProcessing,
		Progress:   0,
		ETASeconds: AssumedDurationSeconds(o.config.Training.StageDurationsMin),
		Cost:       &cost,
	}, nil
}

// GetStatus maps the worker snapshot into a typed status with overall
// progress computed through the stage weight table
func (o *TrainingOrchestrator) GetStatus(jobID string) (*StageStatus, error) {
	ident, err := models.ParseJobID(jobID)
	if err != nil {
		return nil, err
	}

	snapshot := o.pollSnapshot(jobID)
	status := o.statusFromSnapshot(ident, snapshot, ident.ModelPath())

	if status.Status == models.JobStatusProcessing {
		overall, known := o.config.Training.Weights.Overall(snapshot.Stage, snapshot.Progress)
		if !known {
			o.logger.Warn("Worker reported unweighted sub-stage", "job_id", jobID, "stage", snapshot.Stage)
		}
		status.OverallProgress = overall

		if eta, ok := EstimateRemaining(snapshot.ElapsedTime, overall); ok {
			status.ETASeconds = &eta
		}
	}

	status.CostSoFarUSD = CostSoFar(snapshot.ElapsedTime, o.config.Compute.GPUType)
	return status, nil
}
