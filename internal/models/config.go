package models

import (
	"fmt"
	"net/url"
)

// ProjectConfig is the top-level configuration for the prism pipeline
type ProjectConfig struct {
	Compute   ComputeConfig   `yaml:"compute" json:"compute"`
	Retry     RetryConfig     `yaml:"retry" json:"retry"`
	Training  TrainingConfig  `yaml:"training" json:"training"`
	Rendering RenderingConfig `yaml:"rendering" json:"rendering"`
	JobsDir   string          `yaml:"jobs_dir" json:"jobs_dir"`
}

// ComputeConfig contains connection details for the remote compute platform
type ComputeConfig struct {
	BaseURL     string `yaml:"base_url" json:"base_url"`
	Token       string `yaml:"token" json:"token"`
	GPUType     string `yaml:"gpu_type" json:"gpu_type"`
	Environment string `yaml:"environment" json:"environment"` // "dev" | "prod"
}

// RetryConfig controls spawn retry behavior for transient failures
type RetryConfig struct {
	MaxAttempts      int   `yaml:"max_attempts" json:"max_attempts"`
	InitialBackoffMs int64 `yaml:"initial_backoff_ms" json:"initial_backoff_ms"`
	MaxBackoffMs     int64 `yaml:"max_backoff_ms" json:"max_backoff_ms"`
}

// TrainingConfig holds training stage weighting and duration assumptions
type TrainingConfig struct {
	Weights StageWeightTable `yaml:"weights" json:"weights"`
	// Fixed per-stage duration assumptions in minutes, the basis for the
	// start-time cost estimate. Intentionally an approximation.
	StageDurationsMin map[string]float64 `yaml:"stage_durations_min" json:"stage_durations_min"`
}

// RenderingConfig holds frame batching settings
type RenderingConfig struct {
	FramesPerBatch int `yaml:"frames_per_batch" json:"frames_per_batch"`
}

// DefaultConfig returns a sensible default configuration
func DefaultConfig() ProjectConfig {
	return ProjectConfig{
		Compute: ComputeConfig{
			GPUType:     "t4",
			Environment: "dev",
		},
		Retry: RetryConfig{
			MaxAttempts:      3,
			InitialBackoffMs: 1000,
			MaxBackoffMs:     30000,
		},
		Training: TrainingConfig{
			Weights: DefaultTrainingWeights(),
			StageDurationsMin: map[string]float64{
				"prepare":  5,
				"train":    40,
				"validate": 5,
			},
		},
		Rendering: RenderingConfig{
			FramesPerBatch: 100,
		},
		JobsDir: "./jobs",
	}
}

// Validate checks the configuration for internal consistency
func (c *ProjectConfig) Validate() error {
	if c.Compute.BaseURL != "" {
		if _, err := url.Parse(c.Compute.BaseURL); err != nil {
			return fmt.Errorf("invalid compute base_url: %w", err)
		}
	}
	if c.Compute.Environment != "dev" && c.Compute.Environment != "prod" {
		return fmt.Errorf("compute environment must be dev or prod, got %q", c.Compute.Environment)
	}
	if !IsKnownGPUType(c.Compute.GPUType) {
		return fmt.Errorf("unknown gpu_type %q", c.Compute.GPUType)
	}
	if c.Retry.MaxAttempts <= 0 {
		return fmt.Errorf("retry max_attempts must be > 0, got %d", c.Retry.MaxAttempts)
	}
	if c.Retry.InitialBackoffMs <= 0 {
		return fmt.Errorf("retry initial_backoff_ms must be > 0, got %d", c.Retry.InitialBackoffMs)
	}
	if c.Retry.MaxBackoffMs < c.Retry.InitialBackoffMs {
		return fmt.Errorf("retry max_backoff_ms (%d) must be >= initial_backoff_ms (%d)",
			c.Retry.MaxBackoffMs, c.Retry.InitialBackoffMs)
	}
	if err := c.Training.Weights.Validate(); err != nil {
		return fmt.Errorf("training weights: %w", err)
	}
	if c.Rendering.FramesPerBatch <= 0 {
		return fmt.Errorf("rendering frames_per_batch must be > 0, got %d", c.Rendering.FramesPerBatch)
	}
	if c.JobsDir == "" {
		return fmt.Errorf("jobs_dir is required")
	}
	return nil
}
