package services

import (
	"fmt"
	"os"

	"github.com/lightfield-labs/prism/internal/models"
	"github.com/spf13/viper"
)

// LoadConfig loads configuration from file, environment, and defaults.
// Priority order (highest to lowest):
//  1. Environment variables (PRISM_ prefix)
//  2. Configuration file
//  3. Default values
func LoadConfig(configFile string) (*models.ProjectConfig, error) {
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.SetConfigName("prism")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.config/prism")
		viper.AddConfigPath("/etc/prism")
	}

	viper.SetEnvPrefix("PRISM")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found - defaults plus env only
	}

	defaults := models.DefaultConfig()

	// Build config manually from viper values
	// (viper.Unmarshal has issues with nested structs in some versions)
	config := defaults
	config.Compute = models.ComputeConfig{
		BaseURL:     viper.GetString("compute.base_url"),
		Token:       viper.GetString("compute.token"),
		GPUType:     viper.GetString("compute.gpu_type"),
		Environment: viper.GetString("compute.environment"),
	}
	if config.Compute.GPUType == "" {
		config.Compute.GPUType = defaults.Compute.GPUType
	}
	if config.Compute.Environment == "" {
		config.Compute.Environment = defaults.Compute.Environment
	}

	if v := viper.GetInt("retry.max_attempts"); v > 0 {
		config.Retry.MaxAttempts = v
	}
	if v := viper.GetInt64("retry.initial_backoff_ms"); v > 0 {
		config.Retry.InitialBackoffMs = v
	}
	if v := viper.GetInt64("retry.max_backoff_ms"); v > 0 {
		config.Retry.MaxBackoffMs = v
	}

	if weights := loadStageWeights(); len(weights) > 0 {
		config.Training.Weights = weights
	}
	if durations := viper.GetStringMap("training.stage_durations_min"); len(durations) > 0 {
		config.Training.StageDurationsMin = map[string]float64{}
		for stage := range durations {
			config.Training.StageDurationsMin[stage] = viper.GetFloat64("training.stage_durations_min." + stage)
		}
	}

	if v := viper.GetInt("rendering.frames_per_batch"); v > 0 {
		config.Rendering.FramesPerBatch = v
	}
	if v := viper.GetString("jobs_dir"); v != "" {
		config.JobsDir = v
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if err := os.MkdirAll(config.JobsDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create jobs directory: %w", err)
	}

	return &config, nil
}

// loadStageWeights reads training.weights entries of the form
//
//	training:
//	  weights:
//	    - {stage: prepare, start: 0, end: 5}
func loadStageWeights() models.StageWeightTable {
	raw, ok := viper.Get("training.weights").([]any)
	if !ok {
		return nil
	}

	var table models.StageWeightTable
	for _, item := range raw {
		entry, ok := item.(map[string]any)
		if !ok {
			return nil
		}
		table = append(table, models.StageWeight{
			Stage: fmt.Sprint(entry["stage"]),
			Start: toFloat(entry["start"]),
			End:   toFloat(entry["end"]),
		})
	}
	return table
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	default:
		return 0
	}
}

// GetConfigFilePath returns the path of the config file that was loaded
func GetConfigFilePath() string {
	return viper.ConfigFileUsed()
}
