package pipeline

import (
	"github.com/lightfield-labs/prism/internal/models"
)

// EstimateRemaining projects the remaining seconds of a stage from elapsed
// time and overall progress, assuming a constant rate.
// With zero overall progress the ETA is undefined (ok=false), never zero.
func EstimateRemaining(elapsedSeconds float64, overallProgress float64) (float64, bool) {
	if elapsedSeconds <= 0 || overallProgress <= 0 {
		return 0, false
	}

	estimatedTotal := elapsedSeconds / overallProgress * 100
	remaining := estimatedTotal - elapsedSeconds
	if remaining < 0 {
		remaining = 0
	}
	return remaining, true
}

// CostSoFar estimates accrued GPU cost from elapsed wall time and the
// deployed GPU's hourly rate. This is a coarse projection from the rate
// profile, not measured billing.
func CostSoFar(elapsedSeconds float64, gpuType string) float64 {
	if elapsedSeconds <= 0 {
		return 0
	}
	return elapsedSeconds / 3600 * models.HourlyRate(gpuType)
}

// EstimateTrainingCost projects a training run's cost from fixed per-stage
// duration assumptions and the GPU hourly rate, independent of actual usage.
func EstimateTrainingCost(stageDurationsMin map[string]float64, gpuType string) models.CostEstimate {
	rate := models.HourlyRate(gpuType)

	estimate := models.CostEstimate{
		Breakdown: map[string]float64{},
		GPUType:   gpuType,
	}
	for stage, minutes := range stageDurationsMin {
		cost := minutes / 60 * rate
		estimate.Breakdown[stage] = cost
		estimate.TotalUSD += cost
	}
	return estimate
}

// AssumedDurationSeconds sums the fixed per-stage duration assumptions,
// giving the start-time ETA for a training run
func AssumedDurationSeconds(stageDurationsMin map[string]float64) float64 {
	var total float64
	for _, minutes := range stageDurationsMin {
		total += minutes * 60
	}
	return total
}
