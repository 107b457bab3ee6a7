package models

import (
	"fmt"
	"sort"
)

// ProgressSnapshot is the periodic JSON status document a remote worker
// writes to the shared volume. It is read-only to the orchestrator.
type ProgressSnapshot struct {
	Stage            string  `json:"stage"`
	Progress         float64 `json:"progress"` // local 0-100
	Status           string  `json:"status"`
	CurrentOperation string  `json:"current_operation"`
	ImagesProcessed  int     `json:"images_processed,omitempty"`
	TotalImages      int     `json:"total_images,omitempty"`
	ElapsedTime      float64 `json:"elapsed_time,omitempty"` // seconds
	Error            string  `json:"error,omitempty"`
}

// StageInitializing is the synthesized stage reported before a remote worker
// has written its first progress document
const StageInitializing = "initializing"

// InitializingSnapshot is the normal "not started yet" state. A missing
// progress file is not an error.
func InitializingSnapshot() *ProgressSnapshot {
	return &ProgressSnapshot{Stage: StageInitializing, Progress: 0}
}

// Failed reports whether the worker recorded a terminal failure
func (p *ProgressSnapshot) Failed() bool {
	return p.Error != ""
}

// StageWeight maps one sub-stage's local 0-100 progress onto a slice of the
// pipeline's overall 0-100 progress.
type StageWeight struct {
	Stage string  `json:"stage"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// StageWeightTable is an ordered set of disjoint, contiguous stage weights
// covering [0,100].
type StageWeightTable []StageWeight

// DefaultTrainingWeights reflects the observed time split of a training run
func DefaultTrainingWeights() StageWeightTable {
	return StageWeightTable{
		{Stage: "prepare", Start: 0, End: 5},
		{Stage: "train", Start: 5, End: 90},
		{Stage: "validate", Start: 90, End: 100},
	}
}

// Validate enforces the table invariant: entries ordered, non-overlapping,
// and contiguous from 0 to 100. A pipeline variant that omits a sub-stage
// fails here rather than producing skewed progress at runtime.
func (t StageWeightTable) Validate() error {
	if len(t) == 0 {
		return fmt.Errorf("stage weight table is empty")
	}
	if !sort.SliceIsSorted(t, func(i, j int) bool { return t[i].Start < t[j].Start }) {
		return fmt.Errorf("stage weight table entries must be ordered by start")
	}
	if t[0].Start != 0 {
		return fmt.Errorf("stage weight table must start at 0, got %.1f", t[0].Start)
	}
	if t[len(t)-1].End != 100 {
		return fmt.Errorf("stage weight table must end at 100, got %.1f", t[len(t)-1].End)
	}
	for i, w := range t {
		if w.Stage == "" {
			return fmt.Errorf("stage weight entry %d has no stage name", i)
		}
		if w.End <= w.Start {
			return fmt.Errorf("stage %q has empty or inverted range [%.1f,%.1f]", w.Stage, w.Start, w.End)
		}
		if i > 0 && w.Start != t[i-1].End {
			return fmt.Errorf("gap or overlap between %q and %q at %.1f/%.1f",
				t[i-1].Stage, w.Stage, t[i-1].End, w.Start)
		}
	}
	return nil
}

// stageAliases maps the long-form sub-stage names some workers report onto
// the table's canonical keys. Exact table matches win over aliases.
var stageAliases = map[string]string{
	"preparing":  "prepare",
	"training":   "train",
	"validating": "validate",
}

// Overall maps a stage's local progress into overall pipeline progress.
// Local progress is clamped to [0,100] first, so the result always lies
// within the stage's configured range. An unknown stage reports the local
// value unchanged (ok=false) so a misbehaving worker cannot wedge status.
func (t StageWeightTable) Overall(stage string, local float64) (float64, bool) {
	if local < 0 {
		local = 0
	} else if local > 100 {
		local = 100
	}
	if overall, ok := t.lookup(stage, local); ok {
		return overall, true
	}
	if alias, ok := stageAliases[stage]; ok {
		if overall, ok := t.lookup(alias, local); ok {
			return overall, true
		}
	}
	return local, false
}

func (t StageWeightTable) lookup(stage string, local float64) (float64, bool) {
	for _, w := range t {
		if w.Stage == stage {
			return w.Start + (w.End-w.Start)*local/100, true
		}
	}
	return 0, false
}

// CostEstimate is a coarse GPU-hour projection, derived from fixed per-stage
// duration assumptions rather than measured billing.
type CostEstimate struct {
	TotalUSD  float64            `json:"total_usd"`
	Breakdown map[string]float64 `json:"breakdown"`
	GPUType   string             `json:"gpu_type"`
}

// gpuHourlyRates is the coarse dev/prod rate profile, USD per GPU-hour
var gpuHourlyRates = map[string]float64{
	"t4":   0.59,
	"l4":   1.10,
	"a10g": 1.21,
	"a100": 3.19,
	"h100": 5.92,
}

// HourlyRate returns the USD/hour rate for a GPU type, falling back to the
// most expensive known rate for unknown types so estimates err high.
func HourlyRate(gpuType string) float64 {
	if rate, ok := gpuHourlyRates[gpuType]; ok {
		return rate
	}
	return gpuHourlyRates["h100"]
}

// IsKnownGPUType checks the rate profile for a GPU type
func IsKnownGPUType(gpuType string) bool {
	_, ok := gpuHourlyRates[gpuType]
	return ok
}
