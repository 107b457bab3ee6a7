package cmd

import (
	"fmt"
	"time"

	"github.com/lightfield-labs/prism/internal/models"
	"github.com/lightfield-labs/prism/internal/ui"
)

// watch polls a stage job until it reaches a terminal state, driving a
// progress bar from the overall percentage. Poll failures surface as an
// initializing snapshot inside the orchestrator, so the loop just keeps
// going until the deadline-free terminal condition.
func (rt *runtime) watch(jobID string, interval time.Duration) error {
	bar := ui.NewProgressBar(100, fmt.Sprintf("Watching %s", jobID))
	eta := ui.NewETACalculator()

	for {
		status, err := rt.stageStatus(jobID)
		if err != nil {
			return err
		}

		_ = bar.Set(int64(status.OverallProgress))
		eta.RecordProgress(int64(status.OverallProgress))

		switch status.Status {
		case models.JobStatusComplete:
			_ = bar.Finish()
			fmt.Printf("\n%s complete\n", status.Stage)
			if status.ArtifactPath != "" {
				fmt.Printf("Artifact: %s\n", status.ArtifactPath)
			}
			if status.CostSoFarUSD > 0 {
				fmt.Printf("Cost:     $%.2f\n", status.CostSoFarUSD)
			}
			return nil
		case models.JobStatusFailed:
			_ = bar.Clear()
			fmt.Printf("\n%s failed", status.Stage)
			if status.Error != "" {
				fmt.Printf(": %s", status.Error)
			}
			fmt.Printf("\nRetry with 'prism pipeline retry %s'\n", jobID)
			return fmt.Errorf("job %s failed", jobID)
		}

		if remaining, ok := eta.CalculateETA(100, int64(status.OverallProgress)); ok {
			_ = bar.Clear()
			line := fmt.Sprintf("  %s  ETA %s", status.CurrentOperation, ui.FormatETA(remaining))
			if status.RenderingSpeed > 0 {
				line += fmt.Sprintf("  %.2f frames/sec", status.RenderingSpeed)
			}
			fmt.Println(line)
		}

		time.Sleep(interval)
	}
}
