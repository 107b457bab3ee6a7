package cmd

import (
	"fmt"
	"time"

	"github.com/lightfield-labs/prism/internal/lib"
	"github.com/lightfield-labs/prism/internal/models"
	"github.com/lightfield-labs/prism/internal/services"
	"github.com/spf13/cobra"
)

var (
	listJobType     string
	listJobStatus   string
	cleanupAgeHours float64
)

// jobCmd represents the job command group
var jobCmd = &cobra.Command{
	Use:   "job",
	Short: "Manage pipeline jobs",
	Long: `Manage locally tracked pipeline jobs.

Available subcommands:
  list    - List all tracked jobs
  cleanup - Remove old terminal jobs`,
}

// jobListCmd represents the job list command
var jobListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all tracked jobs",
	Long: `List all jobs tracked in the jobs directory, newest first.

Shows:
  - Job ID
  - Type
  - Status
  - Age

Example:
  prism job list --type rendering --status failed`,
	RunE: runJobList,
}

// jobCleanupCmd represents the job cleanup command
var jobCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove old terminal jobs",
	Long: `Remove job records whose status is complete or failed and whose
state file is older than the given age. Idle and processing jobs are
never removed.

Example:
  prism job cleanup --age-hours 72`,
	RunE: runJobCleanup,
}

func init() {
	rootCmd.AddCommand(jobCmd)
	jobCmd.AddCommand(jobListCmd)
	jobCmd.AddCommand(jobCleanupCmd)

	jobListCmd.Flags().StringVar(&listJobType, "type", "", "filter by job type (upload, reconstruction, training, rendering)")
	jobListCmd.Flags().StringVar(&listJobStatus, "status", "", "filter by status (idle, processing, complete, failed)")
	jobCleanupCmd.Flags().Float64Var(&cleanupAgeHours, "age-hours", 24, "minimum age in hours before a terminal job is removed")
}

func runJobList(cmd *cobra.Command, args []string) error {
	config, err := services.LoadConfig(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	store := services.NewJobStore(config.JobsDir, lib.DefaultLogger)
	jobs, err := store.List(models.JobType(listJobType), models.JobStatus(listJobStatus))
	if err != nil {
		return fmt.Errorf("failed to list jobs: %w", err)
	}

	if len(jobs) == 0 {
		fmt.Println("No jobs found")
		return nil
	}

	// Print table header
	fmt.Printf("%-50s %-15s %-12s %s\n", "JOB ID", "TYPE", "STATUS", "AGE")
	fmt.Println("------------------------------------------------------------------------------------------")

	for _, j := range jobs {
		statusSymbol := getJobStatusSymbol(j.Status)
		fmt.Printf("%-50s %-15s %s %-10s %s\n",
			j.JobID,
			j.JobType,
			statusSymbol,
			j.Status,
			formatDuration(time.Since(j.CreatedAt)),
		)
	}

	fmt.Printf("\nTotal: %d jobs\n", len(jobs))

	return nil
}

func runJobCleanup(cmd *cobra.Command, args []string) error {
	config, err := services.LoadConfig(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	store := services.NewJobStore(config.JobsDir, lib.DefaultLogger)
	removed, err := store.Cleanup(cleanupAgeHours)
	if err != nil {
		return fmt.Errorf("cleanup failed: %w", err)
	}

	if len(removed) == 0 {
		fmt.Println("No jobs eligible for cleanup")
		return nil
	}

	for _, jobID := range removed {
		fmt.Printf("Removed %s\n", jobID)
	}
	fmt.Printf("\nRemoved %d jobs older than %.0fh\n", len(removed), cleanupAgeHours)

	return nil
}

func getJobStatusSymbol(status models.JobStatus) string {
	switch status {
	case models.JobStatusComplete:
		return "✓"
	case models.JobStatusProcessing:
		return "→"
	case models.JobStatusFailed:
		return "✗"
	case models.JobStatusIdle:
		return "○"
	default:
		return " "
	}
}

func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
	if d < 24*time.Hour {
		return fmt.Sprintf("%dh", int(d.Hours()))
	}
	days := int(d.Hours() / 24)
	return fmt.Sprintf("%dd", days)
}
