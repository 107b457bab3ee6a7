package cmd

import (
	"fmt"
	"time"

	"github.com/lightfield-labs/prism/internal/lib"
	"github.com/lightfield-labs/prism/internal/models"
	"github.com/lightfield-labs/prism/internal/pipeline"
	"github.com/lightfield-labs/prism/internal/services"
	"github.com/lightfield-labs/prism/internal/ui"
	"github.com/spf13/cobra"
)

var (
	renderFrames  int
	watchInterval int
)

// pipelineCmd represents the pipeline command group
var pipelineCmd = &cobra.Command{
	Use:   "pipeline",
	Short: "Run and monitor pipeline stages",
	Long: `Run and monitor reconstruction pipeline stages.

Available subcommands:
  reconstruct - Start camera-pose recovery for an upload
  train       - Start model training from a reconstruction
  render      - Start frame rendering from a trained model
  status      - Check a stage job's status
  watch       - Continuously monitor a stage job
  retry       - Retry a failed stage under a fresh job id
  download    - Download rendered frame batches`,
}

var pipelineReconstructCmd = &cobra.Command{
	Use:   "reconstruct <upload-id>",
	Short: "Start camera-pose recovery",
	Long: `Start the reconstruction stage for an uploaded image set.

The job id is derived from the upload's root id; the remote function is
spawned and the command returns immediately. Poll with 'status' or 'watch'.

Example:
  prism pipeline reconstruct 4f56be8e-9f0a-4c63-a163-6bbe1a73dbde`,
	Args: cobra.ExactArgs(1),
	RunE: runPipelineReconstruct,
}

var pipelineTrainCmd = &cobra.Command{
	Use:   "train <reconstruction-id>",
	Short: "Start scene model training",
	Long: `Start the training stage from a completed reconstruction.

Prints the up-front cost estimate derived from the configured GPU type.

Example:
  prism pipeline train reconstruction_4f56be8e-9f0a-4c63-a163-6bbe1a73dbde`,
	Args: cobra.ExactArgs(1),
	RunE: runPipelineTrain,
}

var pipelineRenderCmd = &cobra.Command{
	Use:   "render <training-id>",
	Short: "Start batched frame rendering",
	Long: `Start the rendering stage from a trained model.

Frames are rendered in fixed-size batches; download them with
'prism pipeline download' once the job completes.

Example:
  prism pipeline render train_4f56be8e-9f0a-4c63-a163-6bbe1a73dbde --frames 1440`,
	Args: cobra.ExactArgs(1),
	RunE: runPipelineRender,
}

var pipelineStatusCmd = &cobra.Command{
	Use:   "status <job-id>",
	Short: "Check a stage job's status",
	Long: `Display the latest progress snapshot for a stage job, mapped into
typed status: stage, progress, ETA, errors, and the artifact path once
complete.

Example:
  prism pipeline status train_4f56be8e-9f0a-4c63-a163-6bbe1a73dbde`,
	Args: cobra.ExactArgs(1),
	RunE: runPipelineStatus,
}

var pipelineWatchCmd = &cobra.Command{
	Use:   "watch <job-id>",
	Short: "Continuously monitor a stage job",
	Long: `Poll a stage job until it reaches a terminal state, showing a
progress bar with ETA and, for rendering jobs, measured frame throughput.

Example:
  prism pipeline watch render_4f56be8e-9f0a-4c63-a163-6bbe1a73dbde`,
	Args: cobra.ExactArgs(1),
	RunE: runPipelineWatch,
}

var pipelineRetryCmd = &cobra.Command{
	Use:   "retry <job-id>",
	Short: "Retry a failed stage under a fresh job id",
	Long: `Start a fresh attempt of a failed stage. The new attempt gets its
own derived job id; the failed record stays as history and is never
transitioned.

Example:
  prism pipeline retry train_4f56be8e-9f0a-4c63-a163-6bbe1a73dbde`,
	Args: cobra.ExactArgs(1),
	RunE: runPipelineRetry,
}

var pipelineDownloadCmd = &cobra.Command{
	Use:   "download <render-job-id>",
	Short: "Download rendered frame batches",
	Long: `Download and extract every frame batch of a completed rendering
job into the local job directory, one directory per batch.

Example:
  prism pipeline download render_4f56be8e-9f0a-4c63-a163-6bbe1a73dbde`,
	Args: cobra.ExactArgs(1),
	RunE: runPipelineDownload,
}

func init() {
	rootCmd.AddCommand(pipelineCmd)
	pipelineCmd.AddCommand(pipelineReconstructCmd)
	pipelineCmd.AddCommand(pipelineTrainCmd)
	pipelineCmd.AddCommand(pipelineRenderCmd)
	pipelineCmd.AddCommand(pipelineStatusCmd)
	pipelineCmd.AddCommand(pipelineWatchCmd)
	pipelineCmd.AddCommand(pipelineRetryCmd)
	pipelineCmd.AddCommand(pipelineDownloadCmd)

	pipelineRenderCmd.Flags().IntVar(&renderFrames, "frames", 0, "total number of frames to render (required)")
	_ = pipelineRenderCmd.MarkFlagRequired("frames")
	pipelineWatchCmd.Flags().IntVar(&watchInterval, "interval", 5, "poll interval in seconds")
}

// runtime bundles the wired subsystem for a command invocation. The compute
// client is constructed once and injected into every orchestrator.
type runtime struct {
	config         *models.ProjectConfig
	logger         *lib.Logger
	client         *services.ComputeClient
	store          *services.JobStore
	reconstruction *pipeline.ReconstructionOrchestrator
	training       *pipeline.TrainingOrchestrator
	rendering      *pipeline.RenderingOrchestrator
	assembler      *pipeline.Assembler
}

func newRuntime() (*runtime, error) {
	config, err := services.LoadConfig(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := lib.DefaultLogger
	if verbose {
		logger.SetLevel(lib.LogLevelDebug)
	}

	httpClient := services.NewHTTPClient(60*time.Second, config.Retry, logger)
	client := services.NewComputeClient(config.Compute, config.Retry, httpClient, logger)
	if !client.IsConfigured() {
		return nil, lib.ErrNotConfigured()
	}

	store := services.NewJobStore(config.JobsDir, logger)

	return &runtime{
		config:         config,
		logger:         logger,
		client:         client,
		store:          store,
		reconstruction: pipeline.NewReconstructionOrchestrator(client, store, config, logger),
		training:       pipeline.NewTrainingOrchestrator(client, store, config, logger),
		rendering:      pipeline.NewRenderingOrchestrator(client, store, config, logger),
		assembler:      pipeline.NewAssembler(client, store, logger),
	}, nil
}

func runPipelineReconstruct(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}

	resp, err := rt.reconstruction.Start(args[0])
	if err != nil {
		return err
	}

	fmt.Printf("Reconstruction started\n")
	fmt.Printf("  Job ID: %s\n", resp.JobID)
	fmt.Printf("  Images: %d\n", resp.ImageCount)
	fmt.Printf("  ETA:    ~%s\n", formatSeconds(resp.ETASeconds))
	fmt.Printf("\nCheck progress with 'prism pipeline status %s'\n", resp.JobID)
	return nil
}

func runPipelineTrain(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}

	resp, err := rt.training.Start(args[0])
	if err != nil {
		return err
	}

	fmt.Printf("Training started\n")
	fmt.Printf("  Job ID: %s\n", resp.JobID)
	fmt.Printf("  ETA:    ~%s\n", formatSeconds(resp.ETASeconds))
	if resp.Cost != nil {
		fmt.Printf("  Estimated cost: $%.2f on %s\n", resp.Cost.TotalUSD, resp.Cost.GPUType)
		for stage, usd := range resp.Cost.Breakdown {
			fmt.Printf("    %-10s $%.2f\n", stage, usd)
		}
	}
	fmt.Printf("\nCheck progress with 'prism pipeline status %s'\n", resp.JobID)
	return nil
}

func runPipelineRender(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}

	resp, err := rt.rendering.Start(args[0], renderFrames)
	if err != nil {
		return err
	}

	fmt.Printf("Rendering started\n")
	fmt.Printf("  Job ID: %s\n", resp.JobID)
	fmt.Printf("  Frames: %d\n", renderFrames)
	fmt.Printf("  ETA:    ~%s\n", formatSeconds(resp.ETASeconds))
	fmt.Printf("\nCheck progress with 'prism pipeline watch %s'\n", resp.JobID)
	return nil
}

func runPipelineStatus(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}

	status, err := rt.stageStatus(args[0])
	if err != nil {
		return err
	}

	printStatus(status)
	return nil
}

func runPipelineWatch(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}

	return rt.watch(args[0], time.Duration(watchInterval)*time.Second)
}

func runPipelineRetry(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}

	ident, err := models.ParseJobID(args[0])
	if err != nil {
		return err
	}

	var resp *pipeline.StartResponse
	switch ident.Stage {
	case models.StageReconstruction:
		resp, err = rt.reconstruction.Retry(args[0])
	case models.StageTraining:
		resp, err = rt.training.Retry(args[0])
	case models.StageRendering:
		resp, err = rt.rendering.Retry(args[0])
	default:
		return fmt.Errorf("job %q is an upload id; uploads are not retried here", args[0])
	}
	if err != nil {
		return err
	}

	fmt.Printf("Retry started under new job id %s\n", resp.JobID)
	fmt.Printf("Check progress with 'prism pipeline status %s'\n", resp.JobID)
	return nil
}

func runPipelineDownload(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}

	spinner := ui.NewSpinner(fmt.Sprintf("Downloading frame batches for %s", args[0]))
	spinner.Start()
	dirs, err := rt.assembler.DownloadAllFrames(args[0])
	spinner.Stop(err == nil)
	if err != nil {
		return err
	}

	fmt.Printf("Downloaded %d batches:\n", len(dirs))
	for _, dir := range dirs {
		fmt.Printf("  %s\n", dir)
	}
	return nil
}

// stageStatus dispatches a status query to the orchestrator owning the id's
// stage
func (rt *runtime) stageStatus(jobID string) (*pipeline.StageStatus, error) {
	ident, err := models.ParseJobID(jobID)
	if err != nil {
		return nil, err
	}

	switch ident.Stage {
	case models.StageReconstruction:
		return rt.reconstruction.GetStatus(jobID)
	case models.StageTraining:
		return rt.training.GetStatus(jobID)
	case models.StageRendering:
		return rt.rendering.GetStatus(jobID)
	default:
		return nil, fmt.Errorf("job %q is an upload id; upload state lives in the job store", jobID)
	}
}

func printStatus(status *pipeline.StageStatus) {
	fmt.Printf("Job:      %s\n", status.JobID)
	fmt.Printf("Stage:    %s\n", status.Stage)
	fmt.Printf("Status:   %s\n", status.Status)
	fmt.Printf("Progress: %.1f%% (overall %.1f%%)\n", status.Progress, status.OverallProgress)

	if status.CurrentOperation != "" {
		fmt.Printf("Current:  %s\n", status.CurrentOperation)
	}
	if status.TotalImages > 0 {
		fmt.Printf("Images:   %d/%d\n", status.ImagesProcessed, status.TotalImages)
	}
	if status.TotalBatches > 0 {
		fmt.Printf("Batch:    %d/%d (frame %d)\n", status.CurrentBatch, status.TotalBatches, status.CurrentFrame)
	}
	if status.RenderingSpeed > 0 {
		fmt.Printf("Speed:    %.2f frames/sec\n", status.RenderingSpeed)
	}
	if status.ETASeconds != nil {
		fmt.Printf("ETA:      %s\n", formatSeconds(*status.ETASeconds))
	}
	if status.CostSoFarUSD > 0 {
		fmt.Printf("Cost:     $%.2f so far\n", status.CostSoFarUSD)
	}
	if status.Error != "" {
		fmt.Printf("Error:    %s\n", status.Error)
	}
	if status.ArtifactPath != "" {
		fmt.Printf("Artifact: %s\n", status.ArtifactPath)
	}
}

func formatSeconds(seconds float64) string {
	return (time.Duration(seconds) * time.Second).Round(time.Second).String()
}
