package pipeline

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/lightfield-labs/prism/internal/lib"
	"github.com/lightfield-labs/prism/internal/models"
	"github.com/lightfield-labs/prism/internal/services"
)

// Assembler downloads and unpacks rendered frame batches once a rendering
// job reports completion
type Assembler struct {
	client *services.ComputeClient
	store  *services.JobStore
	logger *lib.Logger
}

// NewAssembler creates a batch result assembler
func NewAssembler(client *services.ComputeClient, store *services.JobStore, logger *lib.Logger) *Assembler {
	return &Assembler{client: client, store: store, logger: logger}
}

// batchDirName renders the local batch directory name (batch_00, batch_01, ...)
func batchDirName(batchIndex int) string {
	return fmt.Sprintf("batch_%02d", batchIndex)
}

// frameFileName renders the zero-padded frame filename convention
func frameFileName(frameNumber int) string {
	return fmt.Sprintf("frame_%05d.png", frameNumber)
}

// framesDir is where batches are extracted for a rendering job
func (a *Assembler) framesDir(jobID string) string {
	return filepath.Join(a.store.JobDir(jobID), "frames")
}

// DownloadBatch fetches one zip archive from the remote volume, extracts it
// into the batch-indexed local directory, and removes the zip.
// Returns the extraction directory.
func (a *Assembler) DownloadBatch(jobID string, batchIndex int) (string, error) {
	ident, err := models.ParseJobID(jobID)
	if err != nil {
		return "", err
	}

	remoteZip := fmt.Sprintf("%s/%s.zip", ident.FramesPath(), batchDirName(batchIndex))
	batchDir := filepath.Join(a.framesDir(jobID), batchDirName(batchIndex))
	localZip := batchDir + ".zip"

	a.logger.Debug("Downloading frame batch", "job_id", jobID, "batch", batchIndex, "remote", remoteZip)

	if err := a.client.DownloadFile(remoteZip, localZip); err != nil {
		return "", fmt.Errorf("failed to download batch %d: %w", batchIndex, err)
	}

	if err := extractZip(localZip, batchDir); err != nil {
		_ = os.Remove(localZip)
		return "", fmt.Errorf("failed to extract batch %d: %w", batchIndex, err)
	}

	if err := os.Remove(localZip); err != nil {
		a.logger.Warn("Could not remove batch archive", "path", localZip, "error", err)
	}

	frameCount := lib.CountFilesWithSuffix(batchDir, ".png")
	a.logger.Info("Batch extracted", "job_id", jobID, "batch", batchIndex, "frames", frameCount)

	return batchDir, nil
}

// DownloadAllFrames fetches every batch of a completed rendering job,
// sequentially, and returns the extraction directories in batch order.
// A job that is not complete is refused.
func (a *Assembler) DownloadAllFrames(jobID string) ([]string, error) {
	job, err := a.store.Get(jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != models.JobStatusComplete {
		return nil, lib.ErrStageNotComplete(jobID, string(job.Status))
	}

	totalBatches := intFromData(job.Data, "total_batches")
	if totalBatches <= 0 {
		return nil, fmt.Errorf("job %q has no recorded batch count", jobID)
	}

	dirs := make([]string, 0, totalBatches)
	for i := 0; i < totalBatches; i++ {
		dir, err := a.DownloadBatch(jobID, i)
		if err != nil {
			return dirs, err
		}
		dirs = append(dirs, dir)
	}

	a.logger.Info("All frame batches downloaded", "job_id", jobID, "batches", totalBatches)
	return dirs, nil
}

// GetFramePath scans extracted batch directories in order for the given
// frame number. Returns empty string when the frame is not present locally.
func (a *Assembler) GetFramePath(jobID string, frameNumber int) string {
	framesDir := a.framesDir(jobID)
	fileName := frameFileName(frameNumber)

	for _, batchDir := range lib.ListSubdirsSorted(framesDir) {
		candidate := filepath.Join(framesDir, batchDir, fileName)
		if lib.FileExists(candidate) {
			return candidate
		}
	}
	return ""
}

// extractZip unpacks an archive into destDir, refusing entries that would
// escape it
func extractZip(zipPath string, destDir string) error {
	reader, err := zip.OpenReader(zipPath)
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}
	defer func() { _ = reader.Close() }()

	if err := lib.EnsureDir(destDir); err != nil {
		return fmt.Errorf("failed to create batch directory: %w", err)
	}

	for _, file := range reader.File {
		destPath := filepath.Join(destDir, file.Name)
		if !strings.HasPrefix(destPath, filepath.Clean(destDir)+string(os.PathSeparator)) {
			return fmt.Errorf("archive entry %q escapes extraction directory", file.Name)
		}

		if file.FileInfo().IsDir() {
			if err := os.MkdirAll(destPath, 0755); err != nil {
				return err
			}
			continue
		}

		if err := lib.EnsureDir(filepath.Dir(destPath)); err != nil {
			return err
		}

		src, err := file.Open()
		if err != nil {
			return fmt.Errorf("failed to read archive entry %q: %w", file.Name, err)
		}

		dest, err := os.Create(destPath)
		if err != nil {
			_ = src.Close()
			return fmt.Errorf("failed to create %q: %w", destPath, err)
		}

		_, err = io.Copy(dest, src)
		_ = src.Close()
		_ = dest.Close()
		if err != nil {
			return fmt.Errorf("failed to extract %q: %w", file.Name, err)
		}
	}

	return nil
}
