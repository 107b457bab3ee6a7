package pipeline

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lightfield-labs/prism/internal/models"
)

func TestReconstructionStart(t *testing.T) {
	h := newHarness(t)

	for i := 0; i < 24; i++ {
		h.platform.putFile(fmt.Sprintf("jobs/abc/images/frame_%03d.jpg", i), []byte("jpg"))
	}

	resp, err := h.reconstruction.Start("abc")
	require.NoError(t, err)

	assert.Equal(t, "reconstruction_abc", resp.JobID)
	assert.Equal(t, models.StageReconstruction, resp.Stage)
	assert.Equal(t, models.JobStatusProcessing, resp.Status)
	assert.Equal(t, 24, resp.ImageCount)

	calls := h.platform.spawnCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "run_reconstruction", calls[0].Function)
	assert.Equal(t, "jobs/abc/images", calls[0].Args["image_dir"])
	assert.Equal(t, "jobs/abc/reconstruction", calls[0].Args["output_dir"])
	assert.Equal(t, "t4", calls[0].Args["gpu_type"])
}

func TestReconstructionStartFromDerivedID(t *testing.T) {
	h := newHarness(t)

	// Any id in the chain reduces to the root
	resp, err := h.reconstruction.Start("train_abc")
	require.NoError(t, err)
	assert.Equal(t, "reconstruction_abc", resp.JobID)
}

func TestReconstructionStatus(t *testing.T) {
	h := newHarness(t)

	_, err := h.reconstruction.Start("abc")
	require.NoError(t, err)

	h.platform.setProgress("reconstruction_abc", models.ProgressSnapshot{
		Stage:            "feature_matching",
		Progress:         60,
		Status:           "running",
		CurrentOperation: "matching image pairs",
		ImagesProcessed:  14,
		TotalImages:      24,
		ElapsedTime:      300,
	})

	status, err := h.reconstruction.GetStatus("reconstruction_abc")
	require.NoError(t, err)

	assert.Equal(t, models.JobStatusProcessing, status.Status)
	assert.Equal(t, 60.0, status.Progress)
	assert.Equal(t, 14, status.ImagesProcessed)

	require.NotNil(t, status.ETASeconds)
	assert.InDelta(t, 300.0/60*100-300, *status.ETASeconds, 0.001)

	h.platform.setProgress("reconstruction_abc", models.ProgressSnapshot{
		Stage:    "export",
		Progress: 100,
		Status:   "complete",
	})

	status, err = h.reconstruction.GetStatus("reconstruction_abc")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusComplete, status.Status)
	assert.Equal(t, "jobs/abc/reconstruction", status.ArtifactPath)
}

func TestReconstructionRetry(t *testing.T) {
	h := newHarness(t)

	_, err := h.reconstruction.Start("abc")
	require.NoError(t, err)

	h.platform.setProgress("reconstruction_abc", models.ProgressSnapshot{
		Stage:  "sparse_reconstruction",
		Status: "failed",
		Error:  "not enough feature matches",
	})
	_, err = h.reconstruction.GetStatus("reconstruction_abc")
	require.NoError(t, err)

	resp, err := h.reconstruction.Retry("reconstruction_abc")
	require.NoError(t, err)
	assert.Equal(t, "reconstruction_abc_a2", resp.JobID)
}
