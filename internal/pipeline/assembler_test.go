package pipeline

import (
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lightfield-labs/prism/internal/models"
)

func makeZip(t *testing.T, files map[string][]byte) []byte {
	t.Helper()

	var buf bytes.Buffer
	writer := zip.NewWriter(&buf)
	for name, data := range files {
		entry, err := writer.Create(name)
		require.NoError(t, err)
		_, err = entry.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())
	return buf.Bytes()
}

// seedCompletedRender records a finished rendering job and serves its frame
// batches from the fake platform
func seedCompletedRender(t *testing.T, h *harness, totalBatches int) {
	t.Helper()

	_, err := h.store.Create("render_abc", models.JobTypeRendering, map[string]any{
		"total_batches": totalBatches,
	})
	require.NoError(t, err)
	_, err = h.store.Update("render_abc", models.JobStatusProcessing, nil)
	require.NoError(t, err)
	_, err = h.store.Update("render_abc", models.JobStatusComplete, nil)
	require.NoError(t, err)
}

func TestDownloadBatch(t *testing.T) {
	h := newHarness(t)
	seedCompletedRender(t, h, 1)

	h.platform.putFile("jobs/abc/frames/batch_00.zip", makeZip(t, map[string][]byte{
		"frame_00000.png": []byte("png-0"),
		"frame_00001.png": []byte("png-1"),
	}))

	dir, err := h.assembler.DownloadBatch("render_abc", 0)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(h.store.JobDir("render_abc"), "frames", "batch_00"), dir)

	data, err := os.ReadFile(filepath.Join(dir, "frame_00001.png"))
	require.NoError(t, err)
	assert.Equal(t, []byte("png-1"), data)

	// The transport zip is removed after extraction
	assert.NoFileExists(t, dir+".zip")
}

func TestDownloadBatchMissingArchive(t *testing.T) {
	h := newHarness(t)
	seedCompletedRender(t, h, 1)

	_, err := h.assembler.DownloadBatch("render_abc", 0)
	assert.Error(t, err)
}

func TestDownloadAllFrames(t *testing.T) {
	h := newHarness(t)
	seedCompletedRender(t, h, 3)

	h.platform.putFile("jobs/abc/frames/batch_00.zip", makeZip(t, map[string][]byte{
		"frame_00000.png": []byte("a"),
	}))
	h.platform.putFile("jobs/abc/frames/batch_01.zip", makeZip(t, map[string][]byte{
		"frame_00100.png": []byte("b"),
	}))
	h.platform.putFile("jobs/abc/frames/batch_02.zip", makeZip(t, map[string][]byte{
		"frame_00200.png": []byte("c"),
	}))

	dirs, err := h.assembler.DownloadAllFrames("render_abc")
	require.NoError(t, err)
	require.Len(t, dirs, 3)
	assert.Equal(t, "batch_00", filepath.Base(dirs[0]))
	assert.Equal(t, "batch_02", filepath.Base(dirs[2]))

	t.Run("frames are locatable by number", func(t *testing.T) {
		path := h.assembler.GetFramePath("render_abc", 100)
		require.NotEmpty(t, path)
		assert.Equal(t, "frame_00100.png", filepath.Base(path))
		assert.Contains(t, path, "batch_01")

		assert.Empty(t, h.assembler.GetFramePath("render_abc", 999))
	})
}

// TestDownloadAllFramesStopsAtFirstFailure verifies the sequential download
// keeps already-fetched batches when a later one fails.
func TestDownloadAllFramesStopsAtFirstFailure(t *testing.T) {
	h := newHarness(t)
	seedCompletedRender(t, h, 2)

	h.platform.putFile("jobs/abc/frames/batch_00.zip", makeZip(t, map[string][]byte{
		"frame_00000.png": []byte("a"),
	}))
	// batch_01.zip never uploaded

	dirs, err := h.assembler.DownloadAllFrames("render_abc")
	require.Error(t, err)
	require.Len(t, dirs, 1)
	assert.FileExists(t, filepath.Join(dirs[0], "frame_00000.png"))
}

func TestDownloadAllFramesRequiresCompletion(t *testing.T) {
	h := newHarness(t)

	_, err := h.store.Create("render_abc", models.JobTypeRendering, map[string]any{"total_batches": 2})
	require.NoError(t, err)
	_, err = h.store.Update("render_abc", models.JobStatusProcessing, nil)
	require.NoError(t, err)

	_, err = h.assembler.DownloadAllFrames("render_abc")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "processing")
}

func TestExtractZipRejectsEscapingEntries(t *testing.T) {
	tempDir := t.TempDir()

	zipPath := filepath.Join(tempDir, "evil.zip")
	require.NoError(t, os.WriteFile(zipPath, makeZip(t, map[string][]byte{
		"../evil.txt": []byte("nope"),
	}), 0644))

	err := extractZip(zipPath, filepath.Join(tempDir, "out"))
	assert.Error(t, err)
	assert.NoFileExists(t, filepath.Join(tempDir, "evil.txt"))
}

func TestBatchNaming(t *testing.T) {
	assert.Equal(t, "batch_00", batchDirName(0))
	assert.Equal(t, "batch_07", batchDirName(7))
	assert.Equal(t, "batch_14", batchDirName(14))
	assert.Equal(t, "frame_00750.png", frameFileName(750))
}
