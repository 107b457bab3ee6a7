package lib

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountFilesWithSuffix(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "frame_00000.png"), nil, 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "frame_00001.PNG"), nil, 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), nil, 0644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.png"), 0755))

	assert.Equal(t, 2, CountFilesWithSuffix(dir, ".png"))
	assert.Equal(t, 0, CountFilesWithSuffix(filepath.Join(dir, "missing"), ".png"))
}

func TestListSubdirsSorted(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"batch_02", "batch_00", "batch_01"} {
		require.NoError(t, os.Mkdir(filepath.Join(dir, name), 0755))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "stray.txt"), nil, 0644))

	assert.Equal(t, []string{"batch_00", "batch_01", "batch_02"}, ListSubdirsSorted(dir))
	assert.Empty(t, ListSubdirsSorted(filepath.Join(dir, "missing")))
}

func TestFileExists(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "state.json")
	require.NoError(t, os.WriteFile(file, []byte("{}"), 0644))

	assert.True(t, FileExists(file))
	assert.False(t, FileExists(dir), "directories are not files")
	assert.False(t, FileExists(filepath.Join(dir, "missing")))
}

func TestGetFileModTime(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "state.json")
	require.NoError(t, os.WriteFile(file, []byte("{}"), 0644))

	assert.False(t, GetFileModTime(file).IsZero())
	assert.True(t, GetFileModTime(filepath.Join(dir, "missing")).IsZero())
}
