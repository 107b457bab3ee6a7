package services

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lightfield-labs/prism/internal/lib"
	"github.com/lightfield-labs/prism/internal/models"
)

// newTestComputeClient builds a client against a fake platform server with
// the sleep function replaced by a recorder, so backoff behavior is
// observable without real waiting.
func newTestComputeClient(t *testing.T, server *httptest.Server) (*ComputeClient, *sleepRecorder) {
	t.Helper()

	retry := models.RetryConfig{MaxAttempts: 3, InitialBackoffMs: 1000, MaxBackoffMs: 30000}
	logger := lib.NewLogger(lib.LogLevelError)
	client := NewComputeClient(
		models.ComputeConfig{BaseURL: server.URL, Token: "test-token", GPUType: "t4", Environment: "dev"},
		retry,
		NewHTTPClient(5*time.Second, retry, logger),
		logger,
	)

	recorder := &sleepRecorder{}
	client.sleep = recorder.sleep
	return client, recorder
}

type sleepRecorder struct {
	mu        sync.Mutex
	durations []time.Duration
}

func (r *sleepRecorder) sleep(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.durations = append(r.durations, d)
}

func (r *sleepRecorder) recorded() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration{}, r.durations...)
}

func writePlatformError(w http.ResponseWriter, status int, code string, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"code": code, "message": message})
}

func TestCallFunctionSpawnsImmediately(t *testing.T) {
	var gotAuth string
	var gotArgs map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "POST", r.Method)
		assert.Equal(t, "/v1/functions/train_model/calls", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotArgs)
		_ = json.NewEncoder(w).Encode(map[string]string{"call_id": "call-123"})
	}))
	defer server.Close()

	client, recorder := newTestComputeClient(t, server)

	handle, err := client.CallFunction("train_model", map[string]any{"job_id": "train_abc"}, 3)
	require.NoError(t, err)
	assert.Equal(t, "call-123", handle.CallID)
	assert.Equal(t, "train_model", handle.Function)
	assert.False(t, handle.SpawnedAt.IsZero())

	assert.Equal(t, "Bearer test-token", gotAuth)
	assert.Equal(t, "train_abc", gotArgs["job_id"])
	assert.Empty(t, recorder.recorded(), "a clean spawn never sleeps")
}

// TestCallFunctionRateLimitBackoff drives two rate-limited responses before
// success and verifies the doubling backoff between attempts.
func TestCallFunctionRateLimitBackoff(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls <= 2 {
			writePlatformError(w, http.StatusTooManyRequests, "rate_limited", "slow down")
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"call_id": "call-456"})
	}))
	defer server.Close()

	client, recorder := newTestComputeClient(t, server)

	handle, err := client.CallFunction("train_model", map[string]any{"job_id": "train_abc"}, 3)
	require.NoError(t, err)
	assert.Equal(t, "call-456", handle.CallID)
	assert.Equal(t, 3, calls)

	assert.Equal(t, []time.Duration{1 * time.Second, 2 * time.Second}, recorder.recorded())
}

func TestCallFunctionRateLimitExhaustion(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		writePlatformError(w, http.StatusTooManyRequests, "rate_limited", "slow down")
	}))
	defer server.Close()

	client, recorder := newTestComputeClient(t, server)

	_, err := client.CallFunction("train_model", nil, 3)
	require.Error(t, err)

	var rateLimit *RateLimitError
	require.ErrorAs(t, err, &rateLimit)
	assert.Equal(t, "train_model", rateLimit.Function)
	assert.Equal(t, 3, rateLimit.Attempts)

	assert.Equal(t, 3, calls)
	assert.Len(t, recorder.recorded(), 2, "no sleep after the final attempt")
}

// TestCallFunctionGPUUnavailable verifies capacity failures abort after
// exactly one attempt: the GPU selection is fixed, waiting cannot help.
func TestCallFunctionGPUUnavailable(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		writePlatformError(w, http.StatusServiceUnavailable, "gpu_unavailable", "no a100 capacity")
	}))
	defer server.Close()

	client, recorder := newTestComputeClient(t, server)

	_, err := client.CallFunction("render_frames", nil, 3)
	require.Error(t, err)

	var gpuErr *GPUUnavailableError
	require.ErrorAs(t, err, &gpuErr)
	assert.Equal(t, "render_frames", gpuErr.Function)
	assert.Contains(t, gpuErr.Message, "no a100 capacity")

	assert.Equal(t, 1, calls)
	assert.Empty(t, recorder.recorded())
}

func TestCallFunctionOtherFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writePlatformError(w, http.StatusBadRequest, "invalid_args", "unknown function")
	}))
	defer server.Close()

	client, _ := newTestComputeClient(t, server)

	_, err := client.CallFunction("no_such_function", nil, 2)
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "spawn", apiErr.Op)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "invalid_args", apiErr.Code)
}

func TestCallFunctionUnconfigured(t *testing.T) {
	logger := lib.NewLogger(lib.LogLevelError)
	retry := models.RetryConfig{MaxAttempts: 3, InitialBackoffMs: 1, MaxBackoffMs: 10}
	client := NewComputeClient(models.ComputeConfig{}, retry, NewHTTPClient(time.Second, retry, logger), logger)

	assert.False(t, client.IsConfigured())

	_, err := client.CallFunction("train_model", nil, 3)
	assert.True(t, IsNotConfigured(err))

	files, err := client.ListFiles("jobs/abc")
	assert.NoError(t, err)
	assert.Empty(t, files)

	snapshot, err := client.GetProgress("train_abc")
	assert.NoError(t, err)
	assert.Equal(t, models.StageInitializing, snapshot.Stage)
}

func TestGetProgress(t *testing.T) {
	snapshots := map[string]models.ProgressSnapshot{}
	var failures int

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if failures > 0 {
			failures--
			writePlatformError(w, http.StatusForbidden, "forbidden", "token expired")
			return
		}
		snapshot, ok := snapshots[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_ = json.NewEncoder(w).Encode(snapshot)
	}))
	defer server.Close()

	client, _ := newTestComputeClient(t, server)

	t.Run("missing document is initializing, not an error", func(t *testing.T) {
		snapshot, err := client.GetProgress("train_abc")
		require.NoError(t, err)
		assert.Equal(t, models.StageInitializing, snapshot.Stage)
		assert.Equal(t, 0.0, snapshot.Progress)
	})

	t.Run("decodes the worker document", func(t *testing.T) {
		snapshots["/v1/volume/files/jobs/abc/progress/train_abc.json"] = models.ProgressSnapshot{
			Stage:            "train",
			Progress:         50,
			Status:           "running",
			CurrentOperation: "optimizing",
			ElapsedTime:      600,
		}

		snapshot, err := client.GetProgress("train_abc")
		require.NoError(t, err)
		assert.Equal(t, "train", snapshot.Stage)
		assert.Equal(t, 50.0, snapshot.Progress)
		assert.Equal(t, "optimizing", snapshot.CurrentOperation)
	})

	t.Run("degraded read surfaces an error", func(t *testing.T) {
		failures = 1

		_, err := client.GetProgress("train_abc")
		require.Error(t, err)

		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, "progress", apiErr.Op)
		assert.Equal(t, http.StatusForbidden, apiErr.StatusCode)
	})

	t.Run("invalid job id", func(t *testing.T) {
		_, err := client.GetProgress("train_abc_a1")
		assert.Error(t, err)
	})
}

func TestVolumeRoundTrip(t *testing.T) {
	stored := map[string][]byte{}
	var deletedPrefix string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == "PUT":
			body, _ := io.ReadAll(r.Body)
			stored[r.URL.Path] = body
		case r.Method == "GET" && r.URL.Path == "/v1/volume/list":
			files := []VolumeEntry{}
			for path, data := range stored {
				files = append(files, VolumeEntry{Path: path, Size: int64(len(data))})
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"files": files})
		case r.Method == "GET":
			data, ok := stored[r.URL.Path]
			if !ok {
				http.NotFound(w, r)
				return
			}
			_, _ = w.Write(data)
		case r.Method == "DELETE":
			deletedPrefix = r.URL.Query().Get("prefix")
		}
	}))
	defer server.Close()

	client, _ := newTestComputeClient(t, server)
	tempDir := t.TempDir()

	localFile := filepath.Join(tempDir, "frame.png")
	require.NoError(t, os.WriteFile(localFile, []byte("png-bytes"), 0644))

	require.NoError(t, client.UploadFile(localFile, "jobs/abc/images/frame.png"))
	assert.Equal(t, []byte("png-bytes"), stored["/v1/volume/files/jobs/abc/images/frame.png"])

	files, err := client.ListFiles("jobs/abc")
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, int64(9), files[0].Size)

	downloaded := filepath.Join(tempDir, "out", "frame.png")
	require.NoError(t, client.DownloadFile("jobs/abc/images/frame.png", downloaded))
	data, err := os.ReadFile(downloaded)
	require.NoError(t, err)
	assert.Equal(t, []byte("png-bytes"), data)

	require.NoError(t, client.DeleteJobData("abc"))
	assert.Equal(t, "jobs/abc", deletedPrefix)
}

func TestDeleteJobDataRejectsDerivedIDs(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected for an invalid root id")
	}))
	defer server.Close()

	client, _ := newTestComputeClient(t, server)
	assert.Error(t, client.DeleteJobData("train_abc"))
}
