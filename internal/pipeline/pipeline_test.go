package pipeline

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lightfield-labs/prism/internal/lib"
	"github.com/lightfield-labs/prism/internal/models"
	"github.com/lightfield-labs/prism/internal/services"
)

// spawnCall records one spawn request seen by the fake platform
type spawnCall struct {
	Function string
	Args     map[string]any
}

// fakePlatform is an in-memory stand-in for the compute platform: it accepts
// spawns, serves progress documents, and serves volume files.
type fakePlatform struct {
	mu sync.Mutex

	server *httptest.Server

	spawns []spawnCall
	// spawnError, when non-nil, fails every spawn with the given payload
	spawnError *struct {
		Status  int
		Code    string
		Message string
	}

	progress map[string]models.ProgressSnapshot // keyed by job id
	// progressStatus forces a non-404 error on every progress read
	progressStatus int

	files map[string][]byte // volume path -> content
}

func newFakePlatform() *fakePlatform {
	p := &fakePlatform{
		progress: map[string]models.ProgressSnapshot{},
		files:    map[string][]byte{},
	}
	p.server = httptest.NewServer(http.HandlerFunc(p.handle))
	return p
}

func (p *fakePlatform) handle(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()

	path := r.URL.Path
	switch {
	case r.Method == "POST" && strings.HasPrefix(path, "/v1/functions/"):
		name := strings.TrimSuffix(strings.TrimPrefix(path, "/v1/functions/"), "/calls")
		var args map[string]any
		_ = json.NewDecoder(r.Body).Decode(&args)
		p.spawns = append(p.spawns, spawnCall{Function: name, Args: args})

		if p.spawnError != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(p.spawnError.Status)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"code":    p.spawnError.Code,
				"message": p.spawnError.Message,
			})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"call_id": "call-1"})

	case r.Method == "GET" && path == "/v1/volume/list":
		prefix := r.URL.Query().Get("prefix")
		files := []services.VolumeEntry{}
		for filePath, data := range p.files {
			if strings.HasPrefix(filePath, prefix) {
				files = append(files, services.VolumeEntry{Path: filePath, Size: int64(len(data))})
			}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"files": files})

	case r.Method == "GET" && strings.Contains(path, "/progress/"):
		if p.progressStatus != 0 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(p.progressStatus)
			_ = json.NewEncoder(w).Encode(map[string]string{"code": "volume_error", "message": "degraded"})
			return
		}
		jobID := strings.TrimSuffix(path[strings.LastIndex(path, "/")+1:], ".json")
		snapshot, ok := p.progress[jobID]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_ = json.NewEncoder(w).Encode(snapshot)

	case r.Method == "GET" && strings.HasPrefix(path, "/v1/volume/files/"):
		data, ok := p.files[strings.TrimPrefix(path, "/v1/volume/files/")]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(data)

	default:
		http.NotFound(w, r)
	}
}

func (p *fakePlatform) setProgress(jobID string, snapshot models.ProgressSnapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.progress[jobID] = snapshot
}

func (p *fakePlatform) putFile(path string, data []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.files[path] = data
}

func (p *fakePlatform) spawnCalls() []spawnCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]spawnCall{}, p.spawns...)
}

func (p *fakePlatform) failSpawns(status int, code string, message string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.spawnError = &struct {
		Status  int
		Code    string
		Message string
	}{status, code, message}
}

// harness wires orchestrators against a fake platform and a temp job store
type harness struct {
	platform       *fakePlatform
	config         *models.ProjectConfig
	store          *services.JobStore
	reconstruction *ReconstructionOrchestrator
	training       *TrainingOrchestrator
	rendering      *RenderingOrchestrator
	assembler      *Assembler
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	platform := newFakePlatform()
	t.Cleanup(platform.server.Close)

	config := models.DefaultConfig()
	config.Compute.BaseURL = platform.server.URL
	config.Compute.Token = "test-token"
	// Millisecond backoff keeps failure-path tests fast
	config.Retry = models.RetryConfig{MaxAttempts: 3, InitialBackoffMs: 1, MaxBackoffMs: 4}
	config.JobsDir = t.TempDir()
	require.NoError(t, config.Validate())

	logger := lib.NewLogger(lib.LogLevelError)
	httpClient := services.NewHTTPClient(5*time.Second, config.Retry, logger)
	client := services.NewComputeClient(config.Compute, config.Retry, httpClient, logger)
	store := services.NewJobStore(config.JobsDir, logger)

	return &harness{
		platform:       platform,
		config:         &config,
		store:          store,
		reconstruction: NewReconstructionOrchestrator(client, store, &config, logger),
		training:       NewTrainingOrchestrator(client, store, &config, logger),
		rendering:      NewRenderingOrchestrator(client, store, &config, logger),
		assembler:      NewAssembler(client, store, logger),
	}
}
