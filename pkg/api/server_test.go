package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atomhq/hive/pkg/orchestrator"
	"github.com/atomhq/hive/pkg/prompt"
	"github.com/atomhq/hive/pkg/storage"
	"github.com/atomhq/hive/pkg/types"
)

type fakeDispatcher struct {
	spawned int
}

func (f *fakeDispatcher) Start(ctx context.Context, instruction string) (string, error) {
	f.spawned++
	return fmt.Sprintf("sess-%d", f.spawned), nil
}

func newTestServer(t *testing.T, authToken string) (*Server, *orchestrator.Orchestrator) {
	t.Helper()
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	orch := orchestrator.New(orchestrator.Config{
		Store:      store,
		Dispatcher: &fakeDispatcher{},
		Builder:    prompt.NewBuilder("http://localhost:8700"),
	})

	server := New(orch, nil, nil, Config{
		Addr:      "127.0.0.1:0",
		AuthToken: authToken,
		RateLimit: RateLimitConfig{Enabled: false},
	})
	return server, orch
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v))
	return v
}

func TestProjectEndpoints(t *testing.T) {
	server, _ := newTestServer(t, "")
	handler := server.Handler()

	rec := doJSON(t, handler, http.MethodPost, "/api/hive/projects", map[string]string{
		"name":      "billing",
		"repo_path": "/srv/repos/billing",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	project := decode[types.Project](t, rec)
	assert.Equal(t, "billing", project.Name)
	assert.NotEmpty(t, project.ID)

	rec = doJSON(t, handler, http.MethodGet, "/api/hive/projects", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	projects := decode[[]*types.Project](t, rec)
	assert.Len(t, projects, 1)

	// Duplicate name conflicts
	rec = doJSON(t, handler, http.MethodPost, "/api/hive/projects", map[string]string{"name": "billing"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = doJSON(t, handler, http.MethodGet, "/api/hive/projects/"+project.ID, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, handler, http.MethodDelete, "/api/hive/projects/"+project.ID, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, handler, http.MethodGet, "/api/hive/projects/"+project.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// TestTaskLifecycleOverHTTP drives create, greenlight, and the worker
// callbacks through the HTTP surface
func TestTaskLifecycleOverHTTP(t *testing.T) {
	server, orch := newTestServer(t, "")
	handler := server.Handler()

	project, err := orch.CreateProject("billing", "", "/srv/repos/billing")
	require.NoError(t, err)

	rec := doJSON(t, handler, http.MethodPost, "/api/hive/tasks", map[string]any{
		"project_id": project.ID,
		"title":      "Add invoice export",
		"auto_run":   true,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	task := decode[types.Task](t, rec)

	rec = doJSON(t, handler, http.MethodPost, "/api/hive/tasks/"+task.ID+"/greenlight", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	task = decode[types.Task](t, rec)
	assert.Equal(t, types.TaskStatusRunning, task.Status)
	assert.Equal(t, types.StageImplement, task.Stage)

	// Worker success callback
	rec = doJSON(t, handler, http.MethodPost, "/api/hive/tasks/"+task.ID+"/advance", map[string]string{
		"output": "implemented",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	task = decode[types.Task](t, rec)
	assert.Equal(t, types.StageVerify, task.Stage)

	// Worker failure callback, retried in place
	rec = doJSON(t, handler, http.MethodPost, "/api/hive/tasks/"+task.ID+"/fail", map[string]string{
		"error": "lint failed",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	task = decode[types.Task](t, rec)
	assert.Equal(t, types.StageVerify, task.Stage)
	assert.Equal(t, 1, task.RetryCount)

	rec = doJSON(t, handler, http.MethodGet, "/api/hive/tasks/"+task.ID+"/runs", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	runs := decode[[]*types.PipelineRun](t, rec)
	assert.Len(t, runs, 3)

	rec = doJSON(t, handler, http.MethodGet, fmt.Sprintf("/api/hive/runs/%d/logs", runs[0].ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	logs := decode[[]*types.StepLog](t, rec)
	assert.NotEmpty(t, logs)
}

func TestCallbackErrorMapping(t *testing.T) {
	server, orch := newTestServer(t, "")
	handler := server.Handler()

	rec := doJSON(t, handler, http.MethodPost, "/api/hive/tasks/nope/advance", map[string]string{"output": "x"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	project, err := orch.CreateProject("billing", "", "")
	require.NoError(t, err)
	task, err := orch.CreateTask(orchestrator.CreateTaskRequest{ProjectID: project.ID, Title: "t"})
	require.NoError(t, err)

	// No run outstanding for the task's stage
	rec = doJSON(t, handler, http.MethodPost, "/api/hive/tasks/"+task.ID+"/advance", map[string]string{"output": "x"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Malformed body
	req := httptest.NewRequest(http.MethodPost, "/api/hive/tasks/"+task.ID+"/advance", bytes.NewBufferString("{"))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rec = doJSON(t, handler, http.MethodGet, "/api/hive/runs/notanumber/logs", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDashboardEndpoint(t *testing.T) {
	server, orch := newTestServer(t, "")
	handler := server.Handler()

	project, err := orch.CreateProject("billing", "", "")
	require.NoError(t, err)
	_, err = orch.CreateTask(orchestrator.CreateTaskRequest{ProjectID: project.ID, Title: "t"})
	require.NoError(t, err)

	rec := doJSON(t, handler, http.MethodGet, "/api/hive/dashboard", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	dash := decode[types.Dashboard](t, rec)
	assert.Len(t, dash.Projects, 1)
	require.NotEmpty(t, dash.Columns)
	assert.Equal(t, types.StagePlan, dash.Columns[0].Stage)
	assert.Len(t, dash.Columns[0].Tasks, 1)
	assert.Equal(t, 1, dash.Counts.Active)
}

func TestBearerAuth(t *testing.T) {
	server, _ := newTestServer(t, "secret-token")
	handler := server.Handler()

	rec := doJSON(t, handler, http.MethodGet, "/api/hive/projects", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/hive/projects", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/hive/projects", nil)
	req.Header.Set("Authorization", "Bearer secret-token")
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)

	// Probes stay outside the auth boundary
	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestRateLimit(t *testing.T) {
	server, _ := newTestServer(t, "")
	server.mw.rlConfig = RateLimitConfig{Enabled: true, RequestsPerSecond: 1, Burst: 2}
	handler := server.Handler()

	codes := make(map[int]int)
	for i := 0; i < 5; i++ {
		rec := doJSON(t, handler, http.MethodGet, "/api/hive/projects", nil)
		codes[rec.Code]++
	}
	assert.Equal(t, 2, codes[http.StatusOK])
	assert.Equal(t, 3, codes[http.StatusTooManyRequests])
}
