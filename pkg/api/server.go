package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/atomhq/hive/pkg/dispatch"
	"github.com/atomhq/hive/pkg/events"
	"github.com/atomhq/hive/pkg/health"
	"github.com/atomhq/hive/pkg/log"
	"github.com/atomhq/hive/pkg/metrics"
	"github.com/atomhq/hive/pkg/orchestrator"
	"github.com/atomhq/hive/pkg/storage"
	"github.com/atomhq/hive/pkg/types"
)

// Config holds the HTTP server configuration.
type Config struct {
	Addr      string
	AuthToken string
	RateLimit RateLimitConfig
}

// Server exposes the orchestrator over HTTP. All mutating pipeline
// endpoints accept and return JSON; /api/hive/events streams broker
// events as server-sent events.
type Server struct {
	orch    *orchestrator.Orchestrator
	broker  *events.Broker
	checker health.Checker
	config  Config
	mw      *middleware
	logger  zerolog.Logger

	httpServer *http.Server
}

// New creates a Server wired to the given orchestrator and event broker.
// checker may be nil, in which case /healthz reports only process liveness.
func New(orch *orchestrator.Orchestrator, broker *events.Broker, checker health.Checker, config Config) *Server {
	s := &Server{
		orch:    orch,
		broker:  broker,
		checker: checker,
		config:  config,
		mw:      newMiddleware(config.AuthToken, config.RateLimit),
		logger:  log.WithComponent("api"),
	}
	s.httpServer = &http.Server{
		Addr:              config.Addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/hive/dashboard", s.handleDashboard)

	mux.HandleFunc("GET /api/hive/projects", s.handleListProjects)
	mux.HandleFunc("POST /api/hive/projects", s.handleCreateProject)
	mux.HandleFunc("GET /api/hive/projects/{id}", s.handleGetProject)
	mux.HandleFunc("DELETE /api/hive/projects/{id}", s.handleDeleteProject)

	mux.HandleFunc("GET /api/hive/tasks", s.handleListTasks)
	mux.HandleFunc("POST /api/hive/tasks", s.handleCreateTask)
	mux.HandleFunc("GET /api/hive/tasks/{id}", s.handleGetTask)
	mux.HandleFunc("PUT /api/hive/tasks/{id}", s.handleUpdateTask)
	mux.HandleFunc("PATCH /api/hive/tasks/{id}", s.handleUpdateTask)
	mux.HandleFunc("DELETE /api/hive/tasks/{id}", s.handleDeleteTask)

	mux.HandleFunc("POST /api/hive/tasks/{id}/greenlight", s.handleGreenlight)
	mux.HandleFunc("POST /api/hive/tasks/{id}/pause", s.handlePause)
	mux.HandleFunc("POST /api/hive/tasks/{id}/retry", s.handleRetry)
	mux.HandleFunc("POST /api/hive/tasks/{id}/archive", s.handleArchive)
	mux.HandleFunc("POST /api/hive/tasks/{id}/feedback", s.handleFeedback)
	mux.HandleFunc("POST /api/hive/tasks/{id}/advance", s.handleAdvance)
	mux.HandleFunc("POST /api/hive/tasks/{id}/fail", s.handleFail)

	mux.HandleFunc("GET /api/hive/tasks/{id}/runs", s.handleListRuns)
	mux.HandleFunc("GET /api/hive/runs/{id}/logs", s.handleRunLogs)

	mux.HandleFunc("GET /api/hive/events", s.handleEvents)

	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.Handle("GET /metrics", metrics.Handler())

	return s.mw.wrap(mux)
}

// Start begins serving HTTP requests. It blocks until the listener fails
// or Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.config.Addr).Msg("HTTP server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// Handler returns the server's root handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// errorResponse is the JSON body for all non-2xx responses.
type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// writeError maps domain errors to HTTP status codes.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	var status int
	var dispatchErr *dispatch.Error
	switch {
	case errors.Is(err, storage.ErrProjectNotFound),
		errors.Is(err, storage.ErrTaskNotFound),
		errors.Is(err, storage.ErrRunNotFound):
		status = http.StatusNotFound
	case errors.Is(err, storage.ErrProjectExists),
		errors.Is(err, storage.ErrProjectHasTasks),
		errors.Is(err, storage.ErrRunStillActive),
		errors.Is(err, orchestrator.ErrStaleCallback):
		status = http.StatusConflict
	case errors.As(err, &dispatchErr):
		status = http.StatusBadGateway
	case errors.Is(err, orchestrator.ErrValidation):
		status = http.StatusBadRequest
	default:
		status = http.StatusInternalServerError
	}
	if status == http.StatusInternalServerError {
		s.logger.Error().Err(err).Msg("request failed")
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: invalid request body: %v", orchestrator.ErrValidation, err)
	}
	return nil
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	dash, err := s.orch.Dashboard()
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dash)
}

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := s.orch.ListProjects()
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, projects)
}

func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		RepoPath    string `json:"repo_path"`
	}
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	project, err := s.orch.CreateProject(req.Name, req.Description, req.RepoPath)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, project)
}

func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	project, err := s.orch.GetProject(r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, project)
}

func (s *Server) handleDeleteProject(w http.ResponseWriter, r *http.Request) {
	if err := s.orch.DeleteProject(r.PathValue("id")); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	filter := orchestrator.TaskFilter{
		ProjectID:       r.URL.Query().Get("project_id"),
		Status:          types.TaskStatus(r.URL.Query().Get("status")),
		IncludeArchived: r.URL.Query().Get("include_archived") == "true",
	}
	tasks, err := s.orch.ListTasks(filter)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var req orchestrator.CreateTaskRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	task, err := s.orch.CreateTask(req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, task)
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	detail, err := s.orch.GetTaskDetail(r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (s *Server) handleUpdateTask(w http.ResponseWriter, r *http.Request) {
	var update orchestrator.TaskUpdate
	if err := decodeBody(r, &update); err != nil {
		s.writeError(w, err)
		return
	}
	task, err := s.orch.UpdateTask(r.PathValue("id"), update)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	if err := s.orch.DeleteTask(r.PathValue("id")); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleGreenlight(w http.ResponseWriter, r *http.Request) {
	task, err := s.orch.Greenlight(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	task, err := s.orch.Pause(r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) handleRetry(w http.ResponseWriter, r *http.Request) {
	task, err := s.orch.Retry(r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) handleArchive(w http.ResponseWriter, r *http.Request) {
	archived, err := s.orch.Archive(r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"archived": archived})
}

func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Feedback string `json:"feedback"`
	}
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	task, err := s.orch.Feedback(r.PathValue("id"), req.Feedback)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, task)
}

func (s *Server) handleAdvance(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Output string `json:"output"`
	}
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	task, err := s.orch.Advance(r.Context(), r.PathValue("id"), req.Output)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) handleFail(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Error string `json:"error"`
	}
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	task, err := s.orch.Fail(r.Context(), r.PathValue("id"), req.Error)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.orch.ListRunsByTask(r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) handleRunLogs(w http.ResponseWriter, r *http.Request) {
	runID, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil {
		s.writeError(w, fmt.Errorf("%w: invalid run id", orchestrator.ErrValidation))
		return
	}
	logs, err := s.orch.ListStepLogs(runID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, logs)
}

// handleEvents streams broker events to the client as server-sent events
// until the client disconnects.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "streaming unsupported"})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	sub := s.broker.Subscribe()
	defer s.broker.Unsubscribe(sub)

	keepalive := time.NewTicker(30 * time.Second)
	defer keepalive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-keepalive.C:
			fmt.Fprint(w, ": keepalive\n\n")
			flusher.Flush()
		case event, ok := <-sub:
			if !ok {
				return
			}
			data, err := json.Marshal(event)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, data)
			flusher.Flush()
		}
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{"status": "ok"}
	status := http.StatusOK
	if s.checker != nil {
		result := s.checker.Check(r.Context())
		resp[s.checker.Name()] = result
		if !result.Healthy {
			resp["status"] = "degraded"
		}
	}
	writeJSON(w, status, resp)
}
