package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/atomhq/hive/pkg/orchestrator"
	"github.com/atomhq/hive/pkg/types"
)

// Client talks to a Hive server over its HTTP API. It is what the CLI
// uses; the zero value is not usable, construct with New.
type Client struct {
	baseURL    string
	authToken  string
	httpClient *http.Client
}

// New creates a client for the server at baseURL. token may be empty
// when the server runs without authentication.
func New(baseURL, token string) *Client {
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		authToken: token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err != nil || apiErr.Error == "" {
			apiErr.Error = resp.Status
		}
		return &APIError{StatusCode: resp.StatusCode, Message: apiErr.Error}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

// Dashboard fetches the board view.
func (c *Client) Dashboard(ctx context.Context) (*types.Dashboard, error) {
	var dash types.Dashboard
	if err := c.do(ctx, http.MethodGet, "/api/hive/dashboard", nil, &dash); err != nil {
		return nil, err
	}
	return &dash, nil
}

// CreateProject registers a new project.
func (c *Client) CreateProject(ctx context.Context, name, description, repoPath string) (*types.Project, error) {
	req := map[string]string{
		"name":        name,
		"description": description,
		"repo_path":   repoPath,
	}
	var project types.Project
	if err := c.do(ctx, http.MethodPost, "/api/hive/projects", req, &project); err != nil {
		return nil, err
	}
	return &project, nil
}

// ListProjects returns all projects.
func (c *Client) ListProjects(ctx context.Context) ([]*types.Project, error) {
	var projects []*types.Project
	if err := c.do(ctx, http.MethodGet, "/api/hive/projects", nil, &projects); err != nil {
		return nil, err
	}
	return projects, nil
}

// GetProject fetches a single project.
func (c *Client) GetProject(ctx context.Context, id string) (*types.Project, error) {
	var project types.Project
	if err := c.do(ctx, http.MethodGet, "/api/hive/projects/"+id, nil, &project); err != nil {
		return nil, err
	}
	return &project, nil
}

// DeleteProject removes a project. The server refuses while tasks
// still reference it.
func (c *Client) DeleteProject(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/hive/projects/"+id, nil, nil)
}

// CreateTask creates a task in the plan stage.
func (c *Client) CreateTask(ctx context.Context, req orchestrator.CreateTaskRequest) (*types.Task, error) {
	var task types.Task
	if err := c.do(ctx, http.MethodPost, "/api/hive/tasks", req, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// ListTasks returns tasks, optionally filtered by project and status.
func (c *Client) ListTasks(ctx context.Context, projectID string, status string, includeArchived bool) ([]*types.Task, error) {
	path := "/api/hive/tasks"
	params := make([]string, 0, 3)
	if projectID != "" {
		params = append(params, "project_id="+projectID)
	}
	if status != "" {
		params = append(params, "status="+status)
	}
	if includeArchived {
		params = append(params, "include_archived=true")
	}
	if len(params) > 0 {
		path += "?" + strings.Join(params, "&")
	}

	var tasks []*types.Task
	if err := c.do(ctx, http.MethodGet, path, nil, &tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

// GetTask fetches a task with its subtasks and run history.
func (c *Client) GetTask(ctx context.Context, id string) (*orchestrator.TaskDetail, error) {
	var detail orchestrator.TaskDetail
	if err := c.do(ctx, http.MethodGet, "/api/hive/tasks/"+id, nil, &detail); err != nil {
		return nil, err
	}
	return &detail, nil
}

// UpdateTask applies an edit to a task's operator-settable fields.
func (c *Client) UpdateTask(ctx context.Context, id string, update orchestrator.TaskUpdate) (*types.Task, error) {
	var task types.Task
	if err := c.do(ctx, http.MethodPatch, "/api/hive/tasks/"+id, update, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// DeleteTask removes a task and its run history.
func (c *Client) DeleteTask(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/hive/tasks/"+id, nil, nil)
}

// Greenlight toggles a task's approval. When auto-run is set the first
// pipeline step starts immediately.
func (c *Client) Greenlight(ctx context.Context, id string) (*types.Task, error) {
	return c.taskAction(ctx, id, "greenlight", nil)
}

// Pause marks a running task paused.
func (c *Client) Pause(ctx context.Context, id string) (*types.Task, error) {
	return c.taskAction(ctx, id, "pause", nil)
}

// Retry resets a failed task to greenlit so it can be relaunched.
func (c *Client) Retry(ctx context.Context, id string) (*types.Task, error) {
	return c.taskAction(ctx, id, "retry", nil)
}

// Archive archives a task and its direct subtasks. Returns every task
// that was archived.
func (c *Client) Archive(ctx context.Context, id string) ([]*types.Task, error) {
	var resp struct {
		Archived []*types.Task `json:"archived"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/hive/tasks/"+id+"/archive", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Archived, nil
}

// Feedback archives a task and creates a linked follow-up carrying the
// feedback text as its spec.
func (c *Client) Feedback(ctx context.Context, id, feedback string) (*types.Task, error) {
	return c.taskAction(ctx, id, "feedback", map[string]string{"feedback": feedback})
}

// Advance reports a successful step for the task's current stage.
func (c *Client) Advance(ctx context.Context, id, output string) (*types.Task, error) {
	return c.taskAction(ctx, id, "advance", map[string]string{"output": output})
}

// Fail reports a failed step for the task's current stage.
func (c *Client) Fail(ctx context.Context, id, errMsg string) (*types.Task, error) {
	return c.taskAction(ctx, id, "fail", map[string]string{"error": errMsg})
}

func (c *Client) taskAction(ctx context.Context, id, action string, body any) (*types.Task, error) {
	var task types.Task
	if err := c.do(ctx, http.MethodPost, "/api/hive/tasks/"+id+"/"+action, body, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// ListRuns returns a task's pipeline runs in order.
func (c *Client) ListRuns(ctx context.Context, taskID string) ([]*types.PipelineRun, error) {
	var runs []*types.PipelineRun
	if err := c.do(ctx, http.MethodGet, "/api/hive/tasks/"+taskID+"/runs", nil, &runs); err != nil {
		return nil, err
	}
	return runs, nil
}

// ListRunLogs returns a run's step log lines.
func (c *Client) ListRunLogs(ctx context.Context, runID uint64) ([]*types.StepLog, error) {
	var logs []*types.StepLog
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/hive/runs/%d/logs", runID), nil, &logs); err != nil {
		return nil, err
	}
	return logs, nil
}
