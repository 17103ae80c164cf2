package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// Dispatcher issues a one-shot asynchronous start request to the
// external agent runtime. Start returns once the runtime acknowledges
// that a worker began; it never waits for the work itself.
type Dispatcher interface {
	Start(ctx context.Context, instruction string) (string, error)
}

// Error is returned when the start request fails. The caller records
// it and surfaces a failed state; nothing re-attempts dispatch
// automatically.
type Error struct {
	Op     string
	Stderr string
	Err    error
}

func (e *Error) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("dispatch %s: %v: %s", e.Op, e.Err, strings.TrimSpace(e.Stderr))
	}
	return fmt.Sprintf("dispatch %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// AgentClient starts workers by shelling out to the agent runtime's
// CLI. The instruction is passed on stdin; the runtime prints a JSON
// acknowledgment carrying the spawned session's key.
type AgentClient struct {
	// Bin is the agent runtime CLI binary (e.g. "openclaw")
	Bin string

	// Model selects the worker class the runtime spawns
	Model string

	// Timeout bounds the spawn acknowledgment, not the work itself
	// (default: 60 seconds)
	Timeout time.Duration
}

// NewAgentClient creates a dispatch client for the given runtime binary
// and model selector.
func NewAgentClient(bin, model string) *AgentClient {
	return &AgentClient{
		Bin:     bin,
		Model:   model,
		Timeout: 60 * time.Second,
	}
}

// spawnAck is the JSON acknowledgment printed by the runtime on a
// successful spawn.
type spawnAck struct {
	SessionKey string `json:"sessionKey"`
}

// Start asks the runtime to spawn one detached worker under the given
// instructions and returns the worker's session key. Exactly one
// external worker is requested per call; a failure here is surfaced,
// never retried.
func (c *AgentClient) Start(ctx context.Context, instruction string) (string, error) {
	execCtx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	cmd := exec.CommandContext(execCtx, c.Bin, "agent", "spawn", "--model", c.Model, "--detach", "--json")
	cmd.Stdin = strings.NewReader(instruction)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", &Error{Op: "spawn", Stderr: stderr.String(), Err: err}
	}

	var ack spawnAck
	if err := json.Unmarshal(stdout.Bytes(), &ack); err != nil {
		return "", &Error{Op: "spawn", Stderr: stdout.String(), Err: fmt.Errorf("unparseable acknowledgment: %w", err)}
	}
	if ack.SessionKey == "" {
		return "", &Error{Op: "spawn", Stderr: stdout.String(), Err: fmt.Errorf("acknowledgment missing session key")}
	}

	return ack.SessionKey, nil
}
