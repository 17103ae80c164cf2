package health

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// AgentChecker probes the external agent runtime by running its status
// command. A healthy result means the runtime is reachable and able to
// accept spawn requests; it says nothing about in-flight workers.
type AgentChecker struct {
	// Bin is the agent runtime CLI binary (e.g. "openclaw")
	Bin string

	// Timeout is the probe execution timeout (default: 10 seconds)
	Timeout time.Duration
}

// NewAgentChecker creates a health checker for the given runtime binary
func NewAgentChecker(bin string) *AgentChecker {
	return &AgentChecker{
		Bin:     bin,
		Timeout: 10 * time.Second,
	}
}

// Name identifies the checked component
func (a *AgentChecker) Name() string {
	return "agent-runtime"
}

// Check runs the runtime's status command
func (a *AgentChecker) Check(ctx context.Context) Result {
	start := time.Now()

	execCtx, cancel := context.WithTimeout(ctx, a.Timeout)
	defer cancel()

	cmd := exec.CommandContext(execCtx, a.Bin, "status")

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		message := fmt.Sprintf("agent runtime unreachable: %v", err)
		if stderr.Len() > 0 {
			message = fmt.Sprintf("%s: %s", message, strings.TrimSpace(stderr.String()))
		}
		return Result{
			Healthy:   false,
			Message:   message,
			CheckedAt: start,
			Duration:  time.Since(start),
		}
	}

	return Result{
		Healthy:   true,
		Message:   "agent runtime reachable",
		CheckedAt: start,
		Duration:  time.Since(start),
	}
}
