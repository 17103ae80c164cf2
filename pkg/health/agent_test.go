package health

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeRuntime(t *testing.T, script string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "agent-runtime")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+script+"\n"), 0o755))
	return path
}

func TestAgentCheckerHealthy(t *testing.T) {
	checker := NewAgentChecker(fakeRuntime(t, "exit 0"))

	result := checker.Check(context.Background())
	assert.True(t, result.Healthy)
	assert.Equal(t, "agent-runtime", checker.Name())
	assert.False(t, result.CheckedAt.IsZero())
}

func TestAgentCheckerUnhealthy(t *testing.T) {
	checker := NewAgentChecker(fakeRuntime(t, "echo 'daemon not running' >&2; exit 1"))

	result := checker.Check(context.Background())
	assert.False(t, result.Healthy)
	assert.Contains(t, result.Message, "daemon not running")
}

func TestAgentCheckerMissingBinary(t *testing.T) {
	checker := NewAgentChecker("/nonexistent/agent-runtime")

	result := checker.Check(context.Background())
	assert.False(t, result.Healthy)
	assert.Contains(t, result.Message, "unreachable")
}
