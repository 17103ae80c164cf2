package prompt

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/atomhq/hive/pkg/types"
)

func buildFixtures() (*types.Task, *types.Project) {
	task := &types.Task{
		ID:    "task-123",
		Title: "Add invoice export",
		Spec:  "Export invoices as CSV from the billing page.",
	}
	project := &types.Project{
		Name:     "billing",
		RepoPath: "/srv/repos/billing",
	}
	return task, project
}

func TestBuildEmbedsTaskContext(t *testing.T) {
	task, project := buildFixtures()
	b := NewBuilder("http://localhost:8700")

	out := b.Build(task, project, types.StageImplement, "", "")

	assert.Contains(t, out, "Repository: /srv/repos/billing")
	assert.Contains(t, out, "Project: billing")
	assert.Contains(t, out, "Task: Add invoice export")
	assert.Contains(t, out, "Export invoices as CSV")
}

// TestBuildCallbackContract checks both callback URLs are always
// present, since a worker without them can never report back
func TestBuildCallbackContract(t *testing.T) {
	task, project := buildFixtures()
	b := NewBuilder("http://localhost:8700")

	for _, stage := range []types.Stage{types.StageImplement, types.StageVerify, types.StageTest, types.StageDeploy} {
		out := b.Build(task, project, stage, "", "")
		assert.Contains(t, out, "http://localhost:8700/api/hive/tasks/task-123/advance")
		assert.Contains(t, out, "http://localhost:8700/api/hive/tasks/task-123/fail")
	}
}

func TestBuildStageWordingDiffers(t *testing.T) {
	task, project := buildFixtures()
	b := NewBuilder("http://localhost:8700")

	seen := map[string]types.Stage{}
	for _, stage := range []types.Stage{types.StageImplement, types.StageVerify, types.StageTest, types.StageDeploy} {
		out := b.Build(task, project, stage, "", "")
		brief := strings.SplitN(out, "\n", 2)[0]
		if prev, dup := seen[brief]; dup {
			t.Fatalf("stages %s and %s share the same brief", prev, stage)
		}
		seen[brief] = stage
	}
}

func TestBuildPreviousOutput(t *testing.T) {
	task, project := buildFixtures()
	b := NewBuilder("http://localhost:8700")

	out := b.Build(task, project, types.StageVerify, "implemented the CSV export in export.go", "")
	assert.Contains(t, out, "Output from the previous stage:")
	assert.Contains(t, out, "implemented the CSV export in export.go")

	out = b.Build(task, project, types.StageImplement, "", "")
	assert.NotContains(t, out, "Output from the previous stage:")
}

// TestBuildErrorContext checks retry instructions carry the prior
// failure verbatim
func TestBuildErrorContext(t *testing.T) {
	task, project := buildFixtures()
	b := NewBuilder("http://localhost:8700")

	out := b.Build(task, project, types.StageTest, "", "TestExport failed: unexpected comma in header")
	assert.Contains(t, out, "The previous attempt at this stage failed.")
	assert.Contains(t, out, "TestExport failed: unexpected comma in header")
}

func TestNewBuilderTrimsTrailingSlash(t *testing.T) {
	b := NewBuilder("http://localhost:8700/")
	assert.Equal(t, "http://localhost:8700", b.BaseURL)
}
