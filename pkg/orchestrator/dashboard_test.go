package orchestrator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atomhq/hive/pkg/types"
)

func TestDashboardGroupsByStage(t *testing.T) {
	orch, _ := newTestOrchestrator(t)

	project, err := orch.CreateProject("billing", "", "")
	require.NoError(t, err)

	planned, err := orch.CreateTask(CreateTaskRequest{ProjectID: project.ID, Title: "planned work"})
	require.NoError(t, err)

	running, err := orch.CreateTask(CreateTaskRequest{ProjectID: project.ID, Title: "running work", AutoRun: true})
	require.NoError(t, err)
	_, err = orch.Greenlight(context.Background(), running.ID)
	require.NoError(t, err)

	archived, err := orch.CreateTask(CreateTaskRequest{ProjectID: project.ID, Title: "old work"})
	require.NoError(t, err)
	_, err = orch.Archive(archived.ID)
	require.NoError(t, err)

	dash, err := orch.Dashboard()
	require.NoError(t, err)

	require.Len(t, dash.Columns, 6)
	assert.Equal(t, types.StagePlan, dash.Columns[0].Stage)
	require.Len(t, dash.Columns[0].Tasks, 1)
	assert.Equal(t, planned.ID, dash.Columns[0].Tasks[0].Task.ID)
	assert.Equal(t, "billing", dash.Columns[0].Tasks[0].ProjectName)

	implementCol := dash.Columns[1]
	assert.Equal(t, types.StageImplement, implementCol.Stage)
	require.Len(t, implementCol.Tasks, 1)
	assert.Equal(t, running.ID, implementCol.Tasks[0].Task.ID)
	require.NotNil(t, implementCol.Tasks[0].LatestRun)
	assert.Equal(t, types.RunStatusRunning, implementCol.Tasks[0].LatestRun.Status)

	require.Len(t, dash.Archived, 1)
	assert.Equal(t, archived.ID, dash.Archived[0].Task.ID)

	assert.Equal(t, 2, dash.Counts.Active)
	assert.Equal(t, 1, dash.Counts.Running)
	assert.Equal(t, 1, dash.Counts.Archived)
}
