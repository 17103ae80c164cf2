package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atomhq/hive/pkg/types"
)

func newTestStore(t *testing.T) *BoltStore {
	t.Helper()
	store, err := NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func testProject(id, name string) *types.Project {
	now := time.Now()
	return &types.Project{
		ID:        id,
		Name:      name,
		RepoPath:  "/srv/repos/" + name,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func testTask(id, projectID, title string) *types.Task {
	now := time.Now()
	return &types.Task{
		ID:         id,
		ProjectID:  projectID,
		Title:      title,
		Status:     types.TaskStatusPlan,
		Stage:      types.StagePlan,
		Priority:   types.PriorityNormal,
		MaxRetries: 2,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func TestProjectCRUD(t *testing.T) {
	store := newTestStore(t)

	project := testProject("p1", "billing")
	require.NoError(t, store.CreateProject(project))

	got, err := store.GetProject("p1")
	require.NoError(t, err)
	assert.Equal(t, "billing", got.Name)

	byName, err := store.GetProjectByName("billing")
	require.NoError(t, err)
	assert.Equal(t, "p1", byName.ID)

	got.Description = "invoicing service"
	require.NoError(t, store.UpdateProject(got))

	projects, err := store.ListProjects()
	require.NoError(t, err)
	require.Len(t, projects, 1)
	assert.Equal(t, "invoicing service", projects[0].Description)

	require.NoError(t, store.DeleteProject("p1"))
	_, err = store.GetProject("p1")
	assert.ErrorIs(t, err, ErrProjectNotFound)
}

func TestCreateProjectDuplicateName(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.CreateProject(testProject("p1", "billing")))
	err := store.CreateProject(testProject("p2", "billing"))
	assert.ErrorIs(t, err, ErrProjectExists)
}

func TestDeleteProjectWithTasks(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.CreateProject(testProject("p1", "billing")))
	require.NoError(t, store.CreateTask(testTask("t1", "p1", "add invoices")))

	err := store.DeleteProject("p1")
	assert.ErrorIs(t, err, ErrProjectHasTasks)

	// Removing the task unblocks the delete
	require.NoError(t, store.DeleteTask("t1"))
	assert.NoError(t, store.DeleteProject("p1"))
}

func TestCreateTaskUnknownProject(t *testing.T) {
	store := newTestStore(t)

	err := store.CreateTask(testTask("t1", "nope", "orphan"))
	assert.ErrorIs(t, err, ErrProjectNotFound)
}

func TestListTasksByParent(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.CreateProject(testProject("p1", "billing")))
	parent := testTask("t1", "p1", "parent")
	require.NoError(t, store.CreateTask(parent))

	child := testTask("t2", "p1", "child")
	child.ParentID = "t1"
	require.NoError(t, store.CreateTask(child))
	require.NoError(t, store.CreateTask(testTask("t3", "p1", "unrelated")))

	children, err := store.ListTasksByParent("t1")
	require.NoError(t, err)
	require.Len(t, children, 1)
	assert.Equal(t, "t2", children[0].ID)
}

func TestStartRunAssignsSequentialIDs(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.CreateProject(testProject("p1", "billing")))
	task := testTask("t1", "p1", "add invoices")
	require.NoError(t, store.CreateTask(task))

	first := &types.PipelineRun{TaskID: "t1", Stage: types.StageImplement, Status: types.RunStatusRunning, StartedAt: time.Now()}
	require.NoError(t, store.StartRun(task, first))
	assert.Equal(t, uint64(1), first.ID)

	first.Status = types.RunStatusPassed
	require.NoError(t, store.CompleteRun(first, task))

	second := &types.PipelineRun{TaskID: "t1", Stage: types.StageVerify, Status: types.RunStatusRunning, StartedAt: time.Now()}
	require.NoError(t, store.StartRun(task, second))
	assert.Equal(t, uint64(2), second.ID)

	runs, err := store.ListRunsByTask("t1")
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, types.StageImplement, runs[0].Stage)
	assert.Equal(t, types.StageVerify, runs[1].Stage)
}

// TestStartRunRejectsSecondActiveRun exercises the single-active-run
// guard: a task with an outstanding running run cannot start another.
func TestStartRunRejectsSecondActiveRun(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.CreateProject(testProject("p1", "billing")))
	task := testTask("t1", "p1", "add invoices")
	require.NoError(t, store.CreateTask(task))

	run := &types.PipelineRun{TaskID: "t1", Stage: types.StageImplement, Status: types.RunStatusRunning, StartedAt: time.Now()}
	require.NoError(t, store.StartRun(task, run))

	another := &types.PipelineRun{TaskID: "t1", Stage: types.StageImplement, Status: types.RunStatusRunning, StartedAt: time.Now()}
	err := store.StartRun(task, another)
	assert.ErrorIs(t, err, ErrRunStillActive)

	// A different task is unaffected
	other := testTask("t2", "p1", "other work")
	require.NoError(t, store.CreateTask(other))
	otherRun := &types.PipelineRun{TaskID: "t2", Stage: types.StageImplement, Status: types.RunStatusRunning, StartedAt: time.Now()}
	assert.NoError(t, store.StartRun(other, otherRun))
}

func TestStartRunPersistsTaskMutation(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.CreateProject(testProject("p1", "billing")))
	task := testTask("t1", "p1", "add invoices")
	require.NoError(t, store.CreateTask(task))

	task.Status = types.TaskStatusRunning
	task.Stage = types.StageImplement
	run := &types.PipelineRun{TaskID: "t1", Stage: types.StageImplement, Status: types.RunStatusRunning, StartedAt: time.Now()}
	require.NoError(t, store.StartRun(task, run))

	got, err := store.GetTask("t1")
	require.NoError(t, err)
	assert.Equal(t, types.TaskStatusRunning, got.Status)
	assert.Equal(t, types.StageImplement, got.Stage)
}

func TestLatestRunForStage(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.CreateProject(testProject("p1", "billing")))
	task := testTask("t1", "p1", "add invoices")
	require.NoError(t, store.CreateTask(task))

	// Two implement attempts then a verify run
	r1 := &types.PipelineRun{TaskID: "t1", Stage: types.StageImplement, Status: types.RunStatusRunning, StartedAt: time.Now()}
	require.NoError(t, store.StartRun(task, r1))
	r1.Status = types.RunStatusFailed
	require.NoError(t, store.CompleteRun(r1, task))

	r2 := &types.PipelineRun{TaskID: "t1", Stage: types.StageImplement, Status: types.RunStatusRunning, StartedAt: time.Now()}
	require.NoError(t, store.StartRun(task, r2))
	r2.Status = types.RunStatusPassed
	require.NoError(t, store.CompleteRun(r2, task))

	r3 := &types.PipelineRun{TaskID: "t1", Stage: types.StageVerify, Status: types.RunStatusRunning, StartedAt: time.Now()}
	require.NoError(t, store.StartRun(task, r3))

	latest, err := store.LatestRunForStage("t1", types.StageImplement)
	require.NoError(t, err)
	assert.Equal(t, r2.ID, latest.ID)
	assert.Equal(t, types.RunStatusPassed, latest.Status)

	latest, err = store.LatestRun("t1")
	require.NoError(t, err)
	assert.Equal(t, r3.ID, latest.ID)

	_, err = store.LatestRunForStage("t1", types.StageDeploy)
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestArchiveTaskCascade(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.CreateProject(testProject("p1", "billing")))
	require.NoError(t, store.CreateTask(testTask("t1", "p1", "parent")))

	child := testTask("t2", "p1", "child")
	child.ParentID = "t1"
	require.NoError(t, store.CreateTask(child))

	grandchild := testTask("t3", "p1", "grandchild")
	grandchild.ParentID = "t2"
	require.NoError(t, store.CreateTask(grandchild))

	archived, err := store.ArchiveTaskCascade("t1")
	require.NoError(t, err)
	assert.Len(t, archived, 2)

	parent, _ := store.GetTask("t1")
	assert.Equal(t, types.TaskStatusArchived, parent.Status)
	got, _ := store.GetTask("t2")
	assert.Equal(t, types.TaskStatusArchived, got.Status)

	// Grandchildren are not directly parented, so they stay
	got, _ = store.GetTask("t3")
	assert.Equal(t, types.TaskStatusPlan, got.Status)
}

func TestCreateFeedbackTask(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.CreateProject(testProject("p1", "billing")))
	original := testTask("t1", "p1", "add invoices")
	require.NoError(t, store.CreateTask(original))

	original.Status = types.TaskStatusArchived
	followUp := testTask("t2", "p1", "add invoices")
	followUp.Spec = "handle negative amounts"
	followUp.LinkedFromID = "t1"

	require.NoError(t, store.CreateFeedbackTask(followUp, original))

	got, err := store.GetTask("t2")
	require.NoError(t, err)
	assert.Equal(t, "t1", got.LinkedFromID)

	old, err := store.GetTask("t1")
	require.NoError(t, err)
	assert.Equal(t, types.TaskStatusArchived, old.Status)
}

func TestDeleteTaskCascadesRunsAndLogs(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.CreateProject(testProject("p1", "billing")))
	task := testTask("t1", "p1", "add invoices")
	require.NoError(t, store.CreateTask(task))

	run := &types.PipelineRun{TaskID: "t1", Stage: types.StageImplement, Status: types.RunStatusRunning, StartedAt: time.Now()}
	require.NoError(t, store.StartRun(task, run))
	require.NoError(t, store.AppendStepLog(&types.StepLog{RunID: run.ID, Timestamp: time.Now(), Level: types.LogLevelInfo, Message: "step started"}))

	require.NoError(t, store.DeleteTask("t1"))

	_, err := store.GetRun(run.ID)
	assert.ErrorIs(t, err, ErrRunNotFound)

	logs, err := store.ListStepLogs(run.ID)
	require.NoError(t, err)
	assert.Empty(t, logs)
}

func TestStepLogsKeepInsertionOrder(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.CreateProject(testProject("p1", "billing")))
	task := testTask("t1", "p1", "add invoices")
	require.NoError(t, store.CreateTask(task))
	run := &types.PipelineRun{TaskID: "t1", Stage: types.StageImplement, Status: types.RunStatusRunning, StartedAt: time.Now()}
	require.NoError(t, store.StartRun(task, run))

	messages := []string{"step started", "agent dispatched", "callback received"}
	for _, msg := range messages {
		require.NoError(t, store.AppendStepLog(&types.StepLog{RunID: run.ID, Timestamp: time.Now(), Level: types.LogLevelInfo, Message: msg}))
	}

	logs, err := store.ListStepLogs(run.ID)
	require.NoError(t, err)
	require.Len(t, logs, 3)
	for i, msg := range messages {
		assert.Equal(t, msg, logs[i].Message)
	}
}
