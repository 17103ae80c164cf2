package orchestrator

import (
	"sort"

	"github.com/atomhq/hive/pkg/pipeline"
	"github.com/atomhq/hive/pkg/types"
)

// archivedLimit bounds the archived list in the dashboard projection
const archivedLimit = 50

// Dashboard builds the read-only board projection: non-archived tasks
// grouped by board stage with each task's latest run, a bounded list
// of recently archived tasks, and overall counts. Derived display
// state only; no side effects, never consulted by the state machine.
func (o *Orchestrator) Dashboard() (*types.Dashboard, error) {
	projects, err := o.store.ListProjects()
	if err != nil {
		return nil, err
	}

	tasks, err := o.store.ListTasks()
	if err != nil {
		return nil, err
	}

	projectNames := make(map[string]string, len(projects))
	for _, p := range projects {
		projectNames[p.ID] = p.Name
	}

	columns := make([]*types.StageColumn, 0, len(pipeline.BoardOrder))
	byStage := make(map[types.Stage]*types.StageColumn, len(pipeline.BoardOrder))
	for _, stage := range pipeline.BoardOrder {
		col := &types.StageColumn{Stage: stage, Tasks: []*types.TaskSummary{}}
		columns = append(columns, col)
		byStage[stage] = col
	}

	dashboard := &types.Dashboard{
		Projects: projects,
		Columns:  columns,
		Archived: []*types.TaskSummary{},
	}

	for _, task := range tasks {
		summary := &types.TaskSummary{
			Task:        task,
			ProjectName: projectNames[task.ProjectID],
		}
		if run, err := o.store.LatestRun(task.ID); err == nil {
			summary.LatestRun = run
		}

		if task.Status == types.TaskStatusArchived {
			dashboard.Counts.Archived++
			dashboard.Archived = append(dashboard.Archived, summary)
			continue
		}

		dashboard.Counts.Active++
		switch task.Status {
		case types.TaskStatusRunning:
			dashboard.Counts.Running++
		case types.TaskStatusDone:
			dashboard.Counts.Done++
		case types.TaskStatusFailed:
			dashboard.Counts.Failed++
		}

		col, ok := byStage[task.Stage]
		if !ok {
			// Unknown stage values land in the plan column rather
			// than disappearing from the board
			col = byStage[types.StagePlan]
		}
		col.Tasks = append(col.Tasks, summary)
	}

	sort.Slice(dashboard.Archived, func(i, j int) bool {
		return dashboard.Archived[i].Task.UpdatedAt.After(dashboard.Archived[j].Task.UpdatedAt)
	})
	if len(dashboard.Archived) > archivedLimit {
		dashboard.Archived = dashboard.Archived[:archivedLimit]
	}

	return dashboard, nil
}
