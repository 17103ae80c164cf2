package storage

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/atomhq/hive/pkg/types"
	bolt "go.etcd.io/bbolt"
)

var (
	// Bucket names
	bucketProjects = []byte("projects")
	bucketTasks    = []byte("tasks")
	bucketRuns     = []byte("runs")
	bucketStepLogs = []byte("step_logs")
)

// BoltStore implements Store interface using BoltDB
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore creates a new BoltDB-backed store
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "hive.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Create buckets
	err = db.Update(func(tx *bolt.Tx) error {
		buckets := [][]byte{
			bucketProjects,
			bucketTasks,
			bucketRuns,
			bucketStepLogs,
		}

		for _, bucket := range buckets {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})

	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close closes the database
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// seqKey formats a bbolt sequence number as a fixed-width key so that
// cursor order matches insertion order.
func seqKey(id uint64) []byte {
	return []byte(fmt.Sprintf("%020d", id))
}

// Project operations

func (s *BoltStore) CreateProject(project *types.Project) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketProjects)

		// Project names are unique
		var clash bool
		err := b.ForEach(func(k, v []byte) error {
			var existing types.Project
			if err := json.Unmarshal(v, &existing); err != nil {
				return err
			}
			if existing.Name == project.Name {
				clash = true
			}
			return nil
		})
		if err != nil {
			return err
		}
		if clash {
			return fmt.Errorf("%w: %s", ErrProjectExists, project.Name)
		}

		data, err := json.Marshal(project)
		if err != nil {
			return err
		}
		return b.Put([]byte(project.ID), data)
	})
}

func (s *BoltStore) GetProject(id string) (*types.Project, error) {
	var project types.Project
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketProjects)
		data := b.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("%w: %s", ErrProjectNotFound, id)
		}
		return json.Unmarshal(data, &project)
	})
	if err != nil {
		return nil, err
	}
	return &project, nil
}

func (s *BoltStore) GetProjectByName(name string) (*types.Project, error) {
	var found *types.Project
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketProjects)
		return b.ForEach(func(k, v []byte) error {
			var project types.Project
			if err := json.Unmarshal(v, &project); err != nil {
				return err
			}
			if project.Name == name {
				found = &project
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, fmt.Errorf("%w: %s", ErrProjectNotFound, name)
	}
	return found, nil
}

func (s *BoltStore) ListProjects() ([]*types.Project, error) {
	var projects []*types.Project
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketProjects)
		return b.ForEach(func(k, v []byte) error {
			var project types.Project
			if err := json.Unmarshal(v, &project); err != nil {
				return err
			}
			projects = append(projects, &project)
			return nil
		})
	})
	return projects, err
}

func (s *BoltStore) UpdateProject(project *types.Project) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketProjects)
		if b.Get([]byte(project.ID)) == nil {
			return fmt.Errorf("%w: %s", ErrProjectNotFound, project.ID)
		}
		data, err := json.Marshal(project)
		if err != nil {
			return err
		}
		return b.Put([]byte(project.ID), data)
	})
}

// DeleteProject removes a project. It refuses while any task still
// references the project.
func (s *BoltStore) DeleteProject(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketProjects)
		if b.Get([]byte(id)) == nil {
			return fmt.Errorf("%w: %s", ErrProjectNotFound, id)
		}

		var referenced bool
		err := tx.Bucket(bucketTasks).ForEach(func(k, v []byte) error {
			var task types.Task
			if err := json.Unmarshal(v, &task); err != nil {
				return err
			}
			if task.ProjectID == id {
				referenced = true
			}
			return nil
		})
		if err != nil {
			return err
		}
		if referenced {
			return fmt.Errorf("%w: %s", ErrProjectHasTasks, id)
		}

		return b.Delete([]byte(id))
	})
}

// Task operations

func (s *BoltStore) CreateTask(task *types.Task) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket(bucketProjects).Get([]byte(task.ProjectID)) == nil {
			return fmt.Errorf("%w: %s", ErrProjectNotFound, task.ProjectID)
		}
		b := tx.Bucket(bucketTasks)
		data, err := json.Marshal(task)
		if err != nil {
			return err
		}
		return b.Put([]byte(task.ID), data)
	})
}

func (s *BoltStore) GetTask(id string) (*types.Task, error) {
	var task types.Task
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketTasks)
		data := b.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
		}
		return json.Unmarshal(data, &task)
	})
	if err != nil {
		return nil, err
	}
	return &task, nil
}

func (s *BoltStore) ListTasks() ([]*types.Task, error) {
	var tasks []*types.Task
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketTasks)
		return b.ForEach(func(k, v []byte) error {
			var task types.Task
			if err := json.Unmarshal(v, &task); err != nil {
				return err
			}
			tasks = append(tasks, &task)
			return nil
		})
	})
	return tasks, err
}

func (s *BoltStore) ListTasksByProject(projectID string) ([]*types.Task, error) {
	tasks, err := s.ListTasks()
	if err != nil {
		return nil, err
	}

	var filtered []*types.Task
	for _, task := range tasks {
		if task.ProjectID == projectID {
			filtered = append(filtered, task)
		}
	}
	return filtered, nil
}

func (s *BoltStore) ListTasksByParent(parentID string) ([]*types.Task, error) {
	tasks, err := s.ListTasks()
	if err != nil {
		return nil, err
	}

	var filtered []*types.Task
	for _, task := range tasks {
		if task.ParentID == parentID {
			filtered = append(filtered, task)
		}
	}
	return filtered, nil
}

func (s *BoltStore) UpdateTask(task *types.Task) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketTasks)
		if b.Get([]byte(task.ID)) == nil {
			return fmt.Errorf("%w: %s", ErrTaskNotFound, task.ID)
		}
		data, err := json.Marshal(task)
		if err != nil {
			return err
		}
		return b.Put([]byte(task.ID), data)
	})
}

// DeleteTask removes a task together with its runs and their step
// logs in one transaction.
func (s *BoltStore) DeleteTask(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		tasks := tx.Bucket(bucketTasks)
		if tasks.Get([]byte(id)) == nil {
			return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
		}

		runs := tx.Bucket(bucketRuns)
		logs := tx.Bucket(bucketStepLogs)

		// Collect the task's run keys and IDs first; deleting while
		// iterating a bbolt cursor is undefined.
		var runKeys [][]byte
		runIDs := make(map[uint64]bool)
		err := runs.ForEach(func(k, v []byte) error {
			var run types.PipelineRun
			if err := json.Unmarshal(v, &run); err != nil {
				return err
			}
			if run.TaskID == id {
				key := make([]byte, len(k))
				copy(key, k)
				runKeys = append(runKeys, key)
				runIDs[run.ID] = true
			}
			return nil
		})
		if err != nil {
			return err
		}

		var logKeys [][]byte
		err = logs.ForEach(func(k, v []byte) error {
			var entry types.StepLog
			if err := json.Unmarshal(v, &entry); err != nil {
				return err
			}
			if runIDs[entry.RunID] {
				key := make([]byte, len(k))
				copy(key, k)
				logKeys = append(logKeys, key)
			}
			return nil
		})
		if err != nil {
			return err
		}

		for _, k := range logKeys {
			if err := logs.Delete(k); err != nil {
				return err
			}
		}
		for _, k := range runKeys {
			if err := runs.Delete(k); err != nil {
				return err
			}
		}
		return tasks.Delete([]byte(id))
	})
}

// Pipeline run operations

func (s *BoltStore) GetRun(id uint64) (*types.PipelineRun, error) {
	var run types.PipelineRun
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRuns)
		data := b.Get(seqKey(id))
		if data == nil {
			return fmt.Errorf("%w: %d", ErrRunNotFound, id)
		}
		return json.Unmarshal(data, &run)
	})
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// ListRunsByTask returns the task's runs in insertion order. Keys are
// fixed-width sequence numbers, so cursor order is run order.
func (s *BoltStore) ListRunsByTask(taskID string) ([]*types.PipelineRun, error) {
	var runs []*types.PipelineRun
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketRuns).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var run types.PipelineRun
			if err := json.Unmarshal(v, &run); err != nil {
				return err
			}
			if run.TaskID == taskID {
				runs = append(runs, &run)
			}
		}
		return nil
	})
	return runs, err
}

func (s *BoltStore) LatestRun(taskID string) (*types.PipelineRun, error) {
	runs, err := s.ListRunsByTask(taskID)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, fmt.Errorf("%w: task %s", ErrRunNotFound, taskID)
	}
	return runs[len(runs)-1], nil
}

// LatestRunForStage returns the most recent run for (task, stage).
func (s *BoltStore) LatestRunForStage(taskID string, stage types.Stage) (*types.PipelineRun, error) {
	runs, err := s.ListRunsByTask(taskID)
	if err != nil {
		return nil, err
	}
	for i := len(runs) - 1; i >= 0; i-- {
		if runs[i].Stage == stage {
			return runs[i], nil
		}
	}
	return nil, fmt.Errorf("%w: task %s stage %s", ErrRunNotFound, taskID, stage)
}

func (s *BoltStore) UpdateRun(run *types.PipelineRun) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRuns)
		if b.Get(seqKey(run.ID)) == nil {
			return fmt.Errorf("%w: %d", ErrRunNotFound, run.ID)
		}
		data, err := json.Marshal(run)
		if err != nil {
			return err
		}
		return b.Put(seqKey(run.ID), data)
	})
}

// StartRun inserts a new run and writes the updated task in a single
// transaction. It fails with ErrRunStillActive if the task already has
// a run in the running state; this check-and-insert is what upholds
// the at-most-one-running-run-per-task invariant under concurrent
// callbacks.
func (s *BoltStore) StartRun(task *types.Task, run *types.PipelineRun) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		runs := tx.Bucket(bucketRuns)

		var active bool
		err := runs.ForEach(func(k, v []byte) error {
			var existing types.PipelineRun
			if err := json.Unmarshal(v, &existing); err != nil {
				return err
			}
			if existing.TaskID == task.ID && existing.Status == types.RunStatusRunning {
				active = true
			}
			return nil
		})
		if err != nil {
			return err
		}
		if active {
			return fmt.Errorf("%w: %s", ErrRunStillActive, task.ID)
		}

		seq, err := runs.NextSequence()
		if err != nil {
			return err
		}
		run.ID = seq

		data, err := json.Marshal(run)
		if err != nil {
			return err
		}
		if err := runs.Put(seqKey(run.ID), data); err != nil {
			return err
		}

		taskData, err := json.Marshal(task)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketTasks).Put([]byte(task.ID), taskData)
	})
}

// CompleteRun writes a run's terminal state and the task mutation that
// goes with it in a single transaction.
func (s *BoltStore) CompleteRun(run *types.PipelineRun, task *types.Task) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		runs := tx.Bucket(bucketRuns)
		if runs.Get(seqKey(run.ID)) == nil {
			return fmt.Errorf("%w: %d", ErrRunNotFound, run.ID)
		}
		data, err := json.Marshal(run)
		if err != nil {
			return err
		}
		if err := runs.Put(seqKey(run.ID), data); err != nil {
			return err
		}

		taskData, err := json.Marshal(task)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketTasks).Put([]byte(task.ID), taskData)
	})
}

// ArchiveTaskCascade archives the task and every task directly
// parented to it, atomically. Grandchildren are left untouched unless
// directly parented. Pipeline runs stay as they are for audit.
func (s *BoltStore) ArchiveTaskCascade(taskID string) ([]*types.Task, error) {
	var archived []*types.Task
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketTasks)
		data := b.Get([]byte(taskID))
		if data == nil {
			return fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
		}

		now := time.Now()

		var task types.Task
		if err := json.Unmarshal(data, &task); err != nil {
			return err
		}
		task.Status = types.TaskStatusArchived
		task.UpdatedAt = now
		archived = append(archived, &task)

		err := b.ForEach(func(k, v []byte) error {
			var child types.Task
			if err := json.Unmarshal(v, &child); err != nil {
				return err
			}
			if child.ParentID == taskID {
				child.Status = types.TaskStatusArchived
				child.UpdatedAt = now
				archived = append(archived, &child)
			}
			return nil
		})
		if err != nil {
			return err
		}

		for _, t := range archived {
			data, err := json.Marshal(t)
			if err != nil {
				return err
			}
			if err := b.Put([]byte(t.ID), data); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return archived, nil
}

// CreateFeedbackTask inserts the new iteration task and archives the
// original in one transaction.
func (s *BoltStore) CreateFeedbackTask(feedback *types.Task, original *types.Task) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketTasks)
		if b.Get([]byte(original.ID)) == nil {
			return fmt.Errorf("%w: %s", ErrTaskNotFound, original.ID)
		}

		data, err := json.Marshal(feedback)
		if err != nil {
			return err
		}
		if err := b.Put([]byte(feedback.ID), data); err != nil {
			return err
		}

		origData, err := json.Marshal(original)
		if err != nil {
			return err
		}
		return b.Put([]byte(original.ID), origData)
	})
}

// Step log operations

func (s *BoltStore) AppendStepLog(entry *types.StepLog) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketStepLogs)
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		entry.ID = seq

		data, err := json.Marshal(entry)
		if err != nil {
			return err
		}
		return b.Put(seqKey(entry.ID), data)
	})
}

// ListStepLogs returns a run's log lines in insertion order.
func (s *BoltStore) ListStepLogs(runID uint64) ([]*types.StepLog, error) {
	var entries []*types.StepLog
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketStepLogs).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var entry types.StepLog
			if err := json.Unmarshal(v, &entry); err != nil {
				return err
			}
			if entry.RunID == runID {
				entries = append(entries, &entry)
			}
		}
		return nil
	})
	return entries, err
}
