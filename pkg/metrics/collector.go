package metrics

import (
	"time"

	"github.com/atomhq/hive/pkg/storage"
	"github.com/atomhq/hive/pkg/types"
)

// Collector periodically refreshes the state gauges from the store
type Collector struct {
	store  storage.Store
	stopCh chan struct{}
}

// NewCollector creates a new metrics collector
func NewCollector(store storage.Store) *Collector {
	return &Collector{
		store:  store,
		stopCh: make(chan struct{}),
	}
}

// Start begins collecting metrics
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		// Collect immediately on start
		c.collect()

		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	c.collectProjectMetrics()
	c.collectTaskMetrics()
}

func (c *Collector) collectProjectMetrics() {
	projects, err := c.store.ListProjects()
	if err != nil {
		return
	}
	ProjectsTotal.Set(float64(len(projects)))
}

func (c *Collector) collectTaskMetrics() {
	tasks, err := c.store.ListTasks()
	if err != nil {
		return
	}

	counts := make(map[types.TaskStatus]int)
	for _, task := range tasks {
		counts[task.Status]++
	}

	// Reset so statuses that emptied out go back to zero
	statuses := []types.TaskStatus{
		types.TaskStatusPlan,
		types.TaskStatusGreenlit,
		types.TaskStatusRunning,
		types.TaskStatusDone,
		types.TaskStatusFailed,
		types.TaskStatusPaused,
		types.TaskStatusArchived,
	}
	running := 0
	for _, status := range statuses {
		TasksTotal.WithLabelValues(string(status)).Set(float64(counts[status]))
	}

	for _, task := range tasks {
		if task.Status != types.TaskStatusRunning {
			continue
		}
		run, err := c.store.LatestRun(task.ID)
		if err != nil {
			continue
		}
		if run.Status == types.RunStatusRunning {
			running++
		}
	}
	RunningRuns.Set(float64(running))
}
