package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/atomhq/hive/pkg/orchestrator"
	"github.com/atomhq/hive/pkg/types"
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Manage tasks",
}

var taskCreateCmd = &cobra.Command{
	Use:   "create TITLE",
	Short: "Create a new task",
	Long: `Create a task in the plan stage. The task does not run until
it is greenlit.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		projectID, _ := cmd.Flags().GetString("project")
		spec, _ := cmd.Flags().GetString("spec")
		priority, _ := cmd.Flags().GetString("priority")
		autoRun, _ := cmd.Flags().GetBool("auto-run")
		parentID, _ := cmd.Flags().GetString("parent")

		req := orchestrator.CreateTaskRequest{
			ProjectID: projectID,
			Title:     args[0],
			Spec:      spec,
			Priority:  types.Priority(priority),
			AutoRun:   autoRun,
			ParentID:  parentID,
		}
		if cmd.Flags().Changed("max-retries") {
			maxRetries, _ := cmd.Flags().GetInt("max-retries")
			req.MaxRetries = &maxRetries
		}

		task, err := apiClient(cmd).CreateTask(context.Background(), req)
		if err != nil {
			return err
		}

		fmt.Printf("✓ Task '%s' created\n", task.Title)
		fmt.Printf("  ID: %s\n", task.ID)
		fmt.Printf("  Status: %s\n", task.Status)
		return nil
	},
}

var taskListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks",
	RunE: func(cmd *cobra.Command, args []string) error {
		projectID, _ := cmd.Flags().GetString("project")
		status, _ := cmd.Flags().GetString("status")
		includeArchived, _ := cmd.Flags().GetBool("archived")

		tasks, err := apiClient(cmd).ListTasks(context.Background(), projectID, status, includeArchived)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tTITLE\tSTATUS\tSTAGE\tPRIORITY\tUPDATED")
		for _, t := range tasks {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
				t.ID, t.Title, t.Status, t.Stage, t.Priority,
				t.UpdatedAt.Format(time.RFC3339))
		}
		return w.Flush()
	},
}

var taskShowCmd = &cobra.Command{
	Use:   "show ID",
	Short: "Show a task with its runs and subtasks",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		detail, err := apiClient(cmd).GetTask(context.Background(), args[0])
		if err != nil {
			return err
		}

		t := detail.Task
		fmt.Printf("Task: %s\n", t.Title)
		fmt.Printf("  ID: %s\n", t.ID)
		fmt.Printf("  Project: %s\n", detail.ProjectName)
		fmt.Printf("  Status: %s\n", t.Status)
		fmt.Printf("  Stage: %s\n", t.Stage)
		fmt.Printf("  Priority: %s\n", t.Priority)
		fmt.Printf("  Greenlit: %v  Auto-run: %v\n", t.Greenlit, t.AutoRun)
		fmt.Printf("  Retries: %d of %d\n", t.RetryCount, t.MaxRetries)
		if t.LinkedFromID != "" {
			fmt.Printf("  Iterates on: %s\n", t.LinkedFromID)
		}
		if t.Spec != "" {
			fmt.Printf("  Spec:\n    %s\n", t.Spec)
		}

		if len(detail.Subtasks) > 0 {
			fmt.Println("\nSubtasks:")
			for _, sub := range detail.Subtasks {
				fmt.Printf("  %s  %s (%s)\n", sub.ID, sub.Title, sub.Status)
			}
		}

		if len(detail.Runs) > 0 {
			fmt.Println("\nRuns:")
			w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
			fmt.Fprintln(w, "  ID\tSTAGE\tSTATUS\tSTARTED\tDURATION")
			for _, run := range detail.Runs {
				fmt.Fprintf(w, "  %d\t%s\t%s\t%s\t%dms\n",
					run.ID, run.Stage, run.Status,
					run.StartedAt.Format(time.RFC3339), run.DurationMS)
			}
			w.Flush()
		}
		return nil
	},
}

var taskGreenlightCmd = &cobra.Command{
	Use:   "greenlight ID",
	Short: "Toggle a task's greenlight",
	Long: `Toggle a task's greenlight. A greenlit task with auto-run set
starts its first pipeline step immediately; without auto-run it waits
in the greenlit state.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		task, err := apiClient(cmd).Greenlight(context.Background(), args[0])
		if err != nil {
			return err
		}
		fmt.Printf("✓ Task is now %s (greenlit=%v)\n", task.Status, task.Greenlit)
		return nil
	},
}

var taskPauseCmd = &cobra.Command{
	Use:   "pause ID",
	Short: "Pause a task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		task, err := apiClient(cmd).Pause(context.Background(), args[0])
		if err != nil {
			return err
		}
		fmt.Printf("✓ Task paused at stage %s\n", task.Stage)
		return nil
	},
}

var taskRetryCmd = &cobra.Command{
	Use:   "retry ID",
	Short: "Reset a failed task to greenlit",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		task, err := apiClient(cmd).Retry(context.Background(), args[0])
		if err != nil {
			return err
		}
		fmt.Printf("✓ Task reset to %s (attempt %d)\n", task.Status, task.RetryCount)
		return nil
	},
}

var taskArchiveCmd = &cobra.Command{
	Use:   "archive ID",
	Short: "Archive a task and its direct subtasks",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		archived, err := apiClient(cmd).Archive(context.Background(), args[0])
		if err != nil {
			return err
		}
		fmt.Printf("✓ Archived %d task(s)\n", len(archived))
		for _, t := range archived {
			fmt.Printf("  %s  %s\n", t.ID, t.Title)
		}
		return nil
	},
}

var taskFeedbackCmd = &cobra.Command{
	Use:   "feedback ID TEXT",
	Short: "Archive a task and open a linked follow-up",
	Long: `Archive a task and create a new linked task carrying TEXT as
its spec. The new task starts back in the plan stage.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		task, err := apiClient(cmd).Feedback(context.Background(), args[0], args[1])
		if err != nil {
			return err
		}
		fmt.Printf("✓ Follow-up task created\n")
		fmt.Printf("  ID: %s\n", task.ID)
		fmt.Printf("  Iterates on: %s\n", task.LinkedFromID)
		return nil
	},
}

var taskLogsCmd = &cobra.Command{
	Use:   "logs RUN_ID",
	Short: "Show a run's step log",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var runID uint64
		if _, err := fmt.Sscanf(args[0], "%d", &runID); err != nil {
			return fmt.Errorf("invalid run id: %s", args[0])
		}

		logs, err := apiClient(cmd).ListRunLogs(context.Background(), runID)
		if err != nil {
			return err
		}
		for _, entry := range logs {
			fmt.Printf("%s  %-5s  %s\n",
				entry.Timestamp.Format(time.RFC3339), entry.Level, entry.Message)
		}
		return nil
	},
}

func init() {
	taskCmd.AddCommand(taskCreateCmd)
	taskCmd.AddCommand(taskListCmd)
	taskCmd.AddCommand(taskShowCmd)
	taskCmd.AddCommand(taskGreenlightCmd)
	taskCmd.AddCommand(taskPauseCmd)
	taskCmd.AddCommand(taskRetryCmd)
	taskCmd.AddCommand(taskArchiveCmd)
	taskCmd.AddCommand(taskFeedbackCmd)
	taskCmd.AddCommand(taskLogsCmd)

	taskCreateCmd.Flags().String("project", "", "Project ID (required)")
	taskCreateCmd.Flags().String("spec", "", "Task specification text")
	taskCreateCmd.Flags().String("priority", "normal", "Priority: low, normal, high")
	taskCreateCmd.Flags().Bool("auto-run", false, "Start the pipeline immediately on greenlight")
	taskCreateCmd.Flags().Int("max-retries", 0, "Automatic retries per stage")
	taskCreateCmd.Flags().String("parent", "", "Parent task ID")
	_ = taskCreateCmd.MarkFlagRequired("project")

	taskListCmd.Flags().String("project", "", "Filter by project ID")
	taskListCmd.Flags().String("status", "", "Filter by status")
	taskListCmd.Flags().Bool("archived", false, "Include archived tasks")
}
