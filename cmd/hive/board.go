package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var boardCmd = &cobra.Command{
	Use:   "board",
	Short: "Show the pipeline board",
	RunE: func(cmd *cobra.Command, args []string) error {
		dash, err := apiClient(cmd).Dashboard(context.Background())
		if err != nil {
			return err
		}

		fmt.Printf("Active: %d  Running: %d  Done: %d  Failed: %d  Archived: %d\n\n",
			dash.Counts.Active, dash.Counts.Running, dash.Counts.Done,
			dash.Counts.Failed, dash.Counts.Archived)

		for _, column := range dash.Columns {
			fmt.Printf("%s (%d)\n", strings.ToUpper(string(column.Stage)), len(column.Tasks))
			for _, summary := range column.Tasks {
				t := summary.Task
				marker := " "
				switch {
				case t.Status == "running":
					marker = "▶"
				case t.Status == "failed":
					marker = "✗"
				case t.Greenlit:
					marker = "●"
				}
				fmt.Printf("  %s %s  %s [%s]\n", marker, t.ID, t.Title, summary.ProjectName)
			}
			fmt.Println()
		}
		return nil
	},
}
