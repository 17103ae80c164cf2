package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/atomhq/hive/pkg/client"
)

// apiClient builds a client from the persistent flags.
func apiClient(cmd *cobra.Command) *client.Client {
	server, _ := cmd.Flags().GetString("server")
	token, _ := cmd.Flags().GetString("token")
	if token == "" {
		token = os.Getenv("HIVE_TOKEN")
	}
	return client.New(server, token)
}

var projectCmd = &cobra.Command{
	Use:   "project",
	Short: "Manage projects",
}

var projectCreateCmd = &cobra.Command{
	Use:   "create NAME",
	Short: "Create a new project",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		description, _ := cmd.Flags().GetString("description")
		repoPath, _ := cmd.Flags().GetString("repo")

		project, err := apiClient(cmd).CreateProject(context.Background(), args[0], description, repoPath)
		if err != nil {
			return err
		}

		fmt.Printf("✓ Project '%s' created\n", project.Name)
		fmt.Printf("  ID: %s\n", project.ID)
		return nil
	},
}

var projectListCmd = &cobra.Command{
	Use:   "list",
	Short: "List projects",
	RunE: func(cmd *cobra.Command, args []string) error {
		projects, err := apiClient(cmd).ListProjects(context.Background())
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tREPO\tCREATED")
		for _, p := range projects {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
				p.ID, p.Name, p.RepoPath, p.CreatedAt.Format(time.RFC3339))
		}
		return w.Flush()
	},
}

var projectDeleteCmd = &cobra.Command{
	Use:   "delete ID",
	Short: "Delete a project",
	Long:  "Delete a project. Refused while tasks still reference it.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := apiClient(cmd).DeleteProject(context.Background(), args[0]); err != nil {
			return err
		}
		fmt.Println("✓ Project deleted")
		return nil
	},
}

func init() {
	projectCmd.AddCommand(projectCreateCmd)
	projectCmd.AddCommand(projectListCmd)
	projectCmd.AddCommand(projectDeleteCmd)

	projectCreateCmd.Flags().String("description", "", "Project description")
	projectCreateCmd.Flags().String("repo", "", "Path or URL of the project repository")
}
