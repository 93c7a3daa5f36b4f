package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/highbeam/teamd/internal/guard"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "team",
		Short: "Read-only views and write-permission checks against a running teamd daemon",
	}

	rootCmd.AddCommand(daemonCmd())
	rootCmd.AddCommand(agentCmd())
	rootCmd.AddCommand(tasksCmd())
	rootCmd.AddCommand(guardCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func daemonCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "daemon", Short: "Inspect the daemon"}
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Report the URL and team of the discovered daemon (does not contact it)",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := guard.Discover(guard.EnvironFromOS())
			if err != nil {
				return fmt.Errorf("discover daemon: %w", err)
			}
			if id.URL == "" || id.Token == "" {
				fmt.Println("no daemon discovered")
				return fmt.Errorf("no daemon discovered")
			}
			data, err := json.MarshalIndent(map[string]string{
				"url":    id.URL,
				"teamId": id.TeamID,
			}, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(data))
			return nil
		},
	})
	return cmd
}

func agentCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "agent", Short: "Inspect the local agent identity"}
	cmd.AddCommand(&cobra.Command{
		Use:   "env",
		Short: "Print the discovered identity used for guard checks",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := guard.Discover(guard.EnvironFromOS())
			if err != nil {
				return fmt.Errorf("discover identity: %w", err)
			}
			data, err := json.MarshalIndent(map[string]string{
				"teamId":  id.TeamID,
				"agentId": id.AgentID,
				"url":     id.URL,
			}, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(data))
			return nil
		},
	})
	return cmd
}

func tasksCmd() *cobra.Command {
	var status string

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks visible to the discovered identity",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := guard.Discover(guard.EnvironFromOS())
			if err != nil {
				return fmt.Errorf("discover daemon: %w", err)
			}
			if id.URL == "" || id.Token == "" || id.TeamID == "" {
				return fmt.Errorf("no daemon or team discovered")
			}
			client := guard.NewClient(id)
			tasks, err := client.ListTasks(context.Background(), status)
			if err != nil {
				return fmt.Errorf("list tasks: %w", err)
			}
			for _, task := range tasks {
				fmt.Printf("%-12s %-10s %s\n", task.ID, task.Status, task.Title)
			}
			return nil
		},
	}
	listCmd.Flags().StringVar(&status, "status", "", "filter by task status")

	cmd := &cobra.Command{Use: "tasks", Short: "Inspect tasks"}
	cmd.AddCommand(listCmd)
	return cmd
}

// guardCmd is the intercept hook a host agent shells out to before running
// a file-mutating tool. It exits 1 on a blocked decision so the caller can
// gate on the process exit status alone.
func guardCmd() *cobra.Command {
	var tool, path string

	cmd := &cobra.Command{
		Use:   "guard",
		Short: "Check whether a tool invocation is permitted under the current lease",
		RunE: func(cmd *cobra.Command, args []string) error {
			params := map[string]any{}
			if path != "" {
				params["path"] = path
			}
			decision := guard.Check(context.Background(), guard.EnvironFromOS(), tool, params)

			data, err := json.MarshalIndent(map[string]any{
				"block":  decision.Block,
				"reason": decision.Reason,
			}, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(data))
			if decision.Block {
				os.Exit(1)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&tool, "tool", "", "tool name being invoked (write, edit, bash, ...)")
	cmd.Flags().StringVar(&path, "path", "", "target path, if any")
	return cmd
}
