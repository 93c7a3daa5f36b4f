package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/highbeam/teamd/internal/config"
	"github.com/highbeam/teamd/internal/daemon"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "teamd",
		Short: "Coordinate multiple agent processes on one host",
		Long:  "teamd is a daemon that gives cooperating agent processes a shared, auditable workspace of tasks, discussion threads, and per-agent inboxes.",
	}

	rootCmd.AddCommand(startCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func startCmd() *cobra.Command {
	var teamID string

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the teamd daemon for one team",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(config.ConfigPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if teamID == "" {
				return fmt.Errorf("--team is required")
			}

			d, err := daemon.Bootstrap(cfg, teamID)
			if err != nil {
				return fmt.Errorf("start daemon: %w", err)
			}
			defer d.Close()

			fmt.Printf("teamd listening on %s for team %s\n", d.Addr().String(), teamID)

			<-d.Context().Done()
			return nil
		},
	}

	cmd.Flags().StringVar(&teamID, "team", "", "team id to serve (required)")

	return cmd
}
