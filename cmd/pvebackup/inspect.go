package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
	"github.com/yourusername/pvebackup/internal/logging"
	"github.com/yourusername/pvebackup/internal/schedule"
	"github.com/yourusername/pvebackup/internal/vzdump"
)

func newValidateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the configuration and print the command run on each node",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, path, err := loadConfig(*configPath, logging.Discard())
			if err != nil {
				return err
			}
			rule, err := parseSchedule(cfg, consoleLogger(cmd))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "configuration %s is valid\n", path)
			fmt.Fprintf(out, "schedule: %s (%s)\n", rule.Describe(), rule.Expression())
			fmt.Fprintf(out, "transport: %s\n", cfg.SSH.Transport)
			for _, node := range cfg.Nodes {
				fmt.Fprintf(out, "%s (%s): %s\n", node.Shortname, node.FQDN, vzdump.BuildCommand(node, cfg))
			}
			return nil
		},
	}
}

func newNextCmd(configPath *string) *cobra.Command {
	var count int

	cmd := &cobra.Command{
		Use:   "next",
		Short: "Print the next scheduled run times",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if count < 1 {
				return fmt.Errorf("--count must be at least 1")
			}
			cfg, _, err := loadConfig(*configPath, logging.Discard())
			if err != nil {
				return err
			}
			rule, err := parseSchedule(cfg, consoleLogger(cmd))
			if err != nil {
				return err
			}

			times, err := schedule.Upcoming(rule, time.Now(), count)
			if err != nil {
				return withExitCode(exitScheduleInvalid, err)
			}
			for _, t := range times {
				fmt.Fprintln(cmd.OutOrStdout(), t.Format(time.RFC3339))
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&count, "count", "n", 5, "number of run times to print")
	return cmd
}

func newVersionCmd() *cobra.Command {
	var short bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			if short {
				fmt.Fprintln(out, BuildVersion)
				return
			}
			fmt.Fprintf(out, "pvebackup %s\n", BuildVersion)
			fmt.Fprintf(out, "Commit: %s\n", BuildCommit)
			fmt.Fprintf(out, "Built: %s\n", BuildDate)
		},
	}

	cmd.Flags().BoolVarP(&short, "short", "s", false, "Show only version number")
	return cmd
}

// consoleLogger writes warnings for interactive commands to stderr.
func consoleLogger(cmd *cobra.Command) *slog.Logger {
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: slog.LevelWarn}))
}
