package main

import (
	"github.com/spf13/cobra"
)

// Set at build time with -ldflags "-X main.BuildVersion=..."
var (
	BuildVersion = "dev"
	BuildCommit  = "none"
	BuildDate    = "unknown"
)

func newRootCmd() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "pvebackup",
		Short: "Scheduled vzdump orchestrator for Proxmox VE nodes",
		Long: `pvebackup runs vzdump over SSH on a list of Proxmox VE nodes, one node
at a time, on a cron-like schedule read from config.yaml.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(cmd, configPath)
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default: $CONFIG_PATH or config.yaml next to the executable)")

	rootCmd.AddCommand(
		newRunCmd(&configPath),
		newRunOnceCmd(&configPath),
		newValidateCmd(&configPath),
		newNextCmd(&configPath),
		newVersionCmd(),
	)

	return rootCmd
}
