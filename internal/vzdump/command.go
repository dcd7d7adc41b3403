package vzdump

import (
	"strconv"

	"github.com/kballard/go-shellquote"
	"github.com/yourusername/pvebackup/internal/config"
)

// ResolveExclusions returns the guest IDs to exclude on node. A node-level
// exclude_vms key wins even when its list is empty; otherwise the global
// list applies; otherwise nothing is excluded.
func ResolveExclusions(node config.NodeConfig, cfg *config.Config) []string {
	switch {
	case node.ExcludeVMs.Set:
		return node.ExcludeVMs.IDs
	case cfg.ExcludeVMs.Set:
		return cfg.ExcludeVMs.IDs
	default:
		return nil
	}
}

// BuildArgs returns the vzdump argument vector for one node.
func BuildArgs(node config.NodeConfig, cfg *config.Config) []string {
	args := []string{
		"vzdump",
		"--mode", "snapshot",
		"--mailto", cfg.MailTo,
		"--fleecing", cfg.Fleecing,
		"--bwlimit", strconv.Itoa(cfg.BWLimit),
		"--storage", cfg.PBSStorage,
		"--notes-template", cfg.NotesTemplate,
		"--mailnotification", cfg.MailNotification,
		"--node", node.Shortname,
		"--all", "1",
	}

	if exclude := ResolveExclusions(node, cfg); len(exclude) > 0 {
		args = append(args, "--exclude", config.NewVMList(exclude...).Join())
	}

	return args
}

// BuildCommand returns the remote shell command line for one node.
func BuildCommand(node config.NodeConfig, cfg *config.Config) string {
	return shellquote.Join(BuildArgs(node, cfg)...)
}
