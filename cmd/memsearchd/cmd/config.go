package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/memsearch/memsearch/internal/config"
	"github.com/memsearch/memsearch/internal/output"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or initialize memsearchd configuration",
	}
	cmd.AddCommand(newConfigInitCmd())
	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigBackupCmd())
	cmd.AddCommand(newConfigRestoreCmd())
	return cmd
}

func newConfigInitCmd() *cobra.Command {
	var user bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default .memsearch.yaml (or the user-global config with --user)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.New()
			path := filepath.Join(configDir, ".memsearch.yaml")
			if user {
				path = config.GetUserConfigPath()
			}
			if err := cfg.WriteYAML(path); err != nil {
				return err
			}
			output.New(cmd.OutOrStdout()).Successf("wrote %s", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&user, "user", false, "write to the XDG user-global config path instead of the project directory")
	return cmd
}

func newConfigBackupCmd() *cobra.Command {
	var list bool

	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Snapshot the user config and sqlite database (or list snapshots with --list)",
		RunE: func(cmd *cobra.Command, args []string) error {
			w := output.New(cmd.OutOrStdout())
			if list {
				dirs, err := config.ListSnapshots()
				if err != nil {
					return err
				}
				if len(dirs) == 0 {
					w.Noticef("no snapshots")
					return nil
				}
				for _, dir := range dirs {
					w.Noticef("%s", dir)
				}
				return nil
			}

			cfg, err := config.Load(configDir)
			if err != nil {
				return err
			}
			dir, err := config.TakeSnapshot(cfg)
			if err != nil {
				return err
			}
			if dir == "" {
				w.Noticef("nothing to snapshot (no user config, no on-disk database)")
				return nil
			}
			w.Successf("snapshot written to %s", dir)
			return nil
		},
	}
	cmd.Flags().BoolVar(&list, "list", false, "list existing snapshots instead of taking one")
	return cmd
}

func newConfigRestoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restore <snapshot-dir>",
		Short: "Restore config and database from a snapshot (current state is snapshotted first)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configDir)
			if err != nil {
				return err
			}
			if err := config.RestoreSnapshot(args[0], cfg); err != nil {
				return err
			}
			output.New(cmd.OutOrStdout()).Successf("restored %s", args[0])
			return nil
		},
	}
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective, fully-layered configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configDir)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%+v\n", *cfg)
			return nil
		},
	}
}
