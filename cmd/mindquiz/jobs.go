package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fjod/mindquiz/internal/config"
	"github.com/fjod/mindquiz/internal/maintenance"
)

// withJobs runs fn against maintenance jobs built from the environment.
func withJobs(cmd *cobra.Command, fn func(*config.Config, *maintenance.Jobs) error) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	a, _, err := newStorage(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()
	return fn(cfg, a.jobs)
}

func rotateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rotate",
		Short: "Archive and truncate every non-empty ledger stream",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withJobs(cmd, func(_ *config.Config, j *maintenance.Jobs) error {
				files, err := j.Rotate(cmd.Context())
				if err != nil {
					return err
				}
				for _, f := range files {
					fmt.Fprintln(cmd.OutOrStdout(), f)
				}
				return nil
			})
		},
	}
}

func backupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backup",
		Short: "Write a gzip snapshot of all ledger streams",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withJobs(cmd, func(_ *config.Config, j *maintenance.Jobs) error {
				path, err := j.Backup(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), path)
				return nil
			})
		},
	}
}

func pruneCmd() *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete archive and backup files older than --days",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withJobs(cmd, func(cfg *config.Config, j *maintenance.Jobs) error {
				n := days
				if n <= 0 {
					n = cfg.PruneDays
				}
				removed, err := j.Prune(cmd.Context(), n)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "removed %d files\n", removed)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&days, "days", 0, "age limit in days (default PRUNE_DAYS)")
	return cmd
}

func restoreCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restore-check",
		Short: "Decompress the newest backup and verify its records parse",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withJobs(cmd, func(_ *config.Config, j *maintenance.Jobs) error {
				res, err := j.RestoreCheck(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "file=%s lines=%d sampled=%d parsed=%d\n", res.File, res.Lines, res.Sampled, res.Parsed)
				if !res.OK() {
					return fmt.Errorf("restore check failed for %s", res.File)
				}
				return nil
			})
		},
	}
}
