// Copyright 2018-2019, Gradeflow, Inc.  All rights reserved.

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gradeflow/gradeflow/pkg/client/zfs"
	"github.com/gradeflow/gradeflow/pkg/config"
	"github.com/gradeflow/gradeflow/pkg/util/cmdutil"
)

func newSnapshotCmd() *cobra.Command {
	var list bool
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Snapshot student work for every past-due assignment and override",
		Long: "Snapshot student work for every past-due assignment and override.\n" +
			"\n" +
			"Labels that have already been recorded are never re-taken.  With --list, the\n" +
			"filesystem's existing snapshots are printed instead and nothing is taken.",
		Args: cobra.NoArgs,
		Run: cmdutil.RunFunc(func(cmd *cobra.Command, args []string) error {
			if list {
				cfg, err := config.Load(courseDir)
				if err != nil {
					return err
				}
				out, err := zfs.New(cfg.StudentFolderRoot, cfg.UserFolderRoot, cfg.CreateFolderScript, dryRun).
					ListSnapshots()
				if err != nil {
					return err
				}
				fmt.Print(out)
				return nil
			}

			e, release, err := buildEngine()
			if err != nil {
				return err
			}
			defer release()
			if err = e.Synchronize(true); err != nil {
				return err
			}
			if err = e.LoadState(); err != nil {
				return err
			}
			return e.TakeSnapshots()
		}),
	}
	cmd.Flags().BoolVar(&list, "list", false, "List the filesystem's existing snapshots and exit")
	return cmd
}
