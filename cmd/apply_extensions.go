// Copyright 2018-2019, Gradeflow, Inc.  All rights reserved.

package cmd

import (
	"github.com/spf13/cobra"

	"github.com/gradeflow/gradeflow/pkg/util/cmdutil"
)

func newApplyExtensionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "apply-extensions",
		Short: "Create LMS due-date overrides for late-registering students",
		Long: "Create LMS due-date overrides for late-registering students.\n" +
			"\n" +
			"Every active student who registered after an assignment was unlocked is granted the\n" +
			"configured number of extension days from their registration date, when that lands\n" +
			"after their current due date.  Stale per-student overrides are replaced.",
		Args: cobra.NoArgs,
		Run: cmdutil.RunFunc(func(cmd *cobra.Command, args []string) error {
			e, release, err := buildEngine()
			if err != nil {
				return err
			}
			defer release()
			if err = e.Synchronize(true); err != nil {
				return err
			}
			return e.ApplyLateregExtensions()
		}),
	}
}
