// Copyright 2018-2019, Gradeflow, Inc.  All rights reserved.

package cmd

import (
	"github.com/spf13/cobra"

	"github.com/gradeflow/gradeflow/pkg/util/cmdutil"
)

func newRunWorkflowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run-workflow",
		Short: "Advance every outstanding submission one step along the grading pipeline",
		Long: "Advance every outstanding submission one step along the grading pipeline.\n" +
			"\n" +
			"This synchronizes with the LMS (falling back to the cached view if the LMS is down),\n" +
			"applies late-registration extensions, snapshots past-due assignments, provisions\n" +
			"graders, and drives the submission pipeline: collect, clean, autograde, generate\n" +
			"feedback, upload grades, and return solutions and feedback.  Intended to be run from\n" +
			"cron; a run that finds nothing to do performs no external writes.",
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
			return e.RunWorkflow()
		}),
	}
}
