// Copyright 2018-2019, Gradeflow, Inc.  All rights reserved.

// Package cmd implements the gradeflow command-line front-end.
package cmd

import (
	"github.com/golang/glog"
	"github.com/spf13/cobra"

	"github.com/gradeflow/gradeflow/pkg/util/cmdutil"
)

// NewGradeflowCmd creates the root gradeflow command.
func NewGradeflowCmd() *cobra.Command {
	var logToStderr bool
	var verbose int
	cmd := &cobra.Command{
		Use:   "gradeflow",
		Short: "Gradeflow automates notebook-based course grading",
		Long: "Gradeflow automates notebook-based course grading.\n" +
			"\n" +
			"Each invocation advances every outstanding submission one step along the grading\n" +
			"pipeline: snapshot student work when due dates pass, collect and sanitize notebooks,\n" +
			"autograde them in containers, generate feedback, upload grades to the LMS, and return\n" +
			"solutions and feedback to students.  It is designed to run from cron; state persists\n" +
			"between runs, and re-runs are idempotent.",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			cmdutil.InitLogging(logToStderr, verbose)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			glog.Flush()
		},
	}

	cmd.PersistentFlags().StringVar(&courseDir, "course-dir", ".",
		"The course directory holding the configuration and state files")
	cmd.PersistentFlags().BoolVar(&dryRun, "dry-run", false,
		"Log every mutating operation instead of performing it, and do not save state")
	cmd.PersistentFlags().BoolVar(&logToStderr, "logtostderr", false,
		"Log to stderr instead of to files")
	cmd.PersistentFlags().IntVarP(&verbose, "verbose", "v", 0,
		"Enable verbose logging (e.g., v=3); anything >3 is very verbose")

	cmd.AddCommand(newRunWorkflowCmd())
	cmd.AddCommand(newSnapshotCmd())
	cmd.AddCommand(newApplyExtensionsCmd())
	cmd.AddCommand(newSearchStudentCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Persistent flags shared by every subcommand.
var (
	courseDir string
	dryRun    bool
)
