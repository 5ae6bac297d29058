// Copyright 2018-2019, Gradeflow, Inc.  All rights reserved.

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gradeflow/gradeflow/pkg/util/cmdutil"
	"github.com/gradeflow/gradeflow/pkg/version"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print gradeflow's version number",
		Args:  cobra.NoArgs,
		Run: cmdutil.RunFunc(func(cmd *cobra.Command, args []string) error {
			fmt.Printf("gradeflow version %v\n", version.Version)
			return nil
		}),
	}
}
