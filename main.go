// Copyright 2018-2019, Gradeflow, Inc.  All rights reserved.

package main

import (
	"github.com/gradeflow/gradeflow/cmd"
	"github.com/gradeflow/gradeflow/pkg/util/cmdutil"
)

func main() {
	if err := cmd.NewGradeflowCmd().Execute(); err != nil {
		cmdutil.Exit(err)
	}
}
