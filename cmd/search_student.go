// Copyright 2018-2019, Gradeflow, Inc.  All rights reserved.

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gradeflow/gradeflow/pkg/course"
	"github.com/gradeflow/gradeflow/pkg/util/cmdutil"
)

func newSearchStudentCmd() *cobra.Command {
	var name string
	var canvasID string
	var sisID string
	var maxReturn int
	cmd := &cobra.Command{
		Use:   "search-student",
		Short: "Find students on the roster by name or id",
		Long: "Find students on the roster by name or id.\n" +
			"\n" +
			"Exact LMS and SIS id matches rank first; the rest of the list is filled by fuzzy\n" +
			"name matches against the sortable name in both orientations.",
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

			found := course.SearchStudents(e.View.Students, name, canvasID, sisID, maxReturn)
			if len(found) == 0 {
				fmt.Println("no matching students found")
				return nil
			}
			for _, s := range found {
				fmt.Printf("%v\t%v\t%v\t(%v, registered %v)\n",
					s.CanvasID, s.SISID, s.Name, s.Status, s.RegDate().Format("2006-01-02"))
			}
			return nil
		}),
	}
	cmd.Flags().StringVar(&name, "name", "", "A (possibly misspelled) student name to match")
	cmd.Flags().StringVar(&canvasID, "canvas-id", "", "An exact LMS id to match")
	cmd.Flags().StringVar(&sisID, "sis-id", "", "An exact SIS id to match")
	cmd.Flags().IntVar(&maxReturn, "max-return", 5, "The maximum number of candidates to print")
	return cmd
}
