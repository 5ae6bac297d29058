// Copyright 2018-2019, Gradeflow, Inc.  All rights reserved.

package engine

import (
	"path/filepath"

	"github.com/gradeflow/gradeflow/pkg/course"
)

// Derived filesystem locations for one submission.  The snapshot source lives in the student's
// folder; everything else lives inside the assigned grader's repository.

// snapSourcePath is the student's notebook as frozen by the submission's snapshot.
func (e *Engine) snapSourcePath(s *course.Submission) string {
	return filepath.Join(e.Config.StudentFolderRoot, s.StudentID, ".zfs", "snapshot", s.SnapName,
		e.Config.CourseMaterialsPath, s.AssignmentName, s.AssignmentName+".ipynb")
}

// submittedPath is the collected notebook inside the grader's submitted tree.
func (e *Engine) submittedPath(s *course.Submission) string {
	return filepath.Join(e.graderRepoPath(s.Grader), "submitted",
		e.Config.StudentNamePrefix+s.StudentID, s.AssignmentName, s.AssignmentName+".ipynb")
}

// releasePath is the grader's release notebook, used to compute the max score.
func (e *Engine) releasePath(s *course.Submission) string {
	return filepath.Join(e.graderRepoPath(s.Grader), "release", s.AssignmentName, s.AssignmentName+".ipynb")
}

// feedbackGraderPath is the feedback HTML nbgrader generates inside the grader repo.
func (e *Engine) feedbackGraderPath(s *course.Submission) string {
	return filepath.Join(e.graderRepoPath(s.Grader), "feedback",
		e.Config.StudentNamePrefix+s.StudentID, s.AssignmentName, s.AssignmentName+".html")
}

// feedbackStudentPath is where the student receives their feedback HTML.
func (e *Engine) feedbackStudentPath(s *course.Submission) string {
	return filepath.Join(e.Config.StudentFolderRoot, s.StudentID, e.Config.CourseMaterialsPath,
		s.AssignmentName, s.AssignmentName+"_feedback.html")
}

// solutionGraderPath is the rendered solution HTML in the grader repo root.
func (e *Engine) solutionGraderPath(s *course.Submission) string {
	return filepath.Join(e.graderRepoPath(s.Grader), s.AssignmentName+"_solution.html")
}

// solutionStudentPath is where the student receives the solution HTML.
func (e *Engine) solutionStudentPath(s *course.Submission) string {
	return filepath.Join(e.Config.StudentFolderRoot, s.StudentID, e.Config.CourseMaterialsPath,
		s.AssignmentName, s.AssignmentName+"_solution.html")
}
