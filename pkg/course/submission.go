// Copyright 2018-2019, Gradeflow, Inc.  All rights reserved.

package course

import (
	"fmt"
	"time"
)

// Status is the human-readable pipeline state of a submission, derived from its phase flags.
type Status string

const (
	StatusAssigned           Status = "assigned"
	StatusCollected          Status = "collected"
	StatusCleaned            Status = "cleaned"
	StatusAutograded         Status = "autograded"
	StatusNeedsManualGrading Status = "needs-manual-grading"
	StatusGraded             Status = "graded"
	StatusFeedbackGenerated  Status = "feedback-generated"
	StatusGradeUploaded      Status = "grade-uploaded"
	StatusGradePosted        Status = "grade-posted"
	StatusFeedbackReturned   Status = "feedback-returned"
	StatusMissing            Status = "missing"
)

// Phases records which pipeline steps have completed for a submission.  Flags are only ever set,
// never cleared, outside of an explicit operator reset; the driver's per-phase preconditions
// enforce the pipeline ordering so there is no fragile state arithmetic.
type Phases struct {
	Collected         bool `json:"collected" yaml:"collected"`
	Cleaned           bool `json:"cleaned" yaml:"cleaned"`
	Autograded        bool `json:"autograded" yaml:"autograded"`
	NeedsManualGrade  bool `json:"needs_manual_grade" yaml:"needs_manual_grade"`
	FeedbackGenerated bool `json:"feedback_generated" yaml:"feedback_generated"`
	GradeUploaded     bool `json:"grade_uploaded" yaml:"grade_uploaded"`
	GradePosted       bool `json:"grade_posted" yaml:"grade_posted"`
	FeedbackReturned  bool `json:"feedback_returned" yaml:"feedback_returned"`
	Missing           bool `json:"missing" yaml:"missing"`
}

// Submission is the unit of work advanced by the pipeline: one (assignment, student) pair.
type Submission struct {
	AssignmentName string     `json:"assignment" yaml:"assignment"`
	AssignmentID   string     `json:"assignment_id" yaml:"assignment_id"`
	StudentID      string     `json:"student_id" yaml:"student_id"`
	StudentName    string     `json:"student_name" yaml:"student_name"`
	DueDate        *time.Time `json:"due_date,omitempty" yaml:"due_date"` // resolved from base + overrides.
	SnapName       string     `json:"snap_name" yaml:"snap_name"`         // the snapshot label used for collection.
	Grader         string     `json:"grader" yaml:"grader"`               // the assigned grader slot.
	Phases         Phases     `json:"phases" yaml:"phases"`

	Score    *float64 `json:"score,omitempty" yaml:"score"`
	MaxScore *float64 `json:"max_score,omitempty" yaml:"max_score"`

	Error               string `json:"error,omitempty" yaml:"error"` // the most recent per-submission error, if any.
	SolutionReturned    bool   `json:"solution_returned" yaml:"solution_returned"`
	SolutionReturnError string `json:"solution_return_error,omitempty" yaml:"solution_return_error"`

	// JobID is the opaque container job token for the in-flight wave.  It is not persisted:
	// a job that was submitted but never validated is simply re-submitted on the next run.
	JobID string `json:"-" yaml:"-"`
}

// NewSubmission creates a fresh submission for a student's assignment, assigned to a grader slot.
func NewSubmission(a *Assignment, s *Person, grader string) *Submission {
	subm := &Submission{
		AssignmentName: a.Name,
		AssignmentID:   a.CanvasID,
		StudentID:      s.CanvasID,
		StudentName:    s.Name,
		Grader:         grader,
	}
	subm.UpdateDue(a, s)
	return subm
}

// SubmissionKey returns the map key under which a submission is stored.
func SubmissionKey(assignment string, studentID string) string {
	return fmt.Sprintf("%s-%s", assignment, studentID)
}

// Key returns the map key for this submission.
func (s *Submission) Key() string {
	return SubmissionKey(s.AssignmentName, s.StudentID)
}

// UpdateDue re-resolves the submission's due date and snapshot label from the current LMS view.
// Once a snapshot has been taken under a label the driver stops calling this, so the label stays
// stable for collection.
func (s *Submission) UpdateDue(a *Assignment, stu *Person) {
	due, override := a.ResolveDueDate(stu.CanvasID)
	s.DueDate = due
	s.SnapName = a.SnapName(override)
}

// PastDue returns true if the submission's resolved due date has strictly passed.
func (s *Submission) PastDue(now time.Time) bool {
	return s.DueDate != nil && s.DueDate.Before(now)
}

// Status derives the display state from the phase flags.  The highest completed phase wins;
// MISSING trumps everything because it is terminal.
func (s *Submission) Status() Status {
	p := s.Phases
	switch {
	case p.Missing:
		return StatusMissing
	case p.FeedbackReturned:
		return StatusFeedbackReturned
	case p.GradePosted:
		return StatusGradePosted
	case p.GradeUploaded:
		return StatusGradeUploaded
	case p.FeedbackGenerated:
		return StatusFeedbackGenerated
	case p.Autograded && p.NeedsManualGrade:
		return StatusNeedsManualGrading
	case p.Autograded:
		return StatusGraded
	case p.Cleaned:
		return StatusCleaned
	case p.Collected:
		return StatusCollected
	default:
		return StatusAssigned
	}
}

// Reset clears all pipeline progress.  This is an operator-only escape hatch; normal runs never
// move a submission backwards.
func (s *Submission) Reset() {
	s.Phases = Phases{}
	s.Score = nil
	s.MaxScore = nil
	s.Error = ""
	s.SolutionReturned = false
	s.SolutionReturnError = ""
	s.JobID = ""
}
