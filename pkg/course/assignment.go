// Copyright 2018-2019, Gradeflow, Inc.  All rights reserved.

package course

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
)

// Override is a per-student modification of an assignment's unlock/due/lock times, stored in the LMS.
type Override struct {
	ID         string     `json:"id" yaml:"id"`
	StudentIDs []string   `json:"student_ids" yaml:"student_ids"`
	Title      string     `json:"title" yaml:"title"`
	UnlockAt   *time.Time `json:"unlock_at,omitempty" yaml:"unlock_at"`
	DueAt      *time.Time `json:"due_at,omitempty" yaml:"due_at"`
	LockAt     *time.Time `json:"lock_at,omitempty" yaml:"lock_at"`
}

// AppliesTo returns true if the override lists the given student.
func (o *Override) AppliesTo(studentID string) bool {
	for _, id := range o.StudentIDs {
		if id == studentID {
			return true
		}
	}
	return false
}

// Assignment is a gradable unit in the LMS, backed by a notebook of the same name in the
// instructor repository.
type Assignment struct {
	CanvasID  string     `json:"canvas_id" yaml:"canvas_id"`
	Name      string     `json:"name" yaml:"name"`
	Points    float64    `json:"points_possible" yaml:"points_possible"`
	UnlockAt  *time.Time `json:"unlock_at,omitempty" yaml:"unlock_at"`
	DueAt     *time.Time `json:"due_at,omitempty" yaml:"due_at"`
	LockAt    *time.Time `json:"lock_at,omitempty" yaml:"lock_at"`
	Overrides []Override `json:"overrides" yaml:"overrides"`
}

// Validate checks the assignment's internal invariants.
func (a *Assignment) Validate() error {
	if a.Name == "" {
		return errors.New("assignment is missing a name")
	}
	if a.UnlockAt != nil && a.DueAt != nil && a.UnlockAt.After(*a.DueAt) {
		return errors.Errorf("assignment '%v' unlocks after it is due", a.Name)
	}
	return nil
}

// PastDue returns true if the assignment has a due date that has strictly passed.  An assignment
// due exactly now is not yet past due.
func (a *Assignment) PastDue(now time.Time) bool {
	return a.DueAt != nil && a.DueAt.Before(now)
}

// ResolveDueDate computes the student's effective due date: the base due date, superseded by the
// most recent applicable override if one exists.  The LMS returns overrides in creation order, so
// the last one listing the student wins.  An applicable override supersedes the base date even if
// it is earlier.
func (a *Assignment) ResolveDueDate(studentID string) (*time.Time, *Override) {
	var match *Override
	for i := range a.Overrides {
		if a.Overrides[i].AppliesTo(studentID) {
			match = &a.Overrides[i]
		}
	}
	if match == nil {
		return a.DueAt, nil
	}
	return match.DueAt, match
}

// SnapName returns the filesystem snapshot label under which the student's work is collected:
// the assignment name, or a per-override label when an override applies.
func (a *Assignment) SnapName(override *Override) string {
	if override == nil {
		return a.Name
	}
	return OverrideSnapName(a.Name, override.ID)
}

// OverrideSnapName returns the snapshot label for an assignment override.
func OverrideSnapName(assignment string, overrideID string) string {
	return fmt.Sprintf("%s-override-%s", assignment, overrideID)
}

// GraderName returns the name of the k'th grader slot for an assignment.
func GraderName(assignment string, k int) string {
	return fmt.Sprintf("%s-grader-%d", assignment, k)
}
