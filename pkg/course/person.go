// Copyright 2018-2019, Gradeflow, Inc.  All rights reserved.

package course

import (
	"time"
)

// EnrollmentActive is the LMS enrollment state for a student who is currently registered.
const EnrollmentActive = "active"

// Person is a member of the course roster: a student, TA, instructor, or the LMS's synthetic
// "student view" test student.
type Person struct {
	CanvasID     string     `json:"canvas_id" yaml:"canvas_id"`               // the stable LMS identifier.
	SISID        string     `json:"sis_id,omitempty" yaml:"sis_id"`           // the student information system identifier.
	Name         string     `json:"name" yaml:"name"`                         // the display name ("First Last").
	SortableName string     `json:"sortable_name" yaml:"sortable_name"`       // the sortable name ("Last, First").
	RegCreated   time.Time  `json:"reg_created" yaml:"reg_created"`           // when the registration was created.
	RegUpdated   *time.Time `json:"reg_updated,omitempty" yaml:"reg_updated"` // when the registration was last updated, if ever.
	Status       string     `json:"status" yaml:"status"`                     // the enrollment state (active/inactive).
}

// Active returns true if this person's enrollment is currently active.
func (p *Person) Active() bool {
	return p.Status == EnrollmentActive
}

// RegDate returns the effective registration date: the update time if the registration was ever
// updated, else the creation time.
func (p *Person) RegDate() time.Time {
	if p.RegUpdated != nil {
		return *p.RegUpdated
	}
	return p.RegCreated
}
