// Copyright 2018-2019, Gradeflow, Inc.  All rights reserved.

package course

// Info is the course-level record pulled from the LMS.
type Info struct {
	CanvasID string `json:"canvas_id" yaml:"canvas_id"`
	Name     string `json:"name" yaml:"name"`
	Code     string `json:"course_code" yaml:"course_code"`
	TimeZone string `json:"time_zone" yaml:"time_zone"` // IANA name; decision lines print in this zone.
}

// View is one complete, consistent picture of the course as the LMS sees it.  A view is either
// freshly fetched or loaded whole from the cache file; no partial view is ever exposed.
type View struct {
	Info         *Info         `json:"course_info" yaml:"course_info"`
	Students     []*Person     `json:"students" yaml:"students"`
	TAs          []*Person     `json:"tas" yaml:"tas"`
	Instructors  []*Person     `json:"instructors" yaml:"instructors"`
	FakeStudents []*Person     `json:"fake_students" yaml:"fake_students"`
	Assignments  []*Assignment `json:"assignments" yaml:"assignments"`
}
