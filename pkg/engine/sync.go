// Copyright 2018-2019, Gradeflow, Inc.  All rights reserved.

package engine

import (
	"time"

	"github.com/golang/glog"
	"github.com/pkg/errors"

	"github.com/gradeflow/gradeflow/pkg/course"
)

// Synchronize pulls one complete, consistent view of the course from the LMS.  On success the view
// is cached atomically; on failure, if cache fallback is allowed and a cache exists, the previous
// view is used instead.  Otherwise the error is fatal for this run.  No partial view is ever
// exposed.
func (e *Engine) Synchronize(allowCache bool) error {
	view, err := e.fetchView()
	if err != nil {
		if allowCache {
			cached, cerr := e.Store.LoadCache()
			if cerr != nil {
				return errors.Wrap(cerr, "LMS synchronization failed and the cache could not be read")
			}
			if cached != nil {
				e.Sink.Warningf("LMS synchronization failed (%v); falling back to the cached view", err)
				e.setView(cached)
				return nil
			}
		}
		return errors.Wrap(err, "could not synchronize with the LMS")
	}

	e.setView(view)
	if err := e.Store.SaveCache(view); err != nil {
		// A failed cache write only degrades the next run's fallback.
		e.Sink.Warningf("could not save the LMS cache: %v", err)
	}
	return nil
}

// resyncAfterWrite is the write-then-invalidate-then-resync helper: every code path that has
// written to the LMS calls this before any read that depends on the new state.
func (e *Engine) resyncAfterWrite() error {
	if e.DryRun {
		glog.Infof("[dry run] would have invalidated the LMS cache")
	} else if err := e.Store.InvalidateCache(); err != nil {
		return err
	}
	return e.Synchronize(false)
}

func (e *Engine) fetchView() (*course.View, error) {
	info, err := e.LMS.GetCourseInfo()
	if err != nil {
		return nil, err
	}
	students, err := e.LMS.GetStudents()
	if err != nil {
		return nil, err
	}
	tas, err := e.LMS.GetTAs()
	if err != nil {
		return nil, err
	}
	instructors, err := e.LMS.GetInstructors()
	if err != nil {
		return nil, err
	}
	fakes, err := e.LMS.GetFakeStudents()
	if err != nil {
		return nil, err
	}
	assignments, err := e.LMS.GetAssignments()
	if err != nil {
		return nil, err
	}
	return &course.View{
		Info:         info,
		Students:     students,
		TAs:          tas,
		Instructors:  instructors,
		FakeStudents: fakes,
		Assignments:  assignments,
	}, nil
}

func (e *Engine) setView(view *course.View) {
	e.View = view
	e.loc = time.Local
	if view.Info != nil && view.Info.TimeZone != "" {
		if loc, err := time.LoadLocation(view.Info.TimeZone); err == nil {
			e.loc = loc
		} else {
			glog.Warningf("could not load course time zone '%v': %v", view.Info.TimeZone, err)
		}
	}
}
