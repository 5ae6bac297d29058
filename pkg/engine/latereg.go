// Copyright 2018-2019, Gradeflow, Inc.  All rights reserved.

package engine

import (
	"fmt"

	humanize "github.com/dustin/go-humanize"
	"github.com/pkg/errors"

	"github.com/gradeflow/gradeflow/pkg/client/canvas"
)

// ApplyLateregExtensions grants due-date extensions to students who registered after an
// assignment was unlocked.  If any override was created or replaced, the LMS cache is invalidated
// and the view re-synchronized so the rest of the run sees the new due dates.
func (e *Engine) ApplyLateregExtensions() error {
	days := e.Config.LateregExtensionDays
	needSync := false

	for _, a := range e.View.Assignments {
		if a.DueAt == nil || a.UnlockAt == nil {
			e.Sink.Infof("assignment %v missing a due date (%v) or unlock date (%v); not checking late registrations",
				a.Name, e.fmtTime(a.DueAt), e.fmtTime(a.UnlockAt))
			continue
		}
		for _, s := range e.View.Students {
			if !s.Active() {
				continue
			}
			regdate := s.RegDate()
			if !regdate.After(*a.UnlockAt) {
				continue
			}

			e.Sink.Infof("student %v registered %v, after %v unlocked (%v)",
				s.Name, humanize.Time(regdate), a.Name, e.fmtTime(a.UnlockAt))
			due, override := a.ResolveDueDate(s.CanvasID)
			latereg := regdate.AddDate(0, 0, days)
			if due != nil && !latereg.After(*due) {
				e.Sink.Infof("current due date %v is at or past the extension date %v; no extension required",
					e.fmtTime(due), e.fmtTime(&latereg))
				continue
			}

			e.Sink.Infof("extending %v's due date on %v to %v", s.Name, a.Name, e.fmtTime(&latereg))
			if override != nil && len(override.StudentIDs) == 1 && override.StudentIDs[0] == s.CanvasID {
				if err := e.LMS.RemoveOverride(a.CanvasID, override.ID); err != nil {
					return errors.Wrapf(err, "could not remove stale override for %v on %v", s.Name, a.Name)
				}
				needSync = true
			}
			spec := canvas.OverrideSpec{
				StudentIDs: []string{s.CanvasID},
				Title:      fmt.Sprintf("%s-%s-latereg", s.Name, a.Name),
				DueAt:      &latereg,
				UnlockAt:   a.UnlockAt,
				LockAt:     a.LockAt,
			}
			if err := e.LMS.CreateOverride(a.CanvasID, spec); err != nil {
				return errors.Wrapf(err, "could not create late registration override for %v on %v", s.Name, a.Name)
			}
			needSync = true
		}
	}

	if needSync {
		e.Sink.Infof("overrides changed; invalidating the LMS cache and re-synchronizing")
		return e.resyncAfterWrite()
	}
	return nil
}
