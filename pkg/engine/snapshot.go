// Copyright 2018-2019, Gradeflow, Inc.  All rights reserved.

package engine

import (
	multierror "github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"github.com/gradeflow/gradeflow/pkg/client/zfs"
	"github.com/gradeflow/gradeflow/pkg/course"
	"github.com/gradeflow/gradeflow/pkg/util/contract"
)

// TakeSnapshots snapshots student work for every due date that has passed and is not yet covered
// by a recorded label.  Labels are append-only: once recorded they are never candidates again,
// so re-runs cannot re-snapshot.  The list is persisted before returning.
func (e *Engine) TakeSnapshots() error {
	contract.Assert(e.Snapshots != nil)
	now := e.now()

	var result *multierror.Error
	for _, a := range e.View.Assignments {
		if a.DueAt != nil && a.DueAt.Before(now) && !e.Snapshots.Has(a.Name) {
			e.Sink.Infof("assignment %v past due (%v); taking snapshot [%v]", a.Name, e.fmtTime(a.DueAt), a.Name)
			if err := e.FS.SnapshotAll(a.Name); err != nil {
				// Leave the label unrecorded so the snapshot is retried next run.
				e.Sink.Errorf("could not snapshot %v: %v", a.Name, err)
				result = multierror.Append(result, errors.Wrapf(err, "snapshot %v", a.Name))
			} else {
				e.Snapshots.Add(a.Name)
			}
		}

		for i := range a.Overrides {
			o := &a.Overrides[i]
			label := course.OverrideSnapName(a.Name, o.ID)
			if o.DueAt == nil || !o.DueAt.Before(now) || e.Snapshots.Has(label) || len(o.StudentIDs) == 0 {
				continue
			}
			student := o.StudentIDs[0]
			e.Sink.Infof("override %v on %v past due for student %v; taking snapshot [%v]", o.ID, a.Name, student, label)
			if err := e.FS.SnapshotUser(student, label); err != nil {
				if zfs.IsDatasetMissing(err) {
					// The student never created their folder: a missing submission.  Record
					// the label so we do not re-snapshot the missing state every run.
					e.Sink.Infof("student %v has no folder; recording %v as a missing submission", student, label)
					e.Snapshots.Add(label)
				} else {
					e.Sink.Errorf("could not snapshot %v: %v", label, err)
					result = multierror.Append(result, errors.Wrapf(err, "snapshot %v", label))
				}
			} else {
				e.Snapshots.Add(label)
			}
		}
	}

	if err := e.Store.SaveSnapshots(e.Snapshots); err != nil {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}
