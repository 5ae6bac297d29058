// Copyright 2018-2019, Gradeflow, Inc.  All rights reserved.

package engine

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gradeflow/gradeflow/pkg/course"
)

func TestSnapshotPastDueAssignment(t *testing.T) {
	a := &course.Assignment{CanvasID: "a1", Name: "hw1", DueAt: hoursAgo(1)}
	te := newTestEngine(t, testView([]*course.Assignment{a}, testStudent("s1", "alice", "liddell, alice")))

	require.NoError(t, te.TakeSnapshots())

	assert.Equal(t, []string{"hw1"}, te.fs.snapAll)
	assert.True(t, te.Snapshots.Has("hw1"))

	// Recorded labels never reappear as candidates.
	require.NoError(t, te.TakeSnapshots())
	assert.Equal(t, []string{"hw1"}, te.fs.snapAll)
}

func TestSnapshotNotYetDue(t *testing.T) {
	// Due exactly now is not past due: strict <.
	now := testNow
	a := &course.Assignment{CanvasID: "a1", Name: "hw1", DueAt: &now}
	te := newTestEngine(t, testView([]*course.Assignment{a}, testStudent("s1", "alice", "liddell, alice")))

	require.NoError(t, te.TakeSnapshots())
	assert.Empty(t, te.fs.snapAll)
	assert.False(t, te.Snapshots.Has("hw1"))
}

func TestSnapshotOverride(t *testing.T) {
	a := &course.Assignment{
		CanvasID: "a1", Name: "hw1", DueAt: hoursAhead(24),
		Overrides: []course.Override{
			{ID: "7", StudentIDs: []string{"s1"}, DueAt: hoursAgo(1)},
			{ID: "8", StudentIDs: []string{"s2"}, DueAt: hoursAhead(1)},
		},
	}
	te := newTestEngine(t, testView([]*course.Assignment{a},
		testStudent("s1", "alice", "liddell, alice"), testStudent("s2", "bob", "builder, bob")))

	require.NoError(t, te.TakeSnapshots())

	assert.Equal(t, []string{"s1@hw1-override-7"}, te.fs.snapUser)
	assert.True(t, te.Snapshots.Has("hw1-override-7"))
	assert.False(t, te.Snapshots.Has("hw1-override-8"))
}

func TestSnapshotMissingDatasetRecordsLabel(t *testing.T) {
	// A student who never created their folder is a recorded missing submission: the label is
	// added anyway so the missing state is not re-snapshotted every run.
	a := &course.Assignment{
		CanvasID: "a1", Name: "hw1", DueAt: hoursAhead(24),
		Overrides: []course.Override{{ID: "7", StudentIDs: []string{"s1"}, DueAt: hoursAgo(1)}},
	}
	te := newTestEngine(t, testView([]*course.Assignment{a}, testStudent("s1", "bob", "builder, bob")))
	te.fs.missingUsers["s1"] = true

	require.NoError(t, te.TakeSnapshots())

	assert.Empty(t, te.fs.snapUser)
	assert.True(t, te.Snapshots.Has("hw1-override-7"))
}

func TestSnapshotOtherErrorLeavesLabelAbsent(t *testing.T) {
	a := &course.Assignment{
		CanvasID: "a1", Name: "hw1", DueAt: hoursAgo(1),
		Overrides: []course.Override{{ID: "7", StudentIDs: []string{"s1"}, DueAt: hoursAgo(1)}},
	}
	te := newTestEngine(t, testView([]*course.Assignment{a}, testStudent("s1", "alice", "liddell, alice")))
	te.fs.snapAllErr = fmt.Errorf("pool is suspended")
	te.fs.snapUserErr = fmt.Errorf("pool is suspended")

	err := te.TakeSnapshots()
	require.Error(t, err)
	assert.False(t, te.Snapshots.Has("hw1"))
	assert.False(t, te.Snapshots.Has("hw1-override-7"))

	// Next run, with the filesystem healthy again, both snapshots are retried.
	te.fs.snapAllErr, te.fs.snapUserErr = nil, nil
	require.NoError(t, te.TakeSnapshots())
	assert.True(t, te.Snapshots.Has("hw1"))
	assert.True(t, te.Snapshots.Has("hw1-override-7"))
}

func TestSnapshotListPersisted(t *testing.T) {
	a := &course.Assignment{CanvasID: "a1", Name: "hw1", DueAt: hoursAgo(1)}
	te := newTestEngine(t, testView([]*course.Assignment{a}, testStudent("s1", "alice", "liddell, alice")))

	require.NoError(t, te.TakeSnapshots())

	reloaded, err := te.Store.LoadSnapshots()
	require.NoError(t, err)
	assert.True(t, reloaded.Has("hw1"))
}
