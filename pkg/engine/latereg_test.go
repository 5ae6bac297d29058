// Copyright 2018-2019, Gradeflow, Inc.  All rights reserved.

package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gradeflow/gradeflow/pkg/course"
)

// lateregAssignment is unlocked 10 days ago and due in 2 days, lock in 4.
func lateregAssignment() *course.Assignment {
	return &course.Assignment{
		CanvasID: "a1",
		Name:     "hw1",
		UnlockAt: hoursAgo(10 * 24),
		DueAt:    hoursAhead(2 * 24),
		LockAt:   hoursAhead(4 * 24),
	}
}

func TestLateregCreatesOverride(t *testing.T) {
	alice := testStudent("s1", "alice", "liddell, alice")
	// Registered 4 days after unlock; extension lands 7 days after that, past the base due date.
	alice.RegCreated = *hoursAgo(6 * 24)
	te := newTestEngine(t, testView([]*course.Assignment{lateregAssignment()}, alice))

	require.NoError(t, te.ApplyLateregExtensions())

	require.Equal(t, []string{"alice-hw1-latereg"}, te.lms.createdTitles)
	a := te.View.Assignments[0]
	require.Len(t, a.Overrides, 1)
	wantDue := alice.RegCreated.AddDate(0, 0, 7)
	assert.True(t, a.Overrides[0].DueAt.Equal(wantDue))
	assert.Equal(t, []string{"s1"}, a.Overrides[0].StudentIDs)
	// Preserves the assignment's unlock and lock times.
	assert.True(t, a.Overrides[0].UnlockAt.Equal(*a.UnlockAt))
	assert.True(t, a.Overrides[0].LockAt.Equal(*a.LockAt))
	// The policy wrote to the LMS, so it must have re-synchronized.
	assert.Empty(t, te.lms.removedIDs)
}

func TestLateregExactBoundaryIsNoOp(t *testing.T) {
	// Registration + extension equal to the due date is not strictly greater: no override.
	alice := testStudent("s1", "alice", "liddell, alice")
	alice.RegCreated = testNow.Add(2*24*time.Hour - 7*24*time.Hour) // regdate + 7d == due date.
	a := lateregAssignment()
	require.True(t, alice.RegCreated.After(*a.UnlockAt))
	te := newTestEngine(t, testView([]*course.Assignment{a}, alice))

	require.NoError(t, te.ApplyLateregExtensions())
	assert.Empty(t, te.lms.createdTitles)
}

func TestLateregReplacesOwnOverride(t *testing.T) {
	alice := testStudent("s1", "alice", "liddell, alice")
	alice.RegCreated = *hoursAgo(6 * 24)
	a := lateregAssignment()
	// An earlier, staler extension already exists for alice alone.
	stale := hoursAhead(24)
	a.Overrides = []course.Override{{
		ID: "old1", StudentIDs: []string{"s1"}, Title: "alice-hw1-latereg", DueAt: stale,
	}}
	te := newTestEngine(t, testView([]*course.Assignment{a}, alice))

	require.NoError(t, te.ApplyLateregExtensions())

	assert.Equal(t, []string{"old1"}, te.lms.removedIDs)
	require.Equal(t, []string{"alice-hw1-latereg"}, te.lms.createdTitles)
	// After the forced resync, exactly one override remains.
	require.Len(t, te.View.Assignments[0].Overrides, 1)
	assert.NotEqual(t, "old1", te.View.Assignments[0].Overrides[0].ID)
}

func TestLateregSkipsInactiveAndEarlyRegistrants(t *testing.T) {
	early := testStudent("s1", "early bird", "bird, early") // registered before unlock.
	inactive := testStudent("s2", "gone away", "away, gone")
	inactive.RegCreated = *hoursAgo(24)
	inactive.Status = "inactive"
	te := newTestEngine(t, testView([]*course.Assignment{lateregAssignment()}, early, inactive))

	require.NoError(t, te.ApplyLateregExtensions())
	assert.Empty(t, te.lms.createdTitles)
	assert.Empty(t, te.lms.removedIDs)
}

func TestLateregSkipsAssignmentsWithoutWindow(t *testing.T) {
	alice := testStudent("s1", "alice", "liddell, alice")
	alice.RegCreated = *hoursAgo(24)
	noUnlock := &course.Assignment{CanvasID: "a1", Name: "hw1", DueAt: hoursAhead(24)}
	noDue := &course.Assignment{CanvasID: "a2", Name: "hw2", UnlockAt: hoursAgo(48)}
	te := newTestEngine(t, testView([]*course.Assignment{noUnlock, noDue}, alice))

	require.NoError(t, te.ApplyLateregExtensions())
	assert.Empty(t, te.lms.createdTitles)
}

func TestLateregUsesUpdatedRegistrationDate(t *testing.T) {
	alice := testStudent("s1", "alice", "liddell, alice")
	alice.RegCreated = *hoursAgo(30 * 24) // before unlock; would not qualify on its own.
	upd := hoursAgo(5 * 24)
	alice.RegUpdated = upd
	te := newTestEngine(t, testView([]*course.Assignment{lateregAssignment()}, alice))

	require.NoError(t, te.ApplyLateregExtensions())

	require.Len(t, te.lms.createdTitles, 1)
	wantDue := upd.AddDate(0, 0, 7)
	assert.True(t, te.View.Assignments[0].Overrides[0].DueAt.Equal(wantDue))
}

func TestLateregResyncInvalidatesCache(t *testing.T) {
	alice := testStudent("s1", "alice", "liddell, alice")
	alice.RegCreated = *hoursAgo(6 * 24)
	te := newTestEngine(t, testView([]*course.Assignment{lateregAssignment()}, alice))
	syncsBefore := te.lms.syncs

	require.NoError(t, te.ApplyLateregExtensions())

	// One forced no-cache resync after the override writes.
	assert.Equal(t, syncsBefore+1, te.lms.syncs)
	// The resynchronized view carries the new override, so due-date resolution sees it.
	due, override := te.View.Assignments[0].ResolveDueDate("s1")
	require.NotNil(t, override)
	assert.True(t, due.Equal(alice.RegCreated.AddDate(0, 0, 7)))
}
