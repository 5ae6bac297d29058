// Copyright 2018-2019, Gradeflow, Inc.  All rights reserved.

package course

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2019, 3, 1, 12, 0, 0, 0, time.UTC)

func tp(t time.Time) *time.Time { return &t }

func TestAssignmentValidate(t *testing.T) {
	ok := &Assignment{Name: "hw1", UnlockAt: tp(base), DueAt: tp(base.Add(24 * time.Hour))}
	assert.NoError(t, ok.Validate())

	assert.Error(t, (&Assignment{}).Validate())

	backwards := &Assignment{Name: "hw1", UnlockAt: tp(base.Add(24 * time.Hour)), DueAt: tp(base)}
	assert.Error(t, backwards.Validate())

	// Missing either end of the window is fine.
	assert.NoError(t, (&Assignment{Name: "hw1", DueAt: tp(base)}).Validate())
}

func TestPastDueIsStrict(t *testing.T) {
	a := &Assignment{Name: "hw1", DueAt: tp(base)}
	assert.False(t, a.PastDue(base), "due exactly now is not yet past due")
	assert.True(t, a.PastDue(base.Add(time.Second)))
	assert.False(t, a.PastDue(base.Add(-time.Second)))
	assert.False(t, (&Assignment{Name: "hw1"}).PastDue(base))
}

func TestResolveDueDate(t *testing.T) {
	a := &Assignment{
		Name:  "hw1",
		DueAt: tp(base.Add(48 * time.Hour)),
		Overrides: []Override{
			{ID: "1", StudentIDs: []string{"s1"}, DueAt: tp(base.Add(96 * time.Hour))},
			{ID: "2", StudentIDs: []string{"s1", "s2"}, DueAt: tp(base.Add(24 * time.Hour))},
		},
	}

	// No override: the base date.
	due, override := a.ResolveDueDate("s3")
	assert.Nil(t, override)
	assert.True(t, due.Equal(*a.DueAt))

	// The most recent applicable override wins, even when it is earlier than the base date.
	due, override = a.ResolveDueDate("s1")
	require.NotNil(t, override)
	assert.Equal(t, "2", override.ID)
	assert.True(t, due.Equal(base.Add(24*time.Hour)))

	due, override = a.ResolveDueDate("s2")
	require.NotNil(t, override)
	assert.Equal(t, "2", override.ID)
	assert.True(t, due.Equal(base.Add(24*time.Hour)))
}

func TestSnapNames(t *testing.T) {
	a := &Assignment{Name: "hw1"}
	assert.Equal(t, "hw1", a.SnapName(nil))
	assert.Equal(t, "hw1-override-7", a.SnapName(&Override{ID: "7"}))
	assert.Equal(t, "hw1-override-7", OverrideSnapName("hw1", "7"))
	assert.Equal(t, "hw1-grader-0", GraderName("hw1", 0))
}
