// Copyright 2018-2019, Gradeflow, Inc.  All rights reserved.

package course

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func roster() []*Person {
	return []*Person{
		{CanvasID: "1", SISID: "a100", Name: "Alice Liddell", SortableName: "Liddell, Alice"},
		{CanvasID: "2", SISID: "b200", Name: "Bob Builder", SortableName: "Builder, Bob"},
		{CanvasID: "3", SISID: "c300", Name: "Carol Jones", SortableName: "Jones, Carol"},
		{CanvasID: "4", SISID: "d400", Name: "Carole Johns", SortableName: "Johns, Carole"},
	}
}

func TestSearchExactIDsFirst(t *testing.T) {
	// An exact LMS id match outranks any name similarity.
	found := SearchStudents(roster(), "carol jones", "2", "", 3)
	require.NotEmpty(t, found)
	assert.Equal(t, "2", found[0].CanvasID)

	found = SearchStudents(roster(), "", "", "c300", 3)
	require.Len(t, found, 1)
	assert.Equal(t, "3", found[0].CanvasID)
}

func TestSearchFuzzyName(t *testing.T) {
	// A misspelling still finds the right student, in either name orientation.
	found := SearchStudents(roster(), "alice lidell", "", "", 2)
	require.NotEmpty(t, found)
	assert.Equal(t, "1", found[0].CanvasID)

	found = SearchStudents(roster(), "lidell alice", "", "", 2)
	require.NotEmpty(t, found)
	assert.Equal(t, "1", found[0].CanvasID)
}

func TestSearchOrdersByDistance(t *testing.T) {
	found := SearchStudents(roster(), "carol jones", "", "", 2)
	require.Len(t, found, 2)
	assert.Equal(t, "3", found[0].CanvasID)
	assert.Equal(t, "4", found[1].CanvasID)
}

func TestSearchRespectsMaxReturn(t *testing.T) {
	found := SearchStudents(roster(), "x", "", "", 2)
	assert.Len(t, found, 2)
}

func TestSearchNoDuplicates(t *testing.T) {
	// A student matching both by id and by name appears once.
	found := SearchStudents(roster(), "bob builder", "2", "b200", 10)
	ids := map[string]int{}
	for _, s := range found {
		ids[s.CanvasID]++
	}
	assert.Equal(t, 1, ids["2"])
}
