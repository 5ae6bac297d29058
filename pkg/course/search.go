// Copyright 2018-2019, Gradeflow, Inc.  All rights reserved.

package course

import (
	"sort"
	"strings"
	"unicode"

	"github.com/texttheater/golang-levenshtein/levenshtein"
)

// SearchStudents finds up to maxReturn roster candidates for an operator query.  Exact LMS or SIS
// id matches rank first; the remainder of the list is filled by fuzzy name matches in ascending
// edit-distance order.
func SearchStudents(students []*Person, name string, canvasID string, sisID string, maxReturn int) []*Person {
	var match []*Person
	seen := make(map[string]bool)
	add := func(s *Person) {
		if !seen[s.CanvasID] {
			seen[s.CanvasID] = true
			match = append(match, s)
		}
	}

	// Exact matches for ids come first.
	for _, s := range students {
		if canvasID != "" && s.CanvasID == canvasID {
			add(s)
		}
	}
	for _, s := range students {
		if sisID != "" && s.SISID == sisID {
			add(s)
		}
	}

	// Fuzzy match on the sortable name, in both "Last, First" and "First Last" orientations,
	// taking the minimum distance.
	if name != "" {
		key := normalizeName(name)
		type scored struct {
			person *Person
			dist   int
		}
		var fuzzy []scored
		for _, s := range students {
			forward := normalizeName(s.SortableName)
			parts := strings.Split(s.SortableName, ",")
			reverse(parts)
			backward := normalizeName(strings.Join(parts, ""))
			dist := editDistance(key, forward)
			if d := editDistance(key, backward); d < dist {
				dist = d
			}
			fuzzy = append(fuzzy, scored{s, dist})
		}
		sort.SliceStable(fuzzy, func(i, j int) bool { return fuzzy[i].dist < fuzzy[j].dist })
		for _, f := range fuzzy {
			add(f.person)
		}
	}

	if len(match) > maxReturn {
		match = match[:maxReturn]
	}
	return match
}

// normalizeName lowercases a name and strips everything but letters and digits.
func normalizeName(nm string) string {
	var b strings.Builder
	for _, ch := range strings.ToLower(nm) {
		if unicode.IsLetter(ch) || unicode.IsDigit(ch) {
			b.WriteRune(ch)
		}
	}
	return b.String()
}

func editDistance(a string, b string) int {
	return levenshtein.DistanceForStrings([]rune(a), []rune(b), levenshtein.DefaultOptions)
}

func reverse(ss []string) {
	for i, j := 0, len(ss)-1; i < j; i, j = i+1, j-1 {
		ss[i], ss[j] = ss[j], ss[i]
	}
}
