// Copyright 2018-2019, Gradeflow, Inc.  All rights reserved.

package state

import (
	"encoding/json"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"sort"

	"github.com/golang/glog"
	"github.com/pkg/errors"

	"github.com/gradeflow/gradeflow/pkg/course"
)

// Store owns the durable per-course state: the set of taken snapshot labels, the submission map
// (with the grader rotation index), and the cached LMS view.  Everything lives as JSON files in
// the course directory, named after the course so several courses can share one directory.
type Store struct {
	courseDir string
	name      string
	dryRun    bool
}

// New creates a store rooted at the given course directory.  Under dry-run, saves are skipped so
// a preview never perturbs real state.
func New(courseDir string, name string, dryRun bool) *Store {
	return &Store{courseDir: courseDir, name: name, dryRun: dryRun}
}

func (st *Store) snapshotsFile() string   { return filepath.Join(st.courseDir, st.name+"_snapshots.json") }
func (st *Store) submissionsFile() string { return filepath.Join(st.courseDir, st.name+"_submissions.json") }
func (st *Store) cacheFile() string       { return filepath.Join(st.courseDir, st.name+"_canvas_cache.json") }

// SnapshotList is the set of snapshot labels that have been successfully taken, or are known to be
// missing because the student never created their dataset.  It only ever grows.
type SnapshotList struct {
	taken map[string]bool
}

// NewSnapshotList creates an empty snapshot list.
func NewSnapshotList() *SnapshotList {
	return &SnapshotList{taken: make(map[string]bool)}
}

// Has returns true if a snapshot was already recorded under the label.
func (l *SnapshotList) Has(label string) bool {
	return l.taken[label]
}

// Add records a snapshot label.
func (l *SnapshotList) Add(label string) {
	l.taken[label] = true
}

// Labels returns all recorded labels in sorted order.
func (l *SnapshotList) Labels() []string {
	labels := make([]string, 0, len(l.taken))
	for label := range l.taken {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	return labels
}

// MarshalJSON serializes the list as a sorted array so saves are canonical.
func (l *SnapshotList) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.Labels())
}

// UnmarshalJSON deserializes the list from an array of labels.
func (l *SnapshotList) UnmarshalJSON(b []byte) error {
	var labels []string
	if err := json.Unmarshal(b, &labels); err != nil {
		return err
	}
	l.taken = make(map[string]bool, len(labels))
	for _, label := range labels {
		l.taken[label] = true
	}
	return nil
}

// SubmissionSet is the persisted submission map plus the grader rotation cursor.  The cursor is
// durable so slot assignment is stable across runs; rebalancing requires an operator reset.
type SubmissionSet struct {
	GraderIndex int                           `json:"grader_index"`
	Submissions map[string]*course.Submission `json:"submissions"`
}

// NewSubmissionSet creates an empty submission set.
func NewSubmissionSet() *SubmissionSet {
	return &SubmissionSet{Submissions: make(map[string]*course.Submission)}
}

// Get looks up the submission for an (assignment, student) pair, or nil.
func (ss *SubmissionSet) Get(assignment string, studentID string) *course.Submission {
	return ss.Submissions[course.SubmissionKey(assignment, studentID)]
}

// Put stores a submission under its key.
func (ss *SubmissionSet) Put(subm *course.Submission) {
	ss.Submissions[subm.Key()] = subm
}

// LoadSnapshots reads the snapshot list, returning an empty list if none has been saved yet.
func (st *Store) LoadSnapshots() (*SnapshotList, error) {
	list := NewSnapshotList()
	if err := st.loadJSON(st.snapshotsFile(), list); err != nil {
		return nil, err
	}
	return list, nil
}

// SaveSnapshots persists the snapshot list.
func (st *Store) SaveSnapshots(list *SnapshotList) error {
	return st.saveJSON(st.snapshotsFile(), list, "snapshot list")
}

// LoadSubmissions reads the submission set, returning an empty set if none has been saved yet.
func (st *Store) LoadSubmissions() (*SubmissionSet, error) {
	set := NewSubmissionSet()
	if err := st.loadJSON(st.submissionsFile(), set); err != nil {
		return nil, err
	}
	if set.Submissions == nil {
		set.Submissions = make(map[string]*course.Submission)
	}
	return set, nil
}

// SaveSubmissions persists the submission set.
func (st *Store) SaveSubmissions(set *SubmissionSet) error {
	return st.saveJSON(st.submissionsFile(), set, "submissions")
}

// LoadCache reads the cached LMS view.  Returns nil with no error if there is no cache.
func (st *Store) LoadCache() (*course.View, error) {
	if _, err := os.Stat(st.cacheFile()); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	view := &course.View{}
	if err := st.loadJSON(st.cacheFile(), view); err != nil {
		return nil, err
	}
	return view, nil
}

// SaveCache persists the LMS view cache.  The cache is written even under dry-run: it mirrors
// remote state rather than local progress, and a stale cache is worse than a fresh one.
func (st *Store) SaveCache(view *course.View) error {
	return writeJSONFile(st.cacheFile(), view)
}

// InvalidateCache deletes the LMS view cache.  Any operation that writes to the LMS must call
// this before the next read that depends on the new state.
func (st *Store) InvalidateCache() error {
	err := os.Remove(st.cacheFile())
	if err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "could not remove the LMS cache file")
	}
	return nil
}

// CacheExists returns true if a cached LMS view is present on disk.
func (st *Store) CacheExists() bool {
	_, err := os.Stat(st.cacheFile())
	return err == nil
}

func (st *Store) loadJSON(path string, v interface{}) error {
	b, err := ioutil.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			glog.V(5).Infof("state file %v not found; starting empty", path)
			return nil
		}
		return errors.Wrapf(err, "could not read state file %v", path)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return errors.Wrapf(err, "could not deserialize state file %v", path)
	}
	return nil
}

func (st *Store) saveJSON(path string, v interface{}, what string) error {
	if st.dryRun {
		glog.V(3).Infof("[dry run] skipped saving %v to %v", what, path)
		return nil
	}
	return writeJSONFile(path, v)
}

// writeJSONFile writes state as indented JSON via a temp file plus rename, so a crash mid-write
// never leaves a truncated state file behind.
func writeJSONFile(path string, v interface{}) error {
	b, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return errors.Wrapf(err, "could not serialize %v", path)
	}
	b = append(b, '\n')

	tmp, err := ioutil.TempFile(filepath.Dir(path), fmt.Sprintf(".%s.*", filepath.Base(path)))
	if err != nil {
		return errors.Wrapf(err, "could not create temp file for %v", path)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return errors.Wrapf(err, "could not write %v", tmp.Name())
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrapf(err, "could not close %v", tmp.Name())
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return errors.Wrapf(err, "could not rename %v into place", tmp.Name())
	}
	return nil
}
