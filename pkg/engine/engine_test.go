// Copyright 2018-2019, Gradeflow, Inc.  All rights reserved.

package engine

import (
	"encoding/json"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gradeflow/gradeflow/pkg/client/canvas"
	"github.com/gradeflow/gradeflow/pkg/client/docker"
	"github.com/gradeflow/gradeflow/pkg/client/zfs"
	"github.com/gradeflow/gradeflow/pkg/config"
	"github.com/gradeflow/gradeflow/pkg/course"
	"github.com/gradeflow/gradeflow/pkg/diag"
	"github.com/gradeflow/gradeflow/pkg/state"
)

// testNow is the fixed "current time" every test engine runs at.
var testNow = time.Date(2019, 3, 15, 12, 0, 0, 0, time.UTC)

func hoursAgo(h int) *time.Time {
	t := testNow.Add(-time.Duration(h) * time.Hour)
	return &t
}

func hoursAhead(h int) *time.Time {
	t := testNow.Add(time.Duration(h) * time.Hour)
	return &t
}

// fakeLMS implements the LMS interface over an in-memory view, recording writes.
type fakeLMS struct {
	view     *course.View
	failSync bool

	syncs           int
	nextOverrideID  int
	createdTitles   []string
	removedIDs      []string
	grades          map[string]string // submission key -> uploaded percentage.
	posted          map[string]bool   // submission key -> grade visible to the student.
	gradeErr        error
}

func newFakeLMS(view *course.View) *fakeLMS {
	return &fakeLMS{view: view, grades: map[string]string{}, posted: map[string]bool{}}
}

func (f *fakeLMS) GetCourseInfo() (*course.Info, error) {
	f.syncs++
	if f.failSync {
		return nil, fmt.Errorf("LMS returned 503 Service Unavailable")
	}
	return f.view.Info, nil
}
func (f *fakeLMS) GetStudents() ([]*course.Person, error)     { return f.view.Students, nil }
func (f *fakeLMS) GetTAs() ([]*course.Person, error)          { return f.view.TAs, nil }
func (f *fakeLMS) GetInstructors() ([]*course.Person, error)  { return f.view.Instructors, nil }
func (f *fakeLMS) GetFakeStudents() ([]*course.Person, error) { return f.view.FakeStudents, nil }
func (f *fakeLMS) GetAssignments() ([]*course.Assignment, error) {
	return f.view.Assignments, nil
}

func (f *fakeLMS) CreateOverride(assignmentID string, spec canvas.OverrideSpec) error {
	f.nextOverrideID++
	f.createdTitles = append(f.createdTitles, spec.Title)
	for _, a := range f.view.Assignments {
		if a.CanvasID == assignmentID {
			a.Overrides = append(a.Overrides, course.Override{
				ID:         fmt.Sprintf("o%d", f.nextOverrideID),
				StudentIDs: spec.StudentIDs,
				Title:      spec.Title,
				UnlockAt:   spec.UnlockAt,
				DueAt:      spec.DueAt,
				LockAt:     spec.LockAt,
			})
			return nil
		}
	}
	return fmt.Errorf("no assignment %v", assignmentID)
}

func (f *fakeLMS) RemoveOverride(assignmentID string, overrideID string) error {
	f.removedIDs = append(f.removedIDs, overrideID)
	for _, a := range f.view.Assignments {
		if a.CanvasID != assignmentID {
			continue
		}
		kept := a.Overrides[:0]
		for _, o := range a.Overrides {
			if o.ID != overrideID {
				kept = append(kept, o)
			}
		}
		a.Overrides = kept
	}
	return nil
}

func (f *fakeLMS) PutGrade(assignmentID string, studentID string, pct string) error {
	if f.gradeErr != nil {
		return f.gradeErr
	}
	for _, a := range f.view.Assignments {
		if a.CanvasID == assignmentID {
			f.grades[course.SubmissionKey(a.Name, studentID)] = pct
		}
	}
	return nil
}

func (f *fakeLMS) IsGradePosted(assignmentID string, studentID string) (bool, error) {
	for _, a := range f.view.Assignments {
		if a.CanvasID == assignmentID {
			return f.posted[course.SubmissionKey(a.Name, studentID)], nil
		}
	}
	return false, nil
}

// fakeHub records grader provisioning.
type fakeHub struct {
	existing map[string]bool
	assigned map[string]string
}

func newFakeHub() *fakeHub {
	return &fakeHub{existing: map[string]bool{}, assigned: map[string]string{}}
}

func (f *fakeHub) GraderExists(name string) (bool, error) { return f.existing[name], nil }
func (f *fakeHub) AssignGrader(name string, humanID string) error {
	f.existing[name] = true
	f.assigned[name] = humanID
	return nil
}

// fakeFS records snapshots and dataset creation; configured users can be made to fail with the
// zfs "dataset does not exist" error or an arbitrary one.
type fakeFS struct {
	folders      map[string]bool
	snapAll      []string
	snapUser     []string // "<student>@<label>"
	missingUsers map[string]bool
	snapAllErr   error
	snapUserErr  error
}

func newFakeFS() *fakeFS {
	return &fakeFS{folders: map[string]bool{}, missingUsers: map[string]bool{}}
}

func (f *fakeFS) SnapshotAll(label string) error {
	if f.snapAllErr != nil {
		return f.snapAllErr
	}
	f.snapAll = append(f.snapAll, label)
	return nil
}

func (f *fakeFS) SnapshotUser(studentID string, label string) error {
	if f.missingUsers[studentID] {
		return &zfs.CommandError{
			Command: "zfs snapshot tank/student/" + studentID + "@" + label,
			Output:  "cannot open 'tank/student/" + studentID + "': dataset does not exist",
			Err:     fmt.Errorf("exit status 1"),
		}
	}
	if f.snapUserErr != nil {
		return f.snapUserErr
	}
	f.snapUser = append(f.snapUser, studentID+"@"+label)
	return nil
}

func (f *fakeFS) UserFolderExists(name string) (bool, error) { return f.folders[name], nil }
func (f *fakeFS) CreateUserFolder(name string) error {
	f.folders[name] = true
	return nil
}

// fakeRunner queues jobs like the real runner and resolves them with canned results.  Run is
// dispatched to runFn so tests can answer the provisioner and gradebook probes.
type fakeRunner struct {
	nextID    int
	pending   map[string]string // job id -> command.
	submitted []string          // every command ever submitted.
	ran       []string          // every synchronous command.
	batches   int

	// resultFor maps a command substring to the batch result for jobs matching it; unmatched
	// jobs succeed with an empty log.
	resultFor map[string]docker.JobResult
	runFn     func(command string, workdir string) (string, error)
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{
		pending:   map[string]string{},
		resultFor: map[string]docker.JobResult{},
		runFn: func(command string, workdir string) (string, error) {
			return "", nil
		},
	}
}

func (f *fakeRunner) Submit(command string, workdir string) string {
	f.nextID++
	id := fmt.Sprintf("job-%d", f.nextID)
	f.pending[id] = command
	f.submitted = append(f.submitted, command)
	return id
}

func (f *fakeRunner) RunAll() map[string]docker.JobResult {
	f.batches++
	results := make(map[string]docker.JobResult, len(f.pending))
	for id, command := range f.pending {
		res := docker.JobResult{}
		for substr, r := range f.resultFor {
			if strings.Contains(command, substr) {
				res = r
			}
		}
		results[id] = res
	}
	f.pending = map[string]string{}
	return results
}

func (f *fakeRunner) Run(command string, workdir string) (string, error) {
	f.ran = append(f.ran, command)
	return f.runFn(command, workdir)
}

// testEngine bundles an engine with its fakes and temp course directory.
type testEngine struct {
	*Engine
	lms    *fakeLMS
	hub    *fakeHub
	fs     *fakeFS
	runner *fakeRunner
	dir    string
}

func newTestEngine(t *testing.T, view *course.View) *testEngine {
	dir, err := ioutil.TempDir("", "gradeflow-test")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	cfg := &config.Config{
		Name:                    "testcourse",
		UserFolderRoot:          filepath.Join(dir, "user"),
		StudentFolderRoot:       filepath.Join(dir, "student"),
		CourseMaterialsPath:     "materials",
		InstructorRepoURL:       "https://example.com/instructor.git",
		InstructorRepoName:      "instructor",
		NumGraders:              1,
		Graders:                 map[string][]string{"hw1": {"ta-ada"}, "hw2": {"ta-ada"}},
		LateregExtensionDays:    7,
		ReturnSolutionThreshold: 0.8,
		StudentNamePrefix:       "student_",
		HubUser:                 "jupyter",
		NotificationMethod:      "none",
	}
	require.NoError(t, cfg.Validate())

	lms := newFakeLMS(view)
	hub := newFakeHub()
	fs := newFakeFS()
	runner := newFakeRunner()
	e := New(cfg, state.New(dir, cfg.Name, false), lms, hub, fs, runner, diag.DefaultSink(), false)
	e.now = func() time.Time { return testNow }
	e.chown = func(string) error { return nil }

	require.NoError(t, e.Synchronize(false))
	require.NoError(t, e.LoadState())
	return &testEngine{Engine: e, lms: lms, hub: hub, fs: fs, runner: runner, dir: dir}
}

func testStudent(id string, name string, sortable string) *course.Person {
	return &course.Person{
		CanvasID:     id,
		SISID:        "sis-" + id,
		Name:         name,
		SortableName: sortable,
		RegCreated:   testNow.AddDate(0, -1, 0),
		Status:       course.EnrollmentActive,
	}
}

func testView(assignments []*course.Assignment, students ...*course.Person) *course.View {
	return &course.View{
		Info:        &course.Info{CanvasID: "c1", Name: "Test Course", Code: "TEST100", TimeZone: "UTC"},
		Students:    students,
		Assignments: assignments,
	}
}

// notebookJSON builds a minimal notebook with the given (gradeID, points) cells.  An empty gradeID
// produces an ungraded cell.
func notebookJSON(t *testing.T, cells ...[2]interface{}) []byte {
	var nbCells []map[string]interface{}
	for _, c := range cells {
		meta := map[string]interface{}{}
		if id, _ := c[0].(string); id != "" {
			meta["nbgrader"] = map[string]interface{}{"grade_id": id, "points": c[1]}
		}
		nbCells = append(nbCells, map[string]interface{}{
			"cell_type": "code",
			"source":    []string{"x = 1"},
			"metadata":  meta,
		})
	}
	b, err := json.Marshal(map[string]interface{}{
		"nbformat": 4, "nbformat_minor": 2, "metadata": map[string]interface{}{}, "cells": nbCells,
	})
	require.NoError(t, err)
	return b
}

func writeFile(t *testing.T, path string, contents []byte) {
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, ioutil.WriteFile(path, contents, 0644))
}

// seedSnapshotSource plants the student's notebook where a snapshot under the given label would
// hold it.
func (te *testEngine) seedSnapshotSource(t *testing.T, studentID string, label string, assignment string, nb []byte) {
	path := filepath.Join(te.Config.StudentFolderRoot, studentID, ".zfs", "snapshot", label,
		"materials", assignment, assignment+".ipynb")
	writeFile(t, path, nb)
}

// seedGraderRepo plants a grader repo with a release notebook, solution, and per-student feedback.
func (te *testEngine) seedGraderRepo(t *testing.T, assignment string, nb []byte, studentIDs ...string) {
	repo := te.graderRepoPath(course.GraderName(assignment, 0))
	writeFile(t, filepath.Join(repo, "release", assignment, assignment+".ipynb"), nb)
	writeFile(t, filepath.Join(repo, assignment+"_solution.html"), []byte("<html>solution</html>"))
	for _, sid := range studentIDs {
		writeFile(t, filepath.Join(repo, "feedback", "student_"+sid, assignment, assignment+".html"),
			[]byte("<html>feedback</html>"))
	}
}

// gradebookAnswer makes the runner answer gradebook probes with the given score and manual flag.
func (te *testEngine) gradebookAnswer(score float64, needsManual bool) {
	te.runner.runFn = func(command string, workdir string) (string, error) {
		if strings.Contains(command, "from nbgrader.api import Gradebook") {
			return fmt.Sprintf("GRADEBOOK {\"score\": %v, \"needs_manual_grade\": %v}\n", score, needsManual), nil
		}
		return "", nil
	}
}
