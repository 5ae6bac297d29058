// Copyright 2018-2019, Gradeflow, Inc.  All rights reserved.

// Package engine implements the assignment lifecycle engine: the per-(assignment, student) state
// machine and the policies that advance every outstanding submission one step per run.
package engine

import (
	"os"
	"os/user"
	"strconv"
	"time"

	"github.com/golang/glog"
	multierror "github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"github.com/gradeflow/gradeflow/pkg/client/canvas"
	"github.com/gradeflow/gradeflow/pkg/client/docker"
	"github.com/gradeflow/gradeflow/pkg/config"
	"github.com/gradeflow/gradeflow/pkg/course"
	"github.com/gradeflow/gradeflow/pkg/diag"
	"github.com/gradeflow/gradeflow/pkg/state"
	"github.com/gradeflow/gradeflow/pkg/util/contract"
)

// LMS is the learning-management-system surface the engine consumes.
type LMS interface {
	GetCourseInfo() (*course.Info, error)
	GetStudents() ([]*course.Person, error)
	GetTAs() ([]*course.Person, error)
	GetInstructors() ([]*course.Person, error)
	GetFakeStudents() ([]*course.Person, error)
	GetAssignments() ([]*course.Assignment, error)
	CreateOverride(assignmentID string, spec canvas.OverrideSpec) error
	RemoveOverride(assignmentID string, overrideID string) error
	PutGrade(assignmentID string, studentID string, pct string) error
	IsGradePosted(assignmentID string, studentID string) (bool, error)
}

// Hub provisions grader accounts.
type Hub interface {
	GraderExists(name string) (bool, error)
	AssignGrader(name string, humanID string) error
}

// FS snapshots student folders and manages grader datasets.
type FS interface {
	SnapshotAll(label string) error
	SnapshotUser(studentID string, label string) error
	UserFolderExists(name string) (bool, error)
	CreateUserFolder(name string) error
}

// Runner executes grading commands in containers: queued jobs batched by RunAll, or synchronous
// one-offs via Run.
type Runner interface {
	Submit(command string, workdir string) string
	RunAll() map[string]docker.JobResult
	Run(command string, workdir string) (string, error)
}

// Engine drives one course's grading workflow.  It is single-threaded; the only parallelism is
// inside the container runner's batches.
type Engine struct {
	Config *config.Config
	Store  *state.Store
	LMS    LMS
	Hub    Hub
	FS     FS
	Runner Runner
	Sink   diag.Sink
	DryRun bool

	// Progress enables a terminal progress bar over the per-student collection loop.
	Progress bool

	// View is the current LMS picture; set by Synchronize.
	View *course.View

	// Snapshots and Submissions are the durable run state; set by LoadState.
	Snapshots   *state.SnapshotList
	Submissions *state.SubmissionSet

	notifier Notifier
	loc      *time.Location
	now      func() time.Time
	chown    func(path string) error
}

// New creates an engine over the given collaborators.
func New(cfg *config.Config, store *state.Store, lms LMS, hub Hub, fs FS, runner Runner,
	sink diag.Sink, dryRun bool) *Engine {

	contract.Require(cfg != nil, "cfg")
	contract.Require(store != nil, "store")
	e := &Engine{
		Config: cfg,
		Store:  store,
		LMS:    lms,
		Hub:    hub,
		FS:     fs,
		Runner: runner,
		Sink:   sink,
		DryRun: dryRun,
		loc:    time.Local,
		now:    time.Now,
	}
	e.notifier = newNotifier(cfg.NotificationMethod)
	e.chown = makeChown(cfg.HubUser, dryRun)
	return e
}

// LoadState reads the persisted snapshot list and submission map.
func (e *Engine) LoadState() error {
	snaps, err := e.Store.LoadSnapshots()
	if err != nil {
		return err
	}
	subs, err := e.Store.LoadSubmissions()
	if err != nil {
		return err
	}
	e.Snapshots, e.Submissions = snaps, subs
	return nil
}

// RunWorkflow advances the whole course one step: extensions, snapshots, provisioning, and the
// submission pipeline, persisting state after the phases that mutate it.  Per-assignment failures
// are aggregated and reported at the end; only course-level failures abort early.
func (e *Engine) RunWorkflow() error {
	if err := e.LoadState(); err != nil {
		return err
	}
	if err := e.ApplyLateregExtensions(); err != nil {
		return err
	}

	var result *multierror.Error
	if err := e.TakeSnapshots(); err != nil {
		result = multierror.Append(result, err)
	}

	// Assignments whose provisioning failed are skipped by the pipeline this run; their
	// submissions are retried next run.  A nil skip set means provisioning hit a
	// configuration error, which aborts the run before any submission work.
	skip, err := e.ProvisionGraders()
	if err != nil {
		result = multierror.Append(result, err)
	}
	if skip == nil {
		return result.ErrorOrNil()
	}
	if err := e.RunPipeline(skip); err != nil {
		result = multierror.Append(result, err)
	}

	if err := e.notifier.Notify(e); err != nil {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}

// pastDue reports whether an assignment-level due date has strictly passed.  Per-submission
// gating uses the submission's resolved due date instead.
func (e *Engine) pastDue(a *course.Assignment) bool {
	return a.PastDue(e.now())
}

// fmtTime renders a time in the course's time zone for decision lines.
func (e *Engine) fmtTime(t *time.Time) string {
	if t == nil {
		return "<none>"
	}
	return t.In(e.loc).Format("Mon 2006-01-02 15:04:05")
}

// makeChown builds the ownership helper that hands collected files to the hub's execution user.
// If the user cannot be resolved (tests, unprivileged runs), ownership is left alone.
func makeChown(hubUser string, dryRun bool) func(string) error {
	if dryRun {
		return func(path string) error {
			glog.V(3).Infof("[dry run] would have chowned %v to %v", path, hubUser)
			return nil
		}
	}
	u, err := user.Lookup(hubUser)
	if err != nil {
		glog.Warningf("could not resolve hub user '%v' (%v); collected files keep their owner", hubUser, err)
		return func(string) error { return nil }
	}
	uid, err := strconv.Atoi(u.Uid)
	if err != nil {
		return func(string) error {
			return errors.Errorf("hub user '%v' has non-numeric uid '%v'", hubUser, u.Uid)
		}
	}
	gid, err := strconv.Atoi(u.Gid)
	if err != nil {
		gid = uid
	}
	return func(path string) error {
		return os.Chown(path, uid, gid)
	}
}
