// Copyright 2018-2019, Gradeflow, Inc.  All rights reserved.

package engine

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	pb "github.com/cheggaaa/pb"
	"github.com/golang/glog"
	multierror "github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"github.com/gradeflow/gradeflow/pkg/client/docker"
	"github.com/gradeflow/gradeflow/pkg/course"
	"github.com/gradeflow/gradeflow/pkg/util/contract"
)

// RunPipeline advances every outstanding submission of every past-due assignment through the
// grading state machine.  Container work is grouped into two parallel waves (autograde, then
// feedback generation); everything else is sequential.  Per-submission failures set the
// submission's error and move on; they never abort the run.  The submission map is persisted
// before returning.
//
// Assignments named in skip (failed provisioning, typically) are left untouched this run.
func (e *Engine) RunPipeline(skip map[string]bool) error {
	contract.Assert(e.Snapshots != nil)
	contract.Assert(e.Submissions != nil)

	var pastDue []*course.Assignment
	for _, a := range e.View.Assignments {
		if e.pastDue(a) && !skip[a.Name] {
			pastDue = append(pastDue, a)
		}
	}

	// Collect and clean, and decide which assignments have crossed the solution-return
	// threshold this run.
	returnSolns := make(map[string]bool)
	for _, a := range pastDue {
		if e.collectAssignment(a, returnSolns) {
			e.Sink.Infof("assignment %v reached the collection threshold; solutions will be returned", a.Name)
		}
	}

	e.returnSolutions(pastDue, returnSolns)
	e.autogradeWave(pastDue)
	e.feedbackWave(pastDue)
	e.uploadGrades(pastDue)
	e.returnFeedback(pastDue, returnSolns)

	var result *multierror.Error
	if err := e.Store.SaveSubmissions(e.Submissions); err != nil {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}

// collectAssignment creates missing submissions for one assignment and collects and cleans every
// submission whose resolved due date has passed.  Returns true if the assignment's collected
// fraction has met the return-solution threshold.
func (e *Engine) collectAssignment(a *course.Assignment, returnSolns map[string]bool) bool {
	now := e.now()
	collected, total := 0, 0

	var bar *pb.ProgressBar
	if e.Progress {
		bar = pb.StartNew(len(e.View.Students))
		bar.Prefix(a.Name)
	}
	for _, s := range e.View.Students {
		if bar != nil {
			bar.Increment()
		}
		subm := e.Submissions.Get(a.Name, s.CanvasID)
		if subm == nil {
			grader := course.GraderName(a.Name, e.Submissions.GraderIndex%e.Config.NumGraders)
			e.Submissions.GraderIndex++
			subm = course.NewSubmission(a, s, grader)
			e.Submissions.Put(subm)
			e.Sink.Infof("submission %v created; assigned to grader %v", subm.Key(), grader)
		}
		total++

		// Until collection happens the due date tracks the LMS, so a fresh override moves the
		// submission's deadline and snapshot label.  After collection the label must stay
		// stable: the snapshot it names is the one that was graded.
		if !subm.Phases.Collected && !subm.Phases.Missing {
			subm.UpdateDue(a, s)
		}
		if !subm.PastDue(now) {
			glog.V(3).Infof("submission %v not yet due (%v); skipping", subm.Key(), e.fmtTime(subm.DueDate))
			continue
		}

		if !subm.Phases.Collected && !subm.Phases.Missing {
			e.collectOne(subm)
		}
		if subm.Phases.Collected {
			collected++
		}
		if subm.Phases.Collected && !subm.Phases.Cleaned {
			e.cleanOne(subm)
		}
	}
	if bar != nil {
		bar.Finish()
	}

	frac := 0.0
	if total > 0 {
		frac = float64(collected) / float64(total)
	}
	e.Sink.Infof("assignment %v collected fraction: %v/%v = %.2f (threshold %.2f)",
		a.Name, collected, total, frac, e.Config.ReturnSolutionThreshold)
	if total > 0 && frac >= e.Config.ReturnSolutionThreshold {
		returnSolns[a.Name] = true
		return true
	}
	return false
}

// collectOne copies the snapshotted notebook into the grader's submitted tree.  An absent source
// is a missing submission, terminal for grading purposes; an absent snapshot label means the
// snapshot has not been taken yet (it failed this run), so collection waits.
func (e *Engine) collectOne(subm *course.Submission) {
	if !e.Snapshots.Has(subm.SnapName) {
		e.Sink.Infof("snapshot [%v] not taken yet; not collecting %v this run", subm.SnapName, subm.Key())
		return
	}
	src := e.snapSourcePath(subm)
	if _, err := os.Stat(src); os.IsNotExist(err) {
		e.Sink.Infof("no notebook at %v; marking submission %v missing (score 0)", src, subm.Key())
		subm.Phases.Missing = true
		subm.Error = ""
		return
	}

	if e.DryRun {
		glog.Infof("[dry run] would have collected %v into %v", src, e.submittedPath(subm))
		subm.Phases.Collected = true
		subm.Error = ""
		return
	}
	if err := e.copyForStudent(src, e.submittedPath(subm)); err != nil {
		e.Sink.Errorf("could not collect %v: %v", subm.Key(), err)
		subm.Error = err.Error()
		return
	}
	subm.Phases.Collected = true
	subm.Error = ""
	e.Sink.Infof("submission %v collected", subm.Key())
}

func (e *Engine) cleanOne(subm *course.Submission) {
	if e.DryRun {
		glog.Infof("[dry run] would have cleaned %v", e.submittedPath(subm))
		subm.Phases.Cleaned = true
		subm.Error = ""
		return
	}
	repaired, err := cleanNotebook(e.submittedPath(subm))
	if err != nil {
		e.Sink.Errorf("could not clean %v: %v", subm.Key(), err)
		subm.Error = err.Error()
		return
	}
	for _, id := range repaired {
		e.Sink.Warningf("submission %v had a duplicate grading cell '%v'; stripped its grading metadata", subm.Key(), id)
	}
	subm.Phases.Cleaned = true
	subm.Error = ""
	e.Sink.Infof("submission %v cleaned", subm.Key())
}

// returnSolutions copies the solution HTML to every student of each assignment on the
// return-solutions list who has not received it yet.  Missing submissions are skipped: the
// student has no folder to deliver into.
func (e *Engine) returnSolutions(pastDue []*course.Assignment, returnSolns map[string]bool) {
	for _, a := range pastDue {
		if !returnSolns[a.Name] {
			continue
		}
		for _, s := range e.View.Students {
			subm := e.Submissions.Get(a.Name, s.CanvasID)
			if subm == nil || subm.SolutionReturned || subm.Phases.Missing {
				continue
			}
			if e.DryRun {
				glog.Infof("[dry run] would have returned the %v solution to student %v", a.Name, s.CanvasID)
				subm.SolutionReturned = true
				continue
			}
			if err := e.copyForStudent(e.solutionGraderPath(subm), e.solutionStudentPath(subm)); err != nil {
				e.Sink.Errorf("could not return the %v solution to student %v: %v", a.Name, s.CanvasID, err)
				subm.SolutionReturnError = err.Error()
				continue
			}
			subm.SolutionReturned = true
			subm.SolutionReturnError = ""
			e.Sink.Infof("returned the %v solution to student %v", a.Name, s.CanvasID)
		}
	}
}

// autogradeWave submits one autograde container job per eligible submission, runs the batch in
// parallel, and validates the results.  It then consults the grader's gradebook to decide whether
// manual grading is required; that flag is re-derived each run until it clears, so a human
// finishing their manual grading unblocks the submission on the next run.
func (e *Engine) autogradeWave(pastDue []*course.Assignment) {
	e.eachEligible(pastDue, e.autogradeEligible, func(subm *course.Submission) {
		subm.JobID = e.Runner.Submit(
			fmt.Sprintf("nbgrader autograde --assignment=%s --student=%s%s",
				subm.AssignmentName, e.Config.StudentNamePrefix, subm.StudentID),
			e.graderRepoPath(subm.Grader))
	})

	results := e.Runner.RunAll()

	e.eachEligible(pastDue, e.autogradeEligible, func(subm *course.Submission) {
		if subm.JobID == "" {
			return
		}
		if !e.validateJob(subm, results, "autograding") {
			return
		}
		subm.Phases.Autograded = true
		subm.Error = ""
		e.Sink.Infof("submission %v autograded", subm.Key())
	})

	// Re-derive the manual-grading flag for everything autograded but not yet through feedback,
	// so a human finishing manual grading unblocks the submission on the next run.
	e.eachEligible(pastDue, func(subm *course.Submission) bool {
		return subm.Phases.Autograded && !subm.Phases.FeedbackGenerated && !subm.Phases.Missing
	}, e.checkManualGrading)
}

func (e *Engine) autogradeEligible(subm *course.Submission) bool {
	return subm.Phases.Cleaned && !subm.Phases.Autograded && !subm.Phases.Missing
}

func (e *Engine) checkManualGrading(subm *course.Submission) {
	if e.DryRun {
		glog.Infof("[dry run] would have consulted the gradebook for %v", subm.Key())
		return
	}
	rec, err := e.lookupGradebook(subm)
	if err != nil {
		e.Sink.Errorf("could not check manual grading for %v: %v", subm.Key(), err)
		subm.Error = err.Error()
		return
	}
	if rec.NeedsManualGrade != subm.Phases.NeedsManualGrade {
		if rec.NeedsManualGrade {
			e.Sink.Infof("submission %v needs manual grading", subm.Key())
		} else {
			e.Sink.Infof("submission %v manual grading complete", subm.Key())
		}
	}
	subm.Phases.NeedsManualGrade = rec.NeedsManualGrade
}

// feedbackWave mirrors the autograde wave for feedback generation.
func (e *Engine) feedbackWave(pastDue []*course.Assignment) {
	e.eachEligible(pastDue, e.feedbackEligible, func(subm *course.Submission) {
		subm.JobID = e.Runner.Submit(
			fmt.Sprintf("nbgrader generate_feedback --force --assignment=%s --student=%s%s",
				subm.AssignmentName, e.Config.StudentNamePrefix, subm.StudentID),
			e.graderRepoPath(subm.Grader))
	})

	results := e.Runner.RunAll()

	e.eachEligible(pastDue, e.feedbackEligible, func(subm *course.Submission) {
		if subm.JobID == "" {
			return
		}
		if !e.validateJob(subm, results, "generating feedback") {
			return
		}
		subm.Phases.FeedbackGenerated = true
		subm.Error = ""
		e.Sink.Infof("submission %v feedback generated", subm.Key())
	})
}

func (e *Engine) feedbackEligible(subm *course.Submission) bool {
	return subm.Phases.Autograded && !subm.Phases.NeedsManualGrade &&
		!subm.Phases.FeedbackGenerated && !subm.Phases.Missing
}

// validateJob joins a submission to its batch result and applies the shared error contract: a log
// containing ERROR records a failure and leaves the phase unchanged for a retry next run.  The
// job id is consumed either way.
func (e *Engine) validateJob(subm *course.Submission, results map[string]docker.JobResult, what string) bool {
	res, ok := results[subm.JobID]
	subm.JobID = ""
	if !ok {
		e.Sink.Errorf("no container result for %v while %v", subm.Key(), what)
		subm.Error = fmt.Sprintf("no container result while %v", what)
		return false
	}
	if res.Err != nil {
		e.Sink.Errorf("container failure while %v %v: %v", what, subm.Key(), res.Err)
		subm.Error = res.Err.Error()
		return false
	}
	if strings.Contains(res.Log, "ERROR") {
		e.Sink.Errorf("error while %v %v in grader folder %v (exit status %v)",
			what, subm.Key(), subm.Grader, res.ExitStatus)
		glog.V(3).Infof("container log for %v: %v", subm.Key(), res.Log)
		subm.Error = fmt.Sprintf("error while %v (exit status %v)", what, res.ExitStatus)
		return false
	}
	return true
}

// uploadGrades posts percentage grades to the LMS.  Feedback-generated submissions read their
// score from the grader's gradebook; missing submissions upload a zero without ever touching a
// grader.  The max score is recomputed from the release notebook's grading cells.
func (e *Engine) uploadGrades(pastDue []*course.Assignment) {
	e.eachEligible(pastDue, func(subm *course.Submission) bool {
		return !subm.Phases.GradeUploaded && (subm.Phases.Missing || subm.Phases.FeedbackGenerated)
	}, func(subm *course.Submission) {
		if e.DryRun {
			glog.Infof("[dry run] would have uploaded the grade for %v", subm.Key())
			subm.Phases.GradeUploaded = true
			return
		}

		score := 0.0
		if subm.Phases.Missing {
			e.Sink.Infof("submission %v is missing; uploading a zero", subm.Key())
		} else {
			rec, err := e.lookupGradebook(subm)
			if err != nil {
				e.Sink.Errorf("could not read the score for %v: %v", subm.Key(), err)
				subm.Error = err.Error()
				return
			}
			score = rec.Score
		}

		max, err := notebookMaxScore(e.releasePath(subm))
		if err != nil {
			e.Sink.Errorf("could not compute the max score for %v: %v", subm.Key(), err)
			subm.Error = err.Error()
			return
		}
		pct := fmt.Sprintf("%.2f", 100*score/max)

		if err := e.LMS.PutGrade(subm.AssignmentID, subm.StudentID, pct); err != nil {
			e.Sink.Errorf("could not upload the grade for %v: %v", subm.Key(), err)
			subm.Error = err.Error()
			return
		}
		subm.Score, subm.MaxScore = &score, &max
		subm.Phases.GradeUploaded = true
		subm.Error = ""
		e.Sink.Infof("submission %v grade uploaded: %v/%v = %v%%", subm.Key(), score, max, pct)
	})
}

// returnFeedback delivers feedback HTML, but only for assignments on the return-solutions list
// and only once the LMS reports the grade posted to the student.  Missing submissions have no
// feedback to return.
func (e *Engine) returnFeedback(pastDue []*course.Assignment, returnSolns map[string]bool) {
	for _, a := range pastDue {
		if !returnSolns[a.Name] {
			continue
		}
		for _, s := range e.View.Students {
			subm := e.Submissions.Get(a.Name, s.CanvasID)
			if subm == nil || !subm.Phases.GradeUploaded || subm.Phases.FeedbackReturned {
				continue
			}

			if !subm.Phases.GradePosted {
				posted, err := e.LMS.IsGradePosted(subm.AssignmentID, subm.StudentID)
				if err != nil {
					e.Sink.Errorf("could not check the posted state for %v: %v", subm.Key(), err)
					subm.Error = err.Error()
					continue
				}
				if !posted {
					glog.V(3).Infof("grade for %v not posted yet; not returning feedback", subm.Key())
					continue
				}
				subm.Phases.GradePosted = true
			}

			if subm.Phases.Missing {
				e.Sink.Infof("submission %v was missing; no feedback to return", subm.Key())
				continue
			}
			if e.DryRun {
				glog.Infof("[dry run] would have returned feedback for %v", subm.Key())
				subm.Phases.FeedbackReturned = true
				continue
			}
			if err := e.copyForStudent(e.feedbackGraderPath(subm), e.feedbackStudentPath(subm)); err != nil {
				e.Sink.Errorf("could not return feedback for %v: %v", subm.Key(), err)
				subm.Error = err.Error()
				continue
			}
			subm.Phases.FeedbackReturned = true
			subm.Error = ""
			e.Sink.Infof("submission %v feedback returned", subm.Key())
		}
	}
}

// eachEligible runs an action over every submission of every past-due assignment that passes the
// eligibility check.  Submissions are only ever created by the collection pass, so absence here
// just means the assignment has not been collected yet.
func (e *Engine) eachEligible(pastDue []*course.Assignment, eligible func(*course.Submission) bool,
	action func(*course.Submission)) {

	for _, a := range pastDue {
		for _, s := range e.View.Students {
			subm := e.Submissions.Get(a.Name, s.CanvasID)
			if subm != nil && eligible(subm) {
				action(subm)
			}
		}
	}
}

// copyForStudent copies a file, creating parent directories as needed, and hands everything it
// created to the hub's execution user so notebooks stay readable from the hub.
func (e *Engine) copyForStudent(src string, dst string) error {
	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrapf(err, "could not create %v", dir)
	}
	if err := copyFile(src, dst); err != nil {
		return err
	}
	for _, p := range []string{dir, filepath.Dir(dir), dst} {
		if err := e.chown(p); err != nil {
			return errors.Wrapf(err, "could not chown %v", p)
		}
	}
	return nil
}

func copyFile(src string, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return errors.Wrapf(err, "could not open %v", src)
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return errors.Wrapf(err, "could not create %v", dst)
	}
	defer out.Close()
	if _, err = io.Copy(out, in); err != nil {
		return errors.Wrapf(err, "could not copy %v to %v", src, dst)
	}
	return out.Close()
}
