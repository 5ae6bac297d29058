// Copyright 2018-2019, Gradeflow, Inc.  All rights reserved.

package engine

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/golang/glog"
	multierror "github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	git "gopkg.in/src-d/go-git.v4"

	"github.com/gradeflow/gradeflow/pkg/course"
)

// ProvisionGraders ensures every past-due assignment has its grader datasets, cloned instructor
// repos, generated assignment artifacts, solution notebooks, and hub accounts.  Every step is
// idempotent and guarded by an existence check; provisioned state is a no-op.
//
// The returned set names assignments whose provisioning failed; the pipeline skips their
// dependent work this run.  A missing graders entry is a configuration error, not an
// infrastructure one: it returns a nil set and the run must abort before any submission work.
func (e *Engine) ProvisionGraders() (map[string]bool, error) {
	for _, a := range e.View.Assignments {
		if !e.pastDue(a) {
			continue
		}
		if _, err := e.Config.GradersFor(a.Name); err != nil {
			return nil, err
		}
	}

	skip := make(map[string]bool)
	var result *multierror.Error
	for _, a := range e.View.Assignments {
		if !e.pastDue(a) {
			continue
		}
		if err := e.provisionAssignment(a); err != nil {
			e.Sink.Errorf("could not provision graders for %v: %v; skipping its submissions this run", a.Name, err)
			skip[a.Name] = true
			result = multierror.Append(result, errors.Wrapf(err, "provisioning %v", a.Name))
		}
	}
	return skip, result.ErrorOrNil()
}

func (e *Engine) provisionAssignment(a *course.Assignment) error {
	humans, err := e.Config.GradersFor(a.Name)
	if err != nil {
		return err
	}

	for k := 0; k < e.Config.NumGraders; k++ {
		graderName := course.GraderName(a.Name, k)
		glog.V(3).Infof("checking assignment %v grader %v", a.Name, graderName)

		exists, err := e.FS.UserFolderExists(graderName)
		if err != nil {
			return err
		}
		if !exists {
			e.Sink.Infof("assignment %v past due, no %v folder yet; creating", a.Name, graderName)
			if err = e.FS.CreateUserFolder(graderName); err != nil {
				return err
			}
		}

		repoPath := e.graderRepoPath(graderName)
		if _, serr := os.Stat(repoPath); os.IsNotExist(serr) {
			e.Sink.Infof("cloning the instructor repository from %v into %v", e.Config.InstructorRepoURL, repoPath)
			if e.DryRun {
				glog.Infof("[dry run] would have cloned %v into %v", e.Config.InstructorRepoURL, repoPath)
			} else if err = cloneRepo(e.Config.InstructorRepoURL, repoPath); err != nil {
				return err
			}
		}

		generated, err := e.Runner.Run("nbgrader db assignment list", repoPath)
		if err != nil {
			return err
		}
		if !strings.Contains(generated, a.Name) {
			e.Sink.Infof("assignment %v not yet generated in %v; generating", a.Name, graderName)
			if _, err = e.Runner.Run("nbgrader generate_assignment --force "+a.Name, repoPath); err != nil {
				return err
			}
		}

		solnName := a.Name + "_solution.html"
		if _, serr := os.Stat(filepath.Join(repoPath, solnName)); os.IsNotExist(serr) {
			e.Sink.Infof("solution for %v not generated in %v; generating", a.Name, graderName)
			src := filepath.Join("source", a.Name, a.Name+".ipynb")
			_, err = e.Runner.Run("jupyter nbconvert "+src+" --output="+solnName+" --output-dir=.", repoPath)
			if err != nil {
				return err
			}
		}

		exists, err = e.Hub.GraderExists(graderName)
		if err != nil {
			return err
		}
		if !exists {
			e.Sink.Infof("grader %v not on the hub yet; assigning %v", graderName, humans[k])
			if err = e.Hub.AssignGrader(graderName, humans[k]); err != nil {
				return err
			}
		}
	}
	return nil
}

// graderRepoPath is the grader's working copy of the instructor repository.  All pipeline work
// for the grader (submitted/, feedback/, release/, the gradebook) happens inside it.
func (e *Engine) graderRepoPath(graderName string) string {
	return filepath.Join(e.Config.UserFolderRoot, graderName, e.Config.InstructorRepoName)
}

// cloneRepo clones the instructor repository, purging the partial directory if the clone fails so
// the next run retries from scratch.
func cloneRepo(url string, path string) error {
	if _, err := git.PlainClone(path, false, &git.CloneOptions{URL: url}); err != nil {
		if rmerr := os.RemoveAll(path); rmerr != nil {
			glog.Warningf("could not clean up partial clone at %v: %v", path, rmerr)
		}
		return errors.Wrapf(err, "could not clone %v", url)
	}
	return nil
}
