// Copyright 2018-2019, Gradeflow, Inc.  All rights reserved.

package cmd

import (
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"github.com/pkg/errors"
	terminal "golang.org/x/crypto/ssh/terminal"

	"github.com/gradeflow/gradeflow/pkg/client/canvas"
	"github.com/gradeflow/gradeflow/pkg/client/docker"
	"github.com/gradeflow/gradeflow/pkg/client/hub"
	"github.com/gradeflow/gradeflow/pkg/client/zfs"
	"github.com/gradeflow/gradeflow/pkg/config"
	"github.com/gradeflow/gradeflow/pkg/engine"
	"github.com/gradeflow/gradeflow/pkg/state"
	"github.com/gradeflow/gradeflow/pkg/util/cmdutil"
)

// lockFile guards against overlapping cron invocations of the same course.
const lockFile = ".gradeflow.lock"

// buildEngine loads the course configuration, takes the course lock, and wires up the engine with
// its real external clients.  The returned release func must be called when the command finishes.
func buildEngine() (*engine.Engine, func(), error) {
	cfg, err := config.Load(courseDir)
	if err != nil {
		return nil, nil, err
	}

	lock := flock.New(filepath.Join(courseDir, lockFile))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, nil, errors.Wrap(err, "could not acquire the course lock")
	}
	if !locked {
		return nil, nil, errors.Errorf(
			"another gradeflow run holds the lock on '%v'; is a previous cron invocation still running?", courseDir)
	}
	release := func() { _ = lock.Unlock() }

	canvasToken := os.Getenv(cfg.CanvasTokenEnv)
	if canvasToken == "" {
		release()
		return nil, nil, errors.Errorf("no LMS API token found in $%v", cfg.CanvasTokenEnv)
	}

	e := engine.New(cfg,
		state.New(courseDir, cfg.Name, dryRun),
		canvas.New(cfg.CanvasURL, cfg.CanvasCourseID, canvasToken, dryRun),
		hub.New(cfg.HubURL, os.Getenv(cfg.HubTokenEnv), dryRun),
		zfs.New(cfg.StudentFolderRoot, cfg.UserFolderRoot, cfg.CreateFolderScript, dryRun),
		docker.NewRunner(cfg.GradingImage, cfg.ContainerWorkers, dryRun),
		cmdutil.Diag(), dryRun)
	e.Progress = !cmdutil.Verbose && terminal.IsTerminal(int(os.Stdout.Fd()))
	return e, release, nil
}
