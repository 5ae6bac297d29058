// Copyright 2018-2019, Gradeflow, Inc.  All rights reserved.

// Package docker runs grading commands inside isolated containers.  Jobs are submitted one at a
// time, then executed as a parallel batch; results are joined back to their submissions by an
// opaque job id.
package docker

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/golang/glog"
	"github.com/pkg/errors"
	uuid "github.com/satori/go.uuid"
)

// jobTimeout bounds a single grading container.  Notebooks that run longer than this are stuck.
const jobTimeout = 10 * time.Minute

// JobResult is the outcome of one container job.
type JobResult struct {
	Log        string // combined stdout and stderr.
	ExitStatus int64
	Err        error // a failure of the container machinery itself, not of the grading command.
}

type job struct {
	id      string
	command string
	workdir string
}

// Runner executes commands in containers of the configured grading image.  It is not safe for
// concurrent use; the workflow is single-process and drives it from one goroutine.
type Runner struct {
	image   string
	workers int
	dryRun  bool
	pending []job

	cli *client.Client
}

// NewRunner creates a container runner.  The docker client is created lazily so that dry runs and
// runs with no container work never require a reachable daemon.
func NewRunner(image string, workers int, dryRun bool) *Runner {
	return &Runner{image: image, workers: workers, dryRun: dryRun}
}

func (r *Runner) client() (*client.Client, error) {
	if r.cli == nil {
		cli, err := client.NewEnvClient()
		if err != nil {
			return nil, errors.Wrap(err, "could not connect to the docker daemon")
		}
		r.cli = cli
	}
	return r.cli, nil
}

// Submit queues a command for the next RunAll batch and returns its opaque job id.
func (r *Runner) Submit(command string, workdir string) string {
	id := uuid.NewV4().String()
	r.pending = append(r.pending, job{id: id, command: command, workdir: workdir})
	glog.V(3).Infof("submitted container job %v: %v (in %v)", id, command, workdir)
	return id
}

// RunAll executes every submitted job in parallel, bounded by the worker count, and returns the
// results keyed by job id.  The pending queue is consumed whether or not jobs succeed.
func (r *Runner) RunAll() map[string]JobResult {
	jobs := r.pending
	r.pending = nil

	results := make(map[string]JobResult, len(jobs))
	if len(jobs) == 0 {
		return results
	}

	if r.dryRun {
		for _, j := range jobs {
			glog.Infof("[dry run] would have run in %v: %v (in %v)", r.image, j.command, j.workdir)
			results[j.id] = JobResult{}
		}
		return results
	}

	var mu sync.Mutex
	var wg sync.WaitGroup
	sem := make(chan bool, r.workers)
	for _, j := range jobs {
		wg.Add(1)
		go func(j job) {
			defer wg.Done()
			sem <- true
			defer func() { <-sem }()

			res := r.execute(j.command, j.workdir)
			mu.Lock()
			results[j.id] = res
			mu.Unlock()
		}(j)
	}
	wg.Wait()
	return results
}

// Run executes a single command synchronously and returns its combined output.  Used by the grader
// provisioner, whose steps are not worth batching.
func (r *Runner) Run(command string, workdir string) (string, error) {
	if r.dryRun {
		glog.Infof("[dry run] would have run in %v: %v (in %v)", r.image, command, workdir)
		return "", nil
	}
	res := r.execute(command, workdir)
	if res.Err != nil {
		return res.Log, res.Err
	}
	if res.ExitStatus != 0 {
		return res.Log, errors.Errorf("'%v' exited with status %v: %v",
			command, res.ExitStatus, strings.TrimSpace(res.Log))
	}
	return res.Log, nil
}

// execute runs one command to completion in a fresh container and tears the container down after.
// The working directory is bind-mounted so the grading tools see the grader's real files.
func (r *Runner) execute(command string, workdir string) JobResult {
	cli, err := r.client()
	if err != nil {
		return JobResult{Err: err}
	}

	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	created, err := cli.ContainerCreate(ctx,
		&container.Config{
			Image:      r.image,
			Cmd:        []string{"/bin/bash", "-c", command},
			WorkingDir: workdir,
		},
		&container.HostConfig{
			Binds: []string{workdir + ":" + workdir},
		},
		nil, "")
	if err != nil {
		return JobResult{Err: errors.Wrapf(err, "could not create container for '%v'", command)}
	}
	id := created.ID
	defer func() {
		// Removal failures only leak a stopped container; log and move on.
		rmerr := cli.ContainerRemove(context.Background(), id, types.ContainerRemoveOptions{Force: true})
		if rmerr != nil {
			glog.Warningf("could not remove container %v: %v", id, rmerr)
		}
	}()

	if err = cli.ContainerStart(ctx, id, types.ContainerStartOptions{}); err != nil {
		return JobResult{Err: errors.Wrapf(err, "could not start container for '%v'", command)}
	}

	status, err := cli.ContainerWait(ctx, id)
	if err != nil {
		return JobResult{Err: errors.Wrapf(err, "error waiting on container for '%v'", command)}
	}

	logs, err := cli.ContainerLogs(ctx, id, types.ContainerLogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil {
		return JobResult{ExitStatus: status, Err: errors.Wrapf(err, "could not read logs for '%v'", command)}
	}
	defer logs.Close()

	var buf bytes.Buffer
	if _, err = stdcopy.StdCopy(&buf, &buf, logs); err != nil {
		return JobResult{ExitStatus: status, Err: errors.Wrapf(err, "could not demultiplex logs for '%v'", command)}
	}

	return JobResult{Log: buf.String(), ExitStatus: status}
}
