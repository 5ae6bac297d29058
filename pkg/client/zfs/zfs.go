// Copyright 2018-2019, Gradeflow, Inc.  All rights reserved.

// Package zfs wraps the zfs command line tools used to snapshot student work and provision grader
// datasets.  Snapshots are recursive over the student folder root; grader datasets live under the
// user folder root.
package zfs

import (
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/golang/glog"
	"github.com/pkg/errors"
)

// datasetMissing is the zfs error text that identifies a snapshot target that was never created.
// The workflow treats this as a recorded missing submission rather than a transient failure.
const datasetMissing = "dataset does not exist"

// Client shells out to zfs on the host the workflow runs on.
type Client struct {
	studentRoot  string // the dataset holding per-student folders; snapshotted recursively.
	userRoot     string // the dataset holding grader folders.
	createScript string // optional script for dataset creation; plain `zfs create` when empty.
	dryRun       bool
}

// New creates a zfs client over the given dataset roots.
func New(studentRoot string, userRoot string, createScript string, dryRun bool) *Client {
	return &Client{
		studentRoot:  studentRoot,
		userRoot:     userRoot,
		createScript: createScript,
		dryRun:       dryRun,
	}
}

// dataset converts a filesystem path into the zfs dataset name (no leading slash).
func dataset(path string) string {
	return strings.TrimLeft(path, "/")
}

// SnapshotAll takes a recursive snapshot of every student folder under the given label.
func (c *Client) SnapshotAll(label string) error {
	return c.run("zfs", "snapshot", "-r", dataset(c.studentRoot)+"@"+label)
}

// SnapshotUser snapshots a single student's folder under the given label.
func (c *Client) SnapshotUser(studentID string, label string) error {
	return c.run("zfs", "snapshot", dataset(filepath.Join(c.studentRoot, studentID))+"@"+label)
}

// ListSnapshots returns the raw `zfs list -t snapshot` output for operator inspection.
func (c *Client) ListSnapshots() (string, error) {
	out, err := exec.Command("zfs", "list", "-t", "snapshot").CombinedOutput()
	if err != nil {
		return "", commandError([]string{"zfs", "list", "-t", "snapshot"}, out, err)
	}
	return string(out), nil
}

// UserFolderExists reports whether a dataset exists for the named user under the user folder root.
func (c *Client) UserFolderExists(name string) (bool, error) {
	out, err := exec.Command("zfs", "list", "-H", "-o", "name",
		dataset(filepath.Join(c.userRoot, name))).CombinedOutput()
	if err != nil {
		if strings.Contains(string(out), datasetMissing) {
			return false, nil
		}
		return false, commandError([]string{"zfs", "list", name}, out, err)
	}
	return true, nil
}

// CreateUserFolder creates a dataset for the named user.  When a creation script is configured it
// is invoked instead, so deployments can layer quota and permission setup on top of the create.
func (c *Client) CreateUserFolder(name string) error {
	if c.createScript != "" {
		return c.run(c.createScript, name)
	}
	return c.run("zfs", "create", dataset(filepath.Join(c.userRoot, name)))
}

func (c *Client) run(args ...string) error {
	if c.dryRun {
		glog.Infof("[dry run] would have called: %v", strings.Join(args, " "))
		return nil
	}
	out, err := exec.Command(args[0], args[1:]...).CombinedOutput()
	if err != nil {
		return commandError(args, out, err)
	}
	return nil
}

// CommandError carries the combined output of a failed zfs invocation so callers can classify the
// failure.
type CommandError struct {
	Command string
	Output  string
	Err     error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("'%v' failed: %v: %v", e.Command, e.Err, strings.TrimSpace(e.Output))
}

func commandError(args []string, out []byte, err error) *CommandError {
	return &CommandError{Command: strings.Join(args, " "), Output: string(out), Err: err}
}

// IsDatasetMissing reports whether an error is a zfs "dataset does not exist" failure, which the
// snapshot scheduler records as a missing submission rather than retrying.
func IsDatasetMissing(err error) bool {
	cmderr, ok := errors.Cause(err).(*CommandError)
	return ok && strings.Contains(cmderr.Output, datasetMissing)
}
