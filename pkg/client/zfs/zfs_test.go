// Copyright 2018-2019, Gradeflow, Inc.  All rights reserved.

package zfs

import (
	"errors"
	"testing"

	pkgerrors "github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestIsDatasetMissing(t *testing.T) {
	missing := commandError(
		[]string{"zfs", "snapshot", "tank/students/s1@hw1"},
		[]byte("cannot open 'tank/students/s1': dataset does not exist\n"),
		errors.New("exit status 1"))
	assert.True(t, IsDatasetMissing(missing))

	// Wrapping does not hide the classification.
	assert.True(t, IsDatasetMissing(pkgerrors.Wrap(missing, "snapshot for hw1")))

	other := commandError(
		[]string{"zfs", "snapshot", "tank/students/s1@hw1"},
		[]byte("cannot create snapshot: pool I/O is currently suspended\n"),
		errors.New("exit status 1"))
	assert.False(t, IsDatasetMissing(other))

	assert.False(t, IsDatasetMissing(errors.New("dataset does not exist")))
	assert.False(t, IsDatasetMissing(nil))
}

func TestDatasetName(t *testing.T) {
	assert.Equal(t, "tank/students", dataset("/tank/students"))
	assert.Equal(t, "tank/students", dataset("tank/students"))
}
