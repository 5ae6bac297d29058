// Copyright 2018-2019, Gradeflow, Inc.  All rights reserved.

package cmdutil

import (
	"github.com/gradeflow/gradeflow/pkg/diag"
)

var snk diag.Sink

// Diag lazily allocates a sink to be used if we can't create one later on.
func Diag() diag.Sink {
	if snk == nil {
		snk = diag.DefaultSink()
	}
	return snk
}
