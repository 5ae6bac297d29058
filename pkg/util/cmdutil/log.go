// Copyright 2018-2019, Gradeflow, Inc.  All rights reserved.

package cmdutil

import (
	"flag"
	"strconv"
)

// LogToStderr is true if all logging is being redirected to stderr.
var LogToStderr = false

// Verbose is true if verbose logging was requested (at any level).
var Verbose = false

// InitLogging ensures the glog library has been initialized with the given settings.
func InitLogging(logToStderr bool, verbose int) {
	// Ensure the glog library has been initialized, including calling flag.Parse beforehand.  Unfortunately,
	// this is the only way to control the way glog runs.  That includes poking around at flags below.
	flag.Parse()
	if logToStderr {
		LogToStderr = true
		flag.Lookup("logtostderr").Value.Set("true")
	}
	if verbose > 0 {
		Verbose = true
		flag.Lookup("v").Value.Set(strconv.Itoa(verbose))
	}
}
