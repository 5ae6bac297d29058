// Copyright 2018-2019, Gradeflow, Inc.  All rights reserved.

package version

// Version is the gradeflow release version, stamped at build time via -ldflags.
var Version = "0.0.1-dev"
