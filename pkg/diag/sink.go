// Copyright 2018-2019, Gradeflow, Inc.  All rights reserved.

package diag

import (
	"fmt"
	"io"
	"os"

	"github.com/golang/glog"
)

// Sink facilitates pluggable diagnostics messages.  The workflow engine emits one line per meaningful
// decision through a sink; alternative sinks may capture or discard that stream (tests do both).
type Sink interface {
	// Count fetches the total number of diagnostics issued (errors plus warnings).
	Count() int
	// Errors fetches the number of errors issued.
	Errors() int
	// Warnings fetches the number of warnings issued.
	Warnings() int
	// Success returns true if this sink is currently error-free.
	Success() bool

	// Infof issues an informational message.
	Infof(msg string, args ...interface{})
	// Warningf issues a new warning diagnostic.
	Warningf(msg string, args ...interface{})
	// Errorf issues a new error diagnostic.
	Errorf(msg string, args ...interface{})
}

// DefaultSink returns a default sink that simply logs output to stderr/stdout.
func DefaultSink() Sink {
	return NewSink(os.Stdout, os.Stderr)
}

// NewSink creates a sink that writes informational output to infoW and warnings/errors to errorW.
func NewSink(infoW io.Writer, errorW io.Writer) Sink {
	return &defaultSink{infoW: infoW, errorW: errorW}
}

type defaultSink struct {
	infoW    io.Writer // the output stream for informational messages.
	errorW   io.Writer // the output stream for warnings and errors.
	errors   int       // the number of errors that have been issued.
	warnings int       // the number of warnings that have been issued.
}

func (d *defaultSink) Count() int    { return d.errors + d.warnings }
func (d *defaultSink) Errors() int   { return d.errors }
func (d *defaultSink) Warnings() int { return d.warnings }
func (d *defaultSink) Success() bool { return d.errors == 0 }

func (d *defaultSink) Infof(msg string, args ...interface{}) {
	s := fmt.Sprintf(msg, args...)
	if glog.V(3) {
		glog.V(3).Infof("defaultSink::Info(%v)", s)
	}
	fmt.Fprintf(d.infoW, "%s\n", s)
}

func (d *defaultSink) Warningf(msg string, args ...interface{}) {
	s := fmt.Sprintf(msg, args...)
	if glog.V(4) {
		glog.V(4).Infof("defaultSink::Warning(%v)", s)
	}
	fmt.Fprintf(d.errorW, "warning: %s\n", s)
	d.warnings++
}

func (d *defaultSink) Errorf(msg string, args ...interface{}) {
	s := fmt.Sprintf(msg, args...)
	if glog.V(3) {
		glog.V(3).Infof("defaultSink::Error(%v)", s)
	}
	fmt.Fprintf(d.errorW, "error: %s\n", s)
	d.errors++
}
