// Copyright 2018-2019, Gradeflow, Inc.  All rights reserved.

package engine

// Notifier is invoked at the end of a workflow run.  Only the no-op notifier is implemented;
// real transports plug in here.
type Notifier interface {
	Notify(e *Engine) error
}

type noopNotifier struct{}

func (noopNotifier) Notify(*Engine) error { return nil }

// newNotifier maps the configured notification method to a notifier.  Unknown methods are rejected
// at config validation time, so this only ever sees "none".
func newNotifier(method string) Notifier {
	return noopNotifier{}
}
