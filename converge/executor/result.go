package executor

import (
	"time"

	"github.com/steelcutops/converge/converge/reconciler"
)

type Outcome string

const (
	Applied Outcome = "Applied"
	Failed  Outcome = "Failed"
	Skipped Outcome = "Skipped"
)

// Entry is the recorded outcome of one action.
type Entry struct {
	Action   reconciler.Action
	Outcome  Outcome
	Detail   string
	Duration time.Duration
	Err      error
}

// Label is the outcome as shown to users: converged packages read "NoOp".
func (e Entry) Label() string {
	if e.Action.Kind == reconciler.NoOp && e.Outcome == Applied {
		return string(reconciler.NoOp)
	}
	return string(e.Outcome)
}

type Summary struct {
	Applied int `json:"applied" yaml:"applied"`
	NoOp    int `json:"noop" yaml:"noop"`
	Failed  int `json:"failed" yaml:"failed"`
	Skipped int `json:"skipped" yaml:"skipped"`
}

// Result holds one entry per action, in the order the actions were given.
type Result struct {
	Entries  []Entry
	Started  time.Time
	Duration time.Duration
	DryRun   bool
	// TimedOut is set when the run deadline passed before every action ran.
	TimedOut bool
}

func (r *Result) Summary() Summary {
	var s Summary
	for _, e := range r.Entries {
		switch {
		case e.Outcome == Failed:
			s.Failed++
		case e.Outcome == Skipped:
			s.Skipped++
		case e.Action.Kind == reconciler.NoOp:
			s.NoOp++
		default:
			s.Applied++
		}
	}
	return s
}

// Success reports whether no action failed and the run was not cut short
// by its deadline.
func (r *Result) Success() bool {
	return r.Summary().Failed == 0 && !r.TimedOut
}

// ExitCode is 0 when every action applied, converged or was skipped by a
// dry run, and 1 when any failed.
func (r *Result) ExitCode() int {
	if r.Success() {
		return 0
	}
	return 1
}
