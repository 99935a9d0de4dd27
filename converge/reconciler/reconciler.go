package reconciler

import (
	"context"
	"fmt"

	"github.com/steelcutops/converge/converge/descriptor"
	"github.com/steelcutops/converge/converge/prober"
	"github.com/steelcutops/converge/logger"
)

// Reconciler diffs desired package state against the host.
type Reconciler struct {
	Prober *prober.Prober
	// ProbeConcurrency bounds parallel probes; values below 2 probe sequentially.
	ProbeConcurrency int
	Logger           logger.Logger
}

// Plan returns exactly one action per descriptor, in input order. Duplicate
// or conflicting descriptors fail the whole plan before anything is probed.
// Probe failures do not fail the plan; they are carried on the action.
func (r *Reconciler) Plan(ctx context.Context, ds []descriptor.Descriptor) ([]Action, error) {
	if err := descriptor.CheckDuplicates(ds); err != nil {
		return nil, err
	}
	if len(ds) == 0 {
		return []Action{}, nil
	}

	states, errs, _ := r.Prober.ProbeAll(ctx, ds, r.ProbeConcurrency)

	actions := make([]Action, len(ds))
	for i, d := range ds {
		if errs[i] != nil {
			actions[i] = failedProbe(d, errs[i])
		} else {
			actions[i] = decide(d, states[i])
		}
		r.log().Debug("planned action", "package", d.Key().String(), "kind", string(actions[i].Kind), "reason", actions[i].Reason)
	}
	return actions, nil
}

func decide(d descriptor.Descriptor, current prober.InstalledState) Action {
	a := Action{Descriptor: d, Current: &current}

	switch d.Desired() {
	case descriptor.StateAbsent:
		if current.Present {
			a.Kind = Remove
			a.Reason = fmt.Sprintf("installed at %s", current.Version)
		} else {
			a.Kind = NoOp
			a.Reason = "not installed"
		}
	default:
		switch {
		case !current.Present:
			a.Kind = Install
			a.Reason = "not installed"
		case !d.Satisfies(current.Version):
			a.Kind = Upgrade
			a.Reason = fmt.Sprintf("installed %s does not satisfy %s", current.Version, d.Constraint())
		default:
			a.Kind = NoOp
			a.Reason = "installed " + current.Version
		}
	}
	return a
}

// failedProbe keeps the one-action-per-descriptor shape for packages whose
// state could not be read.
func failedProbe(d descriptor.Descriptor, err error) Action {
	kind := Install
	if d.Desired() == descriptor.StateAbsent {
		kind = Remove
	}
	return Action{Kind: kind, Descriptor: d, Reason: "probe failed", Err: err}
}

func (r *Reconciler) log() logger.Logger {
	if r.Logger == nil {
		return logger.Discard()
	}
	return r.Logger
}
