package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/steelcutops/converge/converge/descriptor"
	"github.com/steelcutops/converge/converge/packagemanager"
	"github.com/steelcutops/converge/converge/reconciler"
	"github.com/steelcutops/converge/logger"
)

const (
	detailConverged = "already converged"
	detailDryRun    = "dry run"
	detailFailFast  = "skipped after earlier failure"
	detailTimedOut  = "run timed out"
)

// ActionExecutionError is a failed Install, Upgrade or Remove.
type ActionExecutionError struct {
	Name string
	Kind reconciler.Kind
	Err  error
}

func (e *ActionExecutionError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Kind, e.Name, e.Err)
}

func (e *ActionExecutionError) Unwrap() error { return e.Err }

// Executor applies planned actions one at a time.
type Executor struct {
	managers map[descriptor.Manager]packagemanager.PackageManager
	logger   logger.Logger

	// FailFast stops the run at the first failure.
	FailFast bool
	// DryRun records every mutating action as skipped.
	DryRun bool
	// Timeout bounds the whole run when positive.
	Timeout time.Duration
}

func New(managers map[descriptor.Manager]packagemanager.PackageManager, l logger.Logger) *Executor {
	if l == nil {
		l = logger.Discard()
	}
	return &Executor{managers: managers, logger: l}
}

// Run applies actions in order and returns one entry per action. Actions
// are never run concurrently: package managers hold a global lock.
func (e *Executor) Run(ctx context.Context, actions []reconciler.Action) *Result {
	if e.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}

	result := &Result{Entries: make([]Entry, 0, len(actions)), Started: time.Now(), DryRun: e.DryRun}
	halted := ""
	for _, a := range actions {
		if halted == "" && ctx.Err() != nil {
			halted = detailTimedOut
		}
		if halted != "" {
			result.Entries = append(result.Entries, Entry{Action: a, Outcome: Skipped, Detail: halted})
			continue
		}

		entry := e.Apply(ctx, a)
		result.Entries = append(result.Entries, entry)

		if entry.Outcome == Failed {
			if ctx.Err() != nil {
				halted = detailTimedOut
			} else if e.FailFast {
				halted = detailFailFast
			}
		}
	}
	result.TimedOut = halted == detailTimedOut
	result.Duration = time.Since(result.Started)
	return result
}

// Apply performs a single action. NoOp makes no host call; the others call
// the bound package manager exactly once. If ctx ends first the action is
// recorded as failed, although the host call itself is left to finish.
func (e *Executor) Apply(ctx context.Context, a reconciler.Action) Entry {
	start := time.Now()
	entry := e.apply(ctx, a)
	entry.Duration = time.Since(start)

	fields := []interface{}{"package", a.Descriptor.Key().String(), "kind", string(a.Kind), "outcome", entry.Label()}
	if entry.Outcome == Failed {
		e.logger.Error(entry.Detail, fields...)
	} else {
		e.logger.Debug("action finished", fields...)
	}
	return entry
}

func (e *Executor) apply(ctx context.Context, a reconciler.Action) Entry {
	entry := Entry{Action: a}

	if a.Err != nil {
		entry.Outcome = Failed
		entry.Err = &ActionExecutionError{Name: a.Name(), Kind: a.Kind, Err: a.Err}
		entry.Detail = entry.Err.Error()
		return entry
	}
	if a.Kind == reconciler.NoOp {
		entry.Outcome = Applied
		entry.Detail = detailConverged
		return entry
	}
	if e.DryRun {
		entry.Outcome = Skipped
		entry.Detail = detailDryRun
		return entry
	}

	pm, ok := e.managers[a.Descriptor.Manager()]
	if !ok || pm == nil {
		entry.Outcome = Failed
		entry.Err = &ActionExecutionError{Name: a.Name(), Kind: a.Kind, Err: packagemanager.ErrUnavailable}
		entry.Detail = entry.Err.Error()
		return entry
	}

	e.logger.Info("applying action", "package", a.Descriptor.Key().String(), "kind", string(a.Kind), "manager", pm.Name())
	err := e.call(ctx, func(hostCtx context.Context) error {
		return invoke(hostCtx, pm, a)
	})
	if err != nil {
		entry.Outcome = Failed
		entry.Err = err
		var timeout *timeoutError
		if errors.As(err, &timeout) {
			entry.Detail = timeout.Error()
		} else {
			entry.Err = &ActionExecutionError{Name: a.Name(), Kind: a.Kind, Err: err}
			entry.Detail = entry.Err.Error()
		}
		return entry
	}

	entry.Outcome = Applied
	entry.Detail = fmt.Sprintf("%s via %s", verb(a.Kind), pm.Name())
	return entry
}

type timeoutError struct {
	after time.Duration
	err   error
}

func (e *timeoutError) Error() string {
	if errors.Is(e.err, context.DeadlineExceeded) {
		return fmt.Sprintf("timed out after %s", e.after.Round(time.Millisecond))
	}
	return fmt.Sprintf("interrupted after %s: %v", e.after.Round(time.Millisecond), e.err)
}

func (e *timeoutError) Unwrap() error { return e.err }

// call runs fn on a context that outlives ctx, and stops waiting when ctx
// ends. Package managers own recovery from a half-finished operation, so it
// is not interrupted.
func (e *Executor) call(ctx context.Context, fn func(context.Context) error) error {
	start := time.Now()
	done := make(chan error, 1)
	go func() {
		done <- fn(context.WithoutCancel(ctx))
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return &timeoutError{after: time.Since(start), err: ctx.Err()}
	}
}

func invoke(ctx context.Context, pm packagemanager.PackageManager, a reconciler.Action) error {
	d := a.Descriptor
	req := packagemanager.Request{Name: d.Name(), Version: d.Pin()}
	if req.Version == "" {
		req.Constraint = d.Constraint()
	}

	switch a.Kind {
	case reconciler.Install:
		return pm.Install(ctx, req)
	case reconciler.Upgrade:
		return pm.Upgrade(ctx, req)
	case reconciler.Remove:
		return pm.Remove(ctx, d.Name())
	}
	return fmt.Errorf("unknown action kind %q", a.Kind)
}

func verb(k reconciler.Kind) string {
	switch k {
	case reconciler.Install:
		return "installed"
	case reconciler.Upgrade:
		return "upgraded"
	case reconciler.Remove:
		return "removed"
	}
	return string(k)
}
