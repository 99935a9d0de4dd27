package prober

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/hashicorp/go-multierror"

	"github.com/steelcutops/converge/converge/descriptor"
	"github.com/steelcutops/converge/converge/packagemanager"
	"github.com/steelcutops/converge/logger"
)

// InstalledState is what the host reports for one package at probe time.
type InstalledState struct {
	Name    string
	Manager descriptor.Manager
	Version string
	Present bool
}

func (s InstalledState) String() string {
	if !s.Present {
		return s.Name + " (absent)"
	}
	return s.Name + " " + s.Version
}

// ProbeUnavailableError means the package manager for a descriptor is not
// usable on the host. It is not returned for packages that are merely absent.
type ProbeUnavailableError struct {
	Manager descriptor.Manager
	Tool    string
	Err     error
}

func (e *ProbeUnavailableError) Error() string {
	if e.Tool == "" {
		return fmt.Sprintf("%s: no package manager on this host: %v", e.Manager, e.Err)
	}
	return fmt.Sprintf("%s: %s unavailable: %v", e.Manager, e.Tool, e.Err)
}

func (e *ProbeUnavailableError) Unwrap() error { return e.Err }

// Prober queries the host package database. It never installs or removes.
type Prober struct {
	managers map[descriptor.Manager]packagemanager.PackageManager
	logger   logger.Logger
}

func New(managers map[descriptor.Manager]packagemanager.PackageManager, l logger.Logger) *Prober {
	if l == nil {
		l = logger.Discard()
	}
	return &Prober{managers: managers, logger: l}
}

// Probe returns the current state of d's package. Results are never cached.
func (p *Prober) Probe(ctx context.Context, d descriptor.Descriptor) (InstalledState, error) {
	state := InstalledState{Name: d.Name(), Manager: d.Manager()}

	pm, ok := p.managers[d.Manager()]
	if !ok || pm == nil {
		return state, &ProbeUnavailableError{Manager: d.Manager(), Err: packagemanager.ErrUnavailable}
	}

	if err := pm.Available(ctx); err != nil {
		if errors.Is(err, packagemanager.ErrUnavailable) {
			return state, &ProbeUnavailableError{Manager: d.Manager(), Tool: pm.Name(), Err: err}
		}
		return state, fmt.Errorf("probing %s: %w", d, err)
	}

	version, present, err := pm.Query(ctx, d.Name())
	if err != nil {
		return state, fmt.Errorf("probing %s with %s: %w", d, pm.Name(), err)
	}
	state.Version = version
	state.Present = present

	p.logger.Debug("probed package", "package", d.Key().String(), "present", present, "version", version)
	return state, nil
}

// ProbeAll probes every descriptor with at most concurrency probes in flight.
// The returned slices are index-aligned with ds; errs[i] is nil when ds[i]
// probed cleanly. The aggregate error is a *multierror.Error, or nil.
func (p *Prober) ProbeAll(ctx context.Context, ds []descriptor.Descriptor, concurrency int) ([]InstalledState, []error, error) {
	if concurrency < 1 {
		concurrency = 1
	}

	states := make([]InstalledState, len(ds))
	errs := make([]error, len(ds))

	var wg sync.WaitGroup
	sem := make(chan struct{}, concurrency)

	for i, d := range ds {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, d descriptor.Descriptor) {
			defer wg.Done()
			defer func() { <-sem }()
			states[i], errs[i] = p.Probe(ctx, d)
		}(i, d)
	}
	wg.Wait()

	var result *multierror.Error
	for _, err := range errs {
		if err != nil {
			result = multierror.Append(result, err)
		}
	}
	return states, errs, result.ErrorOrNil()
}
