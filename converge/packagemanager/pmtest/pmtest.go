// Package pmtest provides an in-memory package manager for tests.
package pmtest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/steelcutops/converge/converge/packagemanager"
)

// Call records one mutating invocation.
type Call struct {
	Op      string
	Request packagemanager.Request
}

// PackageManager keeps installed packages in a map. Install and Upgrade
// record the request version, or DefaultVersion when none was pinned.
type PackageManager struct {
	ManagerName    string
	DefaultVersion string
	Unavailable    bool
	// Fail makes the named package's mutating calls return an error.
	Fail map[string]error
	// QueryErr makes Query fail for the named package.
	QueryErr map[string]error
	// Delay is slept inside mutating calls, ignoring context cancellation.
	Delay time.Duration

	mu        sync.Mutex
	installed map[string]string
	calls     []Call
	queries   int
}

func New(name string, installed map[string]string) *PackageManager {
	pm := &PackageManager{ManagerName: name, DefaultVersion: "1.0.0", installed: map[string]string{}}
	for k, v := range installed {
		pm.installed[k] = v
	}
	return pm
}

func (pm *PackageManager) Name() string { return pm.ManagerName }

func (pm *PackageManager) Available(ctx context.Context) error {
	if pm.Unavailable {
		return fmt.Errorf("%s: not found: %w", pm.ManagerName, packagemanager.ErrUnavailable)
	}
	return nil
}

func (pm *PackageManager) Query(ctx context.Context, pkg string) (string, bool, error) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.queries++
	if err := pm.QueryErr[pkg]; err != nil {
		return "", false, err
	}
	version, ok := pm.installed[pkg]
	return version, ok, nil
}

func (pm *PackageManager) Install(ctx context.Context, req packagemanager.Request) error {
	return pm.mutate("install", req)
}

func (pm *PackageManager) Upgrade(ctx context.Context, req packagemanager.Request) error {
	return pm.mutate("upgrade", req)
}

func (pm *PackageManager) Remove(ctx context.Context, pkg string) error {
	return pm.mutate("remove", packagemanager.Request{Name: pkg})
}

func (pm *PackageManager) mutate(op string, req packagemanager.Request) error {
	if pm.Delay > 0 {
		time.Sleep(pm.Delay)
	}

	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.calls = append(pm.calls, Call{Op: op, Request: req})
	if err := pm.Fail[req.Name]; err != nil {
		return err
	}

	if op == "remove" {
		delete(pm.installed, req.Name)
		return nil
	}
	version := req.Version
	if version == "" {
		version = pm.DefaultVersion
	}
	pm.installed[req.Name] = version
	return nil
}

// Calls returns the mutating calls made so far, in order.
func (pm *PackageManager) Calls() []Call {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	return append([]Call(nil), pm.calls...)
}

func (pm *PackageManager) Queries() int {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	return pm.queries
}

// Installed returns the recorded version of pkg.
func (pm *PackageManager) Installed(pkg string) (string, bool) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	v, ok := pm.installed[pkg]
	return v, ok
}
