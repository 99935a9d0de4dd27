package packagemanager

import (
	"context"
	"errors"
	"fmt"

	cm "github.com/steelcutops/converge/converge/commandmanager"
)

// ErrUnavailable is returned by Available when the manager's tooling is not
// installed on the target host.
var ErrUnavailable = errors.New("package manager unavailable")

// Request names a package and, optionally, the version to install.
type Request struct {
	Name string
	// Version is an exact version pin.
	Version string
	// Constraint is a version range; only managers that understand range
	// specifiers use it.
	Constraint string
}

// PackageManager is the host package-management facility for one class of
// packages. Query never mutates host state.
type PackageManager interface {
	Name() string
	Available(ctx context.Context) error
	// Query returns the installed version. present is false, with a nil
	// error, when the package is simply not installed.
	Query(ctx context.Context, pkg string) (version string, present bool, err error)
	Install(ctx context.Context, req Request) error
	Upgrade(ctx context.Context, req Request) error
	Remove(ctx context.Context, pkg string) error
}

// requireTools checks every tool is on the target host's PATH.
func requireTools(ctx context.Context, manager string, c cm.CommandManager, tools ...string) error {
	for _, tool := range tools {
		if err := c.LookPath(ctx, tool); err != nil {
			if errors.Is(err, cm.ErrCommandNotFound) {
				return fmt.Errorf("%s: %s not found: %w", manager, tool, ErrUnavailable)
			}
			return fmt.Errorf("%s: looking up %s: %w", manager, tool, err)
		}
	}
	return nil
}

// exitCode returns the non-zero exit status carried by err, or 0.
func exitCode(err error) int {
	var exitErr *cm.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return 0
}

func run(ctx context.Context, c cm.CommandManager, config cm.CommandConfig) error {
	_, err := c.Run(ctx, config)
	return err
}
