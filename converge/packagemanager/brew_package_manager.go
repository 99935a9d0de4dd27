package packagemanager

import (
	"context"
	"strings"

	cm "github.com/steelcutops/converge/converge/commandmanager"
)

type BrewPackageManager struct {
	CommandManager cm.CommandManager
}

func (bpm *BrewPackageManager) Name() string { return "brew" }

func (bpm *BrewPackageManager) Available(ctx context.Context) error {
	return requireTools(ctx, bpm.Name(), bpm.CommandManager, "brew")
}

// Query parses `brew list --versions <pkg>`, e.g. "libxml2 2.11.4 2.12.1".
// The last listed version is the newest keg.
func (bpm *BrewPackageManager) Query(ctx context.Context, pkg string) (string, bool, error) {
	output, err := bpm.CommandManager.Run(ctx, cm.CommandConfig{
		Command: "brew",
		Args:    []string{"list", "--versions", pkg},
	})
	if err != nil {
		if exitCode(err) == 1 && strings.TrimSpace(output.STDOUT) == "" {
			return "", false, nil
		}
		return "", false, err
	}

	fields := strings.Fields(output.STDOUT)
	if len(fields) < 2 {
		return "", false, nil
	}
	return fields[len(fields)-1], true, nil
}

func (bpm *BrewPackageManager) Install(ctx context.Context, req Request) error {
	return run(ctx, bpm.CommandManager, cm.CommandConfig{
		Command: "brew",
		Env:     []string{"HOMEBREW_NO_AUTO_UPDATE=1"},
		Args:    []string{"install", brewTarget(req)},
	})
}

func (bpm *BrewPackageManager) Upgrade(ctx context.Context, req Request) error {
	verb := "upgrade"
	if req.Version != "" {
		verb = "install"
	}
	return run(ctx, bpm.CommandManager, cm.CommandConfig{
		Command: "brew",
		Env:     []string{"HOMEBREW_NO_AUTO_UPDATE=1"},
		Args:    []string{verb, brewTarget(req)},
	})
}

func (bpm *BrewPackageManager) Remove(ctx context.Context, pkg string) error {
	return run(ctx, bpm.CommandManager, cm.CommandConfig{
		Command: "brew",
		Args:    []string{"uninstall", pkg},
	})
}

// brewTarget uses versioned formulae ("python@3.12") for pins.
func brewTarget(req Request) string {
	if req.Version != "" {
		return req.Name + "@" + req.Version
	}
	return req.Name
}
