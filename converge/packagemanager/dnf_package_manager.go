package packagemanager

import (
	"context"
	"strings"

	cm "github.com/steelcutops/converge/converge/commandmanager"
)

type DnfPackageManager struct {
	CommandManager cm.CommandManager
}

func (dpm *DnfPackageManager) Name() string { return "dnf" }

func (dpm *DnfPackageManager) Available(ctx context.Context) error {
	return requireTools(ctx, dpm.Name(), dpm.CommandManager, "dnf", "rpm")
}

func (dpm *DnfPackageManager) Query(ctx context.Context, pkg string) (string, bool, error) {
	return rpmQuery(ctx, dpm.CommandManager, pkg)
}

func (dpm *DnfPackageManager) Install(ctx context.Context, req Request) error {
	return run(ctx, dpm.CommandManager, cm.CommandConfig{
		Command: "dnf",
		Sudo:    true,
		Args:    []string{"install", "-y", rpmTarget(req)},
	})
}

func (dpm *DnfPackageManager) Upgrade(ctx context.Context, req Request) error {
	verb := "upgrade"
	if req.Version != "" {
		// a pinned version may be older than what is installed
		verb = "install"
	}
	return run(ctx, dpm.CommandManager, cm.CommandConfig{
		Command: "dnf",
		Sudo:    true,
		Args:    []string{verb, "-y", rpmTarget(req)},
	})
}

func (dpm *DnfPackageManager) Remove(ctx context.Context, pkg string) error {
	return run(ctx, dpm.CommandManager, cm.CommandConfig{
		Command: "dnf",
		Sudo:    true,
		Args:    []string{"remove", "-y", pkg},
	})
}

// rpmQuery asks the rpm database directly; it is shared by dnf and yum.
func rpmQuery(ctx context.Context, c cm.CommandManager, pkg string) (string, bool, error) {
	output, err := c.Run(ctx, cm.CommandConfig{
		Command: "rpm",
		Args:    []string{"-q", "--qf", `%{VERSION}-%{RELEASE}\n`, pkg},
	})
	if err != nil {
		if exitCode(err) == 1 && strings.Contains(output.STDOUT+output.STDERR, "is not installed") {
			return "", false, nil
		}
		return "", false, err
	}

	// multilib hosts print one line per arch
	for _, line := range strings.Split(output.STDOUT, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line, true, nil
		}
	}
	return "", false, nil
}

func rpmTarget(req Request) string {
	if req.Version != "" {
		return req.Name + "-" + req.Version
	}
	return req.Name
}
