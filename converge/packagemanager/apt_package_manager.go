package packagemanager

import (
	"context"
	"strings"

	cm "github.com/steelcutops/converge/converge/commandmanager"
)

var aptOptions = []string{"-o", "Dpkg::Options::=--force-confdef", "-o", "Dpkg::Options::=--force-confold"}

type AptPackageManager struct {
	CommandManager cm.CommandManager
}

func (apm *AptPackageManager) Name() string { return "apt" }

func (apm *AptPackageManager) Available(ctx context.Context) error {
	return requireTools(ctx, apm.Name(), apm.CommandManager, "apt-get", "dpkg-query")
}

func (apm *AptPackageManager) Query(ctx context.Context, pkg string) (string, bool, error) {
	output, err := apm.CommandManager.Run(ctx, cm.CommandConfig{
		Command: "dpkg-query",
		Args:    []string{"-W", `-f=${Status}\t${Version}\n`, pkg},
	})
	if err != nil {
		// dpkg-query exits 1 for packages it has never seen
		if exitCode(err) == 1 && strings.Contains(output.STDERR, "no packages found") {
			return "", false, nil
		}
		return "", false, err
	}

	for _, line := range strings.Split(output.STDOUT, "\n") {
		status, version, ok := strings.Cut(line, "\t")
		if !ok {
			continue
		}
		// removed packages linger as "deinstall ok config-files"
		if strings.HasSuffix(strings.TrimSpace(status), " installed") {
			return strings.TrimSpace(version), true, nil
		}
	}
	return "", false, nil
}

func (apm *AptPackageManager) Install(ctx context.Context, req Request) error {
	args := append([]string{"install", "-y"}, aptOptions...)
	return run(ctx, apm.CommandManager, cm.CommandConfig{
		Command: "apt-get",
		Sudo:    true,
		Env:     []string{"DEBIAN_FRONTEND=noninteractive"},
		Args:    append(args, aptTarget(req)),
	})
}

func (apm *AptPackageManager) Upgrade(ctx context.Context, req Request) error {
	args := []string{"install", "-y"}
	if req.Version == "" {
		args = append(args, "--only-upgrade")
	} else {
		args = append(args, "--allow-downgrades")
	}
	args = append(args, aptOptions...)
	return run(ctx, apm.CommandManager, cm.CommandConfig{
		Command: "apt-get",
		Sudo:    true,
		Env:     []string{"DEBIAN_FRONTEND=noninteractive"},
		Args:    append(args, aptTarget(req)),
	})
}

func (apm *AptPackageManager) Remove(ctx context.Context, pkg string) error {
	return run(ctx, apm.CommandManager, cm.CommandConfig{
		Command: "apt-get",
		Sudo:    true,
		Env:     []string{"DEBIAN_FRONTEND=noninteractive"},
		Args:    []string{"remove", "-y", pkg},
	})
}

func aptTarget(req Request) string {
	if req.Version != "" {
		return req.Name + "=" + req.Version
	}
	return req.Name
}
