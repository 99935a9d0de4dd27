package packagemanager

import (
	"context"

	cm "github.com/steelcutops/converge/converge/commandmanager"
)

type YumPackageManager struct {
	CommandManager cm.CommandManager
}

func (ypm *YumPackageManager) Name() string { return "yum" }

func (ypm *YumPackageManager) Available(ctx context.Context) error {
	return requireTools(ctx, ypm.Name(), ypm.CommandManager, "yum", "rpm")
}

func (ypm *YumPackageManager) Query(ctx context.Context, pkg string) (string, bool, error) {
	return rpmQuery(ctx, ypm.CommandManager, pkg)
}

func (ypm *YumPackageManager) Install(ctx context.Context, req Request) error {
	return run(ctx, ypm.CommandManager, cm.CommandConfig{
		Command: "yum",
		Sudo:    true,
		Args:    []string{"install", "-y", rpmTarget(req)},
	})
}

func (ypm *YumPackageManager) Upgrade(ctx context.Context, req Request) error {
	verb := "update"
	if req.Version != "" {
		verb = "install"
	}
	return run(ctx, ypm.CommandManager, cm.CommandConfig{
		Command: "yum",
		Sudo:    true,
		Args:    []string{verb, "-y", rpmTarget(req)},
	})
}

func (ypm *YumPackageManager) Remove(ctx context.Context, pkg string) error {
	return run(ctx, ypm.CommandManager, cm.CommandConfig{
		Command: "yum",
		Sudo:    true,
		Args:    []string{"remove", "-y", pkg},
	})
}
