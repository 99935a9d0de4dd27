package packagemanager

import (
	"context"
	"strings"

	cm "github.com/steelcutops/converge/converge/commandmanager"
)

type ApkPackageManager struct {
	CommandManager cm.CommandManager
}

func (apkm *ApkPackageManager) Name() string { return "apk" }

func (apkm *ApkPackageManager) Available(ctx context.Context) error {
	return requireTools(ctx, apkm.Name(), apkm.CommandManager, "apk")
}

// Query parses `apk list --installed <pkg>`, whose lines look like
// "libxml2-2.11.4-r0 x86_64 {libxml2} (MIT) [installed]".
func (apkm *ApkPackageManager) Query(ctx context.Context, pkg string) (string, bool, error) {
	output, err := apkm.CommandManager.Run(ctx, cm.CommandConfig{
		Command: "apk",
		Args:    []string{"list", "--installed", pkg},
	})
	if err != nil {
		return "", false, err
	}

	for _, line := range strings.Split(output.STDOUT, "\n") {
		fields := strings.Fields(line)
		if len(fields) == 0 || !strings.Contains(line, "[installed]") {
			continue
		}
		version, ok := strings.CutPrefix(fields[0], pkg+"-")
		if !ok || version == "" || version[0] < '0' || version[0] > '9' {
			// a different package sharing the prefix, e.g. libxml2-dev
			continue
		}
		return version, true, nil
	}
	return "", false, nil
}

func (apkm *ApkPackageManager) Install(ctx context.Context, req Request) error {
	return run(ctx, apkm.CommandManager, cm.CommandConfig{
		Command: "apk",
		Sudo:    true,
		Args:    []string{"add", apkTarget(req)},
	})
}

// APK has no dedicated single-package upgrade; `add -u` upgrades in place.
func (apkm *ApkPackageManager) Upgrade(ctx context.Context, req Request) error {
	return run(ctx, apkm.CommandManager, cm.CommandConfig{
		Command: "apk",
		Sudo:    true,
		Args:    []string{"add", "-u", apkTarget(req)},
	})
}

func (apkm *ApkPackageManager) Remove(ctx context.Context, pkg string) error {
	return run(ctx, apkm.CommandManager, cm.CommandConfig{
		Command: "apk",
		Sudo:    true,
		Args:    []string{"del", pkg},
	})
}

func apkTarget(req Request) string {
	if req.Version != "" {
		return req.Name + "=" + req.Version
	}
	return req.Name
}
