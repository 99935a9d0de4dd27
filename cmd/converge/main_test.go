package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steelcutops/converge/converge/descriptor"
	"github.com/steelcutops/converge/converge/packagemanager"
	"github.com/steelcutops/converge/converge/packagemanager/pmtest"
	"github.com/steelcutops/converge/logger"
)

const packagesYAML = `version: 1
packages:
  - name: libxml2
    manager: os-package
  - name: requests
    manager: language-runtime-package
    state: absent
  - name: lxml
    manager: language-runtime-package
    version: ">=1.0"
`

type testHost struct {
	apt *pmtest.PackageManager
	pip *pmtest.PackageManager
}

func newTestHost() *testHost {
	return &testHost{
		apt: pmtest.New("apt", nil),
		pip: pmtest.New("pip", map[string]string{"requests": "0.13.0"}),
	}
}

func (h *testHost) factory(ctx context.Context, f *flags, l logger.Logger) (map[descriptor.Manager]packagemanager.PackageManager, error) {
	return map[descriptor.Manager]packagemanager.PackageManager{
		descriptor.ManagerOS:              h.apt,
		descriptor.ManagerLanguageRuntime: h.pip,
	}, nil
}

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func runApp(h *testHost, args ...string) (int, string, string) {
	var stdout, stderr bytes.Buffer
	a := &app{stdout: &stdout, stderr: &stderr, managers: h.factory}
	code := a.run(args)
	return code, stdout.String(), stderr.String()
}

func TestApply(t *testing.T) {
	h := newTestHost()
	path := writeConfig(t, "packages.yaml", packagesYAML)

	code, stdout, _ := runApp(h, "apply", path)
	assert.Equal(t, 0, code)
	assert.Equal(t, "libxml2: Applied — installed via apt\n"+
		"requests: Applied — removed via pip\n"+
		"lxml: Applied — installed via pip\n"+
		"applied=3 noop=0 failed=0 skipped=0\n", stdout)

	code, stdout, _ = runApp(h, path)
	assert.Equal(t, 0, code)
	assert.Contains(t, stdout, "applied=0 noop=3 failed=0 skipped=0")
}

func TestApplyFailFast(t *testing.T) {
	h := newTestHost()
	h.apt.Fail = map[string]error{"libxml2": errors.New("E: Unable to locate package libxml2")}
	path := writeConfig(t, "packages.yaml", packagesYAML)

	code, stdout, _ := runApp(h, "apply", "--fail-fast", path)
	assert.Equal(t, 1, code)
	assert.Contains(t, stdout, "libxml2: Failed — Install libxml2: E: Unable to locate package libxml2")
	assert.Contains(t, stdout, "applied=0 noop=0 failed=1 skipped=2")
	assert.Empty(t, h.pip.Calls())
}

func TestApplyContinuesAfterFailure(t *testing.T) {
	h := newTestHost()
	h.apt.Fail = map[string]error{"libxml2": errors.New("exit status 100")}
	path := writeConfig(t, "packages.yaml", packagesYAML)

	code, stdout, _ := runApp(h, "apply", path)
	assert.Equal(t, 1, code)
	assert.Contains(t, stdout, "applied=2 noop=0 failed=1 skipped=0")
}

func TestApplyTimeout(t *testing.T) {
	h := newTestHost()
	h.apt.Delay = 300 * time.Millisecond
	path := writeConfig(t, "packages.yaml", packagesYAML)

	code, stdout, _ := runApp(h, "apply", "--timeout", "0.1", path)
	assert.Equal(t, 1, code)
	assert.Contains(t, stdout, "libxml2: Failed — timed out after")
	assert.Contains(t, stdout, "requests: Skipped — run timed out")
	assert.Contains(t, stdout, "applied=0 noop=0 failed=1 skipped=2")
	assert.Empty(t, h.pip.Calls())
}

func TestApplyDryRunJSON(t *testing.T) {
	h := newTestHost()
	path := writeConfig(t, "packages.yaml", packagesYAML)

	code, stdout, stderr := runApp(h, "apply", "--dry-run", "-o", "json", path)
	assert.Equal(t, 0, code)
	assert.Empty(t, h.apt.Calls())
	assert.Empty(t, h.pip.Calls())

	var report struct {
		Success bool `json:"success"`
		DryRun  bool `json:"dry_run"`
		Summary struct {
			Skipped int `json:"skipped"`
		} `json:"summary"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &report))
	assert.True(t, report.Success)
	assert.True(t, report.DryRun)
	assert.Equal(t, 3, report.Summary.Skipped)
	assert.Contains(t, stderr, "libxml2: Skipped — dry run")
}

func TestApplyConflictAbortsBeforeProbing(t *testing.T) {
	h := newTestHost()
	path := writeConfig(t, "packages.yaml", `packages:
  - os-package:telnet
  - name: telnet
    manager: os-package
    state: absent
`)

	code, stdout, stderr := runApp(h, "apply", path)
	assert.Equal(t, 1, code)
	assert.Empty(t, stdout)
	assert.Contains(t, stderr, "conflicting desired state")
	assert.Zero(t, h.apt.Queries())
}

func TestPlanINI(t *testing.T) {
	h := newTestHost()
	path := writeConfig(t, "packages.ini", "[os-package]\nlibxml2 = present\n\n[language-runtime-package]\nrequests = absent\n")

	code, stdout, _ := runApp(h, "plan", "-o", "yaml", path)
	assert.Equal(t, 0, code)
	assert.Contains(t, stdout, "kind: Install")
	assert.Contains(t, stdout, "kind: Remove")
	assert.Contains(t, stdout, "installed_version: 0.13.0")
}

func TestApplyInvalidConfig(t *testing.T) {
	h := newTestHost()
	path := writeConfig(t, "packages.yaml", "packages:\n  - name: gcc\n    manager: rubygems\n  - name: ''\n    manager: os-package\n")

	code, _, stderr := runApp(h, "apply", path)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "rubygems")
	assert.Contains(t, stderr, "name is required")
	assert.Zero(t, h.apt.Queries())
}

func TestApplyMetricsFile(t *testing.T) {
	h := newTestHost()
	path := writeConfig(t, "packages.yaml", packagesYAML)
	metricsPath := filepath.Join(t.TempDir(), "converge.prom")

	code, _, _ := runApp(h, "apply", "--metrics-file", metricsPath, path)
	assert.Equal(t, 0, code)

	content, err := os.ReadFile(metricsPath)
	require.NoError(t, err)
	assert.Contains(t, string(content), "converge_last_run_success 1")
}

func TestPlan(t *testing.T) {
	h := newTestHost()
	path := writeConfig(t, "packages.yaml", packagesYAML)

	code, stdout, _ := runApp(h, "plan", path)
	assert.Equal(t, 0, code)
	assert.Equal(t, "Install os-package/libxml2 (not installed)\n"+
		"Remove  language-runtime-package/requests (installed at 0.13.0)\n"+
		"Install language-runtime-package/lxml (not installed)\n", stdout)
	assert.Empty(t, h.apt.Calls())
	assert.Empty(t, h.pip.Calls())
}

func TestPlanProbeUnavailable(t *testing.T) {
	h := newTestHost()
	h.pip.Unavailable = true
	path := writeConfig(t, "packages.yaml", packagesYAML)

	code, stdout, _ := runApp(h, "plan", path)
	assert.Equal(t, 1, code)
	assert.Contains(t, stdout, "pip unavailable")
}

func TestBadOutputFormat(t *testing.T) {
	code, _, stderr := runApp(newTestHost(), "apply", "-o", "xml", writeConfig(t, "p.yaml", packagesYAML))
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "unknown format: xml")
}

func TestLogFile(t *testing.T) {
	h := newTestHost()
	logPath := filepath.Join(t.TempDir(), "converge.log")

	code, _, stderr := runApp(h, "apply", "--debug", "--log", logPath, writeConfig(t, "p.yaml", packagesYAML))
	assert.Equal(t, 0, code)
	assert.Empty(t, stderr)

	content, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(content), "level=debug")
	assert.Contains(t, string(content), "run finished")
}
