package packagemanager

import (
	"context"
	"regexp"
	"strings"

	cm "github.com/steelcutops/converge/converge/commandmanager"
)

// pep440Specifier matches range constraints pip understands as-is.
var pep440Specifier = regexp.MustCompile(`^\s*(~=|===|==|!=|<=|>=|<|>)\s*[0-9][0-9A-Za-z.*+!-]*\s*(,\s*(~=|===|==|!=|<=|>=|<|>)\s*[0-9][0-9A-Za-z.*+!-]*\s*)*$`)

// PipPackageManager manages language-runtime packages through
// `<python> -m pip`, so the interpreter decides which site-packages is used.
type PipPackageManager struct {
	CommandManager cm.CommandManager
	// Python defaults to python3.
	Python string
}

func (ppm *PipPackageManager) Name() string { return "pip" }

func (ppm *PipPackageManager) python() string {
	if ppm.Python == "" {
		return "python3"
	}
	return ppm.Python
}

// Available checks both the interpreter and that the pip module imports.
func (ppm *PipPackageManager) Available(ctx context.Context) error {
	if err := requireTools(ctx, ppm.Name(), ppm.CommandManager, ppm.python()); err != nil {
		return err
	}
	if err := ppm.pip(ctx, "--version"); err != nil {
		if exitCode(err) != 0 {
			return &unavailableError{manager: ppm.Name(), detail: ppm.python() + " has no pip module", err: err}
		}
		return err
	}
	return nil
}

// Query parses the "Version:" field of `pip show <pkg>`.
func (ppm *PipPackageManager) Query(ctx context.Context, pkg string) (string, bool, error) {
	output, err := ppm.CommandManager.Run(ctx, cm.CommandConfig{
		Command: ppm.python(),
		Args:    []string{"-m", "pip", "show", pkg},
		Env:     []string{"PIP_DISABLE_PIP_VERSION_CHECK=1"},
	})
	if err != nil {
		if exitCode(err) == 1 && strings.Contains(output.STDERR, "not found") {
			return "", false, nil
		}
		return "", false, err
	}

	for _, line := range strings.Split(output.STDOUT, "\n") {
		if version, ok := strings.CutPrefix(line, "Version:"); ok {
			return strings.TrimSpace(version), true, nil
		}
	}
	return "", false, nil
}

func (ppm *PipPackageManager) Install(ctx context.Context, req Request) error {
	return ppm.pip(ctx, "install", requirement(req))
}

func (ppm *PipPackageManager) Upgrade(ctx context.Context, req Request) error {
	return ppm.pip(ctx, "install", "--upgrade", requirement(req))
}

func (ppm *PipPackageManager) Remove(ctx context.Context, pkg string) error {
	return ppm.pip(ctx, "uninstall", "-y", pkg)
}

func (ppm *PipPackageManager) pip(ctx context.Context, args ...string) error {
	return run(ctx, ppm.CommandManager, cm.CommandConfig{
		Command: ppm.python(),
		Args:    append([]string{"-m", "pip"}, args...),
		Env:     []string{"PIP_DISABLE_PIP_VERSION_CHECK=1"},
	})
}

// requirement renders a pip requirement specifier: pins become "==",
// PEP 440 ranges are passed through and anything else installs the latest.
func requirement(req Request) string {
	switch {
	case req.Version != "":
		return req.Name + "==" + req.Version
	case pep440Specifier.MatchString(req.Constraint):
		return req.Name + strings.ReplaceAll(req.Constraint, " ", "")
	default:
		return req.Name
	}
}

type unavailableError struct {
	manager string
	detail  string
	err     error
}

func (e *unavailableError) Error() string {
	return e.manager + ": " + e.detail + ": " + e.err.Error()
}

func (e *unavailableError) Is(target error) bool { return target == ErrUnavailable }

func (e *unavailableError) Unwrap() error { return e.err }
