package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/steelcutops/converge/converge/config"
	"github.com/steelcutops/converge/converge/descriptor"
	"github.com/steelcutops/converge/converge/executor"
	"github.com/steelcutops/converge/converge/host"
	"github.com/steelcutops/converge/converge/metrics"
	"github.com/steelcutops/converge/converge/output"
	"github.com/steelcutops/converge/converge/packagemanager"
	"github.com/steelcutops/converge/converge/prober"
	"github.com/steelcutops/converge/converge/reconciler"
	"github.com/steelcutops/converge/logger"
)

type flags struct {
	Debug              bool
	DryRun             bool
	FailFast           bool
	Hostname           string
	KeyPassPrompt      bool
	KnownHosts         string
	LogFileName        string
	MetricsFile        string
	Output             string
	PasswordPrompt     bool
	ProbeConcurrency   int
	Python             string
	SudoPasswordPrompt bool
	Timeout            float64
	Username           string
}

// managerFactory binds manager kinds to package managers for the target.
type managerFactory func(ctx context.Context, f *flags, l logger.Logger) (map[descriptor.Manager]packagemanager.PackageManager, error)

type app struct {
	flags    flags
	stdout   io.Writer
	stderr   io.Writer
	managers managerFactory
	// exitCode is set by apply and plan once the run has completed.
	exitCode int
}

func main() {
	a := &app{stdout: os.Stdout, stderr: os.Stderr, managers: hostManagers}
	os.Exit(a.run(os.Args[1:]))
}

func (a *app) run(args []string) int {
	cmd := a.rootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(a.stdout)
	cmd.SetErr(a.stderr)
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(a.stderr, "Error:", err)
		return 1
	}
	return a.exitCode
}

func (a *app) rootCmd() *cobra.Command {
	f := &a.flags
	root := &cobra.Command{
		Use:   "converge [config]",
		Short: "Declarative single-host package reconciliation",
		Long: `converge installs, upgrades and removes OS and language-runtime packages
until the target host matches a declared package list.

With a config argument and no subcommand it behaves like "converge apply".`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return cmd.Help()
			}
			return a.apply(cmd.Context(), args[0])
		},
	}

	pf := root.PersistentFlags()
	pf.BoolVar(&f.Debug, "debug", false, "Enable debug log level")
	pf.StringVar(&f.LogFileName, "log", "", "Log file name (default stderr)")
	pf.StringVarP(&f.Output, "output", "o", "text", "Output format: text, json, yaml")
	pf.StringVar(&f.Hostname, "hostname", "localhost", "Host to reconcile; anything but localhost is reached over SSH")
	pf.StringVar(&f.Username, "username", "", "Username to use for SSH connection")
	pf.BoolVar(&f.PasswordPrompt, "password", false, "Use a password for SSH connection")
	pf.BoolVar(&f.KeyPassPrompt, "keypass", false, "Passphrase for decrypting SSH keys")
	pf.BoolVar(&f.SudoPasswordPrompt, "sudo-password", false, "Prompt for sudo password")
	pf.StringVar(&f.KnownHosts, "known-hosts", "", "known_hosts file for SSH host key checking")
	pf.StringVar(&f.Python, "python", "python3", "Python interpreter whose pip manages language-runtime packages")
	pf.IntVar(&f.ProbeConcurrency, "probe-concurrency", 1, "Maximum number of packages probed in parallel")

	addApplyFlags(root, f)
	root.AddCommand(a.applyCmd(), a.planCmd())

	_ = root.RegisterFlagCompletionFunc("output", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return []string{"text", "json", "yaml"}, cobra.ShellCompDirectiveNoFileComp
	})
	return root
}

func addApplyFlags(cmd *cobra.Command, f *flags) {
	cmd.Flags().BoolVar(&f.FailFast, "fail-fast", false, "Stop at the first failed action")
	cmd.Flags().Float64Var(&f.Timeout, "timeout", 0, "Bound the whole run to this many seconds")
	cmd.Flags().BoolVar(&f.DryRun, "dry-run", false, "Plan and report without changing the host")
	cmd.Flags().StringVar(&f.MetricsFile, "metrics-file", "", "Write Prometheus textfile metrics to this path")
}

func (a *app) applyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apply <config>",
		Short: "Reconcile the host against a package list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.apply(cmd.Context(), args[0])
		},
	}
	addApplyFlags(cmd, &a.flags)
	return cmd
}

func (a *app) planCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "plan <config>",
		Short: "Show the actions apply would take",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.plan(cmd.Context(), args[0])
		},
	}
}

func (a *app) apply(ctx context.Context, path string) error {
	w, l, closeLog, err := a.setup()
	if err != nil {
		return err
	}
	defer closeLog()

	ds, err := loadDescriptors(path)
	if err != nil {
		return err
	}

	managers, err := a.managers(ctx, &a.flags, l)
	if err != nil {
		return err
	}

	// the timeout covers probing as well as execution; the executor gets
	// whatever probing left of it
	planCtx := ctx
	var deadline time.Time
	if a.flags.Timeout > 0 {
		deadline = time.Now().Add(time.Duration(a.flags.Timeout * float64(time.Second)))
		var cancel context.CancelFunc
		planCtx, cancel = context.WithDeadline(ctx, deadline)
		defer cancel()
	}

	r := &reconciler.Reconciler{Prober: prober.New(managers, l), ProbeConcurrency: a.flags.ProbeConcurrency, Logger: l}
	actions, err := r.Plan(planCtx, ds)
	if err != nil {
		return err
	}

	e := executor.New(managers, l)
	e.FailFast = a.flags.FailFast
	e.DryRun = a.flags.DryRun
	if !deadline.IsZero() {
		e.Timeout = max(time.Until(deadline), time.Nanosecond)
	}
	result := e.Run(ctx, actions)

	report := output.NewReport(result)
	if w.Format() != output.FormatText {
		for _, entry := range result.Entries {
			l.Info(output.LogLine(entry))
		}
	}
	if err := w.Write(report); err != nil {
		return err
	}

	if a.flags.MetricsFile != "" {
		if err := metrics.WriteTextfile(a.flags.MetricsFile, result); err != nil {
			l.Error("Failed to write metrics", "error", err)
		}
	}

	l.Info("run finished", "summary", output.SummaryLine(report.Summary), "duration", result.Duration.String())
	a.exitCode = result.ExitCode()
	return nil
}

func (a *app) plan(ctx context.Context, path string) error {
	w, l, closeLog, err := a.setup()
	if err != nil {
		return err
	}
	defer closeLog()

	ds, err := loadDescriptors(path)
	if err != nil {
		return err
	}
	managers, err := a.managers(ctx, &a.flags, l)
	if err != nil {
		return err
	}

	r := &reconciler.Reconciler{Prober: prober.New(managers, l), ProbeConcurrency: a.flags.ProbeConcurrency, Logger: l}
	actions, err := r.Plan(ctx, ds)
	if err != nil {
		return err
	}
	if err := w.Write(output.NewPlanReport(actions)); err != nil {
		return err
	}

	for _, action := range actions {
		if action.Err != nil {
			a.exitCode = 1
		}
	}
	return nil
}

func (a *app) setup() (*output.Writer, logger.Logger, func(), error) {
	format, err := output.ParseFormat(a.flags.Output)
	if err != nil {
		return nil, nil, nil, err
	}

	logOut := a.stderr
	closeLog := func() {}
	if a.flags.LogFileName != "" {
		file, err := os.OpenFile(a.flags.LogFileName, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("opening log file: %w", err)
		}
		logOut = file
		closeLog = func() { file.Close() }
	}

	l := logger.NewWithOptions(logOut, a.flags.Debug)
	l.Debug("Debug mode enabled")
	return output.NewWriter(a.stdout, format), l, closeLog, nil
}

func loadDescriptors(path string) ([]descriptor.Descriptor, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	return cfg.Descriptors()
}

// hostManagers connects to the target and returns its package managers.
func hostManagers(ctx context.Context, f *flags, l logger.Logger) (map[descriptor.Manager]packagemanager.PackageManager, error) {
	options, err := buildHostOptions(f, l)
	if err != nil {
		return nil, err
	}
	h, err := host.NewHost(ctx, f.Hostname, options...)
	if err != nil {
		return nil, err
	}
	return h.PackageManagers(), nil
}

func buildHostOptions(f *flags, l logger.Logger) ([]host.HostOption, error) {
	options := []host.HostOption{host.WithLogger(l.With("host", f.Hostname)), host.WithPython(f.Python)}
	if f.Username != "" {
		options = append(options, host.WithUser(f.Username))
	}
	if f.KnownHosts != "" {
		options = append(options, host.WithKnownHosts(f.KnownHosts))
	}

	prompts := []struct {
		enabled bool
		prompt  string
		option  func(string) host.HostOption
	}{
		{f.PasswordPrompt, "Enter the password: ", host.WithPassword},
		{f.KeyPassPrompt, "Enter the key passphrase: ", host.WithKeyPassphrase},
		{f.SudoPasswordPrompt, "Enter the sudo password: ", host.WithSudoPassword},
	}
	for _, p := range prompts {
		if !p.enabled {
			continue
		}
		secret, err := readSecret(p.prompt)
		if err != nil {
			return nil, err
		}
		if secret != "" {
			options = append(options, p.option(secret))
		}
	}
	return options, nil
}

var errNotTerminal = errors.New("stdin is not a terminal")

func readSecret(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("reading %q: %w", prompt, errNotTerminal)
	}
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading secret: %w", err)
	}
	return string(b), nil
}
