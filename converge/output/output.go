// Package output renders plans and run results.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/steelcutops/converge/converge/executor"
	"github.com/steelcutops/converge/converge/reconciler"
)

type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

func ParseFormat(s string) (Format, error) {
	switch s {
	case "text", "":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unknown format: %s", s)
	}
}

// Writer handles output in the specified format.
type Writer struct {
	format Format
	w      io.Writer
}

func NewWriter(w io.Writer, format Format) *Writer {
	return &Writer{format: format, w: w}
}

func (w *Writer) Format() Format { return w.format }

// Write outputs v in the configured format. Text output uses v's String
// method when it has one.
func (w *Writer) Write(v interface{}) error {
	switch w.format {
	case FormatJSON:
		enc := json.NewEncoder(w.w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case FormatYAML:
		enc := yaml.NewEncoder(w.w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		if s, ok := v.(fmt.Stringer); ok {
			_, err := fmt.Fprintln(w.w, s.String())
			return err
		}
		_, err := fmt.Fprintf(w.w, "%+v\n", v)
		return err
	}
}

// LogLine is the per-action line, e.g. "libxml2: Applied — installed via apt".
func LogLine(e executor.Entry) string {
	line := e.Action.Name() + ": " + e.Label()
	if e.Detail != "" {
		line += " — " + e.Detail
	}
	return line
}

// SummaryLine renders counts as "applied=N noop=N failed=N skipped=N".
func SummaryLine(s executor.Summary) string {
	return fmt.Sprintf("applied=%d noop=%d failed=%d skipped=%d", s.Applied, s.NoOp, s.Failed, s.Skipped)
}

type ActionReport struct {
	Name    string `json:"name" yaml:"name"`
	Manager string `json:"manager" yaml:"manager"`
	Kind    string `json:"kind" yaml:"kind"`
	Outcome string `json:"outcome,omitempty" yaml:"outcome,omitempty"`
	Detail  string `json:"detail,omitempty" yaml:"detail,omitempty"`
	Version string `json:"installed_version,omitempty" yaml:"installed_version,omitempty"`
}

// Report is the machine-readable form of a run.
type Report struct {
	Success         bool             `json:"success" yaml:"success"`
	DryRun          bool             `json:"dry_run,omitempty" yaml:"dry_run,omitempty"`
	TimedOut        bool             `json:"timed_out,omitempty" yaml:"timed_out,omitempty"`
	DurationSeconds float64          `json:"duration_seconds" yaml:"duration_seconds"`
	Summary         executor.Summary `json:"summary" yaml:"summary"`
	Actions         []ActionReport   `json:"actions" yaml:"actions"`

	lines []string
}

func (r Report) String() string {
	return strings.Join(append(append([]string(nil), r.lines...), SummaryLine(r.Summary)), "\n")
}

func NewReport(result *executor.Result) Report {
	r := Report{
		Success:         result.Success(),
		DryRun:          result.DryRun,
		TimedOut:        result.TimedOut,
		DurationSeconds: result.Duration.Seconds(),
		Summary:         result.Summary(),
		Actions:         make([]ActionReport, 0, len(result.Entries)),
	}
	for _, e := range result.Entries {
		ar := actionReport(e.Action)
		ar.Outcome = e.Label()
		ar.Detail = e.Detail
		r.Actions = append(r.Actions, ar)
		r.lines = append(r.lines, LogLine(e))
	}
	return r
}

// PlanReport lists planned actions without executing them.
type PlanReport struct {
	Actions []ActionReport `json:"actions" yaml:"actions"`
}

func NewPlanReport(actions []reconciler.Action) PlanReport {
	p := PlanReport{Actions: make([]ActionReport, 0, len(actions))}
	for _, a := range actions {
		ar := actionReport(a)
		ar.Detail = a.Reason
		if a.Err != nil {
			ar.Detail = a.Err.Error()
		}
		p.Actions = append(p.Actions, ar)
	}
	return p
}

func (p PlanReport) String() string {
	if len(p.Actions) == 0 {
		return "nothing to do"
	}
	lines := make([]string, len(p.Actions))
	for i, a := range p.Actions {
		lines[i] = fmt.Sprintf("%-7s %s/%s (%s)", a.Kind, a.Manager, a.Name, a.Detail)
	}
	return strings.Join(lines, "\n")
}

func actionReport(a reconciler.Action) ActionReport {
	ar := ActionReport{
		Name:    a.Name(),
		Manager: string(a.Descriptor.Manager()),
		Kind:    string(a.Kind),
	}
	if a.Current != nil && a.Current.Present {
		ar.Version = a.Current.Version
	}
	return ar
}
