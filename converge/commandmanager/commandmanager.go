package commandmanager

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrCommandNotFound is returned when the requested binary does not exist
// on the target host.
var ErrCommandNotFound = errors.New("command not found")

// CommandConfig describes a single command invocation.
type CommandConfig struct {
	Command string
	Args    []string
	Sudo    bool
	Env     []string
}

func (c CommandConfig) String() string {
	return joinCommand(c.Command, c.Args)
}

// CommandResult encapsulates the results from a command execution.
type CommandResult struct {
	Command   string
	STDOUT    string
	STDERR    string
	ExitCode  int
	Duration  time.Duration
	Timestamp time.Time
}

// CommandManager runs commands on the target host.
type CommandManager interface {
	Run(ctx context.Context, config CommandConfig) (CommandResult, error)
	// LookPath returns ErrCommandNotFound (wrapped) when name is not on the
	// target host's PATH.
	LookPath(ctx context.Context, name string) error
}

// ExitError reports a command that ran but exited non-zero.
type ExitError struct {
	Command string
	Code    int
	Stderr  string
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("%s: exit status %d", e.Command, e.Code)
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += ": " + s
	}
	return msg
}

// Credentials used for SSH authentication and sudo.
type Credentials struct {
	User          string
	Password      string
	KeyPassphrase string
	SudoPassword  string
}

func joinCommand(cmd string, args []string) string {
	if len(args) == 0 {
		return shellEscape(cmd)
	}

	var builder strings.Builder
	builder.WriteString(shellEscape(cmd))
	for _, arg := range args {
		builder.WriteByte(' ')
		builder.WriteString(shellEscape(arg))
	}
	return builder.String()
}

func shellEscape(value string) string {
	if value == "" {
		return "''"
	}
	if strings.IndexFunc(value, needsQuote) < 0 {
		return value
	}
	return "'" + strings.ReplaceAll(value, "'", `'"'"'`) + "'"
}

func needsQuote(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return false
	}
	return !strings.ContainsRune("-_./:=@+,%", r)
}
