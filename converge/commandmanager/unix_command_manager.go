package commandmanager

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/steelcutops/converge/logger"
)

type SSHDialer interface {
	Dial(network, addr string, config *ssh.ClientConfig, timeout time.Duration) (*ssh.Client, error)
}

// RealSSHClient dials with golang.org/x/crypto/ssh.
type RealSSHClient struct{}

func (RealSSHClient) Dial(network, addr string, config *ssh.ClientConfig, timeout time.Duration) (*ssh.Client, error) {
	config.Timeout = timeout
	return ssh.Dial(network, addr, config)
}

// UnixCommandManager runs commands on the local machine, or on a single
// remote host over SSH when Hostname is not local.
type UnixCommandManager struct {
	Hostname       string
	SSHClient      SSHDialer
	KnownHostsPath string
	Logger         logger.Logger
	Credentials
}

func (u *UnixCommandManager) Run(ctx context.Context, config CommandConfig) (CommandResult, error) {
	if u.isLocal() {
		u.log().Debug("running local command", "command", config.String(), "sudo", config.Sudo)
		return u.RunLocal(ctx, config)
	}

	u.log().Debug("running remote command", "hostname", u.Hostname, "command", config.String(), "sudo", config.Sudo)
	return u.RunRemote(ctx, config)
}

func (u *UnixCommandManager) LookPath(ctx context.Context, name string) error {
	if u.isLocal() {
		if _, err := exec.LookPath(name); err != nil {
			return fmt.Errorf("%s: %w", name, ErrCommandNotFound)
		}
		return nil
	}

	_, err := u.RunRemote(ctx, CommandConfig{Command: "command", Args: []string{"-v", name}})
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return fmt.Errorf("%s on %s: %w", name, u.Hostname, ErrCommandNotFound)
	}
	return err
}

func (u *UnixCommandManager) RunLocal(ctx context.Context, config CommandConfig) (CommandResult, error) {
	start := time.Now()

	// root needs no sudo, and minimal containers often lack it
	sudo := config.Sudo && os.Geteuid() != 0

	name, args := config.Command, config.Args
	if sudo {
		name, args = "sudo", u.sudoArgs(config)
	}

	cmd := exec.CommandContext(ctx, name, args...)
	if len(config.Env) > 0 && !sudo {
		cmd.Env = append(os.Environ(), config.Env...)
	}
	if sudo && u.SudoPassword != "" {
		cmd.Stdin = strings.NewReader(u.SudoPassword + "\n")
	}

	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	result := CommandResult{
		Command:   config.String(),
		STDOUT:    stdout.String(),
		STDERR:    stderr.String(),
		ExitCode:  getExitCode(err),
		Duration:  time.Since(start),
		Timestamp: start,
	}

	if errors.Is(err, exec.ErrNotFound) {
		return result, fmt.Errorf("%s: %w", config.Command, ErrCommandNotFound)
	}
	if err := sudoError(result); err != nil {
		return result, err
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return result, &ExitError{Command: result.Command, Code: result.ExitCode, Stderr: result.STDERR}
		}
		return result, err
	}
	return result, nil
}

func (u *UnixCommandManager) RunRemote(ctx context.Context, config CommandConfig) (CommandResult, error) {
	if u.SSHClient == nil {
		return CommandResult{}, errors.New("SSHClient is not initialized")
	}

	sshConfig, err := u.getSSHConfig()
	if err != nil {
		return CommandResult{}, err
	}

	var dialTimeout time.Duration
	if deadline, ok := ctx.Deadline(); ok {
		dialTimeout = time.Until(deadline)
	} else {
		dialTimeout = 30 * time.Second
	}

	client, err := u.SSHClient.Dial("tcp", u.address(), sshConfig, dialTimeout)
	if err != nil {
		return CommandResult{}, err
	}
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return CommandResult{}, err
	}
	defer session.Close()

	cmdStr := config.String()
	if len(config.Env) > 0 {
		cmdStr = "env " + joinArgs(config.Env) + " " + cmdStr
	}
	if config.Sudo {
		cmdStr = joinCommand("sudo", u.sudoArgs(config))
		if u.SudoPassword != "" {
			session.Stdin = strings.NewReader(u.SudoPassword + "\n")
		}
	}

	var stdout, stderr strings.Builder
	session.Stdout = &stdout
	session.Stderr = &stderr

	start := time.Now()
	done := make(chan error, 1)
	go func() {
		done <- session.Run(cmdStr)
	}()

	select {
	case runErr := <-done:
		result := CommandResult{
			Command:   config.String(),
			STDOUT:    stdout.String(),
			STDERR:    stderr.String(),
			Duration:  time.Since(start),
			Timestamp: start,
		}
		if err := sudoError(result); err != nil {
			return result, err
		}
		var exitErr *ssh.ExitError
		if errors.As(runErr, &exitErr) {
			result.ExitCode = exitErr.ExitStatus()
			if result.ExitCode == 127 {
				return result, fmt.Errorf("%s on %s: %w", config.Command, u.Hostname, ErrCommandNotFound)
			}
			return result, &ExitError{Command: result.Command, Code: result.ExitCode, Stderr: result.STDERR}
		}
		return result, runErr

	case <-ctx.Done():
		u.log().Error("remote command timed out", "hostname", u.Hostname, "command", cmdStr)
		return CommandResult{}, ctx.Err()
	}
}

// sudoArgs builds the argument list for sudo. Without a password sudo must
// not prompt, so -n is used.
func (u *UnixCommandManager) sudoArgs(config CommandConfig) []string {
	args := []string{"-n"}
	if u.SudoPassword != "" {
		args = []string{"-S", "-p", ""}
	}
	if len(config.Env) > 0 {
		args = append(args, "env")
		args = append(args, config.Env...)
	}
	args = append(args, config.Command)
	return append(args, config.Args...)
}

func (u *UnixCommandManager) getSSHConfig() (*ssh.ClientConfig, error) {
	var authMethod ssh.AuthMethod

	if u.Password != "" {
		u.log().Debug("using password authentication", "hostname", u.Hostname)
		authMethod = ssh.Password(u.Password)
	} else {
		u.log().Debug("using public key authentication", "hostname", u.Hostname)
		var keyManager SSHKeyManager
		if u.KeyPassphrase != "" {
			keyManager = FileSSHKeyManager{}
		} else {
			keyManager = AgentSSHKeyManager{}
		}

		keys, err := keyManager.ReadPrivateKeys(u.KeyPassphrase)
		if err != nil {
			return nil, err
		}

		authMethod = ssh.PublicKeysCallback(func() ([]ssh.Signer, error) {
			return keys, nil
		})
	}

	hostKeyCallback, err := knownHostsCallback(u.KnownHostsPath)
	if err != nil {
		u.log().Warn("known_hosts unavailable, host key will not be verified", "hostname", u.Hostname, "error", err)
		hostKeyCallback = ssh.InsecureIgnoreHostKey()
	}

	return &ssh.ClientConfig{
		User:            u.User,
		Auth:            []ssh.AuthMethod{authMethod},
		HostKeyCallback: hostKeyCallback,
	}, nil
}

func (u *UnixCommandManager) address() string {
	if strings.Contains(u.Hostname, ":") {
		return u.Hostname
	}
	return u.Hostname + ":22"
}

func (u *UnixCommandManager) isLocal() bool {
	return u.Hostname == "" || u.Hostname == "localhost" || u.Hostname == "127.0.0.1"
}

func (u *UnixCommandManager) log() logger.Logger {
	if u.Logger == nil {
		return logger.Discard()
	}
	return u.Logger
}

func sudoError(result CommandResult) error {
	output := result.STDOUT + result.STDERR
	switch {
	case strings.Contains(output, "incorrect password"):
		return errors.New("sudo: incorrect password provided")
	case strings.Contains(output, "is not in the sudoers file"):
		return errors.New("sudo: user is not in the sudoers file")
	case strings.Contains(output, "a password is required"):
		return errors.New("sudo: a password is required (use --sudo-password)")
	}
	return nil
}

func joinArgs(args []string) string {
	quoted := make([]string, len(args))
	for i, a := range args {
		quoted[i] = shellEscape(a)
	}
	return strings.Join(quoted, " ")
}

func getExitCode(err error) int {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return 0
}
