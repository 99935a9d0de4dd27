package host

import (
	"github.com/steelcutops/converge/converge/commandmanager"
	"github.com/steelcutops/converge/logger"
)

type HostOption func(*Host)

// WithUser returns a HostOption that sets the SSH user for a Host.
func WithUser(user string) HostOption {
	return func(host *Host) {
		host.User = user
	}
}

// WithPassword returns a HostOption that sets the SSH password for a Host.
func WithPassword(password string) HostOption {
	return func(host *Host) {
		host.Password = password
	}
}

// WithKeyPassphrase returns a HostOption that sets the key passphrase for a Host.
func WithKeyPassphrase(keyPassphrase string) HostOption {
	return func(host *Host) {
		host.KeyPassphrase = keyPassphrase
	}
}

// WithSudoPassword returns a HostOption that sets the sudo password for a Host.
func WithSudoPassword(password string) HostOption {
	return func(host *Host) {
		host.SudoPassword = password
	}
}

// WithOS skips operating system detection.
func WithOS(os OSType) HostOption {
	return func(host *Host) {
		host.OSType = os
	}
}

// WithSSHClient sets the dialer used when the host is remote.
func WithSSHClient(client commandmanager.SSHDialer) HostOption {
	return func(host *Host) {
		host.SSHClient = client
	}
}

func WithKnownHosts(path string) HostOption {
	return func(host *Host) {
		host.KnownHostsPath = path
	}
}

// WithPython selects the interpreter whose pip manages language-runtime packages.
func WithPython(python string) HostOption {
	return func(host *Host) {
		host.Python = python
	}
}

// WithCommandManager replaces the command manager, mostly for tests.
func WithCommandManager(c commandmanager.CommandManager) HostOption {
	return func(host *Host) {
		host.CommandManager = c
	}
}

func WithLogger(l logger.Logger) HostOption {
	return func(host *Host) {
		host.Logger = l
	}
}
