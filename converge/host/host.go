package host

import (
	"context"
	"fmt"
	"strings"

	"github.com/steelcutops/converge/converge/commandmanager"
	"github.com/steelcutops/converge/converge/descriptor"
	"github.com/steelcutops/converge/converge/packagemanager"
	"github.com/steelcutops/converge/logger"
)

type OSType string

const (
	Unknown      OSType = "unknown"
	Darwin       OSType = "darwin"
	LinuxUbuntu  OSType = "ubuntu"
	LinuxDebian  OSType = "debian"
	LinuxFedora  OSType = "fedora"
	LinuxRedHat  OSType = "rhel"
	LinuxCentOS  OSType = "centos"
	LinuxAlpine  OSType = "alpine"
	LinuxUnknown OSType = "linux"
)

// Host is the single machine a run reconciles, with the package managers
// bound to each descriptor manager kind.
type Host struct {
	Hostname       string
	OSType         OSType
	Python         string
	SSHClient      commandmanager.SSHDialer
	KnownHostsPath string
	Logger         logger.Logger
	CommandManager commandmanager.CommandManager
	commandmanager.Credentials

	packageManagers map[descriptor.Manager]packagemanager.PackageManager
}

// NewHost builds the target, detecting its operating system unless WithOS
// was given, and binds a package manager to each descriptor kind.
func NewHost(ctx context.Context, hostname string, options ...HostOption) (*Host, error) {
	host := &Host{
		Hostname: hostname,
		Python:   "python3",
	}
	for _, option := range options {
		option(host)
	}

	if host.CommandManager == nil {
		ucm := &commandmanager.UnixCommandManager{
			Hostname:       host.Hostname,
			KnownHostsPath: host.KnownHostsPath,
			Logger:         host.log(),
			Credentials:    host.Credentials,
		}
		if host.SSHClient != nil {
			ucm.SSHClient = host.SSHClient
		} else {
			ucm.SSHClient = commandmanager.RealSSHClient{}
		}
		host.CommandManager = ucm
	}

	if host.OSType == "" {
		osType, err := host.DetermineOS(ctx)
		if err != nil {
			return nil, err
		}
		host.OSType = osType
	}
	host.log().Debug("target host", "hostname", host.Hostname, "os", string(host.OSType))

	host.packageManagers = map[descriptor.Manager]packagemanager.PackageManager{
		descriptor.ManagerLanguageRuntime: &packagemanager.PipPackageManager{
			CommandManager: host.CommandManager,
			Python:         host.Python,
		},
	}
	if pm := host.osPackageManager(ctx); pm != nil {
		host.packageManagers[descriptor.ManagerOS] = pm
	} else {
		host.log().Warn("no OS package manager for host", "hostname", host.Hostname, "os", string(host.OSType))
	}
	return host, nil
}

func (h *Host) osPackageManager(ctx context.Context) packagemanager.PackageManager {
	switch h.OSType {
	case Darwin:
		return &packagemanager.BrewPackageManager{CommandManager: h.CommandManager}
	case LinuxUbuntu, LinuxDebian:
		return &packagemanager.AptPackageManager{CommandManager: h.CommandManager}
	case LinuxFedora:
		return &packagemanager.DnfPackageManager{CommandManager: h.CommandManager}
	case LinuxRedHat, LinuxCentOS:
		// EL8 and later ship dnf, EL7 only yum
		if h.CommandManager.LookPath(ctx, "dnf") == nil {
			return &packagemanager.DnfPackageManager{CommandManager: h.CommandManager}
		}
		return &packagemanager.YumPackageManager{CommandManager: h.CommandManager}
	case LinuxAlpine:
		return &packagemanager.ApkPackageManager{CommandManager: h.CommandManager}
	}
	return nil
}

// PackageManagers returns the manager bound to each descriptor kind. A kind
// missing from the map has no usable manager on this host.
func (h *Host) PackageManagers() map[descriptor.Manager]packagemanager.PackageManager {
	return h.packageManagers
}

// DetermineOS identifies the operating system through the command manager,
// so it works the same for local and SSH targets.
func (h *Host) DetermineOS(ctx context.Context) (OSType, error) {
	out, err := h.CommandManager.Run(ctx, commandmanager.CommandConfig{Command: "uname", Args: []string{"-s"}})
	if err != nil {
		return Unknown, fmt.Errorf("detecting operating system on %s: %w", h.Hostname, err)
	}

	switch strings.TrimSpace(out.STDOUT) {
	case "Darwin":
		return Darwin, nil
	case "Linux":
	default:
		return Unknown, nil
	}

	release, err := h.CommandManager.Run(ctx, commandmanager.CommandConfig{Command: "cat", Args: []string{"/etc/os-release"}})
	if err != nil {
		h.log().Warn("no /etc/os-release", "hostname", h.Hostname, "error", err)
		return LinuxUnknown, nil
	}
	return parseOSRelease(release.STDOUT), nil
}

func parseOSRelease(content string) OSType {
	values := map[string]string{}
	for _, line := range strings.Split(content, "\n") {
		key, value, ok := strings.Cut(strings.TrimSpace(line), "=")
		if !ok {
			continue
		}
		values[key] = strings.Trim(value, `"'`)
	}

	candidates := append([]string{values["ID"]}, strings.Fields(values["ID_LIKE"])...)
	for _, id := range candidates {
		switch id {
		case "ubuntu":
			return LinuxUbuntu
		case "debian":
			return LinuxDebian
		case "fedora":
			return LinuxFedora
		case "rhel", "rocky", "almalinux", "ol":
			return LinuxRedHat
		case "centos":
			return LinuxCentOS
		case "alpine":
			return LinuxAlpine
		}
	}
	return LinuxUnknown
}

func (h *Host) log() logger.Logger {
	if h.Logger == nil {
		return logger.Discard()
	}
	return h.Logger
}
