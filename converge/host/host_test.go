package host

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	cm "github.com/steelcutops/converge/converge/commandmanager"
	"github.com/steelcutops/converge/converge/descriptor"
	"github.com/steelcutops/converge/converge/packagemanager"
)

type MockCommandManager struct {
	mock.Mock
}

func (m *MockCommandManager) Run(ctx context.Context, config cm.CommandConfig) (cm.CommandResult, error) {
	args := m.Called(config.String())
	return args.Get(0).(cm.CommandResult), args.Error(1)
}

func (m *MockCommandManager) LookPath(ctx context.Context, name string) error {
	return m.Called(name).Error(0)
}

const ubuntuRelease = `NAME="Ubuntu"
VERSION="22.04.3 LTS (Jammy Jellyfish)"
ID=ubuntu
ID_LIKE=debian
`

func TestParseOSRelease(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    OSType
	}{
		{"ubuntu", ubuntuRelease, LinuxUbuntu},
		{"debian", "ID=debian\n", LinuxDebian},
		{"mint falls back to ID_LIKE", "ID=linuxmint\nID_LIKE=\"ubuntu debian\"\n", LinuxUbuntu},
		{"rocky", "ID=\"rocky\"\nID_LIKE=\"rhel centos fedora\"\n", LinuxRedHat},
		{"fedora", "ID=fedora\n", LinuxFedora},
		{"alpine", "ID=alpine\n", LinuxAlpine},
		{"unknown", "ID=gentoo\n", LinuxUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, parseOSRelease(tt.content))
		})
	}
}

func TestDetermineOS(t *testing.T) {
	ctx := context.Background()

	t.Run("darwin", func(t *testing.T) {
		mockCmd := new(MockCommandManager)
		mockCmd.On("Run", "uname -s").Return(cm.CommandResult{STDOUT: "Darwin\n"}, nil)
		h := &Host{CommandManager: mockCmd}

		osType, err := h.DetermineOS(ctx)
		require.NoError(t, err)
		assert.Equal(t, Darwin, osType)
	})

	t.Run("linux", func(t *testing.T) {
		mockCmd := new(MockCommandManager)
		mockCmd.On("Run", "uname -s").Return(cm.CommandResult{STDOUT: "Linux\n"}, nil)
		mockCmd.On("Run", "cat /etc/os-release").Return(cm.CommandResult{STDOUT: ubuntuRelease}, nil)
		h := &Host{CommandManager: mockCmd}

		osType, err := h.DetermineOS(ctx)
		require.NoError(t, err)
		assert.Equal(t, LinuxUbuntu, osType)
	})

	t.Run("unreachable", func(t *testing.T) {
		mockCmd := new(MockCommandManager)
		mockCmd.On("Run", "uname -s").Return(cm.CommandResult{}, errors.New("dial tcp: connection refused"))
		h := &Host{Hostname: "build01", CommandManager: mockCmd}

		_, err := h.DetermineOS(ctx)
		assert.ErrorContains(t, err, "build01")
	})
}

func TestNewHostBindsManagers(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name   string
		os     OSType
		hasDnf bool
		want   string
	}{
		{"ubuntu", LinuxUbuntu, false, "apt"},
		{"fedora", LinuxFedora, false, "dnf"},
		{"el9", LinuxRedHat, true, "dnf"},
		{"el7", LinuxCentOS, false, "yum"},
		{"alpine", LinuxAlpine, false, "apk"},
		{"darwin", Darwin, false, "brew"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockCmd := new(MockCommandManager)
			if tt.hasDnf {
				mockCmd.On("LookPath", "dnf").Return(nil)
			} else {
				mockCmd.On("LookPath", "dnf").Return(cm.ErrCommandNotFound).Maybe()
			}

			h, err := NewHost(ctx, "localhost", WithOS(tt.os), WithCommandManager(mockCmd))
			require.NoError(t, err)

			managers := h.PackageManagers()
			require.Contains(t, managers, descriptor.ManagerOS)
			assert.Equal(t, tt.want, managers[descriptor.ManagerOS].Name())
			assert.Equal(t, "pip", managers[descriptor.ManagerLanguageRuntime].Name())
		})
	}
}

func TestNewHostUnknownOS(t *testing.T) {
	mockCmd := new(MockCommandManager)
	mockCmd.On("Run", "uname -s").Return(cm.CommandResult{STDOUT: "FreeBSD\n"}, nil)

	h, err := NewHost(context.Background(), "localhost", WithCommandManager(mockCmd), WithPython("python3.11"))
	require.NoError(t, err)
	assert.Equal(t, Unknown, h.OSType)
	assert.NotContains(t, h.PackageManagers(), descriptor.ManagerOS)

	pip, ok := h.PackageManagers()[descriptor.ManagerLanguageRuntime].(*packagemanager.PipPackageManager)
	require.True(t, ok)
	assert.Equal(t, "python3.11", pip.Python)
}

func TestHostOptions(t *testing.T) {
	h, err := NewHost(context.Background(), "build01.example.com",
		WithOS(LinuxAlpine),
		WithUser("deploy"),
		WithPassword("pw"),
		WithKeyPassphrase("kp"),
		WithSudoPassword("sudo"),
		WithKnownHosts("/tmp/known_hosts"),
	)
	require.NoError(t, err)

	ucm, ok := h.CommandManager.(*cm.UnixCommandManager)
	require.True(t, ok)
	assert.Equal(t, "build01.example.com", ucm.Hostname)
	assert.Equal(t, "/tmp/known_hosts", ucm.KnownHostsPath)
	assert.Equal(t, cm.Credentials{User: "deploy", Password: "pw", KeyPassphrase: "kp", SudoPassword: "sudo"}, ucm.Credentials)
	assert.IsType(t, cm.RealSSHClient{}, ucm.SSHClient)
}
