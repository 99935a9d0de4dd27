package packagemanager

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	cm "github.com/steelcutops/converge/converge/commandmanager"
)

type MockCommandManager struct {
	mock.Mock
}

func (m *MockCommandManager) Run(ctx context.Context, config cm.CommandConfig) (cm.CommandResult, error) {
	args := m.Called(config.String(), config.Sudo)
	return args.Get(0).(cm.CommandResult), args.Error(1)
}

func (m *MockCommandManager) LookPath(ctx context.Context, name string) error {
	return m.Called(name).Error(0)
}

func exitErr(code int) error {
	return &cm.ExitError{Command: "mock", Code: code}
}

func TestAptPackageManager(t *testing.T) {
	ctx := context.Background()
	mockCmd := new(MockCommandManager)
	apt := &AptPackageManager{CommandManager: mockCmd}

	mockCmd.On("Run", `dpkg-query -W '-f=${Status}\t${Version}\n' libxml2`, false).
		Return(cm.CommandResult{STDOUT: "install ok installed\t2.9.10+dfsg-5ubuntu1\n"}, nil)
	version, present, err := apt.Query(ctx, "libxml2")
	require.NoError(t, err)
	assert.True(t, present)
	assert.Equal(t, "2.9.10+dfsg-5ubuntu1", version)

	mockCmd.On("Run", `dpkg-query -W '-f=${Status}\t${Version}\n' libxslt1-dev`, false).
		Return(cm.CommandResult{STDOUT: "deinstall ok config-files\t1.1.34-4\n"}, nil)
	_, present, err = apt.Query(ctx, "libxslt1-dev")
	require.NoError(t, err)
	assert.False(t, present)

	mockCmd.On("Run", `dpkg-query -W '-f=${Status}\t${Version}\n' nosuch`, false).
		Return(cm.CommandResult{STDERR: "dpkg-query: no packages found matching nosuch\n", ExitCode: 1}, exitErr(1))
	_, present, err = apt.Query(ctx, "nosuch")
	require.NoError(t, err)
	assert.False(t, present)

	mockCmd.On("Run", "apt-get install -y -o Dpkg::Options::=--force-confdef -o Dpkg::Options::=--force-confold libxml2", true).
		Return(cm.CommandResult{}, nil)
	assert.NoError(t, apt.Install(ctx, Request{Name: "libxml2"}))

	mockCmd.On("Run", "apt-get install -y --allow-downgrades -o Dpkg::Options::=--force-confdef -o Dpkg::Options::=--force-confold libxml2=2.9.14", true).
		Return(cm.CommandResult{}, nil)
	assert.NoError(t, apt.Upgrade(ctx, Request{Name: "libxml2", Version: "2.9.14"}))

	mockCmd.On("Run", "apt-get remove -y libxml2", true).Return(cm.CommandResult{}, nil)
	assert.NoError(t, apt.Remove(ctx, "libxml2"))
}

func TestAptQueryFailure(t *testing.T) {
	mockCmd := new(MockCommandManager)
	apt := &AptPackageManager{CommandManager: mockCmd}

	mockCmd.On("Run", mock.Anything, false).
		Return(cm.CommandResult{STDERR: "dpkg-query: error: database locked"}, exitErr(2))
	_, _, err := apt.Query(context.Background(), "libxml2")
	assert.Error(t, err)
}

func TestRpmQuery(t *testing.T) {
	ctx := context.Background()
	mockCmd := new(MockCommandManager)
	dnf := &DnfPackageManager{CommandManager: mockCmd}
	yum := &YumPackageManager{CommandManager: mockCmd}

	mockCmd.On("Run", `rpm -q --qf '%{VERSION}-%{RELEASE}\n' libxml2`, false).
		Return(cm.CommandResult{STDOUT: "2.9.13-3.el9\n2.9.13-3.el9\n"}, nil)
	version, present, err := dnf.Query(ctx, "libxml2")
	require.NoError(t, err)
	assert.True(t, present)
	assert.Equal(t, "2.9.13-3.el9", version)

	mockCmd.On("Run", `rpm -q --qf '%{VERSION}-%{RELEASE}\n' gcc`, false).
		Return(cm.CommandResult{STDOUT: "package gcc is not installed\n"}, exitErr(1))
	_, present, err = yum.Query(ctx, "gcc")
	require.NoError(t, err)
	assert.False(t, present)
}

func TestDnfAndYumCommands(t *testing.T) {
	ctx := context.Background()
	mockCmd := new(MockCommandManager)
	dnf := &DnfPackageManager{CommandManager: mockCmd}
	yum := &YumPackageManager{CommandManager: mockCmd}

	mockCmd.On("Run", "dnf install -y gcc", true).Return(cm.CommandResult{}, nil)
	mockCmd.On("Run", "dnf upgrade -y gcc", true).Return(cm.CommandResult{}, nil)
	mockCmd.On("Run", "dnf install -y gcc-11.3.1", true).Return(cm.CommandResult{}, nil)
	mockCmd.On("Run", "yum update -y gcc", true).Return(cm.CommandResult{}, nil)
	mockCmd.On("Run", "yum remove -y gcc", true).Return(cm.CommandResult{}, nil)

	assert.NoError(t, dnf.Install(ctx, Request{Name: "gcc"}))
	assert.NoError(t, dnf.Upgrade(ctx, Request{Name: "gcc"}))
	assert.NoError(t, dnf.Upgrade(ctx, Request{Name: "gcc", Version: "11.3.1"}))
	assert.NoError(t, yum.Upgrade(ctx, Request{Name: "gcc"}))
	assert.NoError(t, yum.Remove(ctx, "gcc"))
	mockCmd.AssertExpectations(t)
}

func TestApkQuery(t *testing.T) {
	mockCmd := new(MockCommandManager)
	apk := &ApkPackageManager{CommandManager: mockCmd}

	mockCmd.On("Run", "apk list --installed libxml2", false).Return(cm.CommandResult{
		STDOUT: "libxml2-dev-2.11.4-r0 x86_64 {libxml2} (MIT) [installed]\nlibxml2-2.11.4-r0 x86_64 {libxml2} (MIT) [installed]\n",
	}, nil)
	version, present, err := apk.Query(context.Background(), "libxml2")
	require.NoError(t, err)
	assert.True(t, present)
	assert.Equal(t, "2.11.4-r0", version)

	mockCmd.On("Run", "apk list --installed gcc", false).Return(cm.CommandResult{}, nil)
	_, present, err = apk.Query(context.Background(), "gcc")
	require.NoError(t, err)
	assert.False(t, present)

	mockCmd.On("Run", "apk add -u libxml2=2.12.0-r0", true).Return(cm.CommandResult{}, nil)
	assert.NoError(t, apk.Upgrade(context.Background(), Request{Name: "libxml2", Version: "2.12.0-r0"}))
}

func TestBrewQuery(t *testing.T) {
	mockCmd := new(MockCommandManager)
	brew := &BrewPackageManager{CommandManager: mockCmd}

	mockCmd.On("Run", "brew list --versions libxml2", false).
		Return(cm.CommandResult{STDOUT: "libxml2 2.11.4 2.12.1\n"}, nil)
	version, present, err := brew.Query(context.Background(), "libxml2")
	require.NoError(t, err)
	assert.True(t, present)
	assert.Equal(t, "2.12.1", version)

	mockCmd.On("Run", "brew list --versions wget", false).Return(cm.CommandResult{}, exitErr(1))
	_, present, err = brew.Query(context.Background(), "wget")
	require.NoError(t, err)
	assert.False(t, present)

	mockCmd.On("Run", "brew install python@3.12", false).Return(cm.CommandResult{}, nil)
	assert.NoError(t, brew.Install(context.Background(), Request{Name: "python", Version: "3.12"}))
}

func TestPipPackageManager(t *testing.T) {
	ctx := context.Background()
	mockCmd := new(MockCommandManager)
	pip := &PipPackageManager{CommandManager: mockCmd}

	mockCmd.On("Run", "python3 -m pip show requests", false).
		Return(cm.CommandResult{STDOUT: "Name: requests\nVersion: 0.13.0\nSummary: HTTP for Humans\n"}, nil)
	version, present, err := pip.Query(ctx, "requests")
	require.NoError(t, err)
	assert.True(t, present)
	assert.Equal(t, "0.13.0", version)

	mockCmd.On("Run", "python3 -m pip show lxml", false).
		Return(cm.CommandResult{STDERR: "WARNING: Package(s) not found: lxml\n"}, exitErr(1))
	_, present, err = pip.Query(ctx, "lxml")
	require.NoError(t, err)
	assert.False(t, present)

	mockCmd.On("Run", "python3 -m pip install 'lxml>=1.0'", false).Return(cm.CommandResult{}, nil)
	assert.NoError(t, pip.Install(ctx, Request{Name: "lxml", Constraint: ">=1.0"}))

	mockCmd.On("Run", "python3 -m pip install --upgrade lxml==4.9.3", false).Return(cm.CommandResult{}, nil)
	assert.NoError(t, pip.Upgrade(ctx, Request{Name: "lxml", Version: "4.9.3"}))

	mockCmd.On("Run", "python3 -m pip uninstall -y requests", false).Return(cm.CommandResult{}, nil)
	assert.NoError(t, pip.Remove(ctx, "requests"))
}

func TestPipAvailable(t *testing.T) {
	ctx := context.Background()

	t.Run("interpreter missing", func(t *testing.T) {
		mockCmd := new(MockCommandManager)
		mockCmd.On("LookPath", "python2").Return(fmt.Errorf("python2: %w", cm.ErrCommandNotFound))
		pip := &PipPackageManager{CommandManager: mockCmd, Python: "python2"}

		err := pip.Available(ctx)
		assert.True(t, errors.Is(err, ErrUnavailable))
	})

	t.Run("pip module missing", func(t *testing.T) {
		mockCmd := new(MockCommandManager)
		mockCmd.On("LookPath", "python3").Return(nil)
		mockCmd.On("Run", "python3 -m pip --version", false).
			Return(cm.CommandResult{STDERR: "No module named pip"}, exitErr(1))
		pip := &PipPackageManager{CommandManager: mockCmd}

		err := pip.Available(ctx)
		assert.True(t, errors.Is(err, ErrUnavailable))
		assert.Contains(t, err.Error(), "has no pip module")
	})

	t.Run("available", func(t *testing.T) {
		mockCmd := new(MockCommandManager)
		mockCmd.On("LookPath", "python3").Return(nil)
		mockCmd.On("Run", "python3 -m pip --version", false).Return(cm.CommandResult{STDOUT: "pip 23.0"}, nil)
		pip := &PipPackageManager{CommandManager: mockCmd}

		assert.NoError(t, pip.Available(ctx))
	})
}

func TestRequirement(t *testing.T) {
	assert.Equal(t, "lxml==4.9.3", requirement(Request{Name: "lxml", Version: "4.9.3"}))
	assert.Equal(t, "lxml>=1.0,<5", requirement(Request{Name: "lxml", Constraint: ">=1.0, <5"}))
	assert.Equal(t, "lxml", requirement(Request{Name: "lxml", Constraint: "^1.2"}))
	assert.Equal(t, "lxml", requirement(Request{Name: "lxml"}))
}

func TestRequireTools(t *testing.T) {
	mockCmd := new(MockCommandManager)
	mockCmd.On("LookPath", "apt-get").Return(nil)
	mockCmd.On("LookPath", "dpkg-query").Return(errors.New("ssh: handshake failed"))

	err := (&AptPackageManager{CommandManager: mockCmd}).Available(context.Background())
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrUnavailable))
}
