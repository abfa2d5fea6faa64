package smoketest

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"aienv/internal/runner"
	"aienv/internal/ui"
	"aienv/pkg/environment"
)

// MockRunner is a mock implementation of the CommandRunner interface
type MockRunner struct {
	*mock.Mock
}

func NewMockRunner() *MockRunner {
	return &MockRunner{Mock: &mock.Mock{}}
}

func (m *MockRunner) Run(ctx context.Context, cmd runner.Command) (runner.Result, error) {
	args := m.Called(ctx, cmd)
	return args.Get(0).(runner.Result), args.Error(1)
}

type stubPinger struct {
	err error
}

func (p stubPinger) Ping(context.Context) error {
	return p.err
}

// invocation matches a command by executable base name and argument prefix.
func invocation(name string, args ...string) any {
	return mock.MatchedBy(func(c runner.Command) bool {
		base := strings.TrimSuffix(filepath.Base(c.Name), ".exe")
		if base != name || len(c.Args) < len(args) {
			return false
		}
		for i, a := range args {
			if c.Args[i] != a {
				return false
			}
		}
		return true
	})
}

func importsVersionOf(module string) any {
	return mock.MatchedBy(func(c runner.Command) bool {
		return len(c.Args) == 2 && c.Args[0] == "-c" && strings.HasPrefix(c.Args[1], "import "+module+" as m")
	})
}

func importsCritical() any {
	return mock.MatchedBy(func(c runner.Command) bool {
		return len(c.Args) == 2 && strings.Contains(c.Args[1], "importlib.import_module")
	})
}

func ok(stdout string) runner.Result {
	return runner.Result{Stdout: []byte(stdout + "\n")}
}

type fixture struct {
	inst *environment.Installation
	rt   *environment.Runtime
	bin  string
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	root := filepath.Join(t.TempDir(), "AI_Lab", "AI_Environment")
	inst := &environment.Installation{Root: root, Kind: environment.LayoutLab, Layout: environment.DefaultLayout()}
	bin := filepath.Join(root, "bin")
	require.NoError(t, os.MkdirAll(bin, 0755))
	for _, name := range []string{"python", "pip", "conda"} {
		if runtime.GOOS == "windows" {
			name += ".exe"
		}
		require.NoError(t, os.WriteFile(filepath.Join(bin, name), []byte{}, 0755))
	}

	rt := environment.NewRuntime()
	rt.PrependPath(bin)
	rt.Set(environment.VarActiveEnv, "AI2025")
	rt.Set(environment.VarInstallRoot, root)
	return fixture{inst: inst, rt: rt, bin: bin}
}

func healthyRunner() *MockRunner {
	m := NewMockRunner()
	m.On("Run", mock.Anything, invocation("python", "--version")).Return(ok("Python 3.11.4"), nil)
	m.On("Run", mock.Anything, invocation("pip", "--version")).Return(ok("pip 24.0 from site-packages (python 3.11)"), nil)
	m.On("Run", mock.Anything, invocation("conda", "--version")).Return(ok("conda 24.5.0"), nil)
	m.On("Run", mock.Anything, importsCritical()).Return(ok(""), nil)
	m.On("Run", mock.Anything, importsVersionOf("tensorboard")).Return(ok("2.17.0"), nil)
	m.On("Run", mock.Anything, importsVersionOf("mlflow")).Return(ok("2.15.1"), nil)
	return m
}

func newSuite(f fixture, r runner.CommandRunner, pinger Pinger) (*Suite, *bytes.Buffer) {
	var out bytes.Buffer
	return New(Options{
		Runner:       r,
		Runtime:      f.rt,
		Installation: f.inst,
		EnvName:      "AI2025",
		WorkDir:      f.inst.Root,
		Ollama:       pinger,
		Console:      ui.NewConsoleWithWriters(&out, &out, false),
	}), &out
}

func TestRun_AllPass(t *testing.T) {
	f := newFixture(t)
	m := healthyRunner()
	suite, out := newSuite(f, m, stubPinger{})

	report := suite.Run(context.Background())

	assert.True(t, report.OK(), out.String())
	assert.Equal(t, 0, report.ExitCode())
	assert.Len(t, report.Results, 10)
	assert.InDelta(t, 100.0, report.SuccessRate(), 0.001)

	output := out.String()
	assert.Contains(t, output, "Test 1: Conda Environment Active ... PASS")
	assert.Contains(t, output, "Python 3.11.4 (expected 3.10+)")
	assert.Contains(t, output, "Version: 2.15.1")
	assert.Contains(t, output, "Success Rate: 100.0%")
	assert.Contains(t, output, "All tests passed! AI2025 is fully functional!")
	m.AssertExpectations(t)
}

func TestRun_CommandsUseActivatedRuntime(t *testing.T) {
	f := newFixture(t)
	m := healthyRunner()
	suite, _ := newSuite(f, m, stubPinger{})

	suite.Run(context.Background())

	for _, call := range m.Calls {
		cmd := call.Arguments.Get(1).(runner.Command)
		assert.Equal(t, f.bin, filepath.Dir(cmd.Name))
		assert.Contains(t, cmd.Env, "CONDA_DEFAULT_ENV=AI2025")
		assert.Equal(t, f.inst.Root, cmd.Dir)
		assert.Positive(t, cmd.Timeout)
	}
}

func TestRun_Failures(t *testing.T) {
	f := newFixture(t)
	f.rt.Set(environment.VarActiveEnv, "base")

	m := NewMockRunner()
	m.On("Run", mock.Anything, invocation("python", "--version")).Return(ok("Python 3.9.18"), nil)
	m.On("Run", mock.Anything, invocation("pip", "--version")).Return(ok("pip 24.0"), nil)
	m.On("Run", mock.Anything, invocation("conda", "--version")).
		Return(runner.Result{Stderr: []byte("conda: broken install"), ExitCode: 2}, errors.New("exit status 2"))
	m.On("Run", mock.Anything, importsCritical()).Return(ok("torch,mlflow"), nil)
	m.On("Run", mock.Anything, importsVersionOf("tensorboard")).Return(ok("2.17.0"), nil)
	m.On("Run", mock.Anything, importsVersionOf("mlflow")).
		Return(runner.Result{Stderr: []byte("ModuleNotFoundError: No module named 'mlflow'"), ExitCode: 1}, errors.New("exit status 1"))

	suite, out := newSuite(f, m, stubPinger{err: errors.New("connection refused")})
	report := suite.Run(context.Background())

	assert.False(t, report.OK())
	assert.Equal(t, 1, report.ExitCode())

	failed := map[string]string{}
	for _, res := range report.Results {
		if !res.Passed {
			failed[res.Name] = res.Message
		}
	}
	assert.Equal(t, "Current environment: base", failed["Conda Environment Active"])
	assert.Equal(t, "Python 3.9.18 (expected 3.10+)", failed["Python Version"])
	assert.Contains(t, failed["Conda Command Available"], "conda exited with code 2: conda: broken install")
	assert.Equal(t, "Missing packages: PyTorch, MLflow", failed["Critical AI Packages"])
	assert.Contains(t, failed["Import MLflow"], "No module named 'mlflow'")
	assert.Contains(t, failed, "Ollama Server Reachable")
	assert.Len(t, failed, 6)

	output := out.String()
	assert.Contains(t, output, "Tests Failed: 6")
	assert.Contains(t, output, "Success Rate: 40.0%")
	assert.Contains(t, output, "Some tests failed")
	assert.Contains(t, output, "  - Critical AI Packages: Missing packages: PyTorch, MLflow")
}

func TestRun_MissingExecutablesAndVariables(t *testing.T) {
	f := newFixture(t)
	rt := environment.NewRuntime()
	f.rt = rt

	m := NewMockRunner()
	suite, _ := newSuite(f, m, nil)
	report := suite.Run(context.Background())

	assert.Equal(t, 1, report.Passed())
	for _, res := range report.Results {
		if res.Name == "Working Directory" {
			assert.True(t, res.Passed)
			continue
		}
		assert.False(t, res.Passed, res.Name)
	}
	m.AssertNotCalled(t, "Run", mock.Anything, mock.Anything)
}

func TestWorkingDirectory(t *testing.T) {
	f := newFixture(t)
	outside := t.TempDir()

	tests := []struct {
		name string
		dir  string
		want bool
	}{
		{"installation root", f.inst.Root, true},
		{"projects", f.inst.ProjectsDir(), true},
		{"unrelated", outside, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			suite := New(Options{Runtime: f.rt, WorkDir: tt.dir})
			passed, message := suite.workingDirectory(context.Background())
			assert.Equal(t, tt.want, passed)
			assert.Equal(t, "Current: "+filepath.Clean(tt.dir), message)
		})
	}
}

func TestPythonSemver(t *testing.T) {
	tests := []struct {
		output string
		want   string
	}{
		{"Python 3.11.4", "v3.11.4"},
		{"Python 3.12", "v3.12.0"},
		{"Python 3.13.0rc1", "v3.13.0"},
		{"python: command not found", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, pythonSemver(tt.output), tt.output)
	}
}

func TestReport_EmptyAndRate(t *testing.T) {
	empty := &Report{}
	assert.Zero(t, empty.SuccessRate())
	assert.True(t, empty.OK())

	r := &Report{Results: []Result{{Passed: true}, {Passed: false}, {Passed: true}, {Passed: true}}}
	assert.Equal(t, 3, r.Passed())
	assert.Equal(t, 1, r.Failed())
	assert.InDelta(t, 75.0, r.SuccessRate(), 0.001)
	assert.Equal(t, 1, r.ExitCode())
}
