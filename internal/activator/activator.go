package activator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	aierrors "aienv/internal/errors"
	"aienv/internal/runner"
	"aienv/internal/ui"
	"aienv/pkg/environment"
)

var (
	ErrEnvironmentNotFound     = errors.New("conda environment not found")
	ErrRuntimeUnresolved       = errors.New("python executable could not be resolved")
	ErrPackageManagerUnhealthy = errors.New("conda environment test failed")
)

const (
	DefaultCommandTimeout        = 10 * time.Second
	DefaultPackageManagerTimeout = 15 * time.Second
)

// Options configures an Activator. Zero values fall back to defaults.
type Options struct {
	Runner                runner.CommandRunner
	Console               *ui.Console
	CommandTimeout        time.Duration
	PackageManagerTimeout time.Duration
}

// Activator brings a conda sub-environment into a Runtime and verifies it.
type Activator struct {
	runner                runner.CommandRunner
	console               *ui.Console
	commandTimeout        time.Duration
	packageManagerTimeout time.Duration
}

// Result describes a successful activation.
type Result struct {
	EnvName string
	EnvRoot string
	// PathSegments are the entries prepended to the search path, in order.
	PathSegments []string
	// Runtime is the interpreter that actually answers to "python".
	Runtime string
	// InTree is false when Runtime lives outside the installation root.
	InTree  bool
	Version string
}

func New(opts Options) *Activator {
	a := &Activator{
		runner:                opts.Runner,
		console:               opts.Console,
		commandTimeout:        opts.CommandTimeout,
		packageManagerTimeout: opts.PackageManagerTimeout,
	}
	if a.runner == nil {
		a.runner = runner.ExecRunner{}
	}
	if a.console == nil {
		a.console = ui.NewConsoleWithWriters(io.Discard, io.Discard, false)
	}
	if a.commandTimeout <= 0 {
		a.commandTimeout = DefaultCommandTimeout
	}
	if a.packageManagerTimeout <= 0 {
		a.packageManagerTimeout = DefaultPackageManagerTimeout
	}
	return a
}

// PathSegments returns the directories activation prepends to the search
// path: the env root, its scripts and library dirs, then the package
// manager's scripts and library dirs.
func PathSegments(inst *environment.Installation, envName string) []string {
	envRoot := inst.EnvRoot(envName)
	pm := inst.PackageManagerRoot()
	return []string{
		envRoot,
		filepath.Join(envRoot, inst.Layout.ScriptsDir),
		filepath.Join(envRoot, inst.Layout.LibraryBinDir),
		filepath.Join(pm, inst.Layout.ScriptsDir),
		filepath.Join(pm, inst.Layout.LibraryBinDir),
	}
}

// Activate runs the activation sequence against rt. Each step is a hard
// precondition for the next; a missing sub-environment leaves rt untouched.
func (a *Activator) Activate(ctx context.Context, inst *environment.Installation, envName string, rt *environment.Runtime) (*Result, error) {
	a.console.PrintInfo(fmt.Sprintf("Activating conda environment: %s", envName))
	slog.Info("Activating conda environment", "env", envName, "root", inst.Root)

	result, err := a.configurePaths(inst, envName, rt)
	if err != nil {
		return nil, err
	}

	if err := a.resolveRuntime(ctx, inst, rt, result); err != nil {
		return nil, err
	}

	result.Version = a.runtimeVersion(ctx, rt, result.Runtime)

	if err := a.checkPackageManager(ctx, inst, rt); err != nil {
		return nil, err
	}

	a.console.PrintSuccess(fmt.Sprintf("Conda environment '%s' activated successfully", envName))
	slog.Info("Conda environment activated", "env", envName, "runtime", result.Runtime, "inTree", result.InTree, "version", result.Version)
	return result, nil
}

func (a *Activator) configurePaths(inst *environment.Installation, envName string, rt *environment.Runtime) (*Result, error) {
	if !environment.IsDirName(envName) {
		slog.Error("Invalid conda environment name", "env", envName)
		return nil, aierrors.NewNotFoundError(
			fmt.Sprintf("Conda environment not found: %q", envName),
			"An environment name must be a single directory name under "+inst.EnvsDir(),
			fmt.Sprintf("Pass one of the directories in %s with --env", inst.EnvsDir()),
			ErrEnvironmentNotFound,
		)
	}

	envRoot := inst.EnvRoot(envName)
	if info, err := os.Stat(envRoot); err != nil || !info.IsDir() {
		slog.Error("Conda environment not found", "env", envName, "path", envRoot)
		return nil, aierrors.NewNotFoundError(
			fmt.Sprintf("Conda environment not found at: %s", envRoot),
			fmt.Sprintf("%s has no '%s' directory", inst.EnvsDir(), envName),
			fmt.Sprintf("Please create the '%s' environment first", envName),
			ErrEnvironmentNotFound,
		)
	}

	segments := PathSegments(inst, envName)
	rt.PrependPath(segments...)
	rt.Set(environment.VarActiveEnv, envName)
	rt.Set(environment.VarEnvPrefix, envRoot)
	rt.Set(environment.VarInstallRoot, inst.Root)
	rt.Set(environment.VarRuntimePath, inst.RuntimeExecutable(envName))
	rt.Set(environment.VarPackageMgr, inst.PackageManagerExecutable())

	a.console.PrintInfo("Conda paths configured")
	return &Result{EnvName: envName, EnvRoot: envRoot, PathSegments: segments}, nil
}

func (a *Activator) resolveRuntime(ctx context.Context, inst *environment.Installation, rt *environment.Runtime, result *Result) error {
	exe, err := rt.LookPath(inst.Layout.RuntimeExe)
	if err != nil {
		return aierrors.NewNotFoundError(
			"Could not locate Python executable",
			err.Error(),
			fmt.Sprintf("Reinstall the '%s' environment or check that %s exists", result.EnvName, inst.RuntimeExecutable(result.EnvName)),
			ErrRuntimeUnresolved,
		)
	}

	resolved := exe
	res, err := a.runner.Run(ctx, runner.Command{
		Name:    exe,
		Args:    []string{"-c", "import sys; print(sys.executable)"},
		Env:     rt.Environ(),
		Timeout: a.commandTimeout,
	})
	if err == nil && res.Output() != "" {
		resolved = res.Output()
	} else {
		slog.Warn("Interpreter did not report its location, using search path result", "path", exe, "error", err)
	}

	result.Runtime = resolved
	result.InTree = within(inst.Root, resolved)
	if result.InTree {
		a.console.PrintSuccess(fmt.Sprintf("Using portable Python from AI Environment: %s", resolved))
	} else {
		a.console.PrintWarning(fmt.Sprintf("Using external Python installation: %s", resolved))
		a.console.PrintInfo(fmt.Sprintf("Note: For full portability, install Miniconda in %s", inst.Root))
		slog.Warn("Runtime resolved outside installation", "runtime", resolved, "root", inst.Root)
	}
	return nil
}

func (a *Activator) runtimeVersion(ctx context.Context, rt *environment.Runtime, exe string) string {
	res, err := a.runner.Run(ctx, runner.Command{
		Name:    exe,
		Args:    []string{"--version"},
		Env:     rt.Environ(),
		Timeout: a.commandTimeout,
	})
	if err != nil || res.Output() == "" {
		a.console.PrintWarning("Could not get Python version")
		slog.Warn("Python version query failed", "runtime", exe, "error", err)
		return ""
	}
	version := res.Output()
	a.console.PrintInfo(fmt.Sprintf("Python version: %s", version))
	return version
}

func (a *Activator) checkPackageManager(ctx context.Context, inst *environment.Installation, rt *environment.Runtime) error {
	conda, err := rt.LookPath(inst.Layout.PackageMgrExe)
	if err != nil {
		return aierrors.NewCommandError(
			"Conda environment test failed",
			err.Error(),
			fmt.Sprintf("Check that %s exists", inst.PackageManagerExecutable()),
			ErrPackageManagerUnhealthy,
		)
	}

	res, err := a.runner.Run(ctx, runner.Command{
		Name:    conda,
		Args:    []string{"list"},
		Env:     rt.Environ(),
		Timeout: a.packageManagerTimeout,
	})
	if err != nil || res.ExitCode != 0 {
		cause := strings.TrimSpace(string(res.Stderr))
		if cause == "" {
			cause = strings.TrimSpace(string(res.Stdout))
		}
		if cause == "" && err != nil {
			cause = err.Error()
		}
		slog.Error("Conda environment test failed", "exitCode", res.ExitCode, "stderr", string(res.Stderr), "error", err)
		return aierrors.NewCommandError(
			"Conda environment test failed",
			fmt.Sprintf("'conda list' exited with code %d: %s", res.ExitCode, cause),
			"Repair the Miniconda installation or recreate the environment",
			ErrPackageManagerUnhealthy,
		)
	}

	a.console.PrintSuccess("Conda environment is functional")
	return nil
}

// within reports whether path lies under root, ignoring case.
func within(root, path string) bool {
	r := strings.ToUpper(normalize(root))
	p := strings.ToUpper(normalize(path))
	return p == r || strings.HasPrefix(p, strings.TrimSuffix(r, string(filepath.Separator))+string(filepath.Separator))
}

func normalize(path string) string {
	cleaned := filepath.Clean(path)
	if abs, err := filepath.Abs(cleaned); err == nil {
		return abs
	}
	return cleaned
}
