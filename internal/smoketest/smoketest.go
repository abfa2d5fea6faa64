package smoketest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"golang.org/x/mod/semver"

	"aienv/internal/runner"
	"aienv/internal/ui"
	"aienv/pkg/environment"
)

const (
	DefaultCommandTimeout = 10 * time.Second
	DefaultImportTimeout  = 120 * time.Second
	MinimumPython         = "3.10"
)

// Package is an importable module checked by the suite.
type Package struct {
	Module  string
	Display string
}

// CriticalPackages must all import for the environment to be usable.
var CriticalPackages = []Package{
	{"langchain", "LangChain"},
	{"streamlit", "Streamlit"},
	{"fastapi", "FastAPI"},
	{"pandas", "Pandas"},
	{"numpy", "NumPy"},
	{"torch", "PyTorch"},
	{"tensorboard", "TensorBoard"},
	{"mlflow", "MLflow"},
}

// VersionedPackages additionally report their version.
var VersionedPackages = []Package{
	{"tensorboard", "TensorBoard"},
	{"mlflow", "MLflow"},
}

// Pinger reports whether the generative-text server answers.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Result is the outcome of a single check.
type Result struct {
	Group   string
	Name    string
	Passed  bool
	Message string
}

// Report collects results in execution order.
type Report struct {
	Results []Result
}

func (r *Report) Passed() int {
	n := 0
	for _, res := range r.Results {
		if res.Passed {
			n++
		}
	}
	return n
}

func (r *Report) Failed() int {
	return len(r.Results) - r.Passed()
}

// SuccessRate is the passed percentage, 0 for an empty report.
func (r *Report) SuccessRate() float64 {
	if len(r.Results) == 0 {
		return 0
	}
	return float64(r.Passed()) / float64(len(r.Results)) * 100
}

func (r *Report) OK() bool {
	return r.Failed() == 0
}

// ExitCode is 0 when every check passed and 1 otherwise.
func (r *Report) ExitCode() int {
	if r.OK() {
		return 0
	}
	return 1
}

type Options struct {
	Runner       runner.CommandRunner
	Runtime      *environment.Runtime
	Installation *environment.Installation
	EnvName      string
	WorkDir      string
	Ollama       Pinger
	Console      *ui.Console
	// Timeout bounds each command check.
	Timeout        time.Duration
	ImportTimeout  time.Duration
	Packages       []Package
	VersionedCheck []Package
}

// Suite runs environment, command, package and service checks against an
// activated runtime.
type Suite struct {
	opts Options
}

func New(opts Options) *Suite {
	if opts.Runner == nil {
		opts.Runner = runner.ExecRunner{}
	}
	if opts.Console == nil {
		opts.Console = ui.NewConsoleWithWriters(io.Discard, io.Discard, false)
	}
	if opts.EnvName == "" {
		opts.EnvName = environment.DefaultEnvName
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultCommandTimeout
	}
	if opts.ImportTimeout <= 0 {
		opts.ImportTimeout = DefaultImportTimeout
	}
	if opts.Packages == nil {
		opts.Packages = CriticalPackages
	}
	if opts.VersionedCheck == nil {
		opts.VersionedCheck = VersionedPackages
	}
	return &Suite{opts: opts}
}

type check struct {
	name string
	run  func(ctx context.Context) (bool, string)
}

type group struct {
	title  string
	checks []check
}

func (s *Suite) groups() []group {
	versioned := make([]check, 0, len(s.opts.VersionedCheck))
	for _, p := range s.opts.VersionedCheck {
		versioned = append(versioned, check{"Import " + p.Display, s.packageVersion(p)})
	}

	return []group{
		{"Environment", []check{
			{"Conda Environment Active", s.activeEnvironment},
			{"Python Version", s.pythonVersion},
			{"Working Directory", s.workingDirectory},
			{"Environment Variables Set", s.environmentVariables},
		}},
		{"Command", []check{
			{"Pip Command Available", s.commandAvailable("pip")},
			{"Conda Command Available", s.commandAvailable("conda")},
		}},
		{"Package", append([]check{{"Critical AI Packages", s.criticalPackages}}, versioned...)},
		{"Service", []check{
			{"Ollama Server Reachable", s.ollamaReachable},
		}},
	}
}

// Run executes every check, printing PASS/FAIL lines and a summary.
func (s *Suite) Run(ctx context.Context) *Report {
	c := s.opts.Console
	report := &Report{}

	c.PrintTitle(fmt.Sprintf("%s Environment Tests", s.opts.EnvName))
	for _, g := range s.groups() {
		c.Println("")
		c.PrintInfo(fmt.Sprintf("Running %s Tests...", g.title))
		for _, chk := range g.checks {
			passed, message := chk.run(ctx)
			res := Result{Group: g.title, Name: chk.name, Passed: passed, Message: message}
			report.Results = append(report.Results, res)
			s.printResult(len(report.Results), res)
		}
	}

	s.printSummary(report)
	slog.Info("Smoke tests finished", "passed", report.Passed(), "failed", report.Failed())
	return report
}

func (s *Suite) printResult(n int, res Result) {
	line := fmt.Sprintf("Test %d: %s ... %s", n, res.Name, status(res.Passed))
	if res.Passed {
		s.opts.Console.PrintSuccess(line)
	} else {
		s.opts.Console.PrintError(line)
	}
	if res.Message != "" {
		s.opts.Console.Println("   " + res.Message)
	}
}

func (s *Suite) printSummary(r *Report) {
	c := s.opts.Console
	c.Println("")
	c.PrintTitle("Test Summary")
	c.Println(fmt.Sprintf("Tests Passed: %d", r.Passed()))
	c.Println(fmt.Sprintf("Tests Failed: %d", r.Failed()))
	c.Println(fmt.Sprintf("Success Rate: %.1f%%", r.SuccessRate()))
	c.Println("")

	if r.OK() {
		c.PrintSuccess(fmt.Sprintf("All tests passed! %s is fully functional!", s.opts.EnvName))
		return
	}
	c.PrintWarning("Some tests failed. Please review the results above.")
	c.Println("Failed Tests:")
	for _, res := range r.Results {
		if !res.Passed {
			c.Println(fmt.Sprintf("  - %s: %s", res.Name, res.Message))
		}
	}
}

func status(passed bool) string {
	if passed {
		return "PASS"
	}
	return "FAIL"
}

func (s *Suite) activeEnvironment(context.Context) (bool, string) {
	active := s.opts.Runtime.Lookup(environment.VarActiveEnv)
	if active == "" {
		return false, "No conda environment detected"
	}
	return active == s.opts.EnvName, "Current environment: " + active
}

var versionPattern = regexp.MustCompile(`(\d+)\.(\d+)(?:\.(\d+))?`)

// pythonSemver turns "Python 3.11.4" into "v3.11.4".
func pythonSemver(output string) string {
	m := versionPattern.FindStringSubmatch(output)
	if m == nil {
		return ""
	}
	patch := m[3]
	if patch == "" {
		patch = "0"
	}
	return fmt.Sprintf("v%s.%s.%s", m[1], m[2], patch)
}

func (s *Suite) pythonVersion(ctx context.Context) (bool, string) {
	res, err := s.run(ctx, s.opts.Timeout, "python", "--version")
	if err != nil {
		return false, fmt.Sprintf("Error: %v", err)
	}

	v := pythonSemver(res.Output())
	if v == "" {
		return false, fmt.Sprintf("Unrecognised version output %q", res.Output())
	}
	passed := semver.Major(v) == "v3" && semver.Compare(v, "v"+MinimumPython+".0") >= 0
	return passed, fmt.Sprintf("Python %s (expected %s+)", strings.TrimPrefix(v, "v"), MinimumPython)
}

func (s *Suite) workingDirectory(context.Context) (bool, string) {
	dir := filepath.Clean(s.opts.WorkDir)
	passed := strings.Contains(dir, environment.LabDirName) || strings.Contains(dir, environment.InstallDirName)
	if !passed && s.opts.Installation != nil {
		rel, err := filepath.Rel(s.opts.Installation.Root, dir)
		passed = err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
	}
	return passed, "Current: " + dir
}

func (s *Suite) environmentVariables(context.Context) (bool, string) {
	root := s.opts.Runtime.Lookup(environment.VarInstallRoot)
	if root == "" {
		return false, environment.VarInstallRoot + ": Not set"
	}
	return true, environment.VarInstallRoot + ": " + root
}

func (s *Suite) commandAvailable(name string) func(context.Context) (bool, string) {
	return func(ctx context.Context) (bool, string) {
		res, err := s.run(ctx, s.opts.Timeout, name, "--version")
		if err != nil {
			return false, fmt.Sprintf("Error: %v", err)
		}
		return true, res.Output()
	}
}

func importScript(packages []Package) string {
	modules := make([]string, len(packages))
	for i, p := range packages {
		modules[i] = fmt.Sprintf("%q", p.Module)
	}
	return strings.Join([]string{
		"import importlib",
		"missing = []",
		"for name in [" + strings.Join(modules, ", ") + "]:",
		"    try:",
		"        importlib.import_module(name)",
		"    except Exception:",
		"        missing.append(name)",
		"print(','.join(missing))",
	}, "\n")
}

func (s *Suite) criticalPackages(ctx context.Context) (bool, string) {
	res, err := s.run(ctx, s.opts.ImportTimeout, "python", "-c", importScript(s.opts.Packages))
	if err != nil {
		return false, fmt.Sprintf("Error: %v", err)
	}

	missing := strings.TrimSpace(string(res.Stdout))
	if missing == "" {
		return true, "All packages available"
	}

	display := map[string]string{}
	for _, p := range s.opts.Packages {
		display[p.Module] = p.Display
	}
	var names []string
	for _, module := range strings.Split(missing, ",") {
		if d, ok := display[module]; ok {
			names = append(names, d)
		} else {
			names = append(names, module)
		}
	}
	return false, "Missing packages: " + strings.Join(names, ", ")
}

func (s *Suite) packageVersion(p Package) func(context.Context) (bool, string) {
	return func(ctx context.Context) (bool, string) {
		script := fmt.Sprintf("import %s as m; print(getattr(m, '__version__', 'unknown'))", p.Module)
		res, err := s.run(ctx, s.opts.ImportTimeout, "python", "-c", script)
		if err != nil {
			return false, fmt.Sprintf("Import failed: %v", err)
		}
		return true, "Version: " + res.Output()
	}
}

func (s *Suite) ollamaReachable(ctx context.Context) (bool, string) {
	if s.opts.Ollama == nil {
		return false, "No Ollama endpoint configured"
	}
	if err := s.opts.Ollama.Ping(ctx); err != nil {
		return false, "Start it with 'aienv launch ollama'"
	}
	return true, "Ollama server is running"
}

// run resolves name in the activated search path and executes it there.
func (s *Suite) run(ctx context.Context, timeout time.Duration, name string, args ...string) (runner.Result, error) {
	path, err := s.opts.Runtime.LookPath(name)
	if err != nil {
		return runner.Result{}, err
	}

	res, err := s.opts.Runner.Run(ctx, runner.Command{
		Name:    path,
		Args:    args,
		Env:     s.opts.Runtime.Environ(),
		Dir:     s.opts.WorkDir,
		Timeout: timeout,
	})
	if res.ExitCode > 0 {
		return res, fmt.Errorf("%s exited with code %d: %s", name, res.ExitCode, res.Output())
	}
	return res, err
}
