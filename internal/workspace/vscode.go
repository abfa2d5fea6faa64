package workspace

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"aienv/internal/ui"
	"aienv/pkg/environment"
)

// Files written by Generate, relative to the project directory.
const (
	SettingsFile   = ".vscode/settings.json"
	LaunchFile     = ".vscode/launch.json"
	TasksFile      = ".vscode/tasks.json"
	ExtensionsFile = ".vscode/extensions.json"
	EnvFile        = ".env"
)

// Options configures a Generator.
type Options struct {
	Installation *environment.Installation
	EnvName      string
	OllamaURL    string
	Model        string
	Console      *ui.Console
}

// Generator renders editor workspace configuration bound to one activated
// sub-environment.
type Generator struct {
	inst      *environment.Installation
	envName   string
	ollamaURL string
	model     string
	console   *ui.Console
}

func NewGenerator(opts Options) *Generator {
	g := &Generator{
		inst:      opts.Installation,
		envName:   opts.EnvName,
		ollamaURL: opts.OllamaURL,
		model:     opts.Model,
		console:   opts.Console,
	}
	if g.envName == "" {
		g.envName = environment.DefaultEnvName
	}
	if g.ollamaURL == "" {
		g.ollamaURL = "http://127.0.0.1:11434"
	}
	if g.model == "" {
		g.model = environment.DefaultModelName
	}
	if g.console == nil {
		g.console = ui.NewConsoleWithWriters(io.Discard, io.Discard, false)
	}
	return g
}

// Generate writes the workspace files into projectDir, replacing any
// previous versions, and returns their paths.
func (g *Generator) Generate(projectDir string) ([]string, error) {
	files, err := g.Files()
	if err != nil {
		return nil, err
	}

	written := make([]string, 0, len(files))
	for _, rel := range sortedKeys(files) {
		path := filepath.Join(projectDir, filepath.FromSlash(rel))
		if err := writeFile(path, files[rel]); err != nil {
			return written, err
		}
		written = append(written, path)
	}

	g.console.PrintSuccess("VS Code workspace configured with AI Environment integration")
	g.console.PrintInfo(fmt.Sprintf("  %s interpreter", g.envName))
	g.console.PrintInfo(fmt.Sprintf("  [%s] terminal profile", g.terminalProfile()))
	g.console.PrintInfo("  Launch and task entries for the main menu and self-test")
	slog.Info("Workspace configuration generated", "dir", projectDir, "files", len(written))
	return written, nil
}

// Files renders every workspace file keyed by its slash-separated path
// relative to the project directory.
func (g *Generator) Files() (map[string][]byte, error) {
	docs := map[string]any{
		SettingsFile:   g.settings(),
		LaunchFile:     g.launch(),
		TasksFile:      g.tasks(),
		ExtensionsFile: extensions(),
	}

	files := make(map[string][]byte, len(docs)+1)
	for rel, doc := range docs {
		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		enc.SetEscapeHTML(false)
		enc.SetIndent("", "  ")
		if err := enc.Encode(doc); err != nil {
			return nil, fmt.Errorf("failed to render %s: %w", rel, err)
		}
		files[rel] = buf.Bytes()
	}
	files[EnvFile] = []byte(g.envFile())
	return files, nil
}

func (g *Generator) terminalProfile() string {
	return g.envName + "-Terminal"
}

func (g *Generator) envRoot() string {
	return slash(g.inst.EnvRoot(g.envName))
}

func (g *Generator) python() string {
	return slash(g.inst.RuntimeExecutable(g.envName))
}

func (g *Generator) envTool(name string) string {
	if g.inst.Layout.Name == environment.WindowsLayout.Name {
		name += ".exe"
	}
	return slash(g.inst.EnvScript(g.envName, name))
}

// listSeparator follows the installation layout, not the host, so the files
// match the machine the installation is used on.
func (g *Generator) listSeparator() string {
	if g.inst.Layout.Name == environment.WindowsLayout.Name {
		return ";"
	}
	return ":"
}

func (g *Generator) searchPath(extra ...string) string {
	parts := []string{g.envRoot(), slash(filepath.Join(g.inst.EnvRoot(g.envName), g.inst.Layout.ScriptsDir)), slash(g.inst.SrcDir())}
	parts = append(parts, extra...)
	return strings.Join(parts, g.listSeparator())
}

func (g *Generator) childEnv(withPath bool) map[string]string {
	env := map[string]string{
		environment.VarActiveEnv: g.envName,
		environment.VarEnvPrefix: g.envRoot(),
		"PYTHONPATH":             slash(g.inst.SrcDir()),
	}
	if withPath {
		env[environment.VarSearchPath] = g.searchPath("${env:PATH}")
		env[environment.VarInstallRoot] = slash(g.inst.Root)
	}
	return env
}

func (g *Generator) settings() map[string]any {
	platform := "linux"
	terminal := map[string]any{
		"path": "bash",
		"args": []string{"--rcfile", slash(g.inst.ActivationScript())},
		"icon": "snake",
	}
	if g.inst.Layout.Name == environment.WindowsLayout.Name {
		platform = "windows"
		terminal = map[string]any{
			"path": "cmd.exe",
			"args": []string{
				"/k",
				slash(g.inst.ActivationScript()),
				g.envRoot(),
				"&&",
				fmt.Sprintf("echo [%s] Environment Active - Type 'aienv' to access main menu", g.terminalProfile()),
			},
			"icon":  "snake",
			"color": "terminal.ansiGreen",
		}
	}

	return map[string]any{
		"python.defaultInterpreterPath":                  g.python(),
		"python.condaPath":                               slash(g.inst.PackageManagerExecutable()),
		"python.venvPath":                                slash(g.inst.EnvsDir()),
		"python.terminal.activateEnvironment":            true,
		"python.terminal.activateEnvInCurrentTerminal":   true,
		"python.envFile":                                 "${workspaceFolder}/.env",
		"python.analysis.typeCheckingMode":               "basic",
		"python.analysis.autoImportCompletions":          true,
		"flake8.path":                                    []string{g.envTool("flake8")},
		"autopep8.path":                                  []string{g.envTool("autopep8")},
		"terminal.integrated.defaultProfile." + platform: g.terminalProfile(),
		"terminal.integrated.profiles." + platform:       map[string]any{g.terminalProfile(): terminal},
		"files.associations":                             map[string]string{"*.py": "python"},
		"files.autoSave":                                 "onFocusChange",
		"editor.formatOnSave":                            true,
		"editor.codeActionsOnSave":                       map[string]bool{"source.organizeImports": true},
		"editor.rulers":                                  []int{80, 120},
		"editor.tabSize":                                 4,
		"editor.insertSpaces":                            true,
		"extensions.autoUpdate":                          false,
		"extensions.autoCheckUpdates":                    false,
		"telemetry.telemetryLevel":                       "off",
		"jupyter.askForKernelRestart":                    false,
		"jupyter.interactiveWindowMode":                  "single",
		"search.exclude": map[string]bool{
			"**/__pycache__": true,
			"**/*.pyc":       true,
			"**/.aienv":      true,
		},
	}
}

type launchConfig struct {
	Name                   string            `json:"name"`
	Type                   string            `json:"type"`
	Request                string            `json:"request"`
	Program                string            `json:"program,omitempty"`
	Module                 string            `json:"module,omitempty"`
	Args                   []string          `json:"args,omitempty"`
	Console                string            `json:"console"`
	Cwd                    string            `json:"cwd"`
	Python                 string            `json:"python"`
	Env                    map[string]string `json:"env,omitempty"`
	EnvFile                string            `json:"envFile,omitempty"`
	StopOnEntry            bool              `json:"stopOnEntry"`
	InternalConsoleOptions string            `json:"internalConsoleOptions,omitempty"`
}

func (g *Generator) launch() map[string]any {
	return map[string]any{
		"version": "0.2.0",
		"configurations": []launchConfig{
			{
				Name:                   "AI Environment: Current File",
				Type:                   "debugpy",
				Request:                "launch",
				Program:                "${file}",
				Console:                "integratedTerminal",
				Cwd:                    "${workspaceFolder}",
				Python:                 g.python(),
				Env:                    g.childEnv(true),
				EnvFile:                "${workspaceFolder}/.env",
				InternalConsoleOptions: "neverOpen",
			},
			{
				Name:                   "AI Environment: Streamlit Demo",
				Type:                   "debugpy",
				Request:                "launch",
				Module:                 "streamlit",
				Args:                   []string{"run", "streamlit_demo.py"},
				Console:                "integratedTerminal",
				Cwd:                    "${workspaceFolder}",
				Python:                 g.python(),
				Env:                    g.childEnv(true),
				EnvFile:                "${workspaceFolder}/.env",
				InternalConsoleOptions: "neverOpen",
			},
		},
	}
}

type taskConfig struct {
	Label          string         `json:"label"`
	Type           string         `json:"type"`
	Command        string         `json:"command"`
	Args           []string       `json:"args,omitempty"`
	Group          any            `json:"group,omitempty"`
	Presentation   map[string]any `json:"presentation,omitempty"`
	Options        map[string]any `json:"options,omitempty"`
	ProblemMatcher []string       `json:"problemMatcher"`
}

func (g *Generator) tasks() map[string]any {
	root := slash(g.inst.Root)
	return map[string]any{
		"version": "2.0.0",
		"tasks": []taskConfig{
			{
				Label:   "AI Environment: Run Current File",
				Type:    "shell",
				Command: g.python(),
				Args:    []string{"${file}"},
				Group:   map[string]any{"kind": "build", "isDefault": true},
				Presentation: map[string]any{
					"echo":   true,
					"reveal": "always",
					"focus":  false,
					"panel":  "shared",
				},
				Options: map[string]any{
					"cwd": "${workspaceFolder}",
					"env": g.childEnv(true),
				},
				ProblemMatcher: []string{},
			},
			{
				Label:        "AI Environment: Open Main Menu",
				Type:         "shell",
				Command:      "aienv",
				Group:        "build",
				Presentation: map[string]any{"echo": true, "reveal": "always", "focus": true, "panel": "new"},
				Options: map[string]any{
					"cwd": root,
					"env": g.childEnv(false),
				},
				ProblemMatcher: []string{},
			},
			{
				Label:          "AI Environment: Test All Components",
				Type:           "shell",
				Command:        "aienv",
				Args:           []string{"test"},
				Group:          "test",
				Presentation:   map[string]any{"echo": true, "reveal": "always", "focus": true, "panel": "new"},
				Options:        map[string]any{"cwd": root},
				ProblemMatcher: []string{},
			},
		},
	}
}

func extensions() map[string][]string {
	return map[string][]string{
		"recommendations": {
			"ms-python.python",
			"ms-python.vscode-pylance",
			"ms-python.flake8",
			"ms-python.autopep8",
			"ms-toolsai.jupyter",
			"ms-toolsai.jupyter-keymap",
			"ms-toolsai.jupyter-renderers",
			"streetsidesoftware.code-spell-checker",
		},
		"unwantedRecommendations": {
			"ms-python.pylint",
		},
	}
}

func (g *Generator) envFile() string {
	env := g.inst.EnvRoot(g.envName)
	sitePackages := filepath.Join(env, "Lib", "site-packages")
	if g.inst.Layout.Name != environment.WindowsLayout.Name {
		sitePackages = filepath.Join(env, "lib", "site-packages")
	}
	jupyter := slash(filepath.Join(g.inst.ProjectsDir(), ".jupyter"))
	sep := g.listSeparator()

	var b strings.Builder
	b.WriteString("# AI Environment variables, regenerated by 'aienv vscode'\n")
	section := func(title string, pairs ...string) {
		fmt.Fprintf(&b, "\n# %s\n", title)
		for i := 0; i+1 < len(pairs); i += 2 {
			fmt.Fprintf(&b, "%s=%s\n", pairs[i], pairs[i+1])
		}
	}

	section(g.envName+" conda environment",
		environment.VarActiveEnv, g.envName,
		environment.VarEnvPrefix, g.envRoot(),
		"PYTHONPATH", strings.Join([]string{g.envRoot(), slash(filepath.Join(env, g.inst.Layout.ScriptsDir)), slash(sitePackages)}, sep),
	)
	section("AI Environment system paths",
		environment.VarInstallRoot, slash(g.inst.Root),
		"AI_SRC_PATH", slash(g.inst.SrcDir()),
		"AI_HELP_PATH", slash(g.inst.HelpDir()),
	)
	section("Python configuration",
		environment.VarRuntimePath, g.python(),
		"PIP_PATH", g.envTool("pip"),
		environment.VarPackageMgr, slash(g.inst.PackageManagerExecutable()),
	)
	section("Project and working directories",
		"PROJECT_ROOT", slash(g.inst.ProjectsDir()),
		"JUPYTER_CONFIG_DIR", jupyter,
		"JUPYTER_DATA_DIR", jupyter,
	)
	section("Ollama integration",
		"OLLAMA_PATH", slash(g.inst.OllamaExecutable()),
		"OLLAMA_URL", g.ollamaURL,
		"OLLAMA_MODEL", g.model,
	)
	section("Python runtime settings",
		"PYTHONUNBUFFERED", "1",
		"PYTHONIOENCODING", "utf-8",
	)
	section("Search path",
		environment.VarSearchPath, strings.Join([]string{
			g.envRoot(),
			slash(filepath.Join(env, g.inst.Layout.ScriptsDir)),
			slash(filepath.Join(env, g.inst.Layout.LibraryBinDir)),
			slash(g.inst.Root),
			slash(g.inst.SrcDir()),
		}, sep),
	)
	return b.String()
}

// slash converts a native path to forward slashes. Backslashes are replaced
// explicitly so Windows paths render the same when generated elsewhere.
func slash(path string) string {
	return strings.ReplaceAll(filepath.ToSlash(path), `\`, "/")
}

func sortedKeys(files map[string][]byte) []string {
	keys := make([]string, 0, len(files))
	for k := range files {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
