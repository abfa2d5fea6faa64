package launcher

import (
	"fmt"
	"path/filepath"
	"runtime"
	"strings"

	"mvdan.cc/sh/v3/shell"

	"aienv/internal/config"
	"aienv/pkg/environment"
)

// App is a launchable application. Args[0] is resolved against the
// activated search path at launch time.
type App struct {
	Name    string
	Title   string
	Args    []string
	Dir     string
	Port    int
	URLPath string
	// Prepare lists directories created before launch.
	Prepare []string
	// Browser opens URL once Port accepts connections.
	Browser bool
	// Containerized apps can run under the container backend instead.
	Containerized bool
}

// URL returns the local address of the app, or "" when it has no port.
func (a App) URL(host string) string {
	if a.Port == 0 {
		return ""
	}
	return fmt.Sprintf("http://%s:%d%s", host, a.Port, a.URLPath)
}

const (
	AppJupyter     = "jupyter"
	AppStreamlit   = "streamlit"
	AppTensorBoard = "tensorboard"
	AppMLflow      = "mlflow"
	AppOllama      = "ollama"
	AppPython      = "python"
	AppConda       = "conda"
	AppExplorer    = "explorer"
)

// Catalog returns the built-in applications followed by extra ones from
// configuration. Extra commands are split with shell quoting rules and
// expand $VARS from rt.
func Catalog(inst *environment.Installation, envName string, rt *environment.Runtime, extra []config.AppConfig) ([]App, error) {
	projects := inst.ProjectsDir()
	logs := filepath.Join(projects, "logs")
	mlruns := filepath.Join(projects, "mlruns")

	apps := []App{
		{
			Name:    AppJupyter,
			Title:   "Jupyter Lab",
			Args:    []string{"jupyter", "lab", "--no-browser", "--port=8888", "--notebook-dir=" + projects},
			Dir:     projects,
			Port:    8888,
			Prepare: []string{projects},
			Browser: true,
		},
		{
			Name:    AppStreamlit,
			Title:   "Streamlit Demo",
			Args:    []string{"streamlit", "run", filepath.Join(projects, "streamlit_demo.py"), "--server.port=8501", "--server.headless=true"},
			Dir:     projects,
			Port:    8501,
			Browser: true,
		},
		{
			Name:    AppTensorBoard,
			Title:   "TensorBoard",
			Args:    []string{"tensorboard", "--logdir=" + logs, "--port=6006"},
			Dir:     inst.Root,
			Port:    6006,
			Prepare: []string{logs},
			Browser: true,
		},
		{
			Name:    AppMLflow,
			Title:   "MLflow UI",
			Args:    []string{"mlflow", "ui", "--backend-store-uri", FileURI(mlruns), "--port=5000"},
			Dir:     inst.Root,
			Port:    5000,
			Prepare: []string{mlruns},
			Browser: true,
		},
		{
			Name:          AppOllama,
			Title:         "Ollama Server",
			Args:          []string{inst.OllamaExecutable(), "serve"},
			Dir:           inst.OllamaDir(),
			Port:          11434,
			Containerized: true,
		},
		{
			Name:  AppPython,
			Title: "Python REPL",
			Args:  terminalCommand("Python REPL - AI Environment", []string{"python"}),
			Dir:   inst.Root,
		},
		{
			Name:  AppConda,
			Title: "Conda Prompt",
			Args:  terminalCommand("Conda Prompt - "+envName, condaPrompt(inst, envName)),
			Dir:   inst.Root,
		},
		{
			Name:  AppExplorer,
			Title: "File Explorer",
			Args:  fileManagerCommand(inst.Root),
			Dir:   inst.Root,
		},
	}

	for _, c := range extra {
		args, err := shell.Fields(c.Command, rt.Lookup)
		if err != nil {
			return nil, fmt.Errorf("invalid command for app %q: %w", c.Name, err)
		}
		if len(args) == 0 {
			return nil, fmt.Errorf("app %q has an empty command", c.Name)
		}
		dir := inst.Root
		if c.Dir != "" {
			dir = c.Dir
			if !filepath.IsAbs(dir) {
				dir = filepath.Join(inst.Root, dir)
			}
		}
		apps = append(apps, App{
			Name:    c.Name,
			Title:   c.Name,
			Args:    args,
			Dir:     dir,
			Port:    c.Port,
			URLPath: c.Path,
			Browser: c.Port > 0,
		})
	}

	return apps, nil
}

// FindApp looks an app up by name, ignoring case.
func FindApp(apps []App, name string) (App, bool) {
	for _, app := range apps {
		if strings.EqualFold(app.Name, name) {
			return app, true
		}
	}
	return App{}, false
}

// AppNames lists app names in catalog order.
func AppNames(apps []App) []string {
	names := make([]string, len(apps))
	for i, app := range apps {
		names[i] = app.Name
	}
	return names
}

// FileURI turns a local path into a file:/// URI with forward slashes.
func FileURI(path string) string {
	p := filepath.ToSlash(path)
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return "file://" + p
}

func terminalCommand(title string, inner []string) []string {
	switch runtime.GOOS {
	case "windows":
		return append([]string{"cmd", "/c", "start", title, "cmd", "/k"}, inner...)
	case "darwin":
		script := fmt.Sprintf(`tell application "Terminal" to do script %q`, strings.Join(inner, " "))
		return []string{"osascript", "-e", script}
	default:
		return append([]string{"x-terminal-emulator", "-T", title, "-e"}, inner...)
	}
}

func condaPrompt(inst *environment.Installation, envName string) []string {
	if runtime.GOOS == "windows" {
		return []string{inst.ActivationScript(), envName}
	}
	return []string{"bash", "-c", fmt.Sprintf("source %q %s && exec bash", inst.ActivationScript(), envName)}
}

func fileManagerCommand(dir string) []string {
	switch runtime.GOOS {
	case "windows":
		return []string{"explorer", dir}
	case "darwin":
		return []string{"open", dir}
	default:
		return []string{"xdg-open", dir}
	}
}
