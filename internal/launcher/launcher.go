package launcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	aierrors "aienv/internal/errors"
	"aienv/internal/ui"
	"aienv/pkg/environment"
)

var (
	ErrUnknownApp       = errors.New("unknown application")
	ErrProcessNotFound  = errors.New("no such background process")
	ErrNoContainerSetup = errors.New("application cannot run in a container")
)

// ContainerBackend runs a containerized app, see container.OllamaServer.
type ContainerBackend interface {
	Start(ctx context.Context) (string, error)
	Stop(ctx context.Context, containerID string) error
	IsRunning(ctx context.Context, containerID string) (bool, error)
	HostPort() int
}

// Options wires a Launcher. Installation, Runtime and Apps are required;
// everything else has a working default.
type Options struct {
	Installation *environment.Installation
	Runtime      *environment.Runtime
	Apps         []App
	Registry     *Registry
	Starter      Starter
	Processes    ProcessTable
	Browser      Browser
	Container    ContainerBackend
	Console      *ui.Console
	Host         string
	ReadyTimeout time.Duration
	PollInterval time.Duration
	OpenBrowser  bool
}

// LaunchOptions tune a single launch.
type LaunchOptions struct {
	NoBrowser bool
	Container bool
}

// Status pairs a registry entry with its current liveness.
type Status struct {
	ProcessHandle
	Alive bool
}

// Launcher starts applications with the activated environment and keeps
// track of them in the registry.
type Launcher struct {
	inst         *environment.Installation
	rt           *environment.Runtime
	apps         []App
	registry     *Registry
	starter      Starter
	procs        ProcessTable
	browser      Browser
	container    ContainerBackend
	console      *ui.Console
	host         string
	readyTimeout time.Duration
	pollInterval time.Duration
	openBrowser  bool
}

func New(opts Options) (*Launcher, error) {
	if opts.Installation == nil || opts.Runtime == nil {
		return nil, errors.New("launcher requires an installation and an activated runtime")
	}

	l := &Launcher{
		inst:         opts.Installation,
		rt:           opts.Runtime,
		apps:         opts.Apps,
		registry:     opts.Registry,
		starter:      opts.Starter,
		procs:        opts.Processes,
		browser:      opts.Browser,
		container:    opts.Container,
		console:      opts.Console,
		host:         opts.Host,
		readyTimeout: opts.ReadyTimeout,
		pollInterval: opts.PollInterval,
		openBrowser:  opts.OpenBrowser,
	}
	if l.registry == nil {
		registry, err := OpenRegistry(l.inst.StateDir())
		if err != nil {
			return nil, err
		}
		l.registry = registry
	}
	if l.starter == nil {
		l.starter = ExecStarter{}
	}
	if l.procs == nil {
		l.procs = SystemProcesses{}
	}
	if l.browser == nil {
		l.browser = SystemBrowser{}
	}
	if l.console == nil {
		l.console = ui.NewConsoleWithWriters(io.Discard, io.Discard, false)
	}
	if l.host == "" {
		l.host = "localhost"
	}
	return l, nil
}

func (l *Launcher) Apps() []App {
	return l.apps
}

// Launch starts the named app detached and records it. When the app serves
// a web UI, the browser opens after its port accepts connections; if that
// never happens within the ready timeout a warning is printed and the
// browser opens anyway.
func (l *Launcher) Launch(ctx context.Context, name string, opts LaunchOptions) (*ProcessHandle, error) {
	app, ok := FindApp(l.apps, name)
	if !ok {
		return nil, aierrors.NewLaunchError(
			fmt.Sprintf("Unknown application '%s'", name),
			"Available: "+strings.Join(AppNames(l.apps), ", "),
			"Pick one of the listed applications or declare it under apps in aienv.yaml",
			fmt.Errorf("%w: %s", ErrUnknownApp, name),
		)
	}

	l.console.PrintInfo(fmt.Sprintf("Launching %s...", app.Title))

	for _, dir := range app.Prepare {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, aierrors.NewFileSystemError(
				fmt.Sprintf("Failed to prepare %s", app.Title),
				fmt.Sprintf("could not create %s", dir),
				"Check that the installation drive is writable",
				err,
			)
		}
	}

	var (
		handle *ProcessHandle
		err    error
	)
	if opts.Container {
		handle, err = l.startContainer(ctx, app)
	} else {
		handle, err = l.startProcess(app)
	}
	if err != nil {
		return nil, err
	}

	if err := l.registry.Add(*handle); err != nil {
		slog.Warn("Failed to record background process", "name", app.Name, "error", err)
	}

	l.console.PrintSuccess(fmt.Sprintf("%s launched successfully", app.Title))
	if handle.URL != "" {
		l.console.PrintInfo(fmt.Sprintf("Access %s at: %s", app.Title, handle.URL))
	}
	l.console.PrintInfo("Use 'aienv ps' to see background processes")
	slog.Info("Application launched", "app", app.Name, "id", handle.ID, "pid", handle.PID, "containerID", handle.ContainerID, "port", handle.Port)

	if app.Browser && handle.URL != "" && l.openBrowser && !opts.NoBrowser {
		l.openWhenReady(ctx, app, handle)
	}

	return handle, nil
}

func (l *Launcher) startProcess(app App) (*ProcessHandle, error) {
	exe, err := l.rt.LookPath(app.Args[0])
	if err != nil {
		return nil, aierrors.NewLaunchError(
			fmt.Sprintf("Failed to launch %s", app.Title),
			fmt.Sprintf("'%s' was not found in the activated environment", app.Args[0]),
			fmt.Sprintf("Install it into the '%s' environment, e.g. conda install %s", l.rt.Lookup(environment.VarActiveEnv), filepath.Base(app.Args[0])),
			err,
		)
	}

	id := uuid.New().String()
	logFile := filepath.Join(l.inst.StateDir(), "logs", app.Name+".log")
	pid, err := l.starter.Start(StartSpec{
		Path:    exe,
		Args:    app.Args[1:],
		Env:     l.rt.Environ(),
		Dir:     app.Dir,
		LogFile: logFile,
	})
	if err != nil {
		return nil, aierrors.NewLaunchError(
			fmt.Sprintf("Failed to launch %s", app.Title),
			err.Error(),
			fmt.Sprintf("See %s for details", logFile),
			err,
		)
	}

	return &ProcessHandle{
		ID:        id,
		Name:      app.Name,
		Title:     app.Title,
		PID:       pid,
		Port:      app.Port,
		URL:       app.URL(l.host),
		Command:   append([]string{exe}, app.Args[1:]...),
		LogFile:   logFile,
		StartedAt: time.Now(),
	}, nil
}

func (l *Launcher) startContainer(ctx context.Context, app App) (*ProcessHandle, error) {
	if !app.Containerized || l.container == nil {
		return nil, aierrors.NewLaunchError(
			fmt.Sprintf("%s cannot run in a container", app.Title),
			"no container backend serves this application",
			"Launch it without --container",
			fmt.Errorf("%w: %s", ErrNoContainerSetup, app.Name),
		)
	}

	containerID, err := l.container.Start(ctx)
	if err != nil {
		return nil, aierrors.NewLaunchError(
			fmt.Sprintf("Failed to launch %s in a container", app.Title),
			err.Error(),
			"Make sure Docker is running, or launch without --container",
			err,
		)
	}

	app.Port = l.container.HostPort()
	return &ProcessHandle{
		ID:          uuid.New().String(),
		Name:        app.Name,
		Title:       app.Title,
		Port:        app.Port,
		URL:         app.URL(l.host),
		ContainerID: containerID,
		StartedAt:   time.Now(),
	}, nil
}

func (l *Launcher) openWhenReady(ctx context.Context, app App, handle *ProcessHandle) {
	address := net.JoinHostPort(l.host, strconv.Itoa(handle.Port))
	if err := WaitForPort(ctx, address, l.readyTimeout, l.pollInterval); err != nil {
		l.console.PrintWarning(fmt.Sprintf("%s is not accepting connections yet, opening browser anyway", app.Title))
		slog.Warn("Readiness probe failed", "app", app.Name, "address", address, "error", err)
	}

	if err := l.browser.Open(handle.URL); err != nil {
		l.console.PrintWarning(fmt.Sprintf("Could not open browser: %v", err))
		return
	}
	l.console.PrintSuccess(fmt.Sprintf("%s opened in browser", app.Title))
}

// Status reports every registered process with its liveness.
func (l *Launcher) Status(ctx context.Context) []Status {
	handles := l.registry.List()
	out := make([]Status, 0, len(handles))
	for _, h := range handles {
		out = append(out, Status{ProcessHandle: h, Alive: l.alive(ctx, h)})
	}
	return out
}

// Prune forgets processes that are no longer running and returns how many
// entries were removed.
func (l *Launcher) Prune(ctx context.Context) (int, error) {
	removed := 0
	for _, s := range l.Status(ctx) {
		if s.Alive {
			continue
		}
		if err := l.registry.Remove(s.ID); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

// Stop terminates the process referenced by ID, ID prefix or app name and
// removes it from the registry.
func (l *Launcher) Stop(ctx context.Context, ref string) (*ProcessHandle, error) {
	h, ok := l.registry.Find(ref)
	if !ok {
		return nil, aierrors.NewNotFoundError(
			fmt.Sprintf("No background process matches '%s'", ref),
			"",
			"Run 'aienv ps' to list background processes",
			fmt.Errorf("%w: %s", ErrProcessNotFound, ref),
		)
	}

	if err := l.terminate(ctx, h); err != nil {
		return nil, aierrors.NewLaunchError(
			fmt.Sprintf("Failed to stop %s", h.Title),
			err.Error(),
			"Stop it manually from the task manager",
			err,
		)
	}

	if err := l.registry.Remove(h.ID); err != nil {
		return nil, err
	}
	l.console.PrintSuccess(fmt.Sprintf("Stopped %s", h.Title))
	slog.Info("Background process stopped", "name", h.Name, "id", h.ID, "pid", h.PID)
	return &h, nil
}

func (l *Launcher) terminate(ctx context.Context, h ProcessHandle) error {
	if h.ContainerID != "" {
		if l.container == nil {
			return fmt.Errorf("no container backend to stop %s", h.ContainerID)
		}
		return l.container.Stop(ctx, h.ContainerID)
	}
	if !l.procs.Alive(h.PID) {
		return nil
	}
	return l.procs.Terminate(h.PID)
}

func (l *Launcher) alive(ctx context.Context, h ProcessHandle) bool {
	if h.ContainerID != "" {
		if l.container == nil {
			return false
		}
		running, err := l.container.IsRunning(ctx, h.ContainerID)
		return err == nil && running
	}
	return l.procs.Alive(h.PID)
}
