package app

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"aienv/internal/config"
	"aienv/internal/launcher"
	"aienv/internal/ollama"
	"aienv/internal/smoketest"
	"aienv/internal/ui"
	"aienv/internal/workspace"
	"aienv/pkg/environment"
)

// Controller carries out operator actions against an activated session.
type Controller struct {
	app       *App
	session   *Session
	launcher  *launcher.Launcher
	workspace *workspace.Generator
	ollama    *ollama.Client
	backend   *lazyBackend
}

// ControllerOptions are test seams for Controller; zero values use the host.
type ControllerOptions struct {
	Starter   launcher.Starter
	Processes launcher.ProcessTable
	Browser   launcher.Browser
	Ollama    *ollama.Client
}

// NewController builds the launcher, workspace generator and query client
// for session, which must be activated.
func (a *App) NewController(session *Session, opts ControllerOptions) (*Controller, error) {
	if !session.Activated() {
		return nil, errors.New("session is not activated")
	}
	cfg := a.cfg
	inst := session.Installation

	apps, err := launcher.Catalog(inst, cfg.EnvName, session.Runtime, cfg.Apps)
	if err != nil {
		return nil, err
	}

	backend := newLazyBackend(a.containers, inst, cfg.Ollama.Port)
	l, err := launcher.New(launcher.Options{
		Installation: inst,
		Runtime:      session.Runtime,
		Apps:         apps,
		Starter:      opts.Starter,
		Processes:    opts.Processes,
		Browser:      opts.Browser,
		Container:    backend,
		Console:      a.console,
		ReadyTimeout: cfg.Launcher.ReadyTimeout,
		PollInterval: cfg.Launcher.PollInterval,
		OpenBrowser:  cfg.Launcher.OpenBrowser,
	})
	if err != nil {
		return nil, err
	}

	client := opts.Ollama
	if client == nil {
		client = NewOllamaClient(cfg)
	}

	generator := workspace.NewGenerator(workspace.Options{
		Installation: inst,
		EnvName:      cfg.EnvName,
		OllamaURL:    client.Endpoint(),
		Model:        client.Model(),
		Console:      a.console,
	})

	return &Controller{
		app:       a,
		session:   session,
		launcher:  l,
		workspace: generator,
		ollama:    client,
		backend:   backend,
	}, nil
}

// Close releases the container runtime client if one was opened.
func (c *Controller) Close() error {
	return c.backend.Close()
}

func (c *Controller) Session() *Session {
	return c.session
}

func (c *Controller) Apps() []launcher.App {
	return c.launcher.Apps()
}

// Launch starts a catalog application. The Streamlit demo script is
// created on first use.
func (c *Controller) Launch(ctx context.Context, name string, opts launcher.LaunchOptions) error {
	if app, ok := launcher.FindApp(c.launcher.Apps(), name); ok && app.Name == launcher.AppStreamlit {
		if _, err := c.workspace.EnsureStreamlitDemo(c.session.Installation.ProjectsDir()); err != nil {
			return err
		}
	}
	_, err := c.launcher.Launch(ctx, name, opts)
	return err
}

// ConfigureWorkspace writes editor configuration into dir, defaulting to
// the Projects directory.
func (c *Controller) ConfigureWorkspace(dir string) error {
	if dir == "" {
		dir = c.session.Installation.ProjectsDir()
	}
	_, err := c.workspace.Generate(dir)
	return err
}

func (c *Controller) NewProject(opts workspace.ProjectOptions) (*workspace.Project, error) {
	return c.workspace.Scaffold(opts, nil)
}

// ListProcesses prints the background process registry with liveness.
func (c *Controller) ListProcesses(ctx context.Context) error {
	statuses := c.launcher.Status(ctx)
	console := c.app.console
	if len(statuses) == 0 {
		console.PrintInfo("No background processes")
		return nil
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("ID", "NAME", "PID", "PORT", "STATUS", "STARTED", "URL")
	for _, s := range statuses {
		state := "running"
		if !s.Alive {
			state = "exited"
		}
		pid := strconv.Itoa(s.PID)
		if s.ContainerID != "" {
			pid = "container"
		}
		port := ""
		if s.Port > 0 {
			port = strconv.Itoa(s.Port)
		}
		t.Row(shortID(s.ID), s.Name, pid, port, state, s.StartedAt.Format(time.DateTime), s.URL)
	}
	console.Println(t.String())
	return nil
}

// StopProcess stops a background process by ID, ID prefix or name.
func (c *Controller) StopProcess(ctx context.Context, ref string) error {
	_, err := c.launcher.Stop(ctx, ref)
	return err
}

// PruneProcesses forgets exited processes.
func (c *Controller) PruneProcesses(ctx context.Context) error {
	n, err := c.launcher.Prune(ctx)
	if err != nil {
		return err
	}
	c.app.console.PrintInfo(fmt.Sprintf("Removed %d exited process(es) from the registry", n))
	return nil
}

// ListModels prints the models the generative-text server has pulled.
func (c *Controller) ListModels(ctx context.Context) error {
	return ListModels(ctx, c.ollama, c.app.console)
}

// Query sends prompt to model (the configured default when empty) and
// prints the answer. Transport failures are printed as the answer.
func (c *Controller) Query(ctx context.Context, prompt, model string) string {
	return Ask(ctx, c.ollama, c.app.console, prompt, model)
}

// NewOllamaClient builds the query client from configuration. Querying
// needs no installation, so it is available before bootstrap.
func NewOllamaClient(cfg *config.Config) *ollama.Client {
	return ollama.NewClient(cfg.OllamaURL(),
		ollama.WithModel(cfg.Ollama.Model),
		ollama.WithTimeouts(cfg.Ollama.Timeout, cfg.Ollama.ListTimeout),
	)
}

func ListModels(ctx context.Context, client *ollama.Client, console *ui.Console) error {
	models, err := client.ListModels(ctx)
	if err != nil {
		return err
	}

	console.PrintSuccess("Ollama server is running")
	console.PrintInfo(fmt.Sprintf("Available models: %d", len(models)))
	for _, m := range models {
		console.Println("  - " + m.Name)
	}
	return nil
}

func Ask(ctx context.Context, client *ollama.Client, console *ui.Console, prompt, model string) string {
	if model == "" {
		model = client.Model()
	}
	console.PrintInfo(fmt.Sprintf("Asking %s...", model))
	answer := client.Query(ctx, model, prompt)
	console.Println(answer)
	return answer
}

// SelfTest runs the smoke test suite and returns its exit code.
func (c *Controller) SelfTest(ctx context.Context, workDir string) int {
	suite := smoketest.New(smoketest.Options{
		Runner:       c.app.runner,
		Runtime:      c.session.Runtime,
		Installation: c.session.Installation,
		EnvName:      c.app.cfg.EnvName,
		WorkDir:      workDir,
		Ollama:       c.ollama,
		Console:      c.app.console,
		Timeout:      c.app.cfg.Commands.Timeout,
	})
	return suite.Run(ctx).ExitCode()
}

// EnvScript renders the activated runtime as assignments for shell.
func (c *Controller) EnvScript(shell string) (string, error) {
	return environment.ShellScript(c.session.Runtime, shell)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
