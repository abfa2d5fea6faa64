package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"aienv/internal/activator"
	"aienv/internal/config"
	"aienv/internal/locator"
	"aienv/internal/runner"
	"aienv/internal/ui"
)

// Options wires an App. Config and Console are required.
type Options struct {
	Config  *config.Config
	Console *ui.Console
	Runner  runner.CommandRunner
	// Environ seeds the session runtime; nil snapshots the process environment.
	Environ    []string
	Containers ContainerFactory
}

// App bootstraps the AI Environment and hands out controllers for the
// operations that need an activated session.
type App struct {
	cfg        *config.Config
	console    *ui.Console
	runner     runner.CommandRunner
	environ    []string
	containers ContainerFactory
}

func New(opts Options) *App {
	a := &App{
		cfg:        opts.Config,
		console:    opts.Console,
		runner:     opts.Runner,
		environ:    opts.Environ,
		containers: opts.Containers,
	}
	if a.runner == nil {
		a.runner = runner.ExecRunner{}
	}
	if a.console == nil {
		a.console = ui.NewConsole()
	}
	if a.containers == nil {
		a.containers = NewDockerFactory(a.cfg)
	}
	return a
}

func (a *App) Config() *config.Config {
	return a.cfg
}

func (a *App) Console() *ui.Console {
	return a.console
}

// Locate runs only the locate stage.
func (a *App) Locate(ctx context.Context) (*Session, error) {
	session := newSession(a.cfg, a.environ)
	return session, a.run(ctx, session, []Stage{a.locateStage()})
}

// Bootstrap locates the installation and activates the configured
// sub-environment. The first failing stage aborts the sequence.
func (a *App) Bootstrap(ctx context.Context) (*Session, error) {
	session := newSession(a.cfg, a.environ)
	stages := []Stage{
		a.locateStage(),
		NewActivateStage(activator.New(activator.Options{
			Runner:                a.runner,
			Console:               a.console,
			CommandTimeout:        a.cfg.Commands.Timeout,
			PackageManagerTimeout: a.cfg.Commands.PackageManagerTimeout,
		}), a.cfg.EnvName),
	}
	return session, a.run(ctx, session, stages)
}

func (a *App) locateStage() Stage {
	return NewLocateStage(locator.Options{
		Roots:    a.cfg.Locator.Roots,
		Override: a.cfg.Locator.Override,
		Layout:   a.cfg.EnvironmentLayout(),
		Verbose:  a.cfg.Verbose,
		Console:  a.console,
	}, a.console)
}

func (a *App) run(ctx context.Context, session *Session, stages []Stage) error {
	slog.Info("Starting aienv bootstrap", "runId", session.RunID, "env", a.cfg.EnvName, "stages", len(stages))

	for i, stage := range stages {
		if a.cfg.Verbose {
			a.console.PrintVerbose(fmt.Sprintf("Stage %d: %s", i+1, stage.Name()))
		}
		if err := stage.Execute(ctx, session); err != nil {
			slog.Error("Bootstrap stage failed", "runId", session.RunID, "stage", stage.Name(), "error", err)
			return err
		}
		slog.Info("Bootstrap stage completed", "runId", session.RunID, "stage", stage.Name())
	}
	return nil
}

// WorkDir is the directory smoke tests treat as current.
func WorkDir() string {
	dir, err := os.Getwd()
	if err != nil {
		return "."
	}
	return dir
}
