package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"aienv/internal/app"
	"aienv/internal/config"
	aierrors "aienv/internal/errors"
	"aienv/internal/launcher"
	"aienv/internal/ui"
	"aienv/internal/workspace"
	"aienv/pkg/environment"
)

// version is set at build time via ldflags
var version = "dev"

var rootCmd = &cobra.Command{
	Use:     "aienv",
	Short:   "aienv - portable AI Environment bootstrapper",
	Version: version,
	Long: `aienv finds a portable AI Environment installation on any attached drive,
activates its conda environment for child processes and launches the bundled
tools (Jupyter, Streamlit, TensorBoard, MLflow, Ollama) from it.

Run without arguments to open the interactive menu.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setupLogging,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withController(cmd, func(ctx context.Context, a *app.App, c *app.Controller) error {
			menu := app.NewMenu(c, a.Console(), cmd.InOrStdin(), a.Config().EnvName, app.WorkDir())
			return menu.Run(ctx)
		})
	},
}

var testCmd = &cobra.Command{
	Use:   "test",
	Short: "Bootstrap the environment and run the smoke tests",
	Long: `Test activates the environment and checks the active environment name,
Python version, working directory, environment variables, pip and conda,
critical package imports and the Ollama server. It exits with code 1 when
any check fails.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		code := 1
		err := withController(cmd, func(ctx context.Context, a *app.App, c *app.Controller) error {
			code = c.SelfTest(ctx, app.WorkDir())
			return nil
		})
		if err != nil {
			return err
		}
		if code != 0 {
			return exitCode(code)
		}
		return nil
	},
}

var locateCmd = &cobra.Command{
	Use:   "locate",
	Short: "Print the AI Environment installation root",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		session, err := a.Locate(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), session.Installation.Root)
		return nil
	},
}

var activateCmd = &cobra.Command{
	Use:   "activate",
	Short: "Locate the installation and activate its conda environment",
	Long: `Activate runs discovery and activation and reports the result. Child
processes started by aienv inherit the activated environment; use
'aienv env' to bring it into your own shell.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		session, err := a.Bootstrap(cmd.Context())
		if err != nil {
			return err
		}

		console := a.Console()
		console.PrintInfo(fmt.Sprintf("Environment: %s", session.Activation.EnvName))
		console.PrintInfo(fmt.Sprintf("Python: %s", session.Activation.Runtime))
		if session.Activation.Version != "" {
			console.PrintInfo(fmt.Sprintf("Version: %s", session.Activation.Version))
		}
		console.PrintInfo(fmt.Sprintf("Projects: %s", session.Installation.ProjectsDir()))
		return nil
	},
}

var envCmd = &cobra.Command{
	Use:   "env",
	Short: "Print the activated environment as shell assignments",
	Long: `Env prints PATH and the activation variables for the given shell, e.g.

  eval "$(aienv env --shell bash)"
  aienv env --shell powershell | Invoke-Expression`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		shell, _ := cmd.Flags().GetString("shell")
		return withQuietController(cmd, func(ctx context.Context, a *app.App, c *app.Controller) error {
			script, err := c.EnvScript(shell)
			if err != nil {
				return aierrors.NewConfigError(
					"Cannot render environment script",
					err.Error(),
					"Pass --shell cmd, powershell or bash",
					err,
				)
			}
			fmt.Fprint(cmd.OutOrStdout(), script)
			return nil
		})
	},
}

var launchCmd = &cobra.Command{
	Use:   "launch <app>",
	Short: "Launch an application in the background",
	Long: `Launch starts an application with the activated environment and records it
in the process registry. Built-in applications: jupyter, streamlit,
tensorboard, mlflow, ollama, python, conda, explorer. More can be declared
under apps in aienv.yaml.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		noBrowser, _ := cmd.Flags().GetBool("no-browser")
		inContainer, _ := cmd.Flags().GetBool("container")
		return withController(cmd, func(ctx context.Context, a *app.App, c *app.Controller) error {
			return c.Launch(ctx, args[0], launcher.LaunchOptions{NoBrowser: noBrowser, Container: inContainer})
		})
	},
}

var psCmd = &cobra.Command{
	Use:   "ps",
	Short: "List background processes started by aienv",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		prune, _ := cmd.Flags().GetBool("prune")
		return withController(cmd, func(ctx context.Context, a *app.App, c *app.Controller) error {
			if prune {
				if err := c.PruneProcesses(ctx); err != nil {
					return err
				}
			}
			return c.ListProcesses(ctx)
		})
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop <id|name>",
	Short: "Stop a background process",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withController(cmd, func(ctx context.Context, a *app.App, c *app.Controller) error {
			return c.StopProcess(ctx, args[0])
		})
	},
}

var vscodeCmd = &cobra.Command{
	Use:   "vscode",
	Short: "Write VS Code workspace settings for the AI Environment",
	Long: `VSCode writes .vscode/settings.json, launch.json, tasks.json,
extensions.json and a .env file into the project directory (Projects by
default). Existing files are replaced.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		project, _ := cmd.Flags().GetString("project")
		return withController(cmd, func(ctx context.Context, a *app.App, c *app.Controller) error {
			return c.ConfigureWorkspace(project)
		})
	},
}

var projectCmd = &cobra.Command{
	Use:   "project",
	Short: "Manage starter projects",
}

var projectNewCmd = &cobra.Command{
	Use:   "new <name>",
	Short: "Create a starter project wired to the AI Environment",
	Long: `New creates <Projects>/<name> with a main.py integration example, a
Streamlit demo and VS Code workspace settings, and optionally initializes a
git repository with an initial commit and pushes it to a remote.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		git, _ := cmd.Flags().GetBool("git")
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		parent, _ := cmd.Flags().GetString("dir")
		remote, _ := cmd.Flags().GetString("remote")
		return withController(cmd, func(ctx context.Context, a *app.App, c *app.Controller) error {
			_, err := c.NewProject(workspace.ProjectOptions{
				Name:   args[0],
				Parent: parent,
				Git:    git,
				Remote: remote,
				DryRun: dryRun,
			})
			return err
		})
	},
}

var queryCmd = &cobra.Command{
	Use:   "query <prompt>",
	Short: "Ask the local Ollama model a question",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		model, _ := cmd.Flags().GetString("model")
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		app.Ask(cmd.Context(), app.NewOllamaClient(cfg), ui.NewConsole(), strings.Join(args, " "), model)
		return nil
	},
}

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List models available on the Ollama server",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		return app.ListModels(cmd.Context(), app.NewOllamaClient(cfg), ui.NewConsole())
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringP("config", "c", "", "Path to aienv.yaml (default: ./aienv.yaml or ~/.config/aienv/aienv.yaml)")
	flags.BoolP("verbose", "v", false, "Print every candidate checked and each bootstrap stage")
	flags.StringP("env", "e", "", "Conda environment to activate (default: AI2025)")
	flags.StringSlice("root", nil, "Candidate root to search for AI_Environment (repeatable)")

	envCmd.Flags().StringP("shell", "s", defaultShell(), "Shell syntax: cmd, powershell or bash")

	launchCmd.Flags().Bool("no-browser", false, "Do not open a browser tab")
	launchCmd.Flags().Bool("container", false, "Run the application in a Docker container where supported")

	psCmd.Flags().Bool("prune", false, "Forget processes that have exited")

	vscodeCmd.Flags().StringP("project", "p", "", "Project directory (default: <root>/Projects)")

	projectNewCmd.Flags().Bool("git", false, "Initialize a git repository with an initial commit")
	projectNewCmd.Flags().Bool("dry-run", false, "Print files that would be created without actually writing them")
	projectNewCmd.Flags().String("dir", "", "Parent directory (default: <root>/Projects)")
	projectNewCmd.Flags().String("remote", "", "Push the initial commit to this remote URL (implies --git; token from AIENV_GIT_TOKEN)")
	projectCmd.AddCommand(projectNewCmd)

	queryCmd.Flags().StringP("model", "m", "", "Model to ask (default: ollama.model from config)")

	rootCmd.AddCommand(testCmd, locateCmd, activateCmd, envCmd, launchCmd, psCmd, stopCmd,
		vscodeCmd, projectCmd, queryCmd, modelsCmd)
}

// exitCode carries a non-error process exit status out of RunE.
type exitCode int

func (e exitCode) Error() string {
	return fmt.Sprintf("exit status %d", int(e))
}

func setupLogging(cmd *cobra.Command, args []string) error {
	handler, err := aierrors.GetDefaultHandler()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: logging disabled: %v\n", err)
		return nil
	}
	slog.SetDefault(handler.Logger())
	slog.Info("aienv started", "version", version, "command", cmd.CommandPath())
	return nil
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, aierrors.NewConfigError(
			"Failed to load configuration",
			err.Error(),
			"Fix aienv.yaml or remove it to use the defaults",
			err,
		)
	}

	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		cfg.Verbose = true
	}
	if env, _ := cmd.Flags().GetString("env"); env != "" {
		cfg.EnvName = env
	}
	if roots, _ := cmd.Flags().GetStringSlice("root"); len(roots) > 0 {
		cfg.Locator.Roots = roots
	}
	return cfg, nil
}

func newApp(cmd *cobra.Command) (*app.App, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return app.New(app.Options{Config: cfg, Console: ui.NewConsole()}), nil
}

// withController bootstraps the environment and hands an activated
// controller to fn.
func withController(cmd *cobra.Command, fn func(ctx context.Context, a *app.App, c *app.Controller) error) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	return runController(cmd, a, fn)
}

// withQuietController is withController with bootstrap chatter sent to
// stderr, so stdout carries only fn's output.
func withQuietController(cmd *cobra.Command, fn func(ctx context.Context, a *app.App, c *app.Controller) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	console := ui.NewConsoleWithWriters(cmd.ErrOrStderr(), cmd.ErrOrStderr(), false)
	return runController(cmd, app.New(app.Options{Config: cfg, Console: console}), fn)
}

func runController(cmd *cobra.Command, a *app.App, fn func(ctx context.Context, a *app.App, c *app.Controller) error) error {
	ctx := cmd.Context()
	session, err := a.Bootstrap(ctx)
	if err != nil {
		return err
	}
	c, err := a.NewController(session, app.ControllerOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err := c.Close(); err != nil {
			slog.Warn("Failed to close container runtime", "error", err)
		}
	}()
	return fn(ctx, a, c)
}

func defaultShell() string {
	if os.PathSeparator == '\\' {
		return environment.ShellCmd
	}
	return environment.ShellBash
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := rootCmd.ExecuteContext(ctx)
	stop()

	if err == nil {
		return
	}
	if code, ok := err.(exitCode); ok {
		os.Exit(int(code))
	}
	aierrors.HandleError(err)
	os.Exit(1)
}
