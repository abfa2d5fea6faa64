package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	aierrors "aienv/internal/errors"
	"aienv/internal/launcher"
	"aienv/internal/ui"
)

// Actions is what the menu drives; *Controller implements it.
type Actions interface {
	Launch(ctx context.Context, name string, opts launcher.LaunchOptions) error
	ConfigureWorkspace(dir string) error
	ListProcesses(ctx context.Context) error
	StopProcess(ctx context.Context, ref string) error
	ListModels(ctx context.Context) error
	Query(ctx context.Context, prompt, model string) string
	SelfTest(ctx context.Context, workDir string) int
}

type menuItem struct {
	key   string
	label string
	run   func(ctx context.Context, m *Menu) error
}

// Menu is the numbered interactive loop shown by `aienv` with no arguments.
type Menu struct {
	actions Actions
	console *ui.Console
	in      *bufio.Scanner
	envName string
	workDir string
	items   []menuItem
}

func NewMenu(actions Actions, console *ui.Console, in io.Reader, envName, workDir string) *Menu {
	m := &Menu{
		actions: actions,
		console: console,
		in:      bufio.NewScanner(in),
		envName: envName,
		workDir: workDir,
	}
	m.items = []menuItem{
		{"1", "Jupyter Lab", launch(launcher.AppJupyter)},
		{"2", "Streamlit demo", launch(launcher.AppStreamlit)},
		{"3", "TensorBoard", launch(launcher.AppTensorBoard)},
		{"4", "MLflow UI", launch(launcher.AppMLflow)},
		{"5", "Python REPL", launch(launcher.AppPython)},
		{"6", "Ollama server", launch(launcher.AppOllama)},
		{"7", "Conda prompt", launch(launcher.AppConda)},
		{"8", "File explorer", launch(launcher.AppExplorer)},
		{"9", "Configure VS Code workspace", func(ctx context.Context, m *Menu) error {
			return m.actions.ConfigureWorkspace("")
		}},
		{"10", "List background processes", func(ctx context.Context, m *Menu) error {
			return m.actions.ListProcesses(ctx)
		}},
		{"11", "Stop a background process", func(ctx context.Context, m *Menu) error {
			ref, ok := m.ask("Process ID or name: ")
			if !ok || ref == "" {
				return nil
			}
			return m.actions.StopProcess(ctx, ref)
		}},
		{"12", "List Ollama models", func(ctx context.Context, m *Menu) error {
			return m.actions.ListModels(ctx)
		}},
		{"13", "Ask the local model", func(ctx context.Context, m *Menu) error {
			prompt, ok := m.ask("Prompt: ")
			if !ok || prompt == "" {
				return nil
			}
			m.actions.Query(ctx, prompt, "")
			return nil
		}},
		{"14", "Run environment self-test", func(ctx context.Context, m *Menu) error {
			m.actions.SelfTest(ctx, m.workDir)
			return nil
		}},
	}
	return m
}

func launch(name string) func(context.Context, *Menu) error {
	return func(ctx context.Context, m *Menu) error {
		return m.actions.Launch(ctx, name, launcher.LaunchOptions{})
	}
}

// Run shows the menu until the operator picks 0 or input ends. Failed
// actions are reported and the loop continues.
func (m *Menu) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		m.render()

		choice, ok := m.ask("Select an option: ")
		if !ok || choice == "0" || strings.EqualFold(choice, "q") {
			m.console.PrintInfo("Goodbye")
			return nil
		}

		item, found := m.lookup(choice)
		if !found {
			m.console.PrintWarning(fmt.Sprintf("Invalid choice: %s", choice))
			continue
		}
		if err := item.run(ctx, m); err != nil {
			m.report(err)
		}
	}
}

func (m *Menu) render() {
	m.console.PrintTitle(fmt.Sprintf("AI Environment (%s)", m.envName))
	for _, item := range m.items {
		m.console.Println(fmt.Sprintf("%3s) %s", item.key, item.label))
	}
	m.console.Println(fmt.Sprintf("%3s) %s", "0", "Exit"))
}

func (m *Menu) lookup(key string) (menuItem, bool) {
	for _, item := range m.items {
		if item.key == key {
			return item, true
		}
	}
	return menuItem{}, false
}

// ask prompts and reads one trimmed line; false means input is exhausted.
func (m *Menu) ask(question string) (string, bool) {
	m.console.Prompt(question)
	if !m.in.Scan() {
		m.console.Println("")
		return "", false
	}
	return strings.TrimSpace(m.in.Text()), true
}

func (m *Menu) report(err error) {
	var aiErr *aierrors.AIEnvError
	if errors.As(err, &aiErr) {
		m.console.PrintError(m.console.FormatErrorMessage(aiErr.Context, aiErr.Cause, aiErr.Suggestion))
		return
	}
	m.console.PrintError(err.Error())
}

var _ Actions = (*Controller)(nil)
