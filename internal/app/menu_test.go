package app

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	aierrors "aienv/internal/errors"
	"aienv/internal/launcher"
	"aienv/internal/ui"
)

// MockActions is a mock implementation of the Actions interface
type MockActions struct {
	*mock.Mock
}

func NewMockActions() *MockActions {
	return &MockActions{Mock: &mock.Mock{}}
}

func (m *MockActions) Launch(ctx context.Context, name string, opts launcher.LaunchOptions) error {
	args := m.Called(ctx, name, opts)
	return args.Error(0)
}

func (m *MockActions) ConfigureWorkspace(dir string) error {
	args := m.Called(dir)
	return args.Error(0)
}

func (m *MockActions) ListProcesses(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockActions) StopProcess(ctx context.Context, ref string) error {
	args := m.Called(ctx, ref)
	return args.Error(0)
}

func (m *MockActions) ListModels(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockActions) Query(ctx context.Context, prompt, model string) string {
	args := m.Called(ctx, prompt, model)
	return args.String(0)
}

func (m *MockActions) SelfTest(ctx context.Context, workDir string) int {
	args := m.Called(ctx, workDir)
	return args.Int(0)
}

func runMenu(t *testing.T, actions Actions, input string) string {
	t.Helper()
	var out bytes.Buffer
	console := ui.NewConsoleWithWriters(&out, &out, false)
	menu := NewMenu(actions, console, strings.NewReader(input), "AI2025", "/work")
	require.NoError(t, menu.Run(context.Background()))
	return out.String()
}

func TestMenu_DispatchesChoices(t *testing.T) {
	m := NewMockActions()
	m.On("Launch", mock.Anything, launcher.AppJupyter, launcher.LaunchOptions{}).Return(nil).Once()
	m.On("Launch", mock.Anything, launcher.AppOllama, launcher.LaunchOptions{}).Return(nil).Once()
	m.On("ConfigureWorkspace", "").Return(nil).Once()
	m.On("StopProcess", mock.Anything, "jupyter").Return(nil).Once()
	m.On("Query", mock.Anything, "What is MLflow?", "").Return("A tracking server").Once()
	m.On("SelfTest", mock.Anything, "/work").Return(0).Once()

	output := runMenu(t, m, "1\n6\n9\n11\njupyter\n13\nWhat is MLflow?\n14\n0\n")

	m.AssertExpectations(t)
	assert.Contains(t, output, "AI Environment (AI2025)")
	assert.Contains(t, output, "  1) Jupyter Lab")
	assert.Contains(t, output, " 14) Run environment self-test")
	assert.Contains(t, output, "  0) Exit")
	assert.Contains(t, output, "Goodbye")
}

func TestMenu_ExitsOnEndOfInput(t *testing.T) {
	m := NewMockActions()

	output := runMenu(t, m, "")

	assert.Contains(t, output, "Goodbye")
	m.AssertNotCalled(t, "Launch", mock.Anything, mock.Anything, mock.Anything)
}

func TestMenu_InvalidChoiceAndBlankAnswers(t *testing.T) {
	m := NewMockActions()

	output := runMenu(t, m, "42\n11\n\n13\n\nq\n")

	assert.Contains(t, output, "Invalid choice: 42")
	m.AssertNotCalled(t, "StopProcess", mock.Anything, mock.Anything)
	m.AssertNotCalled(t, "Query", mock.Anything, mock.Anything, mock.Anything)
}

func TestMenu_ReportsErrorsAndContinues(t *testing.T) {
	m := NewMockActions()
	m.On("ListProcesses", mock.Anything).Return(errors.New("registry unreadable")).Once()
	m.On("ListModels", mock.Anything).Return(aierrors.NewTransportError(
		"Ollama server not accessible",
		"GET /api/tags failed",
		"Start it with 'aienv launch ollama'",
		errors.New("connection refused"),
	)).Once()

	output := runMenu(t, m, "10\n12\n0\n")

	m.AssertExpectations(t)
	assert.Contains(t, output, "[ERROR] registry unreadable")
	assert.Contains(t, output, "[ERROR] Ollama server not accessible\nCause: GET /api/tags failed\nSuggestion: Start it with 'aienv launch ollama'")
	assert.Contains(t, output, "Goodbye")
}

func TestMenu_StopsWhenContextCancelled(t *testing.T) {
	m := NewMockActions()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	menu := NewMenu(m, ui.NewConsoleWithWriters(&bytes.Buffer{}, &bytes.Buffer{}, false), strings.NewReader("1\n"), "AI2025", "")
	err := menu.Run(ctx)

	assert.ErrorIs(t, err, context.Canceled)
	m.AssertNotCalled(t, "Launch", mock.Anything, mock.Anything, mock.Anything)
}
