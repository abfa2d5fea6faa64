package ui

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

type ConsoleStyle int

const (
	StyleNormal ConsoleStyle = iota
	StyleError
	StyleWarning
	StyleSuccess
	StyleInfo
	StyleTitle
	StylePrompt
)

// Palette for dark terminal backgrounds.
const (
	colorTitle   = lipgloss.Color("#7C3AED")
	colorMuted   = lipgloss.Color("#6B7280")
	colorSuccess = lipgloss.Color("#10B981")
	colorError   = lipgloss.Color("#EF4444")
	colorWarning = lipgloss.Color("#F59E0B")
	colorInfo    = lipgloss.Color("#3B82F6")
)

// Severity tags printed in front of console messages.
const (
	TagInfo    = "[INFO]"
	TagOK      = "[OK]"
	TagWarning = "[WARNING]"
	TagError   = "[ERROR]"
	TagVerbose = "[VERBOSE]"
)

type Console struct {
	out       io.Writer
	errOut    io.Writer
	useColors bool
	styles    map[ConsoleStyle]lipgloss.Style
}

func NewConsole() *Console {
	return NewConsoleWithWriters(os.Stdout, os.Stderr, isTerminal())
}

// NewConsoleWithWriters builds a console over arbitrary writers.
func NewConsoleWithWriters(out, errOut io.Writer, useColors bool) *Console {
	r := lipgloss.NewRenderer(out)
	return &Console{
		out:       out,
		errOut:    errOut,
		useColors: useColors,
		styles: map[ConsoleStyle]lipgloss.Style{
			StyleError:   r.NewStyle().Bold(true).Foreground(colorError),
			StyleWarning: r.NewStyle().Foreground(colorWarning),
			StyleSuccess: r.NewStyle().Foreground(colorSuccess),
			StyleInfo:    r.NewStyle().Foreground(colorInfo),
			StyleTitle:   r.NewStyle().Bold(true).Foreground(colorTitle),
			StylePrompt:  r.NewStyle().Foreground(colorMuted),
		},
	}
}

func isTerminal() bool {
	stat, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) != 0
}

// Out returns the writer used for regular output.
func (c *Console) Out() io.Writer {
	return c.out
}

func (c *Console) formatMessage(style ConsoleStyle, message string) string {
	if !c.useColors {
		return message
	}
	s, ok := c.styles[style]
	if !ok {
		return message
	}
	return s.Render(message)
}

func (c *Console) line(w io.Writer, style ConsoleStyle, tag, message string) {
	fmt.Fprintln(w, c.formatMessage(style, tag+" "+message))
}

// PrintError writes to the error writer; every other severity goes to out.
func (c *Console) PrintError(message string) { c.line(c.errOut, StyleError, TagError, message) }

func (c *Console) PrintWarning(message string) { c.line(c.out, StyleWarning, TagWarning, message) }

func (c *Console) PrintSuccess(message string) { c.line(c.out, StyleSuccess, TagOK, message) }

func (c *Console) PrintInfo(message string) { c.line(c.out, StyleInfo, TagInfo, message) }

func (c *Console) PrintVerbose(message string) { c.line(c.out, StylePrompt, TagVerbose, message) }

// PrintTitle prints a section header followed by a rule.
func (c *Console) PrintTitle(title string) {
	fmt.Fprintf(c.out, "\n%s\n%s\n", c.formatMessage(StyleTitle, title), strings.Repeat("=", 50))
}

// Println prints an unstyled line.
func (c *Console) Println(message string) {
	fmt.Fprintln(c.out, message)
}

// Prompt prints a question without a trailing newline.
func (c *Console) Prompt(question string) {
	fmt.Fprint(c.out, c.formatMessage(StylePrompt, question))
}

// FormatErrorMessage joins the non-empty parts of an error report, one per
// line: the context, then "Cause: ..." and "Suggestion: ...".
func (c *Console) FormatErrorMessage(context, cause, suggestion string) string {
	lines := make([]string, 0, 3)
	for _, part := range []struct{ label, text string }{
		{"", context},
		{"Cause: ", cause},
		{"Suggestion: ", suggestion},
	} {
		if part.text != "" {
			lines = append(lines, part.label+part.text)
		}
	}
	return strings.Join(lines, "\n")
}
