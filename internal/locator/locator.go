package locator

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	aierrors "aienv/internal/errors"
	"aienv/internal/ui"
	"aienv/pkg/environment"
)

// ErrInstallationNotFound is returned when no candidate root holds an installation.
var ErrInstallationNotFound = errors.New("AI Environment installation not found")

// Options controls where and how the locator searches.
type Options struct {
	// Roots are probed in order; empty means DefaultRoots().
	Roots []string
	// Override is an explicit installation root (AI_ENV_PATH). It wins when
	// it passes the same marker check as scanned candidates.
	Override string
	Layout   environment.Layout
	Verbose  bool
	// Console receives verbose probe lines; nil disables them.
	Console *ui.Console
}

type Locator struct {
	opts Options
}

func New(opts Options) *Locator {
	if len(opts.Roots) == 0 {
		opts.Roots = DefaultRoots()
	}
	if opts.Layout.Name == "" {
		opts.Layout = environment.DefaultLayout()
	}
	return &Locator{opts: opts}
}

// Locate is shorthand for New(opts).Locate().
func Locate(opts Options) (*environment.Installation, error) {
	return New(opts).Locate()
}

// DefaultRoots returns the drive roots A:\ to Z:\ on Windows and a few
// conventional mount points elsewhere.
func DefaultRoots() []string {
	if runtime.GOOS == "windows" {
		roots := make([]string, 0, 26)
		for letter := 'A'; letter <= 'Z'; letter++ {
			roots = append(roots, string(letter)+`:\`)
		}
		return roots
	}

	var roots []string
	if home, err := os.UserHomeDir(); err == nil {
		roots = append(roots, home)
	}
	return append(roots, "/opt", "/mnt", "/")
}

// Candidates returns the two layouts probed under root, lab first.
func Candidates(root string) []Candidate {
	return []Candidate{
		{Path: filepath.Join(root, environment.LabDirName, environment.InstallDirName), Kind: environment.LayoutLab},
		{Path: filepath.Join(root, environment.InstallDirName), Kind: environment.LayoutDirect},
	}
}

// Candidate is one probed installation path.
type Candidate struct {
	Path string
	Kind environment.LayoutKind
}

// Locate returns the first qualifying installation in root order.
func (l *Locator) Locate() (*environment.Installation, error) {
	if l.opts.Override != "" {
		if inst, ok := l.probe(Candidate{Path: l.opts.Override, Kind: kindOf(l.opts.Override)}); ok {
			slog.Info("Using installation from override", "root", inst.Root)
			return inst, nil
		}
		slog.Warn("Ignoring invalid installation override", "path", l.opts.Override)
		l.verbosef("Override %s is not a valid installation, scanning roots", l.opts.Override)
	}

	for _, root := range l.opts.Roots {
		if !isDir(root) {
			l.verbosef("Skipping %s (not available)", root)
			continue
		}
		for _, candidate := range Candidates(root) {
			if inst, ok := l.probe(candidate); ok {
				slog.Info("Installation located", "root", inst.Root, "layout", inst.Kind, "markers", inst.Markers)
				return inst, nil
			}
		}
	}

	slog.Warn("Installation not found", "roots", l.opts.Roots)
	return nil, aierrors.NewNotFoundError(
		"AI Environment installation not found",
		fmt.Sprintf("none of %s contains %s or %s with an %s directory",
			strings.Join(l.opts.Roots, ", "),
			filepath.Join(environment.LabDirName, environment.InstallDirName),
			environment.InstallDirName,
			strings.Join(environment.Markers, " or ")),
		"Connect the drive holding AI_Environment, set AI_ENV_PATH, or list its parent under locator.roots in aienv.yaml",
		ErrInstallationNotFound,
	)
}

func (l *Locator) probe(c Candidate) (*environment.Installation, bool) {
	l.verbosef("Checking %s", c.Path)
	if !isDir(c.Path) {
		return nil, false
	}

	var found []string
	for _, marker := range environment.Markers {
		if isDir(filepath.Join(c.Path, marker)) {
			found = append(found, marker)
		}
	}
	if len(found) == 0 {
		l.verbosef("%s has no %s directory", c.Path, strings.Join(environment.Markers, "/"))
		return nil, false
	}

	l.verbosef("Found AI Environment at %s", c.Path)
	return &environment.Installation{
		Root:    c.Path,
		Kind:    c.Kind,
		Markers: found,
		Layout:  l.opts.Layout,
	}, true
}

func (l *Locator) verbosef(format string, args ...any) {
	if !l.opts.Verbose || l.opts.Console == nil {
		return
	}
	l.opts.Console.PrintVerbose(fmt.Sprintf(format, args...))
}

func kindOf(path string) environment.LayoutKind {
	if strings.EqualFold(filepath.Base(filepath.Dir(filepath.Clean(path))), environment.LabDirName) {
		return environment.LayoutLab
	}
	return environment.LayoutDirect
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
