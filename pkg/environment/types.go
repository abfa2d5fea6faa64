package environment

import (
	"path/filepath"
	"runtime"
	"strings"
)

// Directory and marker names of a portable AI Environment installation.
const (
	LabDirName            = "AI_Lab"
	InstallDirName        = "AI_Environment"
	PackageManagerDirName = "Miniconda"
	OllamaDirName         = "Ollama"
	ProjectsDirName       = "Projects"
	SrcDirName            = "src"
	HelpDirName           = "help"
	EnvsDirName           = "envs"
)

// Markers are the subdirectories that confirm a candidate is a genuine installation.
var Markers = []string{OllamaDirName, PackageManagerDirName}

// Environment variable names produced by activation.
const (
	VarInstallRoot   = "AI_ENV_PATH"
	VarActiveEnv     = "CONDA_DEFAULT_ENV"
	VarEnvPrefix     = "CONDA_PREFIX"
	VarRuntimePath   = "PYTHON_PATH"
	VarPackageMgr    = "CONDA_PATH"
	VarSearchPath    = "PATH"
	DefaultEnvName   = "AI2025"
	DefaultModelName = "phi:2.7b"
)

// LayoutKind names which installation shape matched during discovery.
type LayoutKind string

const (
	// LayoutLab is <root>/AI_Lab/AI_Environment, used on external drives.
	LayoutLab LayoutKind = "lab"
	// LayoutDirect is <root>/AI_Environment, used on internal drives.
	LayoutDirect LayoutKind = "direct"
)

// Layout describes the on-disk flavour of the package manager tree.
type Layout struct {
	Name          string
	ScriptsDir    string
	LibraryBinDir string
	RuntimeExe    string
	PackageMgrExe string
}

// WindowsLayout is the conda layout on Windows.
var WindowsLayout = Layout{
	Name:          "windows",
	ScriptsDir:    "Scripts",
	LibraryBinDir: filepath.Join("Library", "bin"),
	RuntimeExe:    "python.exe",
	PackageMgrExe: "conda.exe",
}

// PosixLayout is the conda layout on Linux and macOS.
var PosixLayout = Layout{
	Name:          "posix",
	ScriptsDir:    "bin",
	LibraryBinDir: "lib",
	RuntimeExe:    "python",
	PackageMgrExe: "conda",
}

// DefaultLayout returns the layout matching the host operating system.
func DefaultLayout() Layout {
	if runtime.GOOS == "windows" {
		return WindowsLayout
	}
	return PosixLayout
}

// LayoutByName resolves "windows" or "posix"; anything else yields the host default.
func LayoutByName(name string) Layout {
	switch name {
	case WindowsLayout.Name:
		return WindowsLayout
	case PosixLayout.Name:
		return PosixLayout
	default:
		return DefaultLayout()
	}
}

// Installation is a located AI Environment root. Root always exists and
// contains at least one of Markers.
type Installation struct {
	Root    string
	Kind    LayoutKind
	Markers []string
	Layout  Layout
}

// NewInstallation builds an Installation with the host default layout.
func NewInstallation(root string) *Installation {
	return &Installation{Root: root, Kind: LayoutDirect, Layout: DefaultLayout()}
}

// PackageManagerRoot returns <root>/Miniconda.
func (i *Installation) PackageManagerRoot() string {
	return filepath.Join(i.Root, PackageManagerDirName)
}

// IsDirName reports whether name can only denote a direct child directory:
// non-blank, not "." or "..", and free of path separators.
func IsDirName(name string) bool {
	if strings.TrimSpace(name) == "" || name == "." || name == ".." {
		return false
	}
	return !strings.ContainsAny(name, `/\`)
}

// EnvRoot returns the directory of a named sub-environment.
func (i *Installation) EnvRoot(envName string) string {
	return filepath.Join(i.PackageManagerRoot(), EnvsDirName, envName)
}

// EnvsDir returns the directory holding all sub-environments.
func (i *Installation) EnvsDir() string {
	return filepath.Join(i.PackageManagerRoot(), EnvsDirName)
}

// RuntimeExecutable returns the interpreter path inside a sub-environment.
func (i *Installation) RuntimeExecutable(envName string) string {
	if i.Layout.Name == WindowsLayout.Name {
		return filepath.Join(i.EnvRoot(envName), i.Layout.RuntimeExe)
	}
	return filepath.Join(i.EnvRoot(envName), i.Layout.ScriptsDir, i.Layout.RuntimeExe)
}

// EnvScript returns an executable inside the sub-environment scripts directory.
func (i *Installation) EnvScript(envName, exe string) string {
	return filepath.Join(i.EnvRoot(envName), i.Layout.ScriptsDir, exe)
}

// PackageManagerExecutable returns the conda executable path.
func (i *Installation) PackageManagerExecutable() string {
	return filepath.Join(i.PackageManagerRoot(), i.Layout.ScriptsDir, i.Layout.PackageMgrExe)
}

// ActivationScript returns the package manager's activate script.
func (i *Installation) ActivationScript() string {
	if i.Layout.Name == WindowsLayout.Name {
		return filepath.Join(i.PackageManagerRoot(), i.Layout.ScriptsDir, "activate.bat")
	}
	return filepath.Join(i.PackageManagerRoot(), i.Layout.ScriptsDir, "activate")
}

// ProjectsDir returns <root>/Projects.
func (i *Installation) ProjectsDir() string {
	return filepath.Join(i.Root, ProjectsDirName)
}

// SrcDir returns <root>/src.
func (i *Installation) SrcDir() string {
	return filepath.Join(i.Root, SrcDirName)
}

// HelpDir returns <root>/help.
func (i *Installation) HelpDir() string {
	return filepath.Join(i.Root, HelpDirName)
}

// OllamaDir returns <root>/Ollama.
func (i *Installation) OllamaDir() string {
	return filepath.Join(i.Root, OllamaDirName)
}

// OllamaExecutable returns the portable generative-text server binary.
func (i *Installation) OllamaExecutable() string {
	if i.Layout.Name == WindowsLayout.Name {
		return filepath.Join(i.OllamaDir(), "ollama.exe")
	}
	return filepath.Join(i.OllamaDir(), "ollama")
}

// StateDir returns the directory aienv keeps its own bookkeeping in.
func (i *Installation) StateDir() string {
	return filepath.Join(i.Root, ".aienv")
}
