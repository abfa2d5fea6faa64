package environment

import (
	"os"
	"path/filepath"
	goruntime "runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnviron(t *testing.T) {
	rt := FromEnviron([]string{
		"PATH=/usr/bin:/bin",
		"HOME=/home/dev",
		"EMPTY=",
		"malformed",
	})
	rt.WithSeparator(":")

	home, ok := rt.Get("HOME")
	assert.True(t, ok)
	assert.Equal(t, "/home/dev", home)

	empty, ok := rt.Get("EMPTY")
	assert.True(t, ok)
	assert.Equal(t, "", empty)

	_, ok = rt.Get("malformed")
	assert.False(t, ok)
}

func TestFromEnviron_WindowsPathKey(t *testing.T) {
	rt := NewRuntime().WithSeparator(";")
	rt.Set("Path", `C:\Windows;C:\Windows\System32`)

	assert.Equal(t, []string{`C:\Windows`, `C:\Windows\System32`}, rt.SearchPath())
	assert.Equal(t, `C:\Windows;C:\Windows\System32`, rt.Lookup("PATH"))
}

func TestRuntime_PrependPath(t *testing.T) {
	rt := NewRuntime().WithSeparator(";")
	rt.Set(VarSearchPath, "c;d")

	rt.PrependPath("a", "b")

	assert.Equal(t, []string{"a", "b", "c", "d"}, rt.SearchPath())
	assert.Equal(t, "a;b;c;d", rt.PathString())
}

func TestRuntime_CloneIsIndependent(t *testing.T) {
	rt := NewRuntime()
	rt.Set("A", "1")
	rt.PrependPath("x")

	clone := rt.Clone()
	clone.Set("A", "2")
	clone.PrependPath("y")

	assert.Equal(t, "1", rt.Lookup("A"))
	assert.Equal(t, []string{"x"}, rt.SearchPath())
	assert.Equal(t, []string{"y", "x"}, clone.SearchPath())
}

func TestRuntime_EnvironIsSortedWithPathFirst(t *testing.T) {
	rt := NewRuntime().WithSeparator(";")
	rt.Set("ZETA", "z")
	rt.Set("ALPHA", "a")
	rt.PrependPath("p1", "p2")

	assert.Equal(t, []string{"PATH=p1;p2", "ALPHA=a", "ZETA=z"}, rt.Environ())
}

func TestRuntime_LookPath(t *testing.T) {
	dir := t.TempDir()
	exe := filepath.Join(dir, "tool")
	writeFile(t, exe)

	rt := NewRuntime()
	rt.PrependPath(filepath.Join(dir, "missing"), dir)

	found, err := rt.LookPath("tool")
	require.NoError(t, err)
	assert.Equal(t, exe, found)

	_, err = rt.LookPath("absent")
	assert.Error(t, err)

	found, err = rt.LookPath(exe)
	require.NoError(t, err)
	assert.Equal(t, exe, found)
}

func TestRuntime_Export(t *testing.T) {
	t.Setenv("AIENV_EXPORT_TEST", "")
	t.Setenv("PATH", "/original")

	rt := NewRuntime()
	rt.Set("AIENV_EXPORT_TEST", "exported")
	rt.PrependPath("/prepended")

	require.NoError(t, rt.Export())
	assert.Equal(t, "exported", FromProcess().Lookup("AIENV_EXPORT_TEST"))
	assert.Equal(t, "/prepended", FromProcess().SearchPath()[0])
}

func TestInstallationPaths(t *testing.T) {
	inst := &Installation{Root: filepath.Join("D:", "AI_Lab", "AI_Environment"), Layout: WindowsLayout}

	assert.Equal(t, filepath.Join(inst.Root, "Miniconda"), inst.PackageManagerRoot())
	assert.Equal(t, filepath.Join(inst.Root, "Miniconda", "envs", "AI2025"), inst.EnvRoot("AI2025"))
	assert.Equal(t, filepath.Join(inst.Root, "Miniconda", "envs", "AI2025", "python.exe"), inst.RuntimeExecutable("AI2025"))
	assert.Equal(t, filepath.Join(inst.Root, "Miniconda", "Scripts", "conda.exe"), inst.PackageManagerExecutable())
	assert.Equal(t, filepath.Join(inst.Root, "Ollama", "ollama.exe"), inst.OllamaExecutable())

	posix := &Installation{Root: "/opt/AI_Environment", Layout: PosixLayout}
	assert.Equal(t, filepath.Join("/opt/AI_Environment", "Miniconda", "envs", "AI2025", "bin", "python"), posix.RuntimeExecutable("AI2025"))
}

func TestIsDirName(t *testing.T) {
	for _, name := range []string{"AI2025", "py3.11", "env-with.dots"} {
		assert.True(t, IsDirName(name), name)
	}
	for _, name := range []string{"", "  ", ".", "..", "a/b", `a\b`, "../AI2025"} {
		assert.False(t, IsDirName(name), name)
	}
}

func TestLayoutByName(t *testing.T) {
	assert.Equal(t, WindowsLayout, LayoutByName("windows"))
	assert.Equal(t, PosixLayout, LayoutByName("posix"))
	assert.Equal(t, DefaultLayout(), LayoutByName(""))
}

func TestRuntime_LookPathSkipsNonExecutable(t *testing.T) {
	if goruntime.GOOS == "windows" {
		t.Skip("permission bits do not mark executables on Windows")
	}
	first, second := t.TempDir(), t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(first, "python"), []byte("not a program\n"), 0644))
	exe := filepath.Join(second, "python")
	writeFile(t, exe)

	rt := NewRuntime()
	rt.PrependPath(first, second)

	found, err := rt.LookPath("python")
	require.NoError(t, err)
	assert.Equal(t, exe, found)

	require.NoError(t, os.Chmod(exe, 0644))
	_, err = rt.LookPath("python")
	assert.Error(t, err)
}

func writeFile(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"), 0755))
}
