package environment

import (
	"fmt"
	"os"
	"path/filepath"
	goruntime "runtime"
	"sort"
	"strings"
)

// Runtime is an explicit, value-typed view of a process environment: an
// ordered search path plus named variables. The activator mutates it in
// place; child processes receive it through Environ.
type Runtime struct {
	path      []string
	vars      map[string]string
	separator string
}

// NewRuntime returns an empty Runtime using the host list separator.
func NewRuntime() *Runtime {
	return &Runtime{
		vars:      make(map[string]string),
		separator: string(os.PathListSeparator),
	}
}

// FromEnviron builds a Runtime from KEY=VALUE pairs such as os.Environ().
// PATH is split into search-path segments; all other pairs become variables.
func FromEnviron(environ []string) *Runtime {
	rt := NewRuntime()
	for _, kv := range environ {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			continue
		}
		if isSearchPathKey(key) {
			rt.path = splitList(value, rt.separator)
			continue
		}
		rt.vars[key] = value
	}
	return rt
}

// FromProcess snapshots the current process environment.
func FromProcess() *Runtime {
	return FromEnviron(os.Environ())
}

// WithSeparator overrides the search-path list separator.
func (r *Runtime) WithSeparator(sep string) *Runtime {
	r.separator = sep
	return r
}

// Separator returns the search-path list separator.
func (r *Runtime) Separator() string {
	return r.separator
}

// Clone returns a deep copy.
func (r *Runtime) Clone() *Runtime {
	c := &Runtime{
		path:      append([]string(nil), r.path...),
		vars:      make(map[string]string, len(r.vars)),
		separator: r.separator,
	}
	for k, v := range r.vars {
		c.vars[k] = v
	}
	return c
}

// PrependPath puts segments at the front of the search path, keeping their order.
func (r *Runtime) PrependPath(segments ...string) {
	next := make([]string, 0, len(segments)+len(r.path))
	next = append(next, segments...)
	next = append(next, r.path...)
	r.path = next
}

// SearchPath returns a copy of the ordered search-path segments.
func (r *Runtime) SearchPath() []string {
	return append([]string(nil), r.path...)
}

// PathString renders the search path joined by the list separator.
func (r *Runtime) PathString() string {
	return strings.Join(r.path, r.separator)
}

// Set assigns a named variable. Setting PATH replaces the search path.
func (r *Runtime) Set(key, value string) {
	if isSearchPathKey(key) {
		r.path = splitList(value, r.separator)
		return
	}
	r.vars[key] = value
}

// Get returns a named variable; PATH returns the rendered search path.
func (r *Runtime) Get(key string) (string, bool) {
	if isSearchPathKey(key) {
		return r.PathString(), len(r.path) > 0
	}
	v, ok := r.vars[key]
	return v, ok
}

// Lookup returns the variable value or "" when unset. It matches the
// signature expected by shell expansion helpers.
func (r *Runtime) Lookup(key string) string {
	v, _ := r.Get(key)
	return v
}

// Environ renders the Runtime as sorted KEY=VALUE pairs for exec.Cmd.Env.
func (r *Runtime) Environ() []string {
	keys := make([]string, 0, len(r.vars))
	for k := range r.vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]string, 0, len(keys)+1)
	out = append(out, VarSearchPath+"="+r.PathString())
	for _, k := range keys {
		out = append(out, k+"="+r.vars[k])
	}
	return out
}

// Export writes the Runtime into the current process environment.
func (r *Runtime) Export() error {
	if err := os.Setenv(VarSearchPath, r.PathString()); err != nil {
		return fmt.Errorf("failed to export %s: %w", VarSearchPath, err)
	}
	for k, v := range r.vars {
		if err := os.Setenv(k, v); err != nil {
			return fmt.Errorf("failed to export %s: %w", k, err)
		}
	}
	return nil
}

// LookPath searches the Runtime's search path for an executable file.
func (r *Runtime) LookPath(name string) (string, error) {
	if strings.ContainsRune(name, filepath.Separator) {
		if isExecutableFile(name) {
			return name, nil
		}
		return "", fmt.Errorf("executable not found: %s", name)
	}
	names := []string{name}
	if goruntime.GOOS == "windows" && filepath.Ext(name) == "" {
		for _, ext := range windowsExecExts {
			names = append(names, name+ext)
		}
	}
	for _, dir := range r.path {
		if dir == "" {
			continue
		}
		for _, n := range names {
			candidate := filepath.Join(dir, n)
			if isExecutableFile(candidate) {
				return candidate, nil
			}
		}
	}
	return "", fmt.Errorf("executable %q not found in search path", name)
}

var windowsExecExts = []string{".exe", ".bat", ".cmd", ".com"}

func isExecutableFile(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	if goruntime.GOOS == "windows" {
		return true
	}
	return info.Mode().Perm()&0111 != 0
}

// Windows spells it Path; treat the search-path key case-insensitively.
func isSearchPathKey(key string) bool {
	return strings.EqualFold(key, VarSearchPath)
}

func splitList(value, sep string) []string {
	if value == "" {
		return nil
	}
	return strings.Split(value, sep)
}
