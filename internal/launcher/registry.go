package launcher

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// ProcessHandle records one launched application.
type ProcessHandle struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Title       string    `json:"title,omitempty"`
	PID         int       `json:"pid,omitempty"`
	Port        int       `json:"port,omitempty"`
	URL         string    `json:"url,omitempty"`
	Command     []string  `json:"command,omitempty"`
	LogFile     string    `json:"log_file,omitempty"`
	ContainerID string    `json:"container_id,omitempty"`
	StartedAt   time.Time `json:"started_at"`
}

const (
	RegistryFileName      = "processes.json"
	RegistrySchemaVersion = "1.0"
)

type registryFile struct {
	SchemaVersion string          `json:"schema_version"`
	UpdatedAt     time.Time       `json:"updated_at"`
	Processes     []ProcessHandle `json:"processes"`
}

// Registry is the on-disk list of processes launched from this
// installation, kept under <root>/.aienv.
type Registry struct {
	path      string
	processes []ProcessHandle
}

// OpenRegistry loads the registry in dir. A missing file is an empty registry.
func OpenRegistry(dir string) (*Registry, error) {
	r := &Registry{path: filepath.Join(dir, RegistryFileName)}

	data, err := os.ReadFile(r.path)
	if os.IsNotExist(err) {
		return r, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read process registry: %w", err)
	}

	var file registryFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse process registry: %w", err)
	}
	r.processes = file.Processes
	return r, nil
}

func (r *Registry) Path() string {
	return r.path
}

// List returns the handles ordered by start time.
func (r *Registry) List() []ProcessHandle {
	out := make([]ProcessHandle, len(r.processes))
	copy(out, r.processes)
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out
}

func (r *Registry) Add(h ProcessHandle) error {
	r.processes = append(r.processes, h)
	return r.save()
}

// Remove drops the handle with the given ID; unknown IDs are ignored.
func (r *Registry) Remove(id string) error {
	kept := r.processes[:0]
	for _, h := range r.processes {
		if h.ID != id {
			kept = append(kept, h)
		}
	}
	r.processes = kept
	return r.save()
}

// Find resolves ref as a full ID, a unique ID prefix, or an app name. A name
// matching several handles yields the most recently started one.
func (r *Registry) Find(ref string) (ProcessHandle, bool) {
	if strings.TrimSpace(ref) == "" {
		return ProcessHandle{}, false
	}
	var byPrefix []ProcessHandle
	var byName *ProcessHandle
	for i, h := range r.processes {
		if h.ID == ref {
			return h, true
		}
		if strings.HasPrefix(h.ID, ref) {
			byPrefix = append(byPrefix, h)
		}
		if strings.EqualFold(h.Name, ref) && (byName == nil || h.StartedAt.After(byName.StartedAt)) {
			byName = &r.processes[i]
		}
	}
	if byName != nil {
		return *byName, true
	}
	if len(byPrefix) == 1 {
		return byPrefix[0], true
	}
	return ProcessHandle{}, false
}

func (r *Registry) save() error {
	if err := os.MkdirAll(filepath.Dir(r.path), 0755); err != nil {
		return fmt.Errorf("failed to create registry directory: %w", err)
	}

	file := registryFile{
		SchemaVersion: RegistrySchemaVersion,
		UpdatedAt:     time.Now(),
		Processes:     r.processes,
	}
	if file.Processes == nil {
		file.Processes = []ProcessHandle{}
	}

	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize process registry: %w", err)
	}

	if err := os.WriteFile(r.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write process registry: %w", err)
	}
	return nil
}
