package launcher

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

// StartSpec describes a detached process.
type StartSpec struct {
	Path string
	Args []string
	Env  []string
	Dir  string
	// LogFile receives stdout and stderr when set.
	LogFile string
}

// Starter spawns detached processes and reports their PID.
type Starter interface {
	Start(spec StartSpec) (int, error)
}

// ExecStarter starts processes with os/exec in their own process group so
// they outlive the CLI invocation.
type ExecStarter struct{}

func (ExecStarter) Start(spec StartSpec) (int, error) {
	cmd := exec.Command(spec.Path, spec.Args...)
	cmd.Env = spec.Env
	cmd.Dir = spec.Dir
	detach(cmd)

	var logFile *os.File
	if spec.LogFile != "" {
		if err := os.MkdirAll(filepath.Dir(spec.LogFile), 0755); err != nil {
			return 0, fmt.Errorf("failed to create log directory: %w", err)
		}
		f, err := os.OpenFile(spec.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return 0, fmt.Errorf("failed to open process log: %w", err)
		}
		logFile = f
		cmd.Stdout = f
		cmd.Stderr = f
	}

	if err := cmd.Start(); err != nil {
		if logFile != nil {
			_ = logFile.Close()
		}
		return 0, err
	}

	go func() {
		_ = cmd.Wait()
		if logFile != nil {
			_ = logFile.Close()
		}
	}()

	return cmd.Process.Pid, nil
}
