package launcher

import (
	"fmt"
	"os/exec"
	"runtime"

	"github.com/shirou/gopsutil/v4/process"
)

// ProcessTable answers liveness questions about OS processes.
type ProcessTable interface {
	Alive(pid int) bool
	Terminate(pid int) error
}

// SystemProcesses is the host process table.
type SystemProcesses struct{}

func (SystemProcesses) Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return false
	}
	running, err := p.IsRunning()
	if err != nil || !running {
		return false
	}
	// Exited children linger as zombies until reaped.
	if status, err := p.Status(); err == nil {
		for _, s := range status {
			if s == process.Zombie {
				return false
			}
		}
	}
	return true
}

// Terminate stops pid together with everything it spawned. Launched apps
// lead their own process group, so the group is signalled first; children
// that left the group are reached through the process tree.
func (SystemProcesses) Terminate(pid int) error {
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return fmt.Errorf("process %d not found: %w", pid, err)
	}
	descendants := descendantsOf(p)

	if err := terminateGroup(pid); err != nil {
		if err := stopProcess(p); err != nil {
			return err
		}
	}
	for _, child := range descendants {
		if running, err := child.IsRunning(); err == nil && running {
			_ = stopProcess(child)
		}
	}
	return nil
}

// stopProcess asks p to exit, killing it if the request fails.
func stopProcess(p *process.Process) error {
	if err := p.Terminate(); err == nil {
		return nil
	}
	if err := p.Kill(); err != nil {
		return fmt.Errorf("failed to kill process %d: %w", p.Pid, err)
	}
	return nil
}

func descendantsOf(p *process.Process) []*process.Process {
	children, err := p.Children()
	if err != nil {
		return nil
	}
	all := children
	for _, c := range children {
		all = append(all, descendantsOf(c)...)
	}
	return all
}

// Browser opens URLs for the operator.
type Browser interface {
	Open(url string) error
}

// SystemBrowser uses the platform URL handler.
type SystemBrowser struct{}

func (SystemBrowser) Open(url string) error {
	var cmd *exec.Cmd

	switch runtime.GOOS {
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	case "darwin":
		cmd = exec.Command("open", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}

	return cmd.Start()
}
