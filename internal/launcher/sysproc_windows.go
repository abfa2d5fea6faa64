//go:build windows

package launcher

import (
	"errors"
	"os/exec"
	"syscall"
)

func detach(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP}
}

// Console process groups only accept Ctrl+Break; the tree walk in
// Terminate stops them instead.
func terminateGroup(int) error {
	return errors.ErrUnsupported
}
