//go:build unix

package worker

import (
	"os/exec"
	"syscall"
)

// setProcessGroup запускает процесс в собственной группе,
// чтобы при отмене убить и все его дочерние процессы.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
}
