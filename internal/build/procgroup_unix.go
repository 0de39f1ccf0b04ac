//go:build unix

package build

import (
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

func terminateGroup(pid int) {
	_ = unix.Kill(-pid, unix.SIGTERM)
}

func killGroup(pid int) {
	_ = unix.Kill(-pid, unix.SIGKILL)
}
