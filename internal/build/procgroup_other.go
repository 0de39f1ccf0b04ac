//go:build !unix

package build

import (
	"os"
	"os/exec"
)

func setProcessGroup(cmd *exec.Cmd) {}

// No process groups here; the direct child is all we can reach.
func terminateGroup(pid int) {
	killGroup(pid)
}

func killGroup(pid int) {
	if p, err := os.FindProcess(pid); err == nil {
		_ = p.Kill()
	}
}
