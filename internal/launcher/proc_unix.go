//go:build !windows

package launcher

import (
	"os/exec"
	"syscall"

	"github.com/loykin/procbuilder/internal/builder"
)

// configureSysProcAttr places the child in its own process group so a
// timeout kills the shell and everything it spawned.
func configureSysProcAttr(cmd *exec.Cmd, _ builder.Invocation) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

func killTree(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	if err := syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL); err != nil {
		return cmd.Process.Kill()
	}
	return nil
}
