//go:build windows

package launcher

import (
	"os/exec"
	"syscall"

	"github.com/loykin/procbuilder/internal/builder"
	"github.com/loykin/procbuilder/internal/shell"
)

const createNewProcessGroup = 0x00000200

// configureSysProcAttr hands a Windows-dialect command line to cmd.exe
// verbatim. Go's own argument quoting would turn every " into \", which
// cmd.exe does not understand.
func configureSysProcAttr(cmd *exec.Cmd, inv builder.Invocation) {
	attr := &syscall.SysProcAttr{CreationFlags: createNewProcessGroup}
	if inv.Dialect == shell.Windows {
		attr.CmdLine = cmdLine(inv.CommandLine)
	}
	cmd.SysProcAttr = attr
}

// cmdLine wraps commandLine for "cmd /s /c": cmd.exe strips exactly the
// outer pair of quotes and runs the rest unchanged.
func cmdLine(commandLine string) string {
	return `cmd /d /s /c "` + commandLine + `"`
}

func killTree(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	return cmd.Process.Kill()
}
