//go:build !windows

package claude

import (
	"os"
	"syscall"
)

// sessionAttr returns SysProcAttr that places the subprocess in its own session,
// preventing it from accessing the parent's controlling terminal.
func sessionAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setsid: true}
}

// terminate asks the process to exit gracefully. The exec layer's
// WaitDelay force-kills it if it ignores the request.
func terminate(p *os.Process) error {
	return p.Signal(syscall.SIGTERM)
}
