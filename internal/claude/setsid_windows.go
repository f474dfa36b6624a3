//go:build windows

package claude

import (
	"os"
	"syscall"
)

// sessionAttr returns an empty SysProcAttr on Windows where Setsid is not available.
func sessionAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{}
}

// terminate kills the process outright; Windows has no SIGTERM.
func terminate(p *os.Process) error {
	return p.Kill()
}
