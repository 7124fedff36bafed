//go:build windows

package process

import (
	"os/exec"
	"syscall"
)

// CREATE_NEW_PROCESS_GROUP keeps console control events sent to the host
// from reaching the supervised server.
const CREATE_NEW_PROCESS_GROUP = 0x00000200

// configureSysProcAttr sets platform-specific attributes for Windows.
func configureSysProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{CreationFlags: CREATE_NEW_PROCESS_GROUP}
}
