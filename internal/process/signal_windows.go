//go:build windows

package process

import (
	"errors"
	"os"
)

// terminateGroup has no graceful counterpart on Windows without a console
// attached to the child, so it kills directly.
func terminateGroup(p *os.Process) error {
	return killGroup(p)
}

// killGroup terminates the child process.
func killGroup(p *os.Process) error {
	if err := p.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}
