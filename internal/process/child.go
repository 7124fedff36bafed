package process

import (
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"
)

// killWait bounds how long Terminate waits for the reaper after SIGKILL.
const killWait = 2 * time.Second

// ErrStillRunning is returned by Terminate when the child survives SIGKILL
// for longer than killWait.
var ErrStillRunning = errors.New("process still running after kill")

// Child is a live supervised process.
type Child interface {
	PID() int
	// Exited reports whether the process has exited and been reaped.
	Exited() bool
	// Terminate stops the process: a graceful request first, a forced kill
	// after grace. It returns nil if the process is gone when it returns.
	Terminate(grace time.Duration) error
}

// Handle is the Child returned by Launcher. A single reaper goroutine owns
// cmd.Wait; everyone else observes the exit through Done.
type Handle struct {
	cmd       *exec.Cmd
	pid       int
	startedAt time.Time
	done      chan struct{}
	closers   []io.Closer

	mu      sync.Mutex
	exitErr error
}

func newHandle(cmd *exec.Cmd, closers ...io.Closer) *Handle {
	h := &Handle{
		cmd:       cmd,
		pid:       cmd.Process.Pid,
		startedAt: time.Now(),
		done:      make(chan struct{}),
		closers:   closers,
	}
	go h.reap()
	return h
}

func (h *Handle) reap() {
	err := h.cmd.Wait()
	h.mu.Lock()
	h.exitErr = err
	h.mu.Unlock()
	for _, c := range h.closers {
		if c != nil {
			_ = c.Close()
		}
	}
	close(h.done)
}

func (h *Handle) PID() int { return h.pid }

// StartedAt is the time the process was spawned.
func (h *Handle) StartedAt() time.Time { return h.startedAt }

// Done is closed once the process has exited and its output streams are flushed.
func (h *Handle) Done() <-chan struct{} { return h.done }

func (h *Handle) Exited() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// ExitErr returns the error reported by cmd.Wait. It is nil while running
// and after a clean exit.
func (h *Handle) ExitErr() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.exitErr
}

func (h *Handle) Terminate(grace time.Duration) error {
	if h.Exited() {
		return nil
	}
	termErr := terminateGroup(h.cmd.Process)
	if termErr == nil && grace > 0 {
		t := time.NewTimer(grace)
		select {
		case <-h.done:
			t.Stop()
			return nil
		case <-t.C:
		}
	}
	if err := killGroup(h.cmd.Process); err != nil && !h.Exited() {
		return fmt.Errorf("kill pid %d: %w", h.pid, errors.Join(termErr, err))
	}
	t := time.NewTimer(killWait)
	defer t.Stop()
	select {
	case <-h.done:
		return nil
	case <-t.C:
		return fmt.Errorf("pid %d: %w", h.pid, ErrStillRunning)
	}
}
