package process

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/loykin/srvkeeper/internal/logger"
	"github.com/loykin/srvkeeper/internal/resource"
)

// LaunchError reports a failed spawn or a failed warm-up.
type LaunchError struct {
	Op  string // "spawn" or "warmup"
	Err error
}

func (e *LaunchError) Error() string { return e.Op + ": " + e.Err.Error() }
func (e *LaunchError) Unwrap() error { return e.Err }

// Options configures a Launcher.
type Options struct {
	// Name prefixes output file names; defaults to "server".
	Name string
	// Args are passed to the runtime before the entry point.
	Args []string
	// Env is the complete child environment; nil inherits the host's.
	Env []string
	// Output selects where stdout/stderr are drained. Unset streams are discarded.
	Output logger.FileConfig
	// Warmup defaults to FixedDelay(DefaultWarmup).
	Warmup Warmup
	// KillGrace bounds termination of a child whose warm-up failed.
	KillGrace time.Duration
	Logger    *slog.Logger
}

// Launcher spawns the supervised server.
type Launcher struct {
	opts Options
}

func NewLauncher(opts Options) *Launcher {
	if opts.Name == "" {
		opts.Name = "server"
	}
	if opts.Warmup == nil {
		opts.Warmup = FixedDelay(DefaultWarmup)
	}
	if opts.KillGrace <= 0 {
		opts.KillGrace = time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Launcher{opts: opts}
}

// Launch runs "<executable> [args...] <entrypoint>" from the entry point's
// directory, drains its output through pipes owned by the launcher, and
// blocks for the warm-up before returning the live child.
func (l *Launcher) Launch(ctx context.Context, p resource.Paths) (Child, error) {
	args := append(append([]string(nil), l.opts.Args...), p.EntryPoint)
	// #nosec G204 -- executable and entry point come from the bundled resource directory
	cmd := exec.Command(p.Executable, args...)
	cmd.Dir = filepath.Dir(p.EntryPoint)
	if l.opts.Env != nil {
		cmd.Env = l.opts.Env
	}
	configureSysProcAttr(cmd)

	outW, errW := l.opts.Output.Writers(l.opts.Name)
	// Non-*os.File writers make exec allocate pipes and copy from them.
	cmd.Stdout = writerOrDiscard(outW)
	cmd.Stderr = writerOrDiscard(errW)
	cmd.WaitDelay = l.opts.KillGrace

	if err := cmd.Start(); err != nil {
		closeAll(outW, errW)
		return nil, &LaunchError{Op: "spawn", Err: err}
	}
	h := newHandle(cmd, outW, errW)
	log := l.opts.Logger.With("pid", h.PID(), "warmup", l.opts.Warmup.String())
	log.Debug("server process spawned", "executable", p.Executable, "entry_point", p.EntryPoint)

	if err := l.opts.Warmup.Wait(ctx, h); err != nil {
		if terr := h.Terminate(l.opts.KillGrace); terr != nil {
			log.Warn("failed to terminate server after warm-up failure", "error", terr)
		}
		return nil, &LaunchError{Op: "warmup", Err: fmt.Errorf("%s: %w", l.opts.Warmup, err)}
	}
	log.Debug("server warm-up complete", "elapsed", time.Since(h.StartedAt()))
	return h, nil
}

// writerOrDiscard avoids handing a typed-nil io.WriteCloser to exec.
func writerOrDiscard(w io.WriteCloser) io.Writer {
	if w == nil {
		return io.Discard
	}
	return w
}

func closeAll(cs ...io.WriteCloser) {
	for _, c := range cs {
		if c != nil {
			_ = c.Close()
		}
	}
}
