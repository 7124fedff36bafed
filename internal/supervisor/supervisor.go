package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/loykin/srvkeeper/internal/address"
	"github.com/loykin/srvkeeper/internal/history"
	"github.com/loykin/srvkeeper/internal/metrics"
	"github.com/loykin/srvkeeper/internal/process"
	"github.com/loykin/srvkeeper/internal/resource"
)

const (
	DefaultPort         = 3016
	DefaultRuntime      = "node"
	DefaultEntryPoint   = "index.js"
	DefaultStopTimeout  = 3 * time.Second
	DefaultEventTimeout = 5 * time.Second
)

// State is the externally visible supervisor state.
type State string

const (
	Idle    State = "idle"
	Running State = "running"
)

// ServerInfo describes a running server. It is created once per successful
// start and replaced wholesale on the next one.
type ServerInfo struct {
	URL  string `json:"url"`
	IP   string `json:"ip"`
	Port int    `json:"port"`
}

// NewServerInfo builds the websocket URL clients use to reach ip:port.
// IPv6 addresses are bracketed.
func NewServerInfo(ip string, port int) ServerInfo {
	return ServerInfo{URL: "ws://" + net.JoinHostPort(ip, strconv.Itoa(port)), IP: ip, Port: port}
}

// Snapshot is a read-only diagnostic view of the record.
type Snapshot struct {
	State     State       `json:"state"`
	Info      *ServerInfo `json:"info,omitempty"`
	PID       int         `json:"pid,omitempty"`
	RunID     string      `json:"run_id,omitempty"`
	StartedAt *time.Time  `json:"started_at,omitempty"`
}

// Locator resolves logical resource paths under the resource directory.
type Locator interface {
	Resolve(rel string) (string, error)
}

// Launcher spawns the server and returns once it is warmed up.
type Launcher interface {
	Launch(ctx context.Context, p resource.Paths) (process.Child, error)
}

// AddressResolver returns the address clients should dial. It never fails.
type AddressResolver interface {
	Resolve() string
}

// Options wires the supervisor's collaborators. Zero values select defaults.
type Options struct {
	Locator  Locator
	Launcher Launcher
	Address  AddressResolver

	// Runtime names the bundled runtime directory (binaries/<Runtime>/).
	Runtime string
	// Executable defaults to Runtime, with ".exe" on Windows.
	Executable string
	EntryPoint string
	Port       int

	StopTimeout time.Duration
	// SkipLivenessCheck makes Start trust a recorded server without checking
	// whether its process has exited.
	SkipLivenessCheck bool

	Sinks        []history.Sink
	EventTimeout time.Duration
	Logger       *slog.Logger
}

type record struct {
	child     process.Child
	info      ServerInfo
	runID     string
	startedAt time.Time
}

func (r *record) run() history.Run {
	return history.Run{ID: r.runID, PID: r.child.PID(), URL: r.info.URL, StartedAt: r.startedAt}
}

// Supervisor owns the single server record. All operations serialize on one
// mutex; Start holds it through spawn and warm-up. Concurrent Start calls
// share one flight, so callers that arrive while a start is in progress get
// its result instead of spawning again.
type Supervisor struct {
	opts   Options
	log    *slog.Logger
	starts singleflight.Group

	mu       sync.Mutex
	rec      *record
	poisoned bool
}

func New(opts Options) *Supervisor {
	if opts.Runtime == "" {
		opts.Runtime = DefaultRuntime
	}
	if opts.Executable == "" {
		opts.Executable = resource.ExecutableName(opts.Runtime, runtime.GOOS)
	}
	if opts.EntryPoint == "" {
		opts.EntryPoint = DefaultEntryPoint
	}
	if opts.Port == 0 {
		opts.Port = DefaultPort
	}
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = DefaultStopTimeout
	}
	if opts.EventTimeout <= 0 {
		opts.EventTimeout = DefaultEventTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Locator == nil {
		opts.Locator = resource.New("")
	}
	if opts.Launcher == nil {
		opts.Launcher = process.NewLauncher(process.Options{Logger: opts.Logger})
	}
	if opts.Address == nil {
		opts.Address = address.New("")
	}
	return &Supervisor{opts: opts, log: opts.Logger.With("component", "supervisor")}
}

// locked runs fn inside the critical section. A panic in fn poisons the
// supervisor: this and every later call return ErrLockFailure.
func (s *Supervisor) locked(fn func() error) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.poisoned {
		return ErrLockFailure
	}
	defer func() {
		if r := recover(); r != nil {
			s.poisoned = true
			s.log.Error("panic inside supervisor; state is poisoned", "panic", r)
			err = fmt.Errorf("%w: %v", ErrLockFailure, r)
		}
	}()
	return fn()
}

// Start launches the server unless one is already recorded, and returns its info.
// Failures leave the supervisor idle. Callers joining an in-flight start
// observe that start's outcome, including a cancellation of its context.
func (s *Supervisor) Start(ctx context.Context) (ServerInfo, error) {
	v, err, _ := s.starts.Do("start", func() (any, error) {
		return s.start(ctx)
	})
	if err != nil {
		return ServerInfo{}, err
	}
	return v.(ServerInfo), nil
}

func (s *Supervisor) start(ctx context.Context) (ServerInfo, error) {
	var (
		info    ServerInfo
		events  []history.Event
		stale   bool
		spawned bool
		warmup  time.Duration
	)
	err := s.locked(func() error {
		if s.rec != nil {
			if s.opts.SkipLivenessCheck || !s.rec.child.Exited() {
				info = s.rec.info
				return nil
			}
			s.log.Warn("recorded server has exited; starting a new one", "pid", s.rec.child.PID(), "run_id", s.rec.runID)
			events = append(events, s.event(history.EventStale, s.rec.run(), nil))
			s.rec = nil
			stale = true
		}

		began := time.Now()
		rec, err := s.spawn(ctx)
		if err != nil {
			events = append(events, s.event(history.EventStartFailed, history.Run{}, err))
			return err
		}
		warmup = time.Since(began)
		s.rec = rec
		info = rec.info
		spawned = true
		events = append(events, s.event(history.EventStart, rec.run(), nil))
		s.log.Info("server started", "pid", rec.child.PID(), "url", rec.info.URL, "run_id", rec.runID)
		return nil
	})

	if stale {
		metrics.IncStaleRecord()
	}
	switch {
	case err != nil:
		metrics.IncStartFailure(Code(err))
		if stale {
			metrics.SetRunning(false)
		}
		s.log.Warn("server start failed", "code", Code(err), "error", err)
	case spawned:
		metrics.IncStart()
		metrics.ObserveWarmup(warmup.Seconds())
		metrics.SetRunning(true)
	}
	s.publishCtx(ctx, events)
	if err != nil {
		return ServerInfo{}, err
	}
	return info, nil
}

func (s *Supervisor) spawn(ctx context.Context) (*record, error) {
	paths, err := s.ResolvePaths()
	if err != nil {
		return nil, err
	}
	child, err := s.opts.Launcher.Launch(ctx, paths)
	if err != nil {
		return nil, &LaunchFailedError{Reason: err}
	}
	return &record{
		child:     child,
		info:      NewServerInfo(s.opts.Address.Resolve(), s.opts.Port),
		runID:     uuid.NewString(),
		startedAt: time.Now().UTC(),
	}, nil
}

// ResolvePaths resolves the runtime executable and the entry point and checks
// that both exist. It does not touch the record.
func (s *Supervisor) ResolvePaths() (resource.Paths, error) {
	exe, err := s.locate(resource.ExecutablePath(s.opts.Runtime, s.opts.Executable), s.opts.Runtime+" runtime")
	if err != nil {
		return resource.Paths{}, err
	}
	entry, err := s.locate(resource.EntryPointPath(s.opts.EntryPoint), "server entry point")
	if err != nil {
		return resource.Paths{}, err
	}
	return resource.Paths{Executable: exe, EntryPoint: entry}, nil
}

// locate resolves rel and checks that the file exists.
func (s *Supervisor) locate(rel, what string) (string, error) {
	p, err := s.opts.Locator.Resolve(rel)
	if err != nil {
		if errors.Is(err, ErrResourceDirUnavailable) {
			return "", err
		}
		return "", fmt.Errorf("%w: %v", ErrResourceDirUnavailable, err)
	}
	if _, err := os.Stat(p); err != nil {
		return "", &MissingResourceError{What: what, Path: p}
	}
	return p, nil
}

// Stop terminates the recorded server, if any, and clears the record.
// Termination failures are logged and counted but never returned.
func (s *Supervisor) Stop(ctx context.Context) error {
	var (
		events    []history.Event
		stopped   bool
		termFails bool
	)
	err := s.locked(func() error {
		if s.rec == nil {
			return nil
		}
		rec := s.rec
		if terr := rec.child.Terminate(s.opts.StopTimeout); terr != nil {
			termFails = true
			s.log.Warn("failed to terminate server; record cleared anyway", "pid", rec.child.PID(), "run_id", rec.runID, "error", terr)
			events = append(events, s.event(history.EventStop, rec.run(), terr))
		} else {
			events = append(events, s.event(history.EventStop, rec.run(), nil))
		}
		s.rec = nil
		stopped = true
		s.log.Info("server stopped", "pid", rec.child.PID(), "run_id", rec.runID)
		return nil
	})
	if termFails {
		metrics.IncTerminateFailure()
	}
	if stopped {
		metrics.IncStop()
		metrics.SetRunning(false)
	}
	s.publishCtx(ctx, events)
	return err
}

// Status returns the recorded server info, or ErrNotRunning.
func (s *Supervisor) Status() (ServerInfo, error) {
	var info ServerInfo
	err := s.locked(func() error {
		if s.rec == nil {
			return ErrNotRunning
		}
		info = s.rec.info
		return nil
	})
	return info, err
}

func (s *Supervisor) Snapshot() (Snapshot, error) {
	snap := Snapshot{State: Idle}
	err := s.locked(func() error {
		if s.rec == nil {
			return nil
		}
		info := s.rec.info
		startedAt := s.rec.startedAt
		snap = Snapshot{
			State:     Running,
			Info:      &info,
			PID:       s.rec.child.PID(),
			RunID:     s.rec.runID,
			StartedAt: &startedAt,
		}
		return nil
	})
	return snap, err
}

// PID returns the recorded server's PID, or 0 when idle or poisoned.
func (s *Supervisor) PID() int {
	snap, err := s.Snapshot()
	if err != nil {
		return 0
	}
	return snap.PID
}

// Close stops the server for host shutdown.
func (s *Supervisor) Close(ctx context.Context) error {
	return s.Stop(ctx)
}

func (s *Supervisor) event(t history.EventType, run history.Run, err error) history.Event {
	e := history.Event{Type: t, OccurredAt: time.Now().UTC(), Run: run}
	if err != nil {
		e.Error = err.Error()
	}
	return e
}

func (s *Supervisor) publishCtx(ctx context.Context, events []history.Event) {
	if len(s.opts.Sinks) == 0 || len(events) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.EventTimeout)
	defer cancel()
	for _, e := range events {
		history.Publish(ctx, s.log, s.opts.Sinks, e)
	}
}
