package srvkeeper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/loykin/srvkeeper/internal/address"
	"github.com/loykin/srvkeeper/internal/command"
	cfg "github.com/loykin/srvkeeper/internal/config"
	"github.com/loykin/srvkeeper/internal/history"
	"github.com/loykin/srvkeeper/internal/history/factory"
	"github.com/loykin/srvkeeper/internal/logger"
	"github.com/loykin/srvkeeper/internal/metrics"
	"github.com/loykin/srvkeeper/internal/process"
	"github.com/loykin/srvkeeper/internal/resource"
	iapi "github.com/loykin/srvkeeper/internal/server"
	"github.com/loykin/srvkeeper/internal/supervisor"
	tlsutil "github.com/loykin/srvkeeper/internal/tls"
)

// Re-export core types for external consumers.

type Config = cfg.Config

type ServerInfo = supervisor.ServerInfo

type Snapshot = supervisor.Snapshot

type Paths = resource.Paths

// Error is returned by the command methods; Code is one of the Code* constants.
type Error = command.Error

type HistorySink = history.Sink

type HistoryEvent = history.Event

const (
	CodeResourceDirUnavailable = supervisor.CodeResourceDirUnavailable
	CodeMissingResource        = supervisor.CodeMissingResource
	CodeLaunchFailed           = supervisor.CodeLaunchFailed
	CodeLockFailure            = supervisor.CodeLockFailure
	CodeNotRunning             = supervisor.CodeNotRunning
	CodeInternal               = supervisor.CodeInternal
)

// Option customizes New.
type Option func(*options)

type options struct {
	logger *slog.Logger
	sinks  []history.Sink
}

// WithLogger replaces the logger built from Config.Log.
func WithLogger(l *slog.Logger) Option { return func(o *options) { o.logger = l } }

// WithHistorySinks adds sinks on top of those named in Config.History.
func WithHistorySinks(s ...HistorySink) Option {
	return func(o *options) { o.sinks = append(o.sinks, s...) }
}

// Keeper is a thin facade over internal/supervisor wired from a Config.
// It provides a stable public API for embedding.
type Keeper struct {
	cfg     *Config
	sup     *supervisor.Supervisor
	surface *command.Surface
	log     *slog.Logger
	closers []io.Closer
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config { return cfg.Default() }

func LoadConfig(path string) (*Config, error) { return cfg.Load(path) }

// NewFromFile loads path and builds a Keeper from it.
func NewFromFile(path string, opts ...Option) (*Keeper, error) {
	c, err := cfg.Load(path)
	if err != nil {
		return nil, err
	}
	return New(c, opts...)
}

// New wires the supervisor and its collaborators from c. A nil c means
// DefaultConfig.
func New(c *Config, opts ...Option) (*Keeper, error) {
	if c == nil {
		c = cfg.Default()
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	var o options
	for _, fn := range opts {
		fn(&o)
	}
	k := &Keeper{cfg: c}

	log := o.logger
	if log == nil {
		l, closer, err := logger.Setup(c.Log)
		if err != nil {
			return nil, err
		}
		log = l
		k.closers = append(k.closers, closer)
	}
	k.log = log

	childEnv, err := c.ChildEnv()
	if err != nil {
		_ = k.closeAll()
		return nil, fmt.Errorf("build server environment: %w", err)
	}

	sinks, sinkCloser, err := factory.NewSinks(c.History.Sinks)
	if err != nil {
		_ = k.closeAll()
		return nil, err
	}
	k.closers = append(k.closers, sinkCloser)
	sinks = append(sinks, o.sinks...)

	launcher := process.NewLauncher(process.Options{
		Args:      c.Server.Args,
		Env:       childEnv,
		Output:    c.Log.File,
		Warmup:    c.WarmupStrategy(),
		KillGrace: c.Server.StopTimeout,
		Logger:    log.With("component", "launcher"),
	})
	k.sup = supervisor.New(supervisor.Options{
		Locator:           resource.New(c.Server.ResourceDir),
		Launcher:          launcher,
		Address:           address.New(c.Address.ProbeTarget),
		Runtime:           c.Server.Runtime,
		Executable:        c.Server.Executable,
		EntryPoint:        c.Server.EntryPoint,
		StopTimeout:       c.Server.StopTimeout,
		SkipLivenessCheck: !c.Server.VerifyLiveness,
		Sinks:             sinks,
		EventTimeout:      c.History.Timeout,
		Logger:            log,
	})
	k.surface = command.New(k.sup)
	return k, nil
}

// Config returns the configuration the Keeper was built from.
func (k *Keeper) Config() *Config { return k.cfg }

// Logger returns the Keeper's logger.
func (k *Keeper) Logger() *slog.Logger { return k.log }

func (k *Keeper) StartServer(ctx context.Context) (ServerInfo, error) {
	return k.surface.StartServer(ctx)
}

func (k *Keeper) StopServer(ctx context.Context) error { return k.surface.StopServer(ctx) }

func (k *Keeper) GetServerInfo(ctx context.Context) (ServerInfo, error) {
	return k.surface.GetServerInfo(ctx)
}

func (k *Keeper) Snapshot() (Snapshot, error) {
	snap, err := k.sup.Snapshot()
	return snap, command.Translate(err)
}

// ResolvePaths resolves the bundled runtime and entry point without starting anything.
func (k *Keeper) ResolvePaths() (Paths, error) {
	p, err := k.sup.ResolvePaths()
	return p, command.Translate(err)
}

// Close stops the server and releases log files and history sinks.
func (k *Keeper) Close(ctx context.Context) error {
	err := k.sup.Close(ctx)
	return errors.Join(command.Translate(err), k.closeAll())
}

func (k *Keeper) closeAll() error {
	var errs []error
	for i := len(k.closers) - 1; i >= 0; i-- {
		if err := k.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	k.closers = nil
	return errors.Join(errs...)
}

// Handler returns the HTTP API mounted under basePath.
func (k *Keeper) Handler(basePath string) http.Handler {
	return iapi.NewRouter(k.sup, basePath).Handler()
}

// NewHTTPServer returns a plain HTTP server exposing the API on addr.
func (k *Keeper) NewHTTPServer(addr, basePath string) *http.Server {
	return iapi.NewHTTPServer(addr, k.Handler(basePath))
}

// NewAPIServer builds the API server described by Config.API, with TLS when
// api.tls is enabled.
func (k *Keeper) NewAPIServer() (*http.Server, error) {
	srv := k.NewHTTPServer(k.cfg.API.Listen, k.cfg.API.BasePath)
	tc, err := tlsutil.Setup(k.cfg.API.TLS)
	if err != nil {
		return nil, err
	}
	srv.TLSConfig = tc
	return srv, nil
}

// ProcessCollector reports CPU and memory of the running server on each scrape.
func (k *Keeper) ProcessCollector() prometheus.Collector {
	return metrics.NewProcessCollector(k.sup.PID)
}

// Metrics helpers (public facade)

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }

// ServeMetrics exposes /metrics for g on addr until ctx is done.
func ServeMetrics(ctx context.Context, addr string, g prometheus.Gatherer) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.HandlerFor(g))
	return iapi.Serve(ctx, iapi.NewHTTPServer(addr, mux), 5*time.Second)
}

// Serve runs srv until ctx is done, then shuts it down gracefully.
func Serve(ctx context.Context, srv *http.Server) error {
	return iapi.Serve(ctx, srv, 5*time.Second)
}
