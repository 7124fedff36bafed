package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/loykin/srvkeeper/internal/command"
	"github.com/loykin/srvkeeper/internal/supervisor"
)

// Backend is what the router drives; *supervisor.Supervisor satisfies it.
type Backend interface {
	command.Backend
	Snapshot() (supervisor.Snapshot, error)
}

// Router provides embeddable HTTP handlers for the command surface.
// Endpoints:
//
//	POST {basePath}/start           -> ServerInfo
//	POST {basePath}/stop            -> {"ok": true}
//	GET  {basePath}/status          -> ServerInfo, 404 when not running
//	GET  {basePath}/debug/snapshot  -> Snapshot
//
// Errors are {"code": ..., "error": ...}. basePath may be empty or start
// with '/'; no trailing slash.
type Router struct {
	backend  Backend
	surface  *command.Surface
	basePath string
}

// NewRouter constructs a Router. Example basePath "/api" results in
// /api/start, /api/stop and /api/status.
func NewRouter(b Backend, basePath string) *Router {
	return &Router{backend: b, surface: command.New(b), basePath: sanitizeBase(basePath)}
}

// Handler returns an http.Handler powered by gin that can be mounted in any server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	r.Register(g.Group(r.basePath))
	return g
}

// Register adds the routes to an existing gin group.
func (r *Router) Register(group *gin.RouterGroup) {
	group.POST("/start", r.handleStart)
	group.POST("/stop", r.handleStop)
	group.GET("/status", r.handleStatus)
	group.GET("/debug/snapshot", r.handleSnapshot)
}

type okResp struct {
	OK bool `json:"ok"`
}

func (r *Router) handleStart(c *gin.Context) {
	// A client that disconnects mid warm-up must not abort the start for
	// everyone else waiting on it.
	info, err := r.surface.StartServer(context.WithoutCancel(c.Request.Context()))
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, info)
}

func (r *Router) handleStop(c *gin.Context) {
	if err := r.surface.StopServer(c.Request.Context()); err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleStatus(c *gin.Context) {
	info, err := r.surface.GetServerInfo(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, info)
}

func (r *Router) handleSnapshot(c *gin.Context) {
	snap, err := r.backend.Snapshot()
	if err != nil {
		writeError(c, command.Translate(err))
		return
	}
	writeJSON(c, http.StatusOK, snap)
}

func writeError(c *gin.Context, err error) {
	var ce *command.Error
	if !errors.As(err, &ce) {
		ce = &command.Error{Code: supervisor.CodeInternal, Message: err.Error()}
	}
	writeJSON(c, httpStatus(ce.Code), ce)
}
