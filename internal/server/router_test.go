package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/srvkeeper/internal/supervisor"
)

type fakeBackend struct {
	running  bool
	startErr error
	snapErr  error
	starts   int
	ctxErr   error
}

func (b *fakeBackend) Start(ctx context.Context) (supervisor.ServerInfo, error) {
	b.starts++
	b.ctxErr = ctx.Err()
	if b.startErr != nil {
		return supervisor.ServerInfo{}, b.startErr
	}
	b.running = true
	return supervisor.NewServerInfo("10.0.0.9", 3016), nil
}

func (b *fakeBackend) Stop(context.Context) error {
	b.running = false
	return nil
}

func (b *fakeBackend) Status() (supervisor.ServerInfo, error) {
	if !b.running {
		return supervisor.ServerInfo{}, supervisor.ErrNotRunning
	}
	return supervisor.NewServerInfo("10.0.0.9", 3016), nil
}

func (b *fakeBackend) Snapshot() (supervisor.Snapshot, error) {
	if b.snapErr != nil {
		return supervisor.Snapshot{}, b.snapErr
	}
	if !b.running {
		return supervisor.Snapshot{State: supervisor.Idle}, nil
	}
	info := supervisor.NewServerInfo("10.0.0.9", 3016)
	return supervisor.Snapshot{State: supervisor.Running, Info: &info, PID: 77, RunID: "r"}, nil
}

func setupRouter(t *testing.T, b Backend, base string) http.Handler {
	t.Helper()
	gin.SetMode(gin.TestMode)
	return NewRouter(b, base).Handler()
}

func doReq(t *testing.T, h http.Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestRouter_Lifecycle(t *testing.T) {
	b := &fakeBackend{}
	h := setupRouter(t, b, "/api")

	rec := doReq(t, h, http.MethodGet, "/api/status")
	require.Equal(t, http.StatusNotFound, rec.Code)
	e := decode[map[string]string](t, rec)
	assert.Equal(t, "not_running", e["code"])
	assert.Equal(t, "server not running", e["error"])

	rec = doReq(t, h, http.MethodPost, "/api/start")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	info := decode[supervisor.ServerInfo](t, rec)
	assert.Equal(t, supervisor.ServerInfo{URL: "ws://10.0.0.9:3016", IP: "10.0.0.9", Port: 3016}, info)
	assert.NoError(t, b.ctxErr)

	rec = doReq(t, h, http.MethodGet, "/api/status")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, info, decode[supervisor.ServerInfo](t, rec))

	rec = doReq(t, h, http.MethodGet, "/api/debug/snapshot")
	require.Equal(t, http.StatusOK, rec.Code)
	snap := decode[supervisor.Snapshot](t, rec)
	assert.Equal(t, supervisor.Running, snap.State)
	assert.Equal(t, 77, snap.PID)

	rec = doReq(t, h, http.MethodPost, "/api/stop")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok":true}`, rec.Body.String())

	// stop is idempotent
	rec = doReq(t, h, http.MethodPost, "/api/stop")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRouter_StartErrors(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{&supervisor.MissingResourceError{What: "node runtime", Path: "/r/binaries/node/node"}, http.StatusFailedDependency, "missing_resource"},
		{supervisor.ErrResourceDirUnavailable, http.StatusFailedDependency, "resource_dir_unavailable"},
		{&supervisor.LaunchFailedError{Reason: errors.New("exec format error")}, http.StatusBadGateway, "launch_failed"},
		{supervisor.ErrLockFailure, http.StatusInternalServerError, "lock_failure"},
	}
	for _, tc := range cases {
		h := setupRouter(t, &fakeBackend{startErr: tc.err}, "")
		rec := doReq(t, h, http.MethodPost, "/start")
		require.Equal(t, tc.status, rec.Code, rec.Body.String())
		e := decode[map[string]string](t, rec)
		assert.Equal(t, tc.code, e["code"])
		assert.Equal(t, tc.err.Error(), e["error"])
	}
}

func TestRouter_SnapshotError(t *testing.T) {
	h := setupRouter(t, &fakeBackend{snapErr: supervisor.ErrLockFailure}, "/x")
	rec := doReq(t, h, http.MethodGet, "/x/debug/snapshot")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "lock_failure", decode[map[string]string](t, rec)["code"])
}

func TestRouter_MethodAndPath(t *testing.T) {
	h := setupRouter(t, &fakeBackend{}, "/api")
	assert.Equal(t, http.StatusNotFound, doReq(t, h, http.MethodGet, "/api/start").Code)
	assert.Equal(t, http.StatusNotFound, doReq(t, h, http.MethodPost, "/start").Code)
}

func TestRouter_RegisterOnExistingEngine(t *testing.T) {
	gin.SetMode(gin.TestMode)
	g := gin.New()
	NewRouter(&fakeBackend{running: true}, "").Register(g.Group("/embedded"))
	rec := doReq(t, g, http.MethodGet, "/embedded/status")
	require.Equal(t, http.StatusOK, rec.Code)
}
