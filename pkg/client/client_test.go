package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDaemon mimics the daemon routes under /api.
func fakeDaemon(t *testing.T) *httptest.Server {
	t.Helper()
	running := false
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/start", func(w http.ResponseWriter, r *http.Request) {
		running = true
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"url":"ws://10.0.0.2:3016","ip":"10.0.0.2","port":3016}`))
	})
	mux.HandleFunc("POST /api/stop", func(w http.ResponseWriter, r *http.Request) {
		running = false
		_, _ = w.Write([]byte(`{"ok":true}`))
	})
	mux.HandleFunc("GET /api/status", func(w http.ResponseWriter, r *http.Request) {
		if !running {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"code":"not_running","error":"server not running"}`))
			return
		}
		_, _ = w.Write([]byte(`{"url":"ws://10.0.0.2:3016","ip":"10.0.0.2","port":3016}`))
	})
	mux.HandleFunc("GET /api/debug/snapshot", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"state":"idle"}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_Lifecycle(t *testing.T) {
	srv := fakeDaemon(t)
	c := New(Config{BaseURL: srv.URL + "/api/", Timeout: 5 * time.Second})
	ctx := context.Background()

	assert.True(t, c.IsReachable(ctx), "404 not_running still counts as reachable")

	_, err := c.Status(ctx)
	require.Error(t, err)
	assert.True(t, IsNotRunning(err))
	var ae *APIError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, http.StatusNotFound, ae.Status)
	assert.Equal(t, "not_running: server not running", err.Error())

	info, err := c.Start(ctx)
	require.NoError(t, err)
	assert.Equal(t, ServerInfo{URL: "ws://10.0.0.2:3016", IP: "10.0.0.2", Port: 3016}, info)

	got, err := c.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, info, got)

	snap, err := c.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, "idle", snap.State)

	require.NoError(t, c.Stop(ctx))
}

func TestClient_NonJSONError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer srv.Close()
	c := New(Config{BaseURL: srv.URL})
	_, err := c.Start(context.Background())
	var ae *APIError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, http.StatusBadGateway, ae.Status)
	assert.Equal(t, "HTTP 502: bad gateway", err.Error())
	assert.False(t, IsNotRunning(err))
	assert.False(t, c.IsReachable(context.Background()))
}

func TestClient_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()
	c := New(Config{BaseURL: url, Timeout: time.Second})
	assert.False(t, c.IsReachable(context.Background()))
	_, err := c.Status(context.Background())
	require.Error(t, err)
	assert.False(t, IsNotRunning(err))
}

func TestDefaultsAndTLS(t *testing.T) {
	c := New(Config{})
	assert.Equal(t, "http://127.0.0.1:8080/api", c.baseURL)
	assert.Equal(t, 30*time.Second, c.client.Timeout)

	cfg, err := setupClientTLS(Config{Insecure: true})
	require.NoError(t, err)
	assert.True(t, cfg.InsecureSkipVerify)

	cfg, err = setupClientTLS(Config{TLS: &TLSClientConfig{Enabled: true, ServerName: "srv.local"}})
	require.NoError(t, err)
	assert.Equal(t, "srv.local", cfg.ServerName)

	bad := filepath.Join(t.TempDir(), "ca.pem")
	require.NoError(t, os.WriteFile(bad, []byte("not a cert"), 0o600))
	_, err = setupClientTLS(Config{TLS: &TLSClientConfig{Enabled: true, CACert: bad}})
	assert.Error(t, err)
}
