package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeDaemon(t *testing.T, running bool) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	info := `{"url":"ws://10.1.2.3:3016","ip":"10.1.2.3","port":3016}`
	mux.HandleFunc("POST /api/start", func(w http.ResponseWriter, r *http.Request) {
		running = true
		_, _ = w.Write([]byte(info))
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
		_, _ = w.Write([]byte(info))
	})
	mux.HandleFunc("GET /api/debug/snapshot", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"state":"running","pid":42,"run_id":"abc"}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := buildRoot(&out)
	root.SetArgs(args)
	root.SetErr(&bytes.Buffer{})
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestStatusStartStopViaAPI(t *testing.T) {
	srv := fakeDaemon(t, false)
	api := srv.URL + "/api"

	out, err := run(t, "status", "--api-url", api)
	require.NoError(t, err)
	assert.JSONEq(t, `{"state":"idle"}`, out)

	out, err = run(t, "start", "--api-url", api)
	require.NoError(t, err)
	var info map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, "ws://10.1.2.3:3016", info["url"])

	out, err = run(t, "status", "--api-url", api)
	require.NoError(t, err)
	assert.Contains(t, out, `"port": 3016`)

	out, err = run(t, "status", "--detailed", "--api-url", api)
	require.NoError(t, err)
	assert.Contains(t, out, `"run_id": "abc"`)

	out, err = run(t, "stop", "--api-url", api)
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, out)
}

func TestStartReportsDaemonError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusFailedDependency)
		_, _ = w.Write([]byte(`{"code":"missing_resource","error":"node runtime not found at: /x/binaries/node/node"}`))
	}))
	defer srv.Close()

	_, err := run(t, "start", "--api-url", srv.URL, "--api-timeout", "2s")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing_resource")
	assert.Contains(t, err.Error(), "node runtime not found at:")
}

func TestStatusUnreachableDaemon(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()
	_, err := run(t, "status", "--api-url", url, "--api-timeout", time.Second.String())
	require.Error(t, err)
}

func writeBundle(t *testing.T, withEntry bool) string {
	t.Helper()
	dir := t.TempDir()
	exe := filepath.Join(dir, "binaries", "node", "node")
	require.NoError(t, os.MkdirAll(filepath.Dir(exe), 0o755))
	require.NoError(t, os.WriteFile(exe, []byte("#!/bin/sh\n"), 0o755))
	if withEntry {
		entry := filepath.Join(dir, "binaries", "server", "dist", "index.js")
		require.NoError(t, os.MkdirAll(filepath.Dir(entry), 0o755))
		require.NoError(t, os.WriteFile(entry, []byte("//\n"), 0o644))
	}
	return dir
}

func writeConfig(t *testing.T, resourceDir string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "srvkeeper.toml")
	body := "[server]\nresource_dir = \"" + filepath.ToSlash(resourceDir) + "\"\nexecutable = \"node\"\n"
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestPathsCommand(t *testing.T) {
	dir := writeBundle(t, true)
	out, err := run(t, "paths", writeConfig(t, dir))
	require.NoError(t, err)

	var p struct {
		Executable string `json:"executable"`
		EntryPoint string `json:"entry_point"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &p))
	assert.Equal(t, filepath.Join(dir, "binaries", "node", "node"), p.Executable)
	assert.Equal(t, filepath.Join(dir, "binaries", "server", "dist", "index.js"), p.EntryPoint)
}

func TestPathsCommandMissingEntry(t *testing.T) {
	dir := writeBundle(t, false)
	_, err := run(t, "--config", writeConfig(t, dir), "paths")
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "server entry point not found at: "), err.Error())
}

func TestPathsCommandBadConfig(t *testing.T) {
	_, err := run(t, "paths", filepath.Join(t.TempDir(), "nope.toml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error loading config")
}

func TestHelpMentionsCommands(t *testing.T) {
	out, err := run(t, "--help")
	require.NoError(t, err)
	for _, c := range []string{"serve", "start", "stop", "status", "paths"} {
		assert.Contains(t, out, c)
	}
}
