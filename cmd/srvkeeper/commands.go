package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/loykin/srvkeeper"
	"github.com/loykin/srvkeeper/pkg/client"
)

type command struct {
	out io.Writer
}

type idleResp struct {
	State string `json:"state"`
}

func newClient(f APIFlags) *client.Client {
	return client.New(client.Config{
		BaseURL:  f.APIUrl,
		Timeout:  f.APITimeout,
		Insecure: f.Insecure,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

// Start asks the daemon to start the server.
func (c command) Start(ctx context.Context, f APIFlags) error {
	info, err := newClient(f).Start(ctx)
	if err != nil {
		return err
	}
	return c.printJSON(info)
}

// Stop asks the daemon to stop the server.
func (c command) Stop(ctx context.Context, f APIFlags) error {
	if err := newClient(f).Stop(ctx); err != nil {
		return err
	}
	return c.printJSON(map[string]bool{"ok": true})
}

// Status prints the server address, or the idle state.
func (c command) Status(ctx context.Context, f APIFlags, detailed bool) error {
	cl := newClient(f)
	if detailed {
		snap, err := cl.Snapshot(ctx)
		if err != nil {
			return err
		}
		return c.printJSON(snap)
	}
	info, err := cl.Status(ctx)
	if client.IsNotRunning(err) {
		return c.printJSON(idleResp{State: "idle"})
	}
	if err != nil {
		return err
	}
	return c.printJSON(info)
}

// Paths resolves the bundled resources locally from the config at path.
func (c command) Paths(path string) error {
	cfg, err := loadConfig(path)
	if err != nil {
		return err
	}
	// A diagnostic must not open history databases.
	cfg.History.Sinks = nil
	k, err := srvkeeper.New(cfg, srvkeeper.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	if err != nil {
		return err
	}
	defer func() { _ = k.Close(context.Background()) }()
	p, err := k.ResolvePaths()
	if err != nil {
		return err
	}
	return c.printJSON(p)
}

func (c command) printJSON(v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(c.out, string(b))
	return err
}

func configPathFrom(flag string, args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return flag
}

// loadConfig reads path, or returns the defaults when path is empty.
func loadConfig(path string) (*srvkeeper.Config, error) {
	if path == "" {
		return srvkeeper.DefaultConfig(), nil
	}
	cfg, err := srvkeeper.LoadConfig(path)
	if err != nil {
		return nil, fmt.Errorf("error loading config: %w", err)
	}
	return cfg, nil
}
