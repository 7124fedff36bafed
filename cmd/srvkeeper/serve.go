package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/loykin/srvkeeper"
)

// shutdownSlack is added to the stop timeout when stopping the server on exit.
const shutdownSlack = 5 * time.Second

func runServe(ctx context.Context, flags *ServeFlags, args []string) error {
	configPath := configPathFrom(flags.ConfigPath, args)
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	if flags.Daemonize {
		pid, err := daemonize(os.Args[1:], flags.LogFile)
		if err != nil {
			return err
		}
		fmt.Printf("Daemon started with PID %d\n", pid)
		return nil
	}
	if flags.PidFile != "" {
		if err := writePidFile(flags.PidFile, os.Getpid()); err != nil {
			return fmt.Errorf("failed to write PID file: %w", err)
		}
		defer func() { _ = removePidFile(flags.PidFile) }()
	}

	k, err := srvkeeper.New(cfg)
	if err != nil {
		return err
	}
	log := k.Logger()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)

	if cfg.Metrics.Enabled {
		reg, err := metricsRegistry(k, cfg.Metrics.ProcessStats)
		if err != nil {
			_ = k.Close(context.Background())
			return err
		}
		log.Info("serving metrics", "listen", cfg.Metrics.Listen, "process_stats", cfg.Metrics.ProcessStats)
		g.Go(func() error {
			return srvkeeper.ServeMetrics(gctx, cfg.Metrics.Listen, reg)
		})
	}
	if cfg.API.Enabled {
		srv, err := k.NewAPIServer()
		if err != nil {
			_ = k.Close(context.Background())
			return fmt.Errorf("api server: %w", err)
		}
		log.Info("serving API", "listen", cfg.API.Listen, "base_path", cfg.API.BasePath, "tls", srv.TLSConfig != nil)
		g.Go(func() error { return srvkeeper.Serve(gctx, srv) })
	}
	if flags.Autostart {
		g.Go(func() error {
			info, err := k.StartServer(gctx)
			if err != nil {
				// The daemon stays up so start can be retried.
				log.Error("autostart failed", "error", err)
				return nil
			}
			log.Info("autostart complete", "url", info.URL)
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		return nil
	})

	err = g.Wait()
	log.Info("shutting down")
	closeCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.StopTimeout+shutdownSlack)
	defer cancel()
	return errors.Join(err, k.Close(closeCtx))
}

// metricsRegistry builds the registry served on the metrics listener.
func metricsRegistry(k *srvkeeper.Keeper, processStats bool) (*prometheus.Registry, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	if err := srvkeeper.RegisterMetrics(reg); err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}
	if processStats {
		if err := reg.Register(k.ProcessCollector()); err != nil {
			return nil, fmt.Errorf("register process metrics: %w", err)
		}
	}
	return reg, nil
}
