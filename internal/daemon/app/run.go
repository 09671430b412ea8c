// Package app assembles the daemon from its configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"wgenroll/internal/adapter/memory"
	"wgenroll/internal/adapter/sqlite"
	"wgenroll/internal/buildinfo"
	"wgenroll/internal/config"
	"wgenroll/internal/daemon/server"
	"wgenroll/internal/enroll"
	"wgenroll/internal/telemetry"
)

const serviceName = "wgenrolld"

// Run starts tracing, opens the store, builds the engine and serves until ctx
// is cancelled.
func Run(ctx context.Context, cfg config.Config, log *slog.Logger) (err error) {
	if log == nil {
		log = slog.Default()
	}

	shutdown, err := telemetry.Setup(ctx, serviceName, buildinfo.Version, cfg.Daemon.OTelEndpoint)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		err = errors.Join(err, shutdown(flushCtx))
	}()

	srv, store, err := Wire(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, store.Close())
	}()

	return srv.ListenAndServe(ctx, cfg.Daemon.Socket, cfg.Daemon.ListenAddr)
}

// Wire builds the server and the store backing it without listening.
func Wire(ctx context.Context, cfg config.Config, log *slog.Logger) (*server.Server, enroll.Store, error) {
	engineCfg, err := cfg.Engine(log)
	if err != nil {
		return nil, nil, fmt.Errorf("network config: %w", err)
	}
	trusted, err := cfg.TrustedPrefixes()
	if err != nil {
		return nil, nil, err
	}

	store, err := OpenStore(cfg.Daemon)
	if err != nil {
		return nil, nil, err
	}
	engine, err := enroll.New(ctx, engineCfg, store, enroll.WithLogger(log))
	if err != nil {
		_ = store.Close()
		return nil, nil, fmt.Errorf("create engine: %w", err)
	}

	log.Info("enrollment engine ready",
		"subnet", engineCfg.Subnet,
		"server_overlay_ip", engineCfg.ServerIP,
		"store", cfg.Daemon.StoreDriver,
		"trust_proxy", cfg.Trust.TrustProxy,
	)
	srv := server.New(engine, server.Options{
		TrustedPrefixes: trusted,
		TrustProxy:      cfg.Trust.TrustProxy,
		Logger:          log,
	})
	return srv, store, nil
}

// OpenStore selects the store driver named in the daemon settings.
func OpenStore(d config.Daemon) (enroll.Store, error) {
	switch d.StoreDriver {
	case config.StoreMemory:
		return memory.New(d.AuditCapacity), nil
	case config.StoreSQLite, "":
		s, err := sqlite.Open(d.StorePath, d.AuditCapacity)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store %s: %w", d.StorePath, err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", d.StoreDriver)
	}
}
