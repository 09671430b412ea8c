package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"wgenroll/internal/config"
	"wgenroll/pkg/sdk/client"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// shortDir keeps unix socket paths under the platform length limit.
func shortDir(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "wge")
	if err != nil {
		t.Fatalf("MkdirTemp: %v", err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	return dir
}

func testConfig(t *testing.T, driver string) config.Config {
	t.Helper()
	dir := shortDir(t)
	cfg := config.Default()
	cfg.Network.ServerPublicKey = "xTIBA5rboUvnH4htodjb6e697QjLERt1NAB4mZqp8Dg="
	cfg.Network.ServerEndpoint = "vpn.example.com:51820"
	cfg.Daemon.Socket = filepath.Join(dir, "d.sock")
	cfg.Daemon.StoreDriver = driver
	cfg.Daemon.StorePath = filepath.Join(dir, "enroll.db")
	return cfg
}

func TestRun_ServesOnSocketUntilCancelled(t *testing.T) {
	cfg := testConfig(t, config.StoreSQLite)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- Run(ctx, cfg, quietLogger()) }()

	c, err := client.NewUnix(cfg.Daemon.Socket, client.Identity{UserID: "ops", Role: "admin"})
	if err != nil {
		t.Fatalf("NewUnix: %v", err)
	}
	defer c.Close()

	deadline := time.Now().Add(5 * time.Second)
	for {
		_, err = c.CreateInvite(ctx, "alice", "", 0)
		if err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("daemon never became ready: %v", err)
		}
		time.Sleep(20 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if _, err := os.Stat(cfg.Daemon.Socket); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("socket not removed: %v", err)
	}
	if _, err := os.Stat(cfg.Daemon.StorePath); err != nil {
		t.Fatalf("store file missing: %v", err)
	}
}

func TestWire_RejectsBadConfig(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t, config.StoreMemory)
	cfg.Network.ServerPublicKey = "not-a-key"
	if _, _, err := Wire(context.Background(), cfg, quietLogger()); err == nil {
		t.Fatal("expected error for malformed server key")
	}

	cfg = testConfig(t, config.StoreMemory)
	cfg.Trust.TrustedCIDRs = []string{"10.0.0.0/8", "bogus"}
	if _, _, err := Wire(context.Background(), cfg, quietLogger()); err == nil {
		t.Fatal("expected error for malformed trusted cidr")
	}
}

func TestWire_PlaceholderServer(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t, config.StoreMemory)
	cfg.Network.ServerPublicKey = ""
	cfg.Network.ServerEndpoint = ""
	srv, store, err := Wire(context.Background(), cfg, quietLogger())
	if err != nil {
		t.Fatalf("Wire: %v", err)
	}
	defer store.Close()
	if srv == nil {
		t.Fatal("expected server")
	}
}

func TestOpenStore(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	for _, driver := range []string{config.StoreMemory, config.StoreSQLite, ""} {
		s, err := OpenStore(config.Daemon{StoreDriver: driver, StorePath: filepath.Join(dir, "x.db")})
		if err != nil {
			t.Fatalf("OpenStore(%q): %v", driver, err)
		}
		if err := s.Close(); err != nil {
			t.Fatalf("Close(%q): %v", driver, err)
		}
	}
	if _, err := OpenStore(config.Daemon{StoreDriver: "postgres"}); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}
