package config

import "testing"

func TestConfig_SaveLoadRoundTrip(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load empty: %v", err)
	}
	if len(cfg.Contexts) != 0 {
		t.Fatalf("expected no contexts, got %v", cfg.Contexts)
	}

	cfg.Set("local", Context{Socket: "/tmp/wgenrolld.sock", UserID: "root", Role: "admin"})
	cfg.Set("office", Context{Address: "10.0.0.5:7443", UserID: "alice"})
	if err := cfg.Use("office"); err != nil {
		t.Fatalf("Use: %v", err)
	}
	if err := cfg.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	name, ctx, ok := loaded.Current()
	if !ok || name != "office" || ctx.UserID != "alice" {
		t.Errorf("Current: %q %+v %v", name, ctx, ok)
	}
	if got := loaded.Contexts["local"].Target(); got != "unix:///tmp/wgenrolld.sock" {
		t.Errorf("Target: got %q", got)
	}
	if got := ctx.Target(); got != "10.0.0.5:7443" {
		t.Errorf("Target: got %q", got)
	}
}

func TestConfig_ResolveAndRemove(t *testing.T) {
	cfg := &Config{Contexts: map[string]Context{}}
	if _, err := cfg.Resolve(""); err == nil {
		t.Error("expected error without current context")
	}
	if err := cfg.Use("missing"); err == nil {
		t.Error("expected error for unknown context")
	}

	cfg.Set("local", Context{Socket: "/run/x.sock"})
	_ = cfg.Use("local")
	if ctx, err := cfg.Resolve(""); err != nil || ctx.Socket != "/run/x.sock" {
		t.Errorf("Resolve current: %+v %v", ctx, err)
	}
	if err := cfg.Remove("local"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if cfg.CurrentContext != "" {
		t.Errorf("current context not cleared: %q", cfg.CurrentContext)
	}
	if err := cfg.Remove("local"); err == nil {
		t.Error("expected error removing twice")
	}
}
