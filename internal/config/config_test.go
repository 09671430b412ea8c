package config

import (
	"os"
	"path/filepath"
	"testing"

	"golang.zx2c4.com/wireguard/wgctrl/wgtypes"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"WG_SUBNET", "WG_SERVER_OVERLAY_IP", "WG_SERVER_PUBLIC_KEY", "WG_SERVER_ENDPOINT",
		"WG_DNS", "WG_KEEPALIVE", "WG_DEFAULT_ALLOWED_IPS",
		"NETWORK_TRUSTED_CIDRS", "NETWORK_TRUST_PROXY",
		"WGENROLL_SOCKET", "WGENROLL_LISTEN", "WGENROLL_STORE_DRIVER", "WGENROLL_STORE_PATH",
		"WGENROLL_AUDIT_CAPACITY", "WGENROLL_LOG_LEVEL", "WGENROLL_LOG_FORMAT", "WGENROLL_OTEL_ENDPOINT",
	} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "wgenrolld.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Network.Subnet != "10.77.0.0/16" || cfg.Network.ServerOverlayIP != "10.77.0.10" {
		t.Errorf("network defaults: %+v", cfg.Network)
	}
	if cfg.Network.Keepalive != 25 {
		t.Errorf("keepalive: got %d", cfg.Network.Keepalive)
	}
	if len(cfg.Trust.TrustedCIDRs) != 3 || cfg.Trust.TrustProxy {
		t.Errorf("trust defaults: %+v", cfg.Trust)
	}
	if cfg.Daemon.StoreDriver != StoreSQLite || cfg.Daemon.AuditCapacity != 5000 {
		t.Errorf("daemon defaults: %+v", cfg.Daemon)
	}
}

func TestLoad_FileThenEnv(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, `
network:
  subnet: 10.50.0.0/24
  server_endpoint: vpn.example.com:51820
  dns: 10.50.0.1
  keepalive: 15
trust:
  trusted_cidrs: [100.64.0.0/10]
daemon:
  store_driver: memory
`)
	t.Setenv("WG_KEEPALIVE", "40")
	t.Setenv("NETWORK_TRUST_PROXY", "1")
	t.Setenv("WG_DEFAULT_ALLOWED_IPS", "10.50.0.0/24, 192.168.5.0/24")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Network.Subnet != "10.50.0.0/24" || cfg.Network.DNS != "10.50.0.1" {
		t.Errorf("file values not applied: %+v", cfg.Network)
	}
	if cfg.Network.ServerOverlayIP != "10.77.0.10" {
		t.Errorf("default lost for unset field: %q", cfg.Network.ServerOverlayIP)
	}
	if cfg.Network.Keepalive != 40 {
		t.Errorf("env did not override keepalive: %d", cfg.Network.Keepalive)
	}
	if !cfg.Trust.TrustProxy {
		t.Error("NETWORK_TRUST_PROXY=1 not honoured")
	}
	if len(cfg.Trust.TrustedCIDRs) != 1 || cfg.Trust.TrustedCIDRs[0] != "100.64.0.0/10" {
		t.Errorf("trusted cidrs: %v", cfg.Trust.TrustedCIDRs)
	}
	if got := cfg.Network.DefaultAllowedIPs; len(got) != 2 || got[1] != "192.168.5.0/24" {
		t.Errorf("default allowed ips: %v", got)
	}
	if cfg.Daemon.StoreDriver != StoreMemory {
		t.Errorf("store driver: %q", cfg.Daemon.StoreDriver)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	clearEnv(t)
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing explicit config file")
	}
}

func TestEngine_Placeholders(t *testing.T) {
	clearEnv(t)
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	ec, err := cfg.Engine(nil)
	if err != nil {
		t.Fatalf("Engine: %v", err)
	}
	if ec.ServerPublicKey != PlaceholderPublicKey || ec.ServerEndpoint != PlaceholderEndpoint {
		t.Errorf("expected placeholders, got %q %q", ec.ServerPublicKey, ec.ServerEndpoint)
	}
	if len(ec.DefaultAllowedIPs) != 1 || ec.DefaultAllowedIPs[0] != "10.77.0.0/16" {
		t.Errorf("default allowed ips: %v", ec.DefaultAllowedIPs)
	}
}

func TestEngine_ValidatesServerKey(t *testing.T) {
	clearEnv(t)
	key, err := wgtypes.GeneratePrivateKey()
	if err != nil {
		t.Fatal(err)
	}

	t.Setenv("WG_SERVER_PUBLIC_KEY", key.PublicKey().String())
	t.Setenv("WG_SERVER_ENDPOINT", "203.0.113.9:51820")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	ec, err := cfg.Engine(nil)
	if err != nil {
		t.Fatalf("Engine: %v", err)
	}
	if ec.ServerPublicKey != key.PublicKey().String() {
		t.Errorf("public key: got %q", ec.ServerPublicKey)
	}

	t.Setenv("WG_SERVER_PUBLIC_KEY", "not-a-key")
	cfg, err = Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, err := cfg.Engine(nil); err == nil {
		t.Fatal("expected error for malformed server key")
	}
}

func TestEngine_BadSubnet(t *testing.T) {
	clearEnv(t)
	t.Setenv("WG_SUBNET", "10.77.0.0")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, err := cfg.Engine(nil); err == nil {
		t.Fatal("expected error for subnet without prefix length")
	}
}

func TestTrustedPrefixes(t *testing.T) {
	cfg := Default()
	cfg.Trust.TrustedCIDRs = []string{"10.1.2.3/8", "127.0.0.1"}

	prefixes, err := cfg.TrustedPrefixes()
	if err != nil {
		t.Fatalf("TrustedPrefixes: %v", err)
	}
	if prefixes[0].String() != "10.0.0.0/8" || prefixes[1].String() != "127.0.0.1/32" {
		t.Errorf("unexpected prefixes %v", prefixes)
	}

	cfg.Trust.TrustedCIDRs = []string{"bogus"}
	if _, err := cfg.TrustedPrefixes(); err == nil {
		t.Fatal("expected error for bogus cidr")
	}
}
