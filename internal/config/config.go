// Package config loads the daemon configuration.
//
// Values come from built-in defaults, then an optional YAML file, then
// environment variables. Later sources override earlier ones field by field.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"golang.zx2c4.com/wireguard/wgctrl/wgtypes"
	"gopkg.in/yaml.v3"

	"wgenroll/internal/enroll"
)

const (
	PlaceholderPublicKey = "CHANGE_ME"
	PlaceholderEndpoint  = "YOUR_STATIC_IP:51820"

	StoreSQLite = "sqlite"
	StoreMemory = "memory"
)

// DefaultTrustedCIDRs are the private ranges trusted when none are configured.
var DefaultTrustedCIDRs = []string{"10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16"}

// Network is the tunnel server the daemon enrolls devices into.
type Network struct {
	Subnet            string   `yaml:"subnet" env:"WG_SUBNET"`
	ServerOverlayIP   string   `yaml:"server_overlay_ip" env:"WG_SERVER_OVERLAY_IP"`
	ServerPublicKey   string   `yaml:"server_public_key" env:"WG_SERVER_PUBLIC_KEY"`
	ServerEndpoint    string   `yaml:"server_endpoint" env:"WG_SERVER_ENDPOINT"`
	DNS               string   `yaml:"dns" env:"WG_DNS"`
	Keepalive         int      `yaml:"keepalive" env:"WG_KEEPALIVE"`
	DefaultAllowedIPs []string `yaml:"default_allowed_ips" env:"WG_DEFAULT_ALLOWED_IPS" envSeparator:","`
}

// Trust controls which callers may reach the enrollment API over TCP.
type Trust struct {
	TrustedCIDRs []string `yaml:"trusted_cidrs" env:"NETWORK_TRUSTED_CIDRS" envSeparator:","`
	TrustProxy   bool     `yaml:"trust_proxy" env:"NETWORK_TRUST_PROXY"`
}

// Daemon holds process-level settings.
type Daemon struct {
	Socket        string `yaml:"socket" env:"WGENROLL_SOCKET"`
	ListenAddr    string `yaml:"listen_addr" env:"WGENROLL_LISTEN"`
	StoreDriver   string `yaml:"store_driver" env:"WGENROLL_STORE_DRIVER"`
	StorePath     string `yaml:"store_path" env:"WGENROLL_STORE_PATH"`
	AuditCapacity int    `yaml:"audit_capacity" env:"WGENROLL_AUDIT_CAPACITY"`
	LogLevel      string `yaml:"log_level" env:"WGENROLL_LOG_LEVEL"`
	LogFormat     string `yaml:"log_format" env:"WGENROLL_LOG_FORMAT"`
	OTelEndpoint  string `yaml:"otel_endpoint" env:"WGENROLL_OTEL_ENDPOINT"`
}

// Config is the full daemon configuration.
type Config struct {
	Network Network `yaml:"network"`
	Trust   Trust   `yaml:"trust"`
	Daemon  Daemon  `yaml:"daemon"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Network: Network{
			Subnet:          "10.77.0.0/16",
			ServerOverlayIP: "10.77.0.10",
			Keepalive:       25,
		},
		Trust: Trust{
			TrustedCIDRs: append([]string(nil), DefaultTrustedCIDRs...),
		},
		Daemon: Daemon{
			Socket:        DefaultSocketPath(),
			StoreDriver:   StoreSQLite,
			StorePath:     DefaultStorePath(),
			AuditCapacity: 5000,
			LogLevel:      "info",
			LogFormat:     "text",
		},
	}
}

// Load builds a Config from defaults, the YAML file at path (skipped when
// path is empty), and the environment.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.normalize()
	return cfg, nil
}

func (c *Config) normalize() {
	c.Network.ServerPublicKey = strings.TrimSpace(c.Network.ServerPublicKey)
	c.Network.ServerEndpoint = strings.TrimSpace(c.Network.ServerEndpoint)
	c.Network.DNS = strings.TrimSpace(c.Network.DNS)
	c.Network.DefaultAllowedIPs = trimAll(c.Network.DefaultAllowedIPs)
	c.Trust.TrustedCIDRs = trimAll(c.Trust.TrustedCIDRs)
	if len(c.Trust.TrustedCIDRs) == 0 {
		c.Trust.TrustedCIDRs = append([]string(nil), DefaultTrustedCIDRs...)
	}
	c.Daemon.StoreDriver = strings.ToLower(strings.TrimSpace(c.Daemon.StoreDriver))
}

// Engine converts the network section into an engine configuration. A missing
// server key or endpoint is replaced with a placeholder and logged, so the
// daemon still starts but hands out configs the operator must fix.
func (c Config) Engine(log *slog.Logger) (enroll.Config, error) {
	if log == nil {
		log = slog.Default()
	}
	n := c.Network

	subnet, err := netip.ParsePrefix(strings.TrimSpace(n.Subnet))
	if err != nil {
		return enroll.Config{}, fmt.Errorf("parse subnet %q: %w", n.Subnet, err)
	}
	serverIP, err := netip.ParseAddr(strings.TrimSpace(n.ServerOverlayIP))
	if err != nil {
		return enroll.Config{}, fmt.Errorf("parse server overlay ip %q: %w", n.ServerOverlayIP, err)
	}
	if !subnet.Masked().Contains(serverIP) {
		log.Warn("server overlay ip is outside the subnet", "subnet", subnet, "server_overlay_ip", serverIP)
	}

	publicKey := n.ServerPublicKey
	endpoint := n.ServerEndpoint
	if publicKey == "" || endpoint == "" {
		log.Warn("tunnel server incomplete, enrollment returns placeholder configs",
			"missing_public_key", publicKey == "", "missing_endpoint", endpoint == "")
	}
	if publicKey == "" {
		publicKey = PlaceholderPublicKey
	} else if _, err := wgtypes.ParseKey(publicKey); err != nil {
		return enroll.Config{}, fmt.Errorf("parse server public key: %w", err)
	}
	if endpoint == "" {
		endpoint = PlaceholderEndpoint
	}

	out := enroll.Config{
		Subnet:            subnet,
		ServerIP:          serverIP,
		ServerPublicKey:   publicKey,
		ServerEndpoint:    endpoint,
		DNS:               n.DNS,
		Keepalive:         n.Keepalive,
		DefaultAllowedIPs: n.DefaultAllowedIPs,
	}
	return out.Validate()
}

// TrustedPrefixes parses the trusted CIDR list. Bare addresses are accepted
// as single-host prefixes and host bits are ignored.
func (c Config) TrustedPrefixes() ([]netip.Prefix, error) {
	out := make([]netip.Prefix, 0, len(c.Trust.TrustedCIDRs))
	var errs []error
	for _, raw := range c.Trust.TrustedCIDRs {
		p, err := parsePrefix(raw)
		if err != nil {
			errs = append(errs, fmt.Errorf("trusted cidr %q: %w", raw, err))
			continue
		}
		out = append(out, p)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return out, nil
}

func parsePrefix(s string) (netip.Prefix, error) {
	if strings.Contains(s, "/") {
		p, err := netip.ParsePrefix(s)
		if err != nil {
			return netip.Prefix{}, err
		}
		return p.Masked(), nil
	}
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Prefix{}, err
	}
	return netip.PrefixFrom(addr, addr.BitLen()), nil
}

func trimAll(in []string) []string {
	out := in[:0:0]
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
