package enroll

import (
	"fmt"
	"net"
	"net/netip"
	"slices"
	"strings"
)

// Config is the immutable server-side snapshot the engine renders and
// allocates from.
type Config struct {
	Subnet            netip.Prefix
	ServerIP          netip.Addr
	ServerPublicKey   string
	ServerEndpoint    string
	DNS               string
	Keepalive         int
	DefaultAllowedIPs []string
}

// Validate checks the snapshot and fills DefaultAllowedIPs with the subnet
// when empty.
func (c Config) Validate() (Config, error) {
	if !c.Subnet.IsValid() {
		return Config{}, invalid("subnet", "is required")
	}
	if !c.Subnet.Addr().Is4() {
		return Config{}, invalid("subnet", "must be an ipv4 cidr")
	}
	c.Subnet = c.Subnet.Masked()
	if !c.ServerIP.IsValid() {
		return Config{}, invalid("server_overlay_ip", "is required")
	}
	if strings.TrimSpace(c.ServerPublicKey) == "" {
		return Config{}, invalid("server_public_key", "is required")
	}
	if _, _, err := net.SplitHostPort(c.ServerEndpoint); err != nil {
		return Config{}, invalid("server_endpoint", fmt.Sprintf("must be host:port: %v", err))
	}
	if c.Keepalive < 0 {
		return Config{}, invalid("keepalive", "must not be negative")
	}
	if len(c.DefaultAllowedIPs) == 0 {
		c.DefaultAllowedIPs = []string{c.Subnet.String()}
	} else {
		c.DefaultAllowedIPs = slices.Clone(c.DefaultAllowedIPs)
	}
	if err := ValidateAllowedIPs(c.DefaultAllowedIPs); err != nil {
		return Config{}, fmt.Errorf("default allowed ips: %w", err)
	}
	return c, nil
}

func (c Config) clientConfig(overlayIP string) ClientConfig {
	return ClientConfig{
		OverlayIP:       overlayIP,
		ServerPublicKey: c.ServerPublicKey,
		ServerEndpoint:  c.ServerEndpoint,
		AllowedIPs:      slices.Clone(c.DefaultAllowedIPs),
		DNS:             c.DNS,
		Keepalive:       c.Keepalive,
	}
}
