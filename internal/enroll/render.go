package enroll

import (
	"strconv"
	"strings"
)

// ClientConfig holds everything rendered into a device's tunnel configuration.
type ClientConfig struct {
	OverlayIP       string
	ServerPublicKey string
	ServerEndpoint  string
	AllowedIPs      []string
	DNS             string
	Keepalive       int
}

// Render produces the [Interface]/[Peer] text block a client imports. Field
// order is fixed. The private key line is left for the client to add locally.
func Render(c ClientConfig) string {
	var b strings.Builder
	b.WriteString("[Interface]\n")
	b.WriteString("Address = " + c.OverlayIP + "/32\n")
	if c.DNS != "" {
		b.WriteString("DNS = " + c.DNS + "\n")
	}
	b.WriteString("\n")
	b.WriteString("[Peer]\n")
	b.WriteString("PublicKey = " + c.ServerPublicKey + "\n")
	b.WriteString("Endpoint = " + c.ServerEndpoint + "\n")
	b.WriteString("AllowedIPs = " + strings.Join(c.AllowedIPs, ", ") + "\n")
	b.WriteString("PersistentKeepalive = " + strconv.Itoa(c.Keepalive) + "\n")
	return b.String()
}

// WithPrivateKey inserts a PrivateKey line at the end of the [Interface]
// section of a rendered config. Only clients call this, with a key that never
// left the device.
func WithPrivateKey(rendered, privateKey string) string {
	const header = "[Interface]\n"
	if !strings.HasPrefix(rendered, header) {
		return rendered
	}
	rest := rendered[len(header):]
	end := strings.Index(rest, "\n\n")
	if end < 0 {
		end = len(rest)
	} else {
		end++
	}
	return header + rest[:end] + "PrivateKey = " + privateKey + "\n" + rest[end:]
}
