package enroll

import "testing"

func TestRender(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cfg  ClientConfig
		want string
	}{
		{
			name: "with dns",
			cfg: ClientConfig{
				OverlayIP:       "10.77.0.2",
				ServerPublicKey: "SERVERKEY=",
				ServerEndpoint:  "vpn.example.com:51820",
				AllowedIPs:      []string{"10.77.0.0/16", "192.168.1.0/24"},
				DNS:             "10.77.0.10",
				Keepalive:       25,
			},
			want: "[Interface]\n" +
				"Address = 10.77.0.2/32\n" +
				"DNS = 10.77.0.10\n" +
				"\n" +
				"[Peer]\n" +
				"PublicKey = SERVERKEY=\n" +
				"Endpoint = vpn.example.com:51820\n" +
				"AllowedIPs = 10.77.0.0/16, 192.168.1.0/24\n" +
				"PersistentKeepalive = 25\n",
		},
		{
			name: "without dns",
			cfg: ClientConfig{
				OverlayIP:       "10.77.0.3",
				ServerPublicKey: "SERVERKEY=",
				ServerEndpoint:  "203.0.113.7:51820",
				AllowedIPs:      []string{"10.77.0.0/24"},
				Keepalive:       0,
			},
			want: "[Interface]\n" +
				"Address = 10.77.0.3/32\n" +
				"\n" +
				"[Peer]\n" +
				"PublicKey = SERVERKEY=\n" +
				"Endpoint = 203.0.113.7:51820\n" +
				"AllowedIPs = 10.77.0.0/24\n" +
				"PersistentKeepalive = 0\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Render(tt.cfg); got != tt.want {
				t.Errorf("Render() =\n%s\nwant\n%s", got, tt.want)
			}
		})
	}
}

func TestWithPrivateKey(t *testing.T) {
	t.Parallel()

	rendered := Render(ClientConfig{
		OverlayIP:       "10.77.0.2",
		ServerPublicKey: "SERVERKEY=",
		ServerEndpoint:  "vpn.example.com:51820",
		AllowedIPs:      []string{"10.77.0.0/16"},
		DNS:             "1.1.1.1",
		Keepalive:       25,
	})
	got := WithPrivateKey(rendered, "CLIENTPRIV=")
	want := "[Interface]\n" +
		"Address = 10.77.0.2/32\n" +
		"DNS = 1.1.1.1\n" +
		"PrivateKey = CLIENTPRIV=\n" +
		"\n" +
		"[Peer]\n" +
		"PublicKey = SERVERKEY=\n" +
		"Endpoint = vpn.example.com:51820\n" +
		"AllowedIPs = 10.77.0.0/16\n" +
		"PersistentKeepalive = 25\n"
	if got != want {
		t.Errorf("WithPrivateKey() =\n%s\nwant\n%s", got, want)
	}

	if got := WithPrivateKey("garbage", "KEY"); got != "garbage" {
		t.Errorf("expected non-config input unchanged, got %q", got)
	}
}
