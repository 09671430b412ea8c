package keygencmd

import (
	"bytes"
	"strings"
	"testing"

	"golang.zx2c4.com/wireguard/wgctrl/wgtypes"
)

func TestGenerateProducesMatchingPair(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	if err := generate(&out, false); err != nil {
		t.Fatalf("generate: %v", err)
	}
	var priv, pub string
	for _, line := range strings.Split(strings.TrimSpace(out.String()), "\n") {
		key, value, _ := strings.Cut(line, ":")
		switch key {
		case "private_key":
			priv = strings.TrimSpace(value)
		case "public_key":
			pub = strings.TrimSpace(value)
		}
	}
	k, err := wgtypes.ParseKey(priv)
	if err != nil {
		t.Fatalf("ParseKey(private): %v", err)
	}
	if k.PublicKey().String() != pub {
		t.Fatalf("public key %q does not match private key", pub)
	}
}

func TestGeneratePublicOnly(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	if err := generate(&out, true); err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err := wgtypes.ParseKey(strings.TrimSpace(out.String())); err != nil {
		t.Fatalf("ParseKey: %v", err)
	}
}
