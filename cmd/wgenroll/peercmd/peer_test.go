package peercmd

import (
	"testing"
	"time"

	"wgenroll/internal/enroll"
)

func TestBuildPatch(t *testing.T) {
	t.Parallel()

	p := buildPatch(false, nil, false, nil)
	if p.AllowedIPs != nil || p.Tags != nil {
		t.Fatalf("unset flags must leave the patch empty: %+v", p)
	}

	p = buildPatch(true, []string{" 10.0.0.0/8 ", "", "192.168.1.1"}, false, nil)
	if p.AllowedIPs == nil || len(*p.AllowedIPs) != 2 || (*p.AllowedIPs)[0] != "10.0.0.0/8" {
		t.Fatalf("allowed ips = %v", p.AllowedIPs)
	}

	p = buildPatch(false, nil, true, nil)
	if p.Tags == nil || len(*p.Tags) != 0 {
		t.Fatalf("explicit empty tags must clear: %v", p.Tags)
	}
}

func TestFormatTagsSorted(t *testing.T) {
	t.Parallel()

	if got := formatTags(map[string]string{"team": "infra", "device_id": "laptop"}); got != "device_id=laptop,team=infra" {
		t.Fatalf("formatTags = %q", got)
	}
	if got := formatTags(nil); got != "-" {
		t.Fatalf("formatTags(nil) = %q", got)
	}
}

func TestPeerRows(t *testing.T) {
	t.Parallel()

	revoked := time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC)
	rows := peerRows([]enroll.Peer{
		{ID: "wg_a", UserID: "alice", DeviceID: "laptop", OverlayIP: "10.77.0.2"},
		{ID: "wg_b", UserID: "bob", DeviceID: "phone", OverlayIP: "10.77.0.3", RevokedAt: &revoked},
	})
	if len(rows) != 2 || len(rows[0]) != 7 {
		t.Fatalf("unexpected rows %v", rows)
	}
	if rows[1][0] != "wg_b" || rows[1][3] != "10.77.0.3" {
		t.Fatalf("unexpected row %v", rows[1])
	}
}
