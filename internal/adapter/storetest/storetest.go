// Package storetest holds the behavioral contract every enroll.Store must
// satisfy. Adapter packages run it from their own tests.
package storetest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"

	"wgenroll/internal/enroll"
)

// Factory returns a fresh empty store whose audit trail holds at most
// auditCapacity events. The factory registers its own cleanup.
type Factory func(t *testing.T, auditCapacity int) enroll.Store

var base = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

// Run exercises the full contract against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("PeerRoundTrip", func(t *testing.T) { testPeerRoundTrip(t, newStore) })
	t.Run("ListPeersInsertionOrder", func(t *testing.T) { testListPeersOrder(t, newStore) })
	t.Run("RevokeOnce", func(t *testing.T) { testRevokeOnce(t, newStore) })
	t.Run("UpdatePeerPartial", func(t *testing.T) { testUpdatePeerPartial(t, newStore) })
	t.Run("FindPeerPrefersActive", func(t *testing.T) { testFindPeerPrefersActive(t, newStore) })
	t.Run("MissingEntities", func(t *testing.T) { testMissingEntities(t, newStore) })
	t.Run("ConsumeInviteOnce", func(t *testing.T) { testConsumeInviteOnce(t, newStore) })
	t.Run("ConsumeExpiredInvite", func(t *testing.T) { testConsumeExpiredInvite(t, newStore) })
	t.Run("ConcurrentConsume", func(t *testing.T) { testConcurrentConsume(t, newStore) })
	t.Run("AuditNewestFirst", func(t *testing.T) { testAuditNewestFirst(t, newStore) })
	t.Run("AuditCapacity", func(t *testing.T) { testAuditCapacity(t, newStore) })
	t.Run("AuditMetaValues", func(t *testing.T) { testAuditMetaValues(t, newStore) })
	t.Run("TxRollback", func(t *testing.T) { testTxRollback(t, newStore) })
	t.Run("TxCommit", func(t *testing.T) { testTxCommit(t, newStore) })
}

func samplePeer(id, user, device, ip string, seq int) enroll.Peer {
	return enroll.Peer{
		ID:         id,
		UserID:     user,
		DeviceID:   device,
		OverlayIP:  ip,
		AllowedIPs: []string{"10.77.0.0/16"},
		PublicKey:  "pk-" + id,
		CreatedAt:  base.Add(time.Duration(seq) * time.Second),
		Tags:       map[string]string{enroll.TagDeviceID: device},
	}
}

func testPeerRoundTrip(t *testing.T, newStore Factory) {
	ctx := context.Background()
	s := newStore(t, 0)

	want := samplePeer("wg_a", "alice", "laptop", "10.77.0.2", 0)
	want.Tags[enroll.TagPlatform] = "linux"
	if err := s.SavePeer(ctx, want); err != nil {
		t.Fatalf("SavePeer: %v", err)
	}

	got, ok, err := s.GetPeer(ctx, "wg_a")
	if err != nil {
		t.Fatalf("GetPeer: %v", err)
	}
	if !ok {
		t.Fatal("GetPeer returned ok=false for saved peer")
	}
	if got.UserID != want.UserID || got.DeviceID != want.DeviceID || got.OverlayIP != want.OverlayIP {
		t.Errorf("identity mismatch: got %+v", got)
	}
	if got.PublicKey != want.PublicKey {
		t.Errorf("PublicKey: got %q, want %q", got.PublicKey, want.PublicKey)
	}
	if !got.CreatedAt.Equal(want.CreatedAt) {
		t.Errorf("CreatedAt: got %v, want %v", got.CreatedAt, want.CreatedAt)
	}
	if got.RevokedAt != nil {
		t.Errorf("RevokedAt: got %v, want nil", got.RevokedAt)
	}
	if len(got.AllowedIPs) != 1 || got.AllowedIPs[0] != "10.77.0.0/16" {
		t.Errorf("AllowedIPs: got %v", got.AllowedIPs)
	}
	if got.Tags[enroll.TagPlatform] != "linux" || got.Tags[enroll.TagDeviceID] != "laptop" {
		t.Errorf("Tags: got %v", got.Tags)
	}

	// Mutating the returned value must not leak into the store.
	got.Tags[enroll.TagPlatform] = "mutated"
	got.AllowedIPs[0] = "0.0.0.0/0"
	again, _, err := s.GetPeer(ctx, "wg_a")
	if err != nil {
		t.Fatalf("GetPeer: %v", err)
	}
	if again.Tags[enroll.TagPlatform] != "linux" || again.AllowedIPs[0] != "10.77.0.0/16" {
		t.Errorf("store shared state with caller: %+v", again)
	}
}

func testListPeersOrder(t *testing.T, newStore Factory) {
	ctx := context.Background()
	s := newStore(t, 0)

	ids := []string{"wg_c", "wg_a", "wg_b"}
	for i, id := range ids {
		if err := s.SavePeer(ctx, samplePeer(id, "alice", "dev-"+id, fmt.Sprintf("10.77.0.%d", i+2), i)); err != nil {
			t.Fatalf("SavePeer(%s): %v", id, err)
		}
	}
	// Overwriting keeps the original position.
	if err := s.SavePeer(ctx, samplePeer("wg_c", "alice", "dev-wg_c", "10.77.0.9", 0)); err != nil {
		t.Fatalf("SavePeer overwrite: %v", err)
	}

	peers, err := s.ListPeers(ctx)
	if err != nil {
		t.Fatalf("ListPeers: %v", err)
	}
	if len(peers) != len(ids) {
		t.Fatalf("expected %d peers, got %d", len(ids), len(peers))
	}
	for i, id := range ids {
		if peers[i].ID != id {
			t.Errorf("peers[%d] = %s, want %s", i, peers[i].ID, id)
		}
	}
	if peers[0].OverlayIP != "10.77.0.9" {
		t.Errorf("overwrite not applied: %s", peers[0].OverlayIP)
	}
}

func testRevokeOnce(t *testing.T, newStore Factory) {
	ctx := context.Background()
	s := newStore(t, 0)

	if err := s.SavePeer(ctx, samplePeer("wg_a", "alice", "laptop", "10.77.0.2", 0)); err != nil {
		t.Fatalf("SavePeer: %v", err)
	}

	first := base.Add(time.Minute)
	p, ok, err := s.RevokePeer(ctx, "wg_a", first)
	if err != nil || !ok {
		t.Fatalf("RevokePeer: ok=%v err=%v", ok, err)
	}
	if p.RevokedAt == nil || !p.RevokedAt.Equal(first) {
		t.Fatalf("RevokedAt: got %v, want %v", p.RevokedAt, first)
	}

	p, ok, err = s.RevokePeer(ctx, "wg_a", first.Add(time.Hour))
	if err != nil || !ok {
		t.Fatalf("second RevokePeer: ok=%v err=%v", ok, err)
	}
	if !p.RevokedAt.Equal(first) {
		t.Errorf("second revoke moved RevokedAt to %v", p.RevokedAt)
	}
}

func testUpdatePeerPartial(t *testing.T, newStore Factory) {
	ctx := context.Background()
	s := newStore(t, 0)

	if err := s.SavePeer(ctx, samplePeer("wg_a", "alice", "laptop", "10.77.0.2", 0)); err != nil {
		t.Fatalf("SavePeer: %v", err)
	}

	allowed := []string{"10.77.0.0/16", "192.168.10.0/24"}
	p, ok, err := s.UpdatePeer(ctx, "wg_a", enroll.PeerPatch{AllowedIPs: &allowed})
	if err != nil || !ok {
		t.Fatalf("UpdatePeer: ok=%v err=%v", ok, err)
	}
	if len(p.AllowedIPs) != 2 || p.AllowedIPs[1] != "192.168.10.0/24" {
		t.Errorf("AllowedIPs: got %v", p.AllowedIPs)
	}
	if p.Tags[enroll.TagDeviceID] != "laptop" {
		t.Errorf("tags changed by allowed-ips patch: %v", p.Tags)
	}

	tags := map[string]string{"role": "ci"}
	p, _, err = s.UpdatePeer(ctx, "wg_a", enroll.PeerPatch{Tags: &tags})
	if err != nil {
		t.Fatalf("UpdatePeer tags: %v", err)
	}
	if len(p.Tags) != 1 || p.Tags["role"] != "ci" {
		t.Errorf("Tags: got %v", p.Tags)
	}
	if len(p.AllowedIPs) != 2 {
		t.Errorf("allowed ips changed by tags patch: %v", p.AllowedIPs)
	}

	empty := []string{}
	p, _, err = s.UpdatePeer(ctx, "wg_a", enroll.PeerPatch{AllowedIPs: &empty})
	if err != nil {
		t.Fatalf("UpdatePeer clear: %v", err)
	}
	if len(p.AllowedIPs) != 0 {
		t.Errorf("expected cleared allowed ips, got %v", p.AllowedIPs)
	}
}

func testFindPeerPrefersActive(t *testing.T, newStore Factory) {
	ctx := context.Background()
	s := newStore(t, 0)

	for i, id := range []string{"wg_old", "wg_newer", "wg_live"} {
		if err := s.SavePeer(ctx, samplePeer(id, "alice", "laptop", "10.77.0.2", i)); err != nil {
			t.Fatalf("SavePeer(%s): %v", id, err)
		}
	}
	if err := s.SavePeer(ctx, samplePeer("wg_other", "bob", "laptop", "10.77.0.3", 3)); err != nil {
		t.Fatalf("SavePeer: %v", err)
	}
	for _, id := range []string{"wg_old", "wg_newer"} {
		if _, _, err := s.RevokePeer(ctx, id, base.Add(time.Hour)); err != nil {
			t.Fatalf("RevokePeer(%s): %v", id, err)
		}
	}

	p, ok, err := s.FindPeerByUserDevice(ctx, "alice", "laptop")
	if err != nil || !ok {
		t.Fatalf("FindPeerByUserDevice: ok=%v err=%v", ok, err)
	}
	if p.ID != "wg_live" {
		t.Errorf("expected active peer wg_live, got %s", p.ID)
	}

	if _, _, err := s.RevokePeer(ctx, "wg_live", base.Add(2*time.Hour)); err != nil {
		t.Fatalf("RevokePeer: %v", err)
	}
	p, ok, err = s.FindPeerByUserDevice(ctx, "alice", "laptop")
	if err != nil || !ok {
		t.Fatalf("FindPeerByUserDevice: ok=%v err=%v", ok, err)
	}
	if p.ID != "wg_live" {
		t.Errorf("expected most recent revoked peer wg_live, got %s", p.ID)
	}

	if _, ok, err := s.FindPeerByUserDevice(ctx, "alice", "phone"); err != nil || ok {
		t.Errorf("unknown device: ok=%v err=%v", ok, err)
	}
}

func testMissingEntities(t *testing.T, newStore Factory) {
	ctx := context.Background()
	s := newStore(t, 0)

	if _, ok, err := s.GetPeer(ctx, "nope"); err != nil || ok {
		t.Errorf("GetPeer: ok=%v err=%v", ok, err)
	}
	if _, ok, err := s.RevokePeer(ctx, "nope", base); err != nil || ok {
		t.Errorf("RevokePeer: ok=%v err=%v", ok, err)
	}
	tags := map[string]string{}
	if _, ok, err := s.UpdatePeer(ctx, "nope", enroll.PeerPatch{Tags: &tags}); err != nil || ok {
		t.Errorf("UpdatePeer: ok=%v err=%v", ok, err)
	}
	if _, ok, err := s.GetInvite(ctx, "nope"); err != nil || ok {
		t.Errorf("GetInvite: ok=%v err=%v", ok, err)
	}
	if _, ok, err := s.ConsumeInvite(ctx, "nope", base); err != nil || ok {
		t.Errorf("ConsumeInvite: ok=%v err=%v", ok, err)
	}
	peers, err := s.ListPeers(ctx)
	if err != nil || len(peers) != 0 {
		t.Errorf("ListPeers: %v err=%v", peers, err)
	}
}

func saveInvite(t *testing.T, s enroll.Store, code string, ttl time.Duration) enroll.Invite {
	t.Helper()
	inv := enroll.Invite{
		Code:      code,
		UserID:    "alice",
		DeviceID:  "laptop",
		CreatedAt: base,
		ExpiresAt: base.Add(ttl),
	}
	if err := s.SaveInvite(context.Background(), inv); err != nil {
		t.Fatalf("SaveInvite: %v", err)
	}
	return inv
}

func testConsumeInviteOnce(t *testing.T, newStore Factory) {
	ctx := context.Background()
	s := newStore(t, 0)
	saveInvite(t, s, "code-once", 15*time.Minute)

	at := base.Add(time.Minute)
	inv, ok, err := s.ConsumeInvite(ctx, "code-once", at)
	if err != nil || !ok {
		t.Fatalf("ConsumeInvite: ok=%v err=%v", ok, err)
	}
	if inv.UsedAt == nil || !inv.UsedAt.Equal(at) {
		t.Errorf("UsedAt: got %v, want %v", inv.UsedAt, at)
	}
	if inv.UserID != "alice" || inv.DeviceID != "laptop" {
		t.Errorf("unexpected invite %+v", inv)
	}

	if _, ok, err := s.ConsumeInvite(ctx, "code-once", at); err != nil || ok {
		t.Errorf("second ConsumeInvite: ok=%v err=%v", ok, err)
	}
	stored, _, err := s.GetInvite(ctx, "code-once")
	if err != nil {
		t.Fatalf("GetInvite: %v", err)
	}
	if stored.UsedAt == nil || !stored.UsedAt.Equal(at) {
		t.Errorf("stored UsedAt: got %v", stored.UsedAt)
	}
}

func testConsumeExpiredInvite(t *testing.T, newStore Factory) {
	ctx := context.Background()
	s := newStore(t, 0)
	inv := saveInvite(t, s, "code-expired", time.Minute)

	if _, ok, err := s.ConsumeInvite(ctx, inv.Code, inv.ExpiresAt); err != nil || ok {
		t.Errorf("consume at expiry: ok=%v err=%v", ok, err)
	}
	stored, ok, err := s.GetInvite(ctx, inv.Code)
	if err != nil || !ok {
		t.Fatalf("GetInvite: ok=%v err=%v", ok, err)
	}
	if stored.UsedAt != nil {
		t.Errorf("expired invite was marked used at %v", stored.UsedAt)
	}
}

func testConcurrentConsume(t *testing.T, newStore Factory) {
	ctx := context.Background()
	s := newStore(t, 0)
	saveInvite(t, s, "code-race", 15*time.Minute)

	const callers = 16
	var wins atomic.Int32
	g, gctx := errgroup.WithContext(ctx)
	for range callers {
		g.Go(func() error {
			_, ok, err := s.ConsumeInvite(gctx, "code-race", base.Add(time.Second))
			if err != nil {
				return err
			}
			if ok {
				wins.Add(1)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("ConsumeInvite: %v", err)
	}
	if got := wins.Load(); got != 1 {
		t.Errorf("expected exactly one winner, got %d", got)
	}
}

func testAuditNewestFirst(t *testing.T, newStore Factory) {
	ctx := context.Background()
	s := newStore(t, 0)

	for i := range 5 {
		ev := enroll.AuditEvent{
			TS:          base.Add(time.Duration(i) * time.Second),
			ActorUserID: "admin",
			Action:      enroll.ActionPeerUpdate,
			Subject:     fmt.Sprintf("wg_%d", i),
			Meta:        map[string]any{"tags": true},
		}
		if err := s.AppendAudit(ctx, ev); err != nil {
			t.Fatalf("AppendAudit: %v", err)
		}
	}

	events, err := s.ListAudit(ctx, 3)
	if err != nil {
		t.Fatalf("ListAudit: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	for i, want := range []string{"wg_4", "wg_3", "wg_2"} {
		if events[i].Subject != want {
			t.Errorf("events[%d].Subject = %s, want %s", i, events[i].Subject, want)
		}
	}
	if !events[0].TS.Equal(base.Add(4 * time.Second)) {
		t.Errorf("TS: got %v", events[0].TS)
	}
	if events[0].Meta["tags"] != true {
		t.Errorf("Meta: got %v", events[0].Meta)
	}
}

func testAuditCapacity(t *testing.T, newStore Factory) {
	ctx := context.Background()
	s := newStore(t, 3)

	for i := range 5 {
		ev := enroll.AuditEvent{
			TS:      base.Add(time.Duration(i) * time.Second),
			Action:  enroll.ActionInviteCreate,
			Subject: fmt.Sprintf("ev-%d", i),
		}
		if err := s.AppendAudit(ctx, ev); err != nil {
			t.Fatalf("AppendAudit: %v", err)
		}
	}

	events, err := s.ListAudit(ctx, 100)
	if err != nil {
		t.Fatalf("ListAudit: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("expected capacity 3 to be kept, got %d", len(events))
	}
	if events[2].Subject != "ev-2" {
		t.Errorf("oldest kept event: got %s, want ev-2", events[2].Subject)
	}
}

// Metadata must come back with the same value types from every store.
func testAuditMetaValues(t *testing.T, newStore Factory) {
	ctx := context.Background()
	s := newStore(t, 0)

	withMeta := enroll.AuditEvent{
		TS:      base,
		Action:  enroll.ActionInviteCreate,
		Subject: "alice",
		Meta:    map[string]any{"ttl": 900, "device_id": "laptop", "tags": true},
	}
	bare := enroll.AuditEvent{TS: base.Add(time.Second), Action: enroll.ActionPeerRevoke, Subject: "wg_a"}
	for _, ev := range []enroll.AuditEvent{withMeta, bare} {
		if err := s.AppendAudit(ctx, ev); err != nil {
			t.Fatalf("AppendAudit: %v", err)
		}
	}

	events, err := s.ListAudit(ctx, 10)
	if err != nil {
		t.Fatalf("ListAudit: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Meta == nil || len(events[0].Meta) != 0 {
		t.Errorf("nil meta: got %#v, want empty map", events[0].Meta)
	}
	meta := events[1].Meta
	if got, ok := meta["ttl"].(json.Number); !ok || got != "900" {
		t.Errorf("ttl: got %#v (%T), want json.Number 900", meta["ttl"], meta["ttl"])
	}
	if meta["device_id"] != "laptop" || meta["tags"] != true {
		t.Errorf("meta: got %#v", meta)
	}
}

var errAbort = errors.New("abort")

func testTxRollback(t *testing.T, newStore Factory) {
	ctx := context.Background()
	s := newStore(t, 0)
	saveInvite(t, s, "code-tx", 15*time.Minute)

	err := s.InTx(ctx, func(tx enroll.Tx) error {
		if _, ok, err := tx.ConsumeInvite(ctx, "code-tx", base.Add(time.Second)); err != nil || !ok {
			return fmt.Errorf("consume: ok=%v err=%v", ok, err)
		}
		if err := tx.SavePeer(ctx, samplePeer("wg_tx", "alice", "laptop", "10.77.0.2", 0)); err != nil {
			return err
		}
		if err := tx.AppendAudit(ctx, enroll.AuditEvent{TS: base, Action: enroll.ActionEnroll}); err != nil {
			return err
		}
		return errAbort
	})
	if !errors.Is(err, errAbort) {
		t.Fatalf("InTx: expected errAbort, got %v", err)
	}

	inv, _, err := s.GetInvite(ctx, "code-tx")
	if err != nil {
		t.Fatalf("GetInvite: %v", err)
	}
	if inv.UsedAt != nil {
		t.Error("invite consumption survived rollback")
	}
	if _, ok, _ := s.GetPeer(ctx, "wg_tx"); ok {
		t.Error("peer write survived rollback")
	}
	if events, _ := s.ListAudit(ctx, 10); len(events) != 0 {
		t.Errorf("audit write survived rollback: %v", events)
	}
}

func testTxCommit(t *testing.T, newStore Factory) {
	ctx := context.Background()
	s := newStore(t, 0)

	err := s.InTx(ctx, func(tx enroll.Tx) error {
		if err := tx.SavePeer(ctx, samplePeer("wg_tx", "alice", "laptop", "10.77.0.2", 0)); err != nil {
			return err
		}
		// Reads inside the transaction see its own writes.
		if _, ok, err := tx.GetPeer(ctx, "wg_tx"); err != nil || !ok {
			return fmt.Errorf("read own write: ok=%v err=%v", ok, err)
		}
		return tx.AppendAudit(ctx, enroll.AuditEvent{TS: base, Action: enroll.ActionEnroll, Subject: "wg_tx"})
	})
	if err != nil {
		t.Fatalf("InTx: %v", err)
	}
	if _, ok, _ := s.GetPeer(ctx, "wg_tx"); !ok {
		t.Error("committed peer missing")
	}
	events, err := s.ListAudit(ctx, 10)
	if err != nil || len(events) != 1 {
		t.Errorf("ListAudit: %v err=%v", events, err)
	}
}
