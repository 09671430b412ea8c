package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"wgenroll/internal/adapter/storetest"
	"wgenroll/internal/enroll"
)

func openTestStore(t *testing.T, auditCapacity int) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "test.db"), auditCapacity)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStoreContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T, auditCapacity int) enroll.Store {
		return openTestStore(t, auditCapacity)
	})
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "enroll.db")
	created := time.Date(2025, 3, 1, 12, 0, 0, 123456789, time.UTC)

	store, err := Open(path, 0)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	peer := enroll.Peer{
		ID:         "wg_persist",
		UserID:     "alice",
		DeviceID:   "laptop",
		OverlayIP:  "10.77.0.2",
		AllowedIPs: []string{"10.77.0.0/16"},
		PublicKey:  "pk",
		CreatedAt:  created,
		Tags:       map[string]string{enroll.TagDeviceID: "laptop"},
	}
	if err := store.SavePeer(ctx, peer); err != nil {
		t.Fatalf("SavePeer: %v", err)
	}
	if err := store.SaveInvite(ctx, enroll.Invite{
		Code:      "persisted-code",
		UserID:    "alice",
		CreatedAt: created,
		ExpiresAt: created.Add(15 * time.Minute),
	}); err != nil {
		t.Fatalf("SaveInvite: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := Open(path, 0)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	t.Cleanup(func() { reopened.Close() })

	got, ok, err := reopened.GetPeer(ctx, "wg_persist")
	if err != nil || !ok {
		t.Fatalf("GetPeer after reopen: ok=%v err=%v", ok, err)
	}
	if !got.CreatedAt.Equal(created) {
		t.Errorf("CreatedAt lost precision: got %v, want %v", got.CreatedAt, created)
	}
	if _, ok, err := reopened.ConsumeInvite(ctx, "persisted-code", created.Add(time.Minute)); err != nil || !ok {
		t.Errorf("ConsumeInvite after reopen: ok=%v err=%v", ok, err)
	}
}

func TestStore_NilAllowedIPsStoredEmpty(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t, 0)

	if err := store.SavePeer(ctx, enroll.Peer{ID: "wg_bare", UserID: "u", DeviceID: "d", OverlayIP: "10.77.0.2", PublicKey: "pk"}); err != nil {
		t.Fatalf("SavePeer: %v", err)
	}
	got, _, err := store.GetPeer(ctx, "wg_bare")
	if err != nil {
		t.Fatalf("GetPeer: %v", err)
	}
	if got.AllowedIPs == nil || got.Tags == nil {
		t.Errorf("expected empty non-nil collections, got %v %v", got.AllowedIPs, got.Tags)
	}
}
