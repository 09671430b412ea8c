package memory

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"testing"
	"time"

	"wgenroll/internal/adapter/storetest"
	"wgenroll/internal/enroll"
)

func TestStoreContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T, auditCapacity int) enroll.Store {
		return New(auditCapacity)
	})
}

func TestStore_AuditRingAcrossTransaction(t *testing.T) {
	ctx := context.Background()
	s := New(3)
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	appendEv := func(tx enroll.Tx, i int) error {
		return tx.AppendAudit(ctx, enroll.AuditEvent{
			TS:      base.Add(time.Duration(i) * time.Second),
			Action:  enroll.ActionInviteCreate,
			Subject: fmt.Sprintf("ev-%d", i),
		})
	}
	for i := range 4 {
		if err := s.InTx(ctx, func(tx enroll.Tx) error { return appendEv(tx, i) }); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	var inside []enroll.AuditEvent
	err := s.InTx(ctx, func(tx enroll.Tx) error {
		if err := appendEv(tx, 4); err != nil {
			return err
		}
		var err error
		inside, err = tx.ListAudit(ctx, 10)
		return err
	})
	if err != nil {
		t.Fatalf("InTx: %v", err)
	}

	outside, err := s.ListAudit(ctx, 10)
	if err != nil {
		t.Fatalf("ListAudit: %v", err)
	}
	for name, events := range map[string][]enroll.AuditEvent{"inside": inside, "outside": outside} {
		var got []string
		for _, ev := range events {
			got = append(got, ev.Subject)
		}
		if want := []string{"ev-4", "ev-3", "ev-2"}; !slices.Equal(got, want) {
			t.Errorf("%s: got %v, want %v", name, got, want)
		}
	}
}

func TestStore_RollbackLeavesCommittedInvites(t *testing.T) {
	ctx := context.Background()
	s := New(0)
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := range 50 {
		inv := enroll.Invite{Code: fmt.Sprintf("code-%02d", i), UserID: "alice", CreatedAt: now, ExpiresAt: now.Add(time.Hour)}
		if err := s.SaveInvite(ctx, inv); err != nil {
			t.Fatalf("SaveInvite: %v", err)
		}
	}

	errAbort := errors.New("abort")
	err := s.InTx(ctx, func(tx enroll.Tx) error {
		if _, ok, err := tx.ConsumeInvite(ctx, "code-07", now); err != nil || !ok {
			t.Fatalf("ConsumeInvite: ok=%v err=%v", ok, err)
		}
		if _, ok, _ := tx.ConsumeInvite(ctx, "code-07", now); ok {
			t.Fatal("invite consumed twice inside one transaction")
		}
		return errAbort
	})
	if !errors.Is(err, errAbort) {
		t.Fatalf("InTx: got %v", err)
	}

	inv, ok, err := s.GetInvite(ctx, "code-07")
	if err != nil || !ok {
		t.Fatalf("GetInvite: ok=%v err=%v", ok, err)
	}
	if inv.UsedAt != nil {
		t.Error("rolled back consumption is visible")
	}
}
