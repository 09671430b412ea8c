package fake

import (
	"context"
	"fmt"
	"sync"
	"time"

	"wgenroll/internal/adapter/memory"
	"wgenroll/internal/enroll"
)

var _ enroll.Store = (*Store)(nil)

// Store wraps an in-memory enroll.Store with call recording and per-method
// failure injection. Failures apply both to direct calls and to calls made on
// the Tx handed out by InTx, so a failed write inside a transaction exercises
// the caller's rollback path.
type Store struct {
	CallRecorder
	inner enroll.Store

	mu     sync.Mutex
	once   map[string][]error
	always map[string]error
}

// NewStore returns a Store backed by a fresh memory store.
func NewStore() *Store {
	return WrapStore(memory.New(0))
}

// WrapStore decorates inner.
func WrapStore(inner enroll.Store) *Store {
	if inner == nil {
		panic("fake.WrapStore: inner store must not be nil")
	}
	return &Store{
		inner:  inner,
		once:   make(map[string][]error),
		always: make(map[string]error),
	}
}

// FailOnce makes the next call to method return err.
func (s *Store) FailOnce(method string, err error) {
	s.mu.Lock()
	s.once[method] = append(s.once[method], err)
	s.mu.Unlock()
}

// FailAlways makes every call to method return err until Clear.
func (s *Store) FailAlways(method string, err error) {
	s.mu.Lock()
	s.always[method] = err
	s.mu.Unlock()
}

// Clear removes every injected failure.
func (s *Store) Clear() {
	s.mu.Lock()
	s.once = make(map[string][]error)
	s.always = make(map[string]error)
	s.mu.Unlock()
}

func (s *Store) eval(method string, args ...any) error {
	s.record(method, args...)

	s.mu.Lock()
	defer s.mu.Unlock()
	if errs := s.once[method]; len(errs) > 0 {
		s.once[method] = errs[1:]
		return fmt.Errorf("fault %s (once): %w", method, errs[0])
	}
	if err := s.always[method]; err != nil {
		return fmt.Errorf("fault %s (always): %w", method, err)
	}
	return nil
}

func (s *Store) InTx(ctx context.Context, fn func(tx enroll.Tx) error) error {
	if err := s.eval("InTx"); err != nil {
		return err
	}
	return s.inner.InTx(ctx, func(tx enroll.Tx) error {
		return fn(faultTx{s: s, tx: tx})
	})
}

func (s *Store) Close() error {
	if err := s.eval("Close"); err != nil {
		return err
	}
	return s.inner.Close()
}

func (s *Store) SavePeer(ctx context.Context, p enroll.Peer) error {
	return faultTx{s: s, tx: s.inner}.SavePeer(ctx, p)
}

func (s *Store) GetPeer(ctx context.Context, id string) (enroll.Peer, bool, error) {
	return faultTx{s: s, tx: s.inner}.GetPeer(ctx, id)
}

func (s *Store) ListPeers(ctx context.Context) ([]enroll.Peer, error) {
	return faultTx{s: s, tx: s.inner}.ListPeers(ctx)
}

func (s *Store) RevokePeer(ctx context.Context, id string, at time.Time) (enroll.Peer, bool, error) {
	return faultTx{s: s, tx: s.inner}.RevokePeer(ctx, id, at)
}

func (s *Store) UpdatePeer(ctx context.Context, id string, patch enroll.PeerPatch) (enroll.Peer, bool, error) {
	return faultTx{s: s, tx: s.inner}.UpdatePeer(ctx, id, patch)
}

func (s *Store) FindPeerByUserDevice(ctx context.Context, userID, deviceID string) (enroll.Peer, bool, error) {
	return faultTx{s: s, tx: s.inner}.FindPeerByUserDevice(ctx, userID, deviceID)
}

func (s *Store) SaveInvite(ctx context.Context, inv enroll.Invite) error {
	return faultTx{s: s, tx: s.inner}.SaveInvite(ctx, inv)
}

func (s *Store) GetInvite(ctx context.Context, code string) (enroll.Invite, bool, error) {
	return faultTx{s: s, tx: s.inner}.GetInvite(ctx, code)
}

func (s *Store) ConsumeInvite(ctx context.Context, code string, now time.Time) (enroll.Invite, bool, error) {
	return faultTx{s: s, tx: s.inner}.ConsumeInvite(ctx, code, now)
}

func (s *Store) AppendAudit(ctx context.Context, ev enroll.AuditEvent) error {
	return faultTx{s: s, tx: s.inner}.AppendAudit(ctx, ev)
}

func (s *Store) ListAudit(ctx context.Context, limit int) ([]enroll.AuditEvent, error) {
	return faultTx{s: s, tx: s.inner}.ListAudit(ctx, limit)
}

type faultTx struct {
	s  *Store
	tx enroll.Tx
}

func (f faultTx) SavePeer(ctx context.Context, p enroll.Peer) error {
	if err := f.s.eval("SavePeer", p.ID); err != nil {
		return err
	}
	return f.tx.SavePeer(ctx, p)
}

func (f faultTx) GetPeer(ctx context.Context, id string) (enroll.Peer, bool, error) {
	if err := f.s.eval("GetPeer", id); err != nil {
		return enroll.Peer{}, false, err
	}
	return f.tx.GetPeer(ctx, id)
}

func (f faultTx) ListPeers(ctx context.Context) ([]enroll.Peer, error) {
	if err := f.s.eval("ListPeers"); err != nil {
		return nil, err
	}
	return f.tx.ListPeers(ctx)
}

func (f faultTx) RevokePeer(ctx context.Context, id string, at time.Time) (enroll.Peer, bool, error) {
	if err := f.s.eval("RevokePeer", id, at); err != nil {
		return enroll.Peer{}, false, err
	}
	return f.tx.RevokePeer(ctx, id, at)
}

func (f faultTx) UpdatePeer(ctx context.Context, id string, patch enroll.PeerPatch) (enroll.Peer, bool, error) {
	if err := f.s.eval("UpdatePeer", id, patch); err != nil {
		return enroll.Peer{}, false, err
	}
	return f.tx.UpdatePeer(ctx, id, patch)
}

func (f faultTx) FindPeerByUserDevice(ctx context.Context, userID, deviceID string) (enroll.Peer, bool, error) {
	if err := f.s.eval("FindPeerByUserDevice", userID, deviceID); err != nil {
		return enroll.Peer{}, false, err
	}
	return f.tx.FindPeerByUserDevice(ctx, userID, deviceID)
}

func (f faultTx) SaveInvite(ctx context.Context, inv enroll.Invite) error {
	if err := f.s.eval("SaveInvite", inv.UserID); err != nil {
		return err
	}
	return f.tx.SaveInvite(ctx, inv)
}

func (f faultTx) GetInvite(ctx context.Context, code string) (enroll.Invite, bool, error) {
	if err := f.s.eval("GetInvite"); err != nil {
		return enroll.Invite{}, false, err
	}
	return f.tx.GetInvite(ctx, code)
}

func (f faultTx) ConsumeInvite(ctx context.Context, code string, now time.Time) (enroll.Invite, bool, error) {
	if err := f.s.eval("ConsumeInvite", now); err != nil {
		return enroll.Invite{}, false, err
	}
	return f.tx.ConsumeInvite(ctx, code, now)
}

func (f faultTx) AppendAudit(ctx context.Context, ev enroll.AuditEvent) error {
	if err := f.s.eval("AppendAudit", ev.Action, ev.Subject); err != nil {
		return err
	}
	return f.tx.AppendAudit(ctx, ev)
}

func (f faultTx) ListAudit(ctx context.Context, limit int) ([]enroll.AuditEvent, error) {
	if err := f.s.eval("ListAudit", limit); err != nil {
		return nil, err
	}
	return f.tx.ListAudit(ctx, limit)
}
