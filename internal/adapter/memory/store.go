// Package memory is the reference in-memory implementation of enroll.Store.
package memory

import (
	"context"
	"maps"
	"sync"
	"time"

	"wgenroll/internal/enroll"
)

// DefaultAuditCapacity bounds the audit trail when no capacity is given.
const DefaultAuditCapacity = 5000

var (
	_ enroll.Store = (*Store)(nil)
	_ enroll.Tx    = (*journal)(nil)
)

// Store keeps every entity as an immutable value behind one mutex. Writes go
// to a journal that is folded into the committed state only on success, so a
// transaction costs what it touches rather than what the store holds.
type Store struct {
	mu sync.Mutex
	st *state
}

// New returns an empty store whose audit trail keeps at most auditCapacity
// events. A non-positive capacity selects DefaultAuditCapacity.
func New(auditCapacity int) *Store {
	if auditCapacity <= 0 {
		auditCapacity = DefaultAuditCapacity
	}
	return &Store{st: &state{
		peers:   make(map[string]enroll.Peer),
		invites: make(map[string]enroll.Invite),
		audit:   ring{capacity: auditCapacity},
	}}
}

// InTx runs fn against a journal over the committed state and applies the
// journal only when fn succeeds. The store lock is held throughout, so
// transactions are serialized with every other call.
func (s *Store) InTx(ctx context.Context, fn func(tx enroll.Tx) error) error {
	return s.do(func(j *journal) error { return fn(j) })
}

func (s *Store) do(fn func(j *journal) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j := &journal{base: s.st}
	if err := fn(j); err != nil {
		return err
	}
	s.st.apply(j)
	return nil
}

func (s *Store) Close() error { return nil }

func (s *Store) SavePeer(ctx context.Context, p enroll.Peer) error {
	return s.do(func(j *journal) error { return j.SavePeer(ctx, p) })
}

func (s *Store) GetPeer(ctx context.Context, id string) (p enroll.Peer, ok bool, err error) {
	err = s.do(func(j *journal) error {
		p, ok, err = j.GetPeer(ctx, id)
		return err
	})
	return p, ok, err
}

func (s *Store) ListPeers(ctx context.Context) (peers []enroll.Peer, err error) {
	err = s.do(func(j *journal) error {
		peers, err = j.ListPeers(ctx)
		return err
	})
	return peers, err
}

func (s *Store) RevokePeer(ctx context.Context, id string, at time.Time) (p enroll.Peer, ok bool, err error) {
	err = s.do(func(j *journal) error {
		p, ok, err = j.RevokePeer(ctx, id, at)
		return err
	})
	return p, ok, err
}

func (s *Store) UpdatePeer(ctx context.Context, id string, patch enroll.PeerPatch) (p enroll.Peer, ok bool, err error) {
	err = s.do(func(j *journal) error {
		p, ok, err = j.UpdatePeer(ctx, id, patch)
		return err
	})
	return p, ok, err
}

func (s *Store) FindPeerByUserDevice(ctx context.Context, userID, deviceID string) (p enroll.Peer, ok bool, err error) {
	err = s.do(func(j *journal) error {
		p, ok, err = j.FindPeerByUserDevice(ctx, userID, deviceID)
		return err
	})
	return p, ok, err
}

func (s *Store) SaveInvite(ctx context.Context, inv enroll.Invite) error {
	return s.do(func(j *journal) error { return j.SaveInvite(ctx, inv) })
}

func (s *Store) GetInvite(ctx context.Context, code string) (inv enroll.Invite, ok bool, err error) {
	err = s.do(func(j *journal) error {
		inv, ok, err = j.GetInvite(ctx, code)
		return err
	})
	return inv, ok, err
}

func (s *Store) ConsumeInvite(ctx context.Context, code string, now time.Time) (inv enroll.Invite, ok bool, err error) {
	err = s.do(func(j *journal) error {
		inv, ok, err = j.ConsumeInvite(ctx, code, now)
		return err
	})
	return inv, ok, err
}

func (s *Store) AppendAudit(ctx context.Context, ev enroll.AuditEvent) error {
	return s.do(func(j *journal) error { return j.AppendAudit(ctx, ev) })
}

func (s *Store) ListAudit(ctx context.Context, limit int) (events []enroll.AuditEvent, err error) {
	err = s.do(func(j *journal) error {
		events, err = j.ListAudit(ctx, limit)
		return err
	})
	return events, err
}

// state is the committed data. Stored values are never mutated in place.
type state struct {
	peers     map[string]enroll.Peer
	peerOrder []string
	invites   map[string]enroll.Invite
	audit     ring
}

func (st *state) apply(j *journal) {
	maps.Copy(st.peers, j.peers)
	st.peerOrder = append(st.peerOrder, j.newPeers...)
	maps.Copy(st.invites, j.invites)
	for _, rec := range j.audit {
		st.audit.push(rec)
	}
}

// journal records the writes of one transaction on top of base. Reads see
// the journal first.
type journal struct {
	base     *state
	peers    map[string]enroll.Peer
	newPeers []string
	invites  map[string]enroll.Invite
	audit    []auditRecord
}

func (j *journal) peer(id string) (enroll.Peer, bool) {
	if p, ok := j.peers[id]; ok {
		return p, true
	}
	p, ok := j.base.peers[id]
	return p, ok
}

func (j *journal) putPeer(p enroll.Peer) {
	if j.peers == nil {
		j.peers = make(map[string]enroll.Peer)
	}
	j.peers[p.ID] = p
}

// eachPeer visits peers in insertion order until fn returns false.
func (j *journal) eachPeer(fn func(enroll.Peer) bool) {
	for _, ids := range [][]string{j.base.peerOrder, j.newPeers} {
		for _, id := range ids {
			p, _ := j.peer(id)
			if !fn(p) {
				return
			}
		}
	}
}

func (j *journal) SavePeer(_ context.Context, p enroll.Peer) error {
	if _, exists := j.peer(p.ID); !exists {
		j.newPeers = append(j.newPeers, p.ID)
	}
	j.putPeer(p.Clone())
	return nil
}

func (j *journal) GetPeer(_ context.Context, id string) (enroll.Peer, bool, error) {
	p, ok := j.peer(id)
	if !ok {
		return enroll.Peer{}, false, nil
	}
	return p.Clone(), true, nil
}

func (j *journal) ListPeers(context.Context) ([]enroll.Peer, error) {
	out := make([]enroll.Peer, 0, len(j.base.peerOrder)+len(j.newPeers))
	j.eachPeer(func(p enroll.Peer) bool {
		out = append(out, p.Clone())
		return true
	})
	return out, nil
}

func (j *journal) RevokePeer(_ context.Context, id string, at time.Time) (enroll.Peer, bool, error) {
	p, ok := j.peer(id)
	if !ok {
		return enroll.Peer{}, false, nil
	}
	if !p.Active() {
		return p.Clone(), true, nil
	}
	if at.IsZero() {
		at = time.Now().UTC()
	}
	revoked := p.Clone()
	revoked.RevokedAt = &at
	j.putPeer(revoked)
	return revoked.Clone(), true, nil
}

func (j *journal) UpdatePeer(_ context.Context, id string, patch enroll.PeerPatch) (enroll.Peer, bool, error) {
	p, ok := j.peer(id)
	if !ok {
		return enroll.Peer{}, false, nil
	}
	updated := p.Apply(patch)
	j.putPeer(updated)
	return updated.Clone(), true, nil
}

func (j *journal) FindPeerByUserDevice(_ context.Context, userID, deviceID string) (enroll.Peer, bool, error) {
	var (
		active, latest enroll.Peer
		hasActive      bool
		found          bool
	)
	j.eachPeer(func(p enroll.Peer) bool {
		if p.UserID != userID || p.DeviceID != deviceID {
			return true
		}
		if p.Active() {
			active, hasActive = p, true
			return false
		}
		latest, found = p, true
		return true
	})
	switch {
	case hasActive:
		return active.Clone(), true, nil
	case found:
		return latest.Clone(), true, nil
	default:
		return enroll.Peer{}, false, nil
	}
}

func (j *journal) invite(code string) (enroll.Invite, bool) {
	if inv, ok := j.invites[code]; ok {
		return inv, true
	}
	inv, ok := j.base.invites[code]
	return inv, ok
}

func (j *journal) SaveInvite(_ context.Context, inv enroll.Invite) error {
	if j.invites == nil {
		j.invites = make(map[string]enroll.Invite)
	}
	j.invites[inv.Code] = copyInvite(inv)
	return nil
}

func (j *journal) GetInvite(_ context.Context, code string) (enroll.Invite, bool, error) {
	inv, ok := j.invite(code)
	if !ok {
		return enroll.Invite{}, false, nil
	}
	return copyInvite(inv), true, nil
}

func (j *journal) ConsumeInvite(ctx context.Context, code string, now time.Time) (enroll.Invite, bool, error) {
	inv, ok := j.invite(code)
	if !ok || !inv.Consumable(now) {
		return enroll.Invite{}, false, nil
	}
	usedAt := now
	inv.UsedAt = &usedAt
	if err := j.SaveInvite(ctx, inv); err != nil {
		return enroll.Invite{}, false, err
	}
	return copyInvite(inv), true, nil
}

func (j *journal) AppendAudit(_ context.Context, ev enroll.AuditEvent) error {
	raw, err := enroll.MarshalMeta(ev.Meta)
	if err != nil {
		return err
	}
	ev.Meta = nil
	j.audit = append(j.audit, auditRecord{event: ev, meta: raw})
	return nil
}

func (j *journal) ListAudit(_ context.Context, limit int) ([]enroll.AuditEvent, error) {
	if limit <= 0 {
		limit = enroll.DefaultAuditLimit
	}
	pending := j.audit
	if over := len(pending) - j.base.audit.capacity; over > 0 {
		pending = pending[over:]
	}
	committed := min(j.base.audit.len(), j.base.audit.capacity-len(pending))
	n := min(limit, len(pending)+committed)

	out := make([]enroll.AuditEvent, 0, n)
	add := func(rec auditRecord) error {
		ev := rec.event
		meta, err := enroll.UnmarshalMeta(rec.meta)
		if err != nil {
			return err
		}
		ev.Meta = meta
		out = append(out, ev)
		return nil
	}
	for i := len(pending) - 1; i >= 0 && len(out) < n; i-- {
		if err := add(pending[i]); err != nil {
			return nil, err
		}
	}
	for i := 0; len(out) < n; i++ {
		if err := add(j.base.audit.newest(i)); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// auditRecord keeps metadata encoded so reads return the same value types as
// the durable store.
type auditRecord struct {
	event enroll.AuditEvent
	meta  []byte
}

// ring is a bounded FIFO of audit records. Once full, each push overwrites
// the oldest record in place.
type ring struct {
	buf      []auditRecord
	start    int
	capacity int
}

func (r *ring) len() int { return len(r.buf) }

func (r *ring) push(rec auditRecord) {
	if len(r.buf) < r.capacity {
		r.buf = append(r.buf, rec)
		return
	}
	r.buf[r.start] = rec
	r.start = (r.start + 1) % r.capacity
}

// newest returns the i-th most recent record.
func (r *ring) newest(i int) auditRecord {
	return r.buf[(r.start+len(r.buf)-1-i)%len(r.buf)]
}

func copyInvite(inv enroll.Invite) enroll.Invite {
	if inv.UsedAt != nil {
		t := *inv.UsedAt
		inv.UsedAt = &t
	}
	return inv
}
