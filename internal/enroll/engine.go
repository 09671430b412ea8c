package enroll

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	tracerName        = "wgenroll/internal/enroll"
	DefaultAuditLimit = 200
)

// Engine enforces invite validity, enrolls devices idempotently, allocates
// overlay addresses, and mediates peer administration. It holds no entity
// state of its own; every call reads and writes through the Store.
//
// State-changing calls are serialized by one mutex and each runs inside a
// single Store transaction, so an operation's invite consumption, peer write
// and audit entry commit together or not at all.
type Engine struct {
	cfg    Config
	store  Store
	clock  Clock
	log    *slog.Logger
	tracer trace.Tracer

	mu        sync.Mutex
	lastAudit time.Time
}

type Option func(*Engine)

func WithClock(c Clock) Option {
	return func(e *Engine) { e.clock = c }
}

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) { e.tracer = t }
}

// New validates cfg and returns an engine bound to store.
func New(ctx context.Context, cfg Config, store Store, opts ...Option) (*Engine, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	valid, err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validate engine config: %w", err)
	}

	e := &Engine{
		cfg:    valid,
		store:  store,
		clock:  systemClock{},
		log:    slog.Default(),
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.log = e.log.With("component", "enroll")

	latest, err := store.ListAudit(ctx, 1)
	if err != nil {
		return nil, fmt.Errorf("read latest audit event: %w", err)
	}
	if len(latest) > 0 {
		e.lastAudit = latest[0].TS
	}
	return e, nil
}

// Config returns the engine's configuration snapshot.
func (e *Engine) Config() Config {
	return e.cfg
}

// CreateInvite issues a single-use invite for req.UserID, optionally bound to
// one device.
func (e *Engine) CreateInvite(ctx context.Context, req InviteRequest) (inv Invite, err error) {
	ctx, span := e.startSpan(ctx, "enroll.CreateInvite", attribute.String("user_id", req.UserID))
	defer func() { endSpan(span, err) }()

	if err := req.validate(); err != nil {
		return Invite{}, err
	}
	code, err := newInviteCode()
	if err != nil {
		return Invite{}, err
	}
	actor := strings.TrimSpace(req.ActorUserID)
	if actor == "" {
		actor = strings.TrimSpace(req.UserID)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clock.Now()
	inv = Invite{
		Code:      code,
		UserID:    strings.TrimSpace(req.UserID),
		DeviceID:  strings.TrimSpace(req.DeviceID),
		CreatedAt: now,
		ExpiresAt: now.Add(req.TTL),
	}

	err = e.store.InTx(ctx, func(tx Tx) error {
		if err := tx.SaveInvite(ctx, inv); err != nil {
			return fmt.Errorf("save invite: %w", err)
		}
		return e.audit(ctx, tx, AuditEvent{
			ActorUserID: actor,
			Action:      ActionInviteCreate,
			Subject:     inv.Code,
			Meta: map[string]any{
				"device_id": inv.DeviceID,
				"ttl":       int(req.TTL / time.Second),
			},
		})
	})
	if err != nil {
		return Invite{}, err
	}

	e.log.Info("invite created", "user_id", inv.UserID, "device_bound", inv.DeviceID != "", "expires_at", inv.ExpiresAt)
	return inv, nil
}

// Enroll consumes an invite and returns the device's peer assignment and
// rendered client configuration. Re-enrolling a device that already has an
// active peer returns that peer unchanged.
func (e *Engine) Enroll(ctx context.Context, req EnrollRequest) (res EnrollResult, err error) {
	ctx, span := e.startSpan(ctx, "enroll.Enroll", attribute.String("device_id", req.Device.DeviceID))
	defer func() { endSpan(span, err) }()

	if err := req.validate(); err != nil {
		return EnrollResult{}, err
	}
	code := strings.TrimSpace(req.InviteCode)
	if !wellFormedCode(code) {
		return EnrollResult{}, ErrInvalidInvite
	}
	device := req.Device
	device.DeviceID = strings.TrimSpace(device.DeviceID)
	publicKey := strings.TrimSpace(req.ClientPublicKey)

	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clock.Now()
	err = e.store.InTx(ctx, func(tx Tx) error {
		inv, ok, err := tx.ConsumeInvite(ctx, code, now)
		if err != nil {
			return fmt.Errorf("consume invite: %w", err)
		}
		if !ok {
			return ErrInvalidInvite
		}
		if inv.DeviceID != "" && inv.DeviceID != device.DeviceID {
			return ErrDeviceMismatch
		}

		existing, found, err := tx.FindPeerByUserDevice(ctx, inv.UserID, device.DeviceID)
		if err != nil {
			return fmt.Errorf("find existing peer: %w", err)
		}
		if found && existing.Active() {
			res = e.result(existing, true)
			return e.audit(ctx, tx, AuditEvent{
				ActorUserID: req.ActorUserID,
				Action:      ActionEnrollReuse,
				Subject:     existing.ID,
				Meta: map[string]any{
					"user_id":   inv.UserID,
					"device_id": device.DeviceID,
				},
			})
		}

		if publicKey == "" {
			return ErrMissingPublicKey
		}
		addr, err := e.allocateOverlayIP(ctx, tx)
		if err != nil {
			return err
		}
		peerID, err := newPeerID()
		if err != nil {
			return err
		}

		peer := Peer{
			ID:         peerID,
			UserID:     inv.UserID,
			DeviceID:   device.DeviceID,
			OverlayIP:  addr.String(),
			AllowedIPs: append([]string(nil), e.cfg.DefaultAllowedIPs...),
			PublicKey:  publicKey,
			CreatedAt:  now,
			Tags:       device.Tags(),
		}
		if err := tx.SavePeer(ctx, peer); err != nil {
			return fmt.Errorf("save peer: %w", err)
		}
		res = e.result(peer, false)
		return e.audit(ctx, tx, AuditEvent{
			ActorUserID: req.ActorUserID,
			Action:      ActionEnroll,
			Subject:     peer.ID,
			Meta: map[string]any{
				"user_id":    inv.UserID,
				"device_id":  device.DeviceID,
				"overlay_ip": peer.OverlayIP,
			},
		})
	})
	if err != nil {
		e.log.Debug("enrollment rejected", "device_id", device.DeviceID, "err", err)
		return EnrollResult{}, err
	}

	e.log.Info("device enrolled", "peer_id", res.PeerID, "device_id", device.DeviceID, "overlay_ip", res.OverlayIP, "reused", res.Reused)
	return res, nil
}

// ListPeers returns every stored peer, revoked ones included.
func (e *Engine) ListPeers(ctx context.Context) (peers []Peer, err error) {
	ctx, span := e.startSpan(ctx, "enroll.ListPeers")
	defer func() { endSpan(span, err) }()

	peers, err = e.store.ListPeers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list peers: %w", err)
	}
	return peers, nil
}

// RevokePeer marks a peer revoked. Revoking twice returns the peer unchanged.
func (e *Engine) RevokePeer(ctx context.Context, actorUserID, peerID string) (peer Peer, err error) {
	ctx, span := e.startSpan(ctx, "enroll.RevokePeer", attribute.String("peer_id", peerID))
	defer func() { endSpan(span, err) }()

	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clock.Now()
	err = e.store.InTx(ctx, func(tx Tx) error {
		p, ok, err := tx.RevokePeer(ctx, peerID, now)
		if err != nil {
			return fmt.Errorf("revoke peer: %w", err)
		}
		if !ok {
			return fmt.Errorf("%w: %s", ErrNotFound, peerID)
		}
		peer = p
		return e.audit(ctx, tx, AuditEvent{
			ActorUserID: actorUserID,
			Action:      ActionPeerRevoke,
			Subject:     peerID,
			Meta:        map[string]any{},
		})
	})
	if err != nil {
		return Peer{}, err
	}

	e.log.Info("peer revoked", "peer_id", peerID, "actor", actorUserID, "revoked_at", peer.RevokedAt)
	return peer, nil
}

// UpdatePeer replaces the provided attributes of a peer. Every allowed-IP
// entry is validated before anything is written.
func (e *Engine) UpdatePeer(ctx context.Context, actorUserID, peerID string, patch PeerPatch) (peer Peer, err error) {
	ctx, span := e.startSpan(ctx, "enroll.UpdatePeer", attribute.String("peer_id", peerID))
	defer func() { endSpan(span, err) }()

	if patch.AllowedIPs != nil {
		if err := ValidateAllowedIPs(*patch.AllowedIPs); err != nil {
			return Peer{}, err
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	err = e.store.InTx(ctx, func(tx Tx) error {
		p, ok, err := tx.UpdatePeer(ctx, peerID, patch)
		if err != nil {
			return fmt.Errorf("update peer: %w", err)
		}
		if !ok {
			return fmt.Errorf("%w: %s", ErrNotFound, peerID)
		}
		peer = p
		return e.audit(ctx, tx, AuditEvent{
			ActorUserID: actorUserID,
			Action:      ActionPeerUpdate,
			Subject:     peerID,
			Meta: map[string]any{
				"allowed_ips": patch.AllowedIPs != nil,
				"tags":        patch.Tags != nil,
			},
		})
	})
	if err != nil {
		return Peer{}, err
	}

	e.log.Info("peer updated", "peer_id", peerID, "actor", actorUserID)
	return peer, nil
}

// StatusForPeer derives connection status from stored revocation state only.
func (e *Engine) StatusForPeer(p *Peer) Status {
	st := Status{ServerEndpoint: e.cfg.ServerEndpoint}
	if p == nil {
		return st
	}
	st.Connected = p.Active()
	st.OverlayIP = p.OverlayIP
	return st
}

// StatusFor reports the status of the user's first active peer.
func (e *Engine) StatusFor(ctx context.Context, userID string) (Status, error) {
	p, err := e.PeerForUser(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return e.StatusForPeer(nil), nil
		}
		return Status{}, err
	}
	return e.StatusForPeer(&p), nil
}

// PeerForUser returns the user's first active peer in insertion order.
func (e *Engine) PeerForUser(ctx context.Context, userID string) (Peer, error) {
	peers, err := e.ListPeers(ctx)
	if err != nil {
		return Peer{}, err
	}
	for _, p := range peers {
		if p.UserID == userID && p.Active() {
			return p, nil
		}
	}
	return Peer{}, fmt.Errorf("%w: no active peer for user %q", ErrNotFound, userID)
}

// ListAudit returns up to limit audit events, most recent first.
func (e *Engine) ListAudit(ctx context.Context, limit int) ([]AuditEvent, error) {
	if limit <= 0 {
		limit = DefaultAuditLimit
	}
	events, err := e.store.ListAudit(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list audit: %w", err)
	}
	return events, nil
}

func (e *Engine) result(p Peer, reused bool) EnrollResult {
	return EnrollResult{
		PeerID:         p.ID,
		OverlayIP:      p.OverlayIP,
		ClientConfig:   Render(e.cfg.clientConfig(p.OverlayIP)),
		ServerEndpoint: e.cfg.ServerEndpoint,
		Reused:         reused,
	}
}

// audit stamps ev and appends it inside tx. Must be called with e.mu held.
// Timestamps never go backwards even if the clock does.
func (e *Engine) audit(ctx context.Context, tx Tx, ev AuditEvent) error {
	ts := e.clock.Now()
	if ts.Before(e.lastAudit) {
		ts = e.lastAudit
	}
	ev.TS = ts
	if err := tx.AppendAudit(ctx, ev); err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}
	e.lastAudit = ts
	return nil
}

func (e *Engine) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return e.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, strings.TrimSpace(err.Error()))
	}
	span.End()
}
