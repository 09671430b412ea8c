package enroll

import (
	"context"
	"time"
)

// Tx is the storage surface the engine reads and writes through. Lookups
// report a missing entity with ok == false rather than an error.
type Tx interface {
	SavePeer(ctx context.Context, p Peer) error
	GetPeer(ctx context.Context, id string) (Peer, bool, error)
	ListPeers(ctx context.Context) ([]Peer, error)
	// RevokePeer sets RevokedAt once. An already revoked peer is returned
	// unchanged. A zero at means now.
	RevokePeer(ctx context.Context, id string, at time.Time) (Peer, bool, error)
	UpdatePeer(ctx context.Context, id string, patch PeerPatch) (Peer, bool, error)
	// FindPeerByUserDevice prefers the active peer for the pair and otherwise
	// returns the most recently created revoked one.
	FindPeerByUserDevice(ctx context.Context, userID, deviceID string) (Peer, bool, error)

	SaveInvite(ctx context.Context, inv Invite) error
	GetInvite(ctx context.Context, code string) (Invite, bool, error)
	// ConsumeInvite marks the invite used if it is consumable at now. Under
	// concurrent calls for one code exactly one caller gets ok == true.
	// Expired invites are reported absent and left unused.
	ConsumeInvite(ctx context.Context, code string, now time.Time) (Invite, bool, error)

	// AppendAudit appends and drops the oldest entries beyond the store's capacity.
	AppendAudit(ctx context.Context, ev AuditEvent) error
	// ListAudit returns at most limit events, most recent first.
	ListAudit(ctx context.Context, limit int) ([]AuditEvent, error)
}

// Store owns all peer, invite and audit state.
type Store interface {
	Tx
	// InTx runs fn against a transactional view. Nothing fn wrote is kept
	// when it returns an error.
	InTx(ctx context.Context, fn func(tx Tx) error) error
	Close() error
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }
