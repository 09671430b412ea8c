package enroll

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"time"
)

// Audit actions recorded by the engine.
const (
	ActionInviteCreate = "network.invite.create"
	ActionEnroll       = "network.enroll"
	ActionEnrollReuse  = "network.enroll.reuse"
	ActionPeerRevoke   = "network.peer.revoke"
	ActionPeerUpdate   = "network.peer.update"
)

// Tag keys derived from a DeviceIdentity.
const (
	TagDeviceID      = "device_id"
	TagFingerprint   = "fingerprint"
	TagPlatform      = "platform"
	TagClientVersion = "client_version"
)

// DeviceIdentity describes the device presenting an invite.
type DeviceIdentity struct {
	DeviceID      string `json:"device_id"`
	Fingerprint   string `json:"fingerprint,omitempty"`
	Platform      string `json:"platform,omitempty"`
	ClientVersion string `json:"client_version,omitempty"`
}

// Tags returns the identity fields copied onto a new peer. Empty fields are skipped.
func (d DeviceIdentity) Tags() map[string]string {
	tags := make(map[string]string, 4)
	for _, kv := range [...]struct{ key, value string }{
		{TagDeviceID, d.DeviceID},
		{TagFingerprint, d.Fingerprint},
		{TagPlatform, d.Platform},
		{TagClientVersion, d.ClientVersion},
	} {
		if kv.value != "" {
			tags[kv.key] = kv.value
		}
	}
	return tags
}

// Invite is a single-use, time-bounded onboarding token.
type Invite struct {
	Code      string     `json:"invite_code"`
	UserID    string     `json:"user_id"`
	DeviceID  string     `json:"device_id,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt time.Time  `json:"expires_at"`
	UsedAt    *time.Time `json:"used_at,omitempty"`
}

// Consumable reports whether the invite can still be used at now.
func (i Invite) Consumable(now time.Time) bool {
	return i.UsedAt == nil && now.Before(i.ExpiresAt)
}

// Peer is one enrolled device's membership in the overlay network.
//
// OverlayIP is unique among active peers only. A revoked peer keeps the
// address it was given even after that address is handed to a newer peer, so
// two stored records may show the same OverlayIP (one revoked, one active).
// Never treat OverlayIP as globally unique across all rows.
type Peer struct {
	ID         string            `json:"peer_id"`
	UserID     string            `json:"user_id"`
	DeviceID   string            `json:"device_id"`
	OverlayIP  string            `json:"overlay_ip"`
	AllowedIPs []string          `json:"allowed_ips"`
	PublicKey  string            `json:"public_key"`
	CreatedAt  time.Time         `json:"created_at"`
	RevokedAt  *time.Time        `json:"revoked_at,omitempty"`
	Tags       map[string]string `json:"tags"`
}

// Active reports whether the peer has not been revoked.
func (p Peer) Active() bool {
	return p.RevokedAt == nil
}

// Clone returns a copy that shares no mutable state with p.
func (p Peer) Clone() Peer {
	out := p
	out.AllowedIPs = slices.Clone(p.AllowedIPs)
	out.Tags = maps.Clone(p.Tags)
	if p.RevokedAt != nil {
		t := *p.RevokedAt
		out.RevokedAt = &t
	}
	return out
}

// Apply returns a copy of p with the provided patch fields replaced.
func (p Peer) Apply(patch PeerPatch) Peer {
	out := p.Clone()
	if patch.AllowedIPs != nil {
		out.AllowedIPs = slices.Clone(*patch.AllowedIPs)
		if out.AllowedIPs == nil {
			out.AllowedIPs = []string{}
		}
	}
	if patch.Tags != nil {
		out.Tags = maps.Clone(*patch.Tags)
		if out.Tags == nil {
			out.Tags = map[string]string{}
		}
	}
	return out
}

// PeerPatch is a partial update. A nil field is left untouched; a non-nil
// pointer to an empty value clears it.
type PeerPatch struct {
	AllowedIPs *[]string          `json:"allowed_ips,omitempty"`
	Tags       *map[string]string `json:"tags,omitempty"`
}

// AuditEvent is one entry in the append-only diagnostic trail.
type AuditEvent struct {
	TS          time.Time      `json:"ts"`
	ActorUserID string         `json:"actor_user_id,omitempty"`
	Action      string         `json:"action"`
	Subject     string         `json:"subject,omitempty"`
	Meta        map[string]any `json:"meta"`
}

// MarshalMeta encodes audit metadata. A nil map encodes as an empty object.
func MarshalMeta(meta map[string]any) ([]byte, error) {
	if meta == nil {
		meta = map[string]any{}
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("marshal audit meta: %w", err)
	}
	return raw, nil
}

// UnmarshalMeta decodes audit metadata written by MarshalMeta. Numbers come
// back as json.Number so every store returns the same value types.
func UnmarshalMeta(raw []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var meta map[string]any
	if err := dec.Decode(&meta); err != nil {
		return nil, fmt.Errorf("parse audit meta: %w", err)
	}
	if meta == nil {
		meta = map[string]any{}
	}
	return meta, nil
}

// InviteRequest asks for a new invite owned by UserID.
type InviteRequest struct {
	ActorUserID string
	UserID      string
	DeviceID    string
	TTL         time.Duration
}

// EnrollRequest presents an invite on behalf of a device.
type EnrollRequest struct {
	ActorUserID     string
	InviteCode      string
	Device          DeviceIdentity
	ClientPublicKey string
}

// EnrollResult is returned to the enrolling device. It never carries a private key.
type EnrollResult struct {
	PeerID         string `json:"peer_id"`
	OverlayIP      string `json:"overlay_ip"`
	ClientConfig   string `json:"client_config_text"`
	ServerEndpoint string `json:"server_endpoint"`
	Reused         bool   `json:"reused"`
}

// Status summarizes a user's connection state. PeerSeenAt is always nil: no
// liveness telemetry is collected.
type Status struct {
	Connected      bool       `json:"connected"`
	ServerEndpoint string     `json:"server_endpoint"`
	OverlayIP      string     `json:"overlay_ip,omitempty"`
	PeerSeenAt     *time.Time `json:"peer_seen_at,omitempty"`
}
