package api

import "wgenroll/internal/enroll"

// Request metadata keys carrying the caller identity and proxy hops.
const (
	MetadataUserID       = "x-user-id"
	MetadataUserRole     = "x-user-role"
	MetadataForwardedFor = "x-forwarded-for"
	MetadataRealIP       = "x-real-ip"
)

// Roles allowed to call administrative methods.
const (
	RoleAdmin = "admin"
	RoleOwner = "owner"
)

type CreateInviteRequest struct {
	UserID   string `json:"user_id"`
	DeviceID string `json:"device_id,omitempty"`
	// TTLSeconds of zero selects the default lifetime.
	TTLSeconds int `json:"ttl_seconds,omitempty"`
}

type EnrollRequest struct {
	InviteCode      string                `json:"invite_code"`
	Device          enroll.DeviceIdentity `json:"device"`
	ClientPublicKey string                `json:"client_public_key,omitempty"`
}

type ListPeersRequest struct{}

type ListPeersResponse struct {
	Peers []enroll.Peer `json:"peers"`
}

type RevokePeerRequest struct {
	PeerID string `json:"peer_id"`
}

type PatchPeerRequest struct {
	PeerID     string             `json:"peer_id"`
	AllowedIPs *[]string          `json:"allowed_ips,omitempty"`
	Tags       *map[string]string `json:"tags,omitempty"`
}

type GetStatusRequest struct{}

type GetSelfPeerRequest struct{}

type ListAuditRequest struct {
	Limit int `json:"limit,omitempty"`
}

type ListAuditResponse struct {
	Events []enroll.AuditEvent `json:"events"`
}
