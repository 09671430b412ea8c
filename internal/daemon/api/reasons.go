package api

// ErrorDomain is set on every errdetails.ErrorInfo the daemon returns.
const ErrorDomain = "wgenroll"

// Error reasons carried in errdetails.ErrorInfo so clients can recover the
// failure kind without parsing messages.
const (
	ReasonInvalidInvite    = "INVALID_INVITE"
	ReasonDeviceMismatch   = "DEVICE_MISMATCH"
	ReasonMissingPublicKey = "MISSING_PUBLIC_KEY"
	ReasonPoolExhausted    = "POOL_EXHAUSTED"
	ReasonPeerNotFound     = "PEER_NOT_FOUND"
	ReasonInvalidCIDR      = "INVALID_CIDR"
	ReasonValidation       = "VALIDATION"
	ReasonUntrustedNetwork = "UNTRUSTED_NETWORK"
	ReasonAdminRequired    = "ADMIN_REQUIRED"
)
