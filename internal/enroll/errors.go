package enroll

import "errors"

var (
	// ErrInvalidInvite indicates the invite code is unknown, expired, or already used.
	ErrInvalidInvite = errors.New("invalid, expired, or used invite code")
	// ErrDeviceMismatch indicates the invite is bound to a different device.
	ErrDeviceMismatch = errors.New("invite is bound to a different device")
	// ErrMissingPublicKey indicates a first-time enrollment without a client public key.
	ErrMissingPublicKey = errors.New("client public key is required for first enrollment")
	// ErrPoolExhausted indicates no overlay address is left in the subnet.
	ErrPoolExhausted = errors.New("overlay address pool exhausted")
	// ErrNotFound indicates an unknown peer.
	ErrNotFound = errors.New("peer not found")
	// ErrInvalidCIDR indicates a malformed allowed-IP entry.
	ErrInvalidCIDR = errors.New("invalid cidr in allowed ips")
)

// ValidationError indicates an invalid input to an enrollment operation.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return e.Field + ": " + e.Message
	}
	return e.Message
}

func invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}
