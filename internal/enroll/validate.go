package enroll

import (
	"fmt"
	"net/netip"
	"strings"
	"time"
)

const (
	MinInviteTTL     = 60 * time.Second
	MaxInviteTTL     = 24 * time.Hour
	DefaultInviteTTL = 15 * time.Minute

	minDeviceIDLen      = 3
	maxDeviceIDLen      = 128
	maxUserIDLen        = 128
	maxFingerprintLen   = 512
	maxPlatformLen      = 64
	maxClientVersionLen = 64
	maxPublicKeyLen     = 128
	minInviteCodeLen    = 6
	maxInviteCodeLen    = 256
)

// Validate checks field lengths of a device identity.
func (d DeviceIdentity) Validate() error {
	id := strings.TrimSpace(d.DeviceID)
	if len(id) < minDeviceIDLen || len(id) > maxDeviceIDLen {
		return invalid("device.device_id", fmt.Sprintf("must be %d to %d characters", minDeviceIDLen, maxDeviceIDLen))
	}
	if len(d.Fingerprint) > maxFingerprintLen {
		return invalid("device.fingerprint", fmt.Sprintf("must be at most %d characters", maxFingerprintLen))
	}
	if len(d.Platform) > maxPlatformLen {
		return invalid("device.platform", fmt.Sprintf("must be at most %d characters", maxPlatformLen))
	}
	if len(d.ClientVersion) > maxClientVersionLen {
		return invalid("device.client_version", fmt.Sprintf("must be at most %d characters", maxClientVersionLen))
	}
	return nil
}

func (r InviteRequest) validate() error {
	user := strings.TrimSpace(r.UserID)
	if user == "" {
		return invalid("user_id", "is required")
	}
	if len(user) > maxUserIDLen {
		return invalid("user_id", fmt.Sprintf("must be at most %d characters", maxUserIDLen))
	}
	if len(r.DeviceID) > maxDeviceIDLen {
		return invalid("device_id", fmt.Sprintf("must be at most %d characters", maxDeviceIDLen))
	}
	if r.TTL < MinInviteTTL || r.TTL > MaxInviteTTL {
		return invalidTTL()
	}
	return nil
}

// InviteTTL converts a lifetime in whole seconds. Zero selects
// DefaultInviteTTL. The range is checked before multiplying so huge values
// cannot wrap into a valid duration.
func InviteTTL(seconds int) (time.Duration, error) {
	if seconds == 0 {
		return DefaultInviteTTL, nil
	}
	if seconds < int(MinInviteTTL/time.Second) || seconds > int(MaxInviteTTL/time.Second) {
		return 0, invalidTTL()
	}
	return time.Duration(seconds) * time.Second, nil
}

func invalidTTL() error {
	return invalid("ttl_seconds", fmt.Sprintf("must be between %d and %d", int(MinInviteTTL.Seconds()), int(MaxInviteTTL.Seconds())))
}

func (r EnrollRequest) validate() error {
	if err := r.Device.Validate(); err != nil {
		return err
	}
	if len(r.ClientPublicKey) > maxPublicKeyLen {
		return invalid("client_public_key", fmt.Sprintf("must be at most %d characters", maxPublicKeyLen))
	}
	return nil
}

// wellFormedCode filters out codes that cannot have been issued, so they never
// reach the store.
func wellFormedCode(code string) bool {
	return len(code) >= minInviteCodeLen && len(code) <= maxInviteCodeLen
}

// ValidateAllowedIPs checks that every entry is a CIDR prefix or a bare IP
// address. Entries are stored as given, so padding is rejected rather than
// trimmed.
func ValidateAllowedIPs(entries []string) error {
	for _, entry := range entries {
		if _, err := parseNetwork(entry); err != nil {
			return fmt.Errorf("%w: %q", ErrInvalidCIDR, entry)
		}
	}
	return nil
}

func parseNetwork(s string) (netip.Prefix, error) {
	if strings.Contains(s, "/") {
		return netip.ParsePrefix(s)
	}
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Prefix{}, err
	}
	return netip.PrefixFrom(addr, addr.BitLen()), nil
}
