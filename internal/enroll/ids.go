package enroll

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// InviteCodeSize is the number of random bytes in an invite code (144 bits).
const InviteCodeSize = 18

const peerIDPrefix = "wg_"

// newInviteCode returns a URL-safe code drawn from crypto/rand.
func newInviteCode() (string, error) {
	b := make([]byte, InviteCodeSize)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate invite code: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func newPeerID() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("generate peer id: %w", err)
	}
	return peerIDPrefix + strings.ReplaceAll(id.String(), "-", ""), nil
}
