package account

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// tokenBytes is chosen so the hex encoding is exactly 96 characters, the
// literal reconnection-token width the first-sign-up scenario names. This
// is a plain opaque random token, not a JWT: nothing in this module's
// dependency set parses or mints one, and sign_in_by_token only ever
// needs an equality lookup against the stored value.
const tokenBytes = 48

// generateToken returns a fresh cryptographically random 96-hex-character
// account token.
func generateToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("account: generate token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
