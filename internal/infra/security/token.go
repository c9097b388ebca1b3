package security

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

const defaultTokenBytes = 32

// RandomTokenGenerator mints opaque session tokens: Size random bytes,
// URL-safe base64 without padding, so they travel in Authorization headers
// unescaped.
type RandomTokenGenerator struct {
	Size int
}

func (g RandomTokenGenerator) NewToken() (string, error) {
	size := g.Size
	if size <= 0 {
		size = defaultTokenBytes
	}
	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("security: generate session token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
