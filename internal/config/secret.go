package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// ServerSecretLen is the length in bytes of the 256-bit HMAC key used to
// derive invite codes.
const ServerSecretLen = 32

func randomSecret() ([]byte, error) {
	b := make([]byte, ServerSecretLen)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}

func decodeHexSecret(s string) ([]byte, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("not valid hex: %w", err)
	}
	if len(b) != ServerSecretLen {
		return nil, fmt.Errorf("expected %d bytes, got %d", ServerSecretLen, len(b))
	}
	return b, nil
}

// ResolveAdminSecret implements the admin plane's "regenerate or set server
// secret" action (spec.md §4.8): an empty hex string regenerates a fresh
// random secret, otherwise the given hex is decoded and validated.
func ResolveAdminSecret(hexSecret string) ([]byte, error) {
	if hexSecret == "" {
		return randomSecret()
	}
	return decodeHexSecret(hexSecret)
}
