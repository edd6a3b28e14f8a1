package security

import (
	"crypto/sha256"
	"fmt"
)

// KeyManager derives fixed-size keys from the configured secrets.
type KeyManager struct {
	appKey   []byte
	tokenKey []byte
}

// NewKeyManager creates a key manager from the profile encryption secret and
// the token signing secret.
func NewKeyManager(appKeyStr, tokenSecret string) (*KeyManager, error) {
	if appKeyStr == "" {
		return nil, fmt.Errorf("application encryption key is empty")
	}
	if tokenSecret == "" {
		return nil, fmt.Errorf("token signing secret is empty")
	}

	return &KeyManager{
		appKey:   deriveKey("profile:", appKeyStr),
		tokenKey: deriveKey("token:", tokenSecret),
	}, nil
}

// AppKey returns the 32-byte profile encryption key
func (km *KeyManager) AppKey() []byte {
	return km.appKey
}

// TokenKey returns the 32-byte HMAC key for session tokens
func (km *KeyManager) TokenKey() []byte {
	return km.tokenKey
}

// deriveKey derives a 32-byte key bound to its purpose using SHA-256
func deriveKey(purpose, keyStr string) []byte {
	hash := sha256.Sum256([]byte(purpose + keyStr))
	return hash[:]
}
