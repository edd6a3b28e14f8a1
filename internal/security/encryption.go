package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"

	"github.com/jainuniversity/campus-portal/pkg/errors"
)

// FieldEncryptor seals individual store fields with AES-256-GCM.
type FieldEncryptor struct {
	gcm cipher.AEAD
}

// NewFieldEncryptor creates a new field encryptor with AES-256-GCM
func NewFieldEncryptor(key []byte) (*FieldEncryptor, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("key must be 32 bytes for AES-256")
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &FieldEncryptor{gcm: gcm}, nil
}

// Encrypt encrypts plaintext and returns base64 encoded nonce||ciphertext
func (fe *FieldEncryptor) Encrypt(plaintext []byte) (string, error) {
	nonce := make([]byte, fe.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("%w: failed to generate nonce: %v", errors.ErrEncryptionFailed, err)
	}

	sealed := fe.gcm.Seal(nonce, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt
func (fe *FieldEncryptor) Decrypt(ciphertext string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to decode ciphertext: %v", errors.ErrDecryptionFailed, err)
	}

	nonceSize := fe.gcm.NonceSize()
	if len(data) < nonceSize {
		return nil, fmt.Errorf("%w: ciphertext too short", errors.ErrDecryptionFailed)
	}

	nonce, sealed := data[:nonceSize], data[nonceSize:]
	plaintext, err := fe.gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrDecryptionFailed, err)
	}
	return plaintext, nil
}

// EncryptJSON marshals v and encrypts the result
func (fe *FieldEncryptor) EncryptJSON(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("%w: %v", errors.ErrEncryptionFailed, err)
	}
	return fe.Encrypt(raw)
}

// DecryptJSON decrypts ciphertext into v. An empty ciphertext leaves v untouched.
func (fe *FieldEncryptor) DecryptJSON(ciphertext string, v any) error {
	if ciphertext == "" {
		return nil
	}
	raw, err := fe.Decrypt(ciphertext)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrDecryptionFailed, err)
	}
	return nil
}
