package application

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"

	"github.com/soldihq/soldi/utils"
)

// SecretCypher protects one-time wallet secret material at rest with
// AES-256-GCM. When encryption is disabled, secrets are stored as plain
// serialized keypairs.
type SecretCypher struct {
	enabled bool
	key     []byte
}

// NewSecretCypher builds the cypher from the configured encryption key. It is
// a hard error to enable encryption without a key: wallets written without it
// would be unrecoverable.
func NewSecretCypher(enabled bool, encryptionKey string) (*SecretCypher, error) {
	if !enabled {
		return &SecretCypher{}, nil
	}
	if encryptionKey == "" {
		return nil, fmt.Errorf("wallet encryption is enabled but no encryption key is configured")
	}
	sum := sha256.Sum256([]byte(encryptionKey))
	return &SecretCypher{enabled: true, key: sum[:]}, nil
}

func (c *SecretCypher) Enabled() bool { return c.enabled }

// Protect seals a serialized keypair for storage. With encryption disabled the
// secret is stored as-is.
func (c *SecretCypher) Protect(secret string) (string, error) {
	if !c.enabled {
		return secret, nil
	}
	aead, err := c.aead()
	if err != nil {
		return "", err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	sealed := aead.Seal(nonce, nonce, []byte(secret), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Reveal recovers the serialized keypair from its stored form. Values written
// before encryption was enabled are stored as plain keypairs; those are
// returned unchanged so mixed-era data keeps working. Anything that is neither
// a valid ciphertext nor a parseable keypair is an error.
func (c *SecretCypher) Reveal(stored string) (string, error) {
	if !c.enabled {
		return stored, nil
	}
	raw, err := base64.StdEncoding.DecodeString(stored)
	if err != nil {
		if isPlainKeypair(stored) {
			return stored, nil
		}
		return "", fmt.Errorf("stored wallet secret is neither a ciphertext nor a plain keypair: %w", err)
	}
	aead, err := c.aead()
	if err != nil {
		return "", err
	}
	if len(raw) <= aead.NonceSize() {
		if isPlainKeypair(stored) {
			return stored, nil
		}
		return "", fmt.Errorf("stored wallet secret is too short to be a ciphertext")
	}
	plain, err := aead.Open(nil, raw[:aead.NonceSize()], raw[aead.NonceSize():], nil)
	if err != nil {
		if isPlainKeypair(stored) {
			return stored, nil
		}
		return "", fmt.Errorf("failed to decrypt wallet secret: %w", err)
	}
	return string(plain), nil
}

func (c *SecretCypher) aead() (cipher.AEAD, error) {
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

func isPlainKeypair(value string) bool {
	_, err := utils.ParseKeypair(value)
	return err == nil
}
