// Package fieldcrypt protects individual sensitive field values with
// authenticated encryption, tolerating historical plaintext data.
package fieldcrypt

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	keySize   = 32
	nonceSize = 16
	tagSize   = 16

	kdfIterations = 150000
	kdfLabel      = "stocktide-field-key-v1"
)

// ErrEncrypt indicates a genuine cryptographic failure during encryption.
var ErrEncrypt = errors.New("fieldcrypt: encrypt failed")

// Cipher performs AES-256-GCM encryption of scalar field values.
// The key is derived once at construction and read-only afterwards,
// so a single Cipher is safe for concurrent use.
type Cipher struct {
	aead cipher.AEAD
}

// New derives the process key from the configured secret and builds the
// cipher. A secret that is exactly 64 hex characters is used as the raw
// key; anything else goes through PBKDF2 with a fixed label. An empty
// secret yields a random ephemeral key: values encrypted under it cannot
// be decrypted after a restart, which is logged as a security warning.
func New(secret string, logger *slog.Logger) (*Cipher, error) {
	key, err := deriveKey(secret, logger)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("fieldcrypt: new cipher: %w", err)
	}
	aead, err := cipher.NewGCMWithNonceSize(block, nonceSize)
	if err != nil {
		return nil, fmt.Errorf("fieldcrypt: new gcm: %w", err)
	}
	return &Cipher{aead: aead}, nil
}

func deriveKey(secret string, logger *slog.Logger) ([]byte, error) {
	if secret == "" {
		if logger != nil {
			logger.Warn("no field encryption secret configured, using ephemeral key; encrypted values will not survive a restart")
		}
		key := make([]byte, keySize)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("fieldcrypt: ephemeral key: %w", err)
		}
		return key, nil
	}
	if len(secret) == keySize*2 {
		if key, err := hex.DecodeString(secret); err == nil {
			return key, nil
		}
	}
	return pbkdf2.Key([]byte(secret), []byte(kdfLabel), kdfIterations, keySize, sha256.New), nil
}

// Encrypt seals plaintext under a fresh random nonce and encodes it as
// nonce_hex:tag_hex:ciphertext_hex. An empty input is a no-op.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("%w: nonce: %v", ErrEncrypt, err)
	}
	sealed := c.aead.Seal(nil, nonce, []byte(plaintext), nil)
	// GCM appends the tag to the ciphertext; the wire format carries it
	// as its own segment.
	ct := sealed[:len(sealed)-tagSize]
	tag := sealed[len(sealed)-tagSize:]
	return hex.EncodeToString(nonce) + ":" + hex.EncodeToString(tag) + ":" + hex.EncodeToString(ct), nil
}

// Decrypt reverses Encrypt. Values without any colon are legacy plaintext
// and pass through unchanged. Malformed or tampered values also come back
// unchanged rather than failing: decryption predates encryption here, and
// rows written before the cipher was introduced must keep reading.
func (c *Cipher) Decrypt(value string) string {
	if value == "" {
		return ""
	}
	if !strings.Contains(value, ":") {
		return value
	}
	parts := strings.Split(value, ":")
	if len(parts) != 3 {
		return value
	}
	nonce, err := hex.DecodeString(parts[0])
	if err != nil || len(nonce) != nonceSize {
		return value
	}
	tag, err := hex.DecodeString(parts[1])
	if err != nil || len(tag) != tagSize {
		return value
	}
	ct, err := hex.DecodeString(parts[2])
	if err != nil {
		return value
	}
	plaintext, err := c.aead.Open(nil, nonce, append(ct, tag...), nil)
	if err != nil {
		return value
	}
	return string(plaintext)
}

// IsEncrypted reports whether value matches the wire format: exactly three
// colon-separated segments with 32 hex characters in each of the first two.
func IsEncrypted(value string) bool {
	parts := strings.Split(value, ":")
	if len(parts) != 3 {
		return false
	}
	return isHex(parts[0], nonceSize*2) && isHex(parts[1], tagSize*2)
}

func isHex(s string, length int) bool {
	if len(s) != length {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}

// EncryptFields encrypts the named fields over a shallow copy of record,
// skipping absent and empty values.
func (c *Cipher) EncryptFields(record map[string]string, fields ...string) (map[string]string, error) {
	out := make(map[string]string, len(record))
	for k, v := range record {
		out[k] = v
	}
	for _, field := range fields {
		v, ok := out[field]
		if !ok || v == "" {
			continue
		}
		enc, err := c.Encrypt(v)
		if err != nil {
			return nil, err
		}
		out[field] = enc
	}
	return out, nil
}

// DecryptFields decrypts the named fields over a shallow copy of record.
func (c *Cipher) DecryptFields(record map[string]string, fields ...string) map[string]string {
	out := make(map[string]string, len(record))
	for k, v := range record {
		out[k] = v
	}
	for _, field := range fields {
		v, ok := out[field]
		if !ok || v == "" {
			continue
		}
		out[field] = c.Decrypt(v)
	}
	return out
}
