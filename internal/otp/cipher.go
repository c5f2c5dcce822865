package otp

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// Sealed format, base64url without padding:
// [0]      version (currently 1)
// [1..24]  XChaCha20-Poly1305 nonce
// [25..]   ciphertext + tag
const cipherVersion byte = 1

const keyMaterialLen = 32

var (
	// ErrInvalidKey indicates the configured key is not 32 bytes of base64.
	ErrInvalidKey = errors.New("otp: invalid encryption key")
	// ErrDecryptFailed indicates a corrupt, tampered or foreign ciphertext.
	ErrDecryptFailed = errors.New("otp: decrypt failed")
)

var hkdfInfo = []byte("phoneauth otp at rest v1")

// Cipher seals codes for storage. The phone number is bound as associated
// data, so a value copied onto another user's record does not open.
type Cipher struct {
	key []byte
}

// NewCipher parses a URL-safe or standard base64 key of exactly 32 bytes.
func NewCipher(encodedKey string) (*Cipher, error) {
	material, err := decodeKey(encodedKey)
	if err != nil {
		return nil, err
	}

	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, material, nil, hkdfInfo), key); err != nil {
		return nil, fmt.Errorf("otp: key derivation failed: %w", err)
	}

	return &Cipher{key: key}, nil
}

func decodeKey(encoded string) ([]byte, error) {
	encoded = strings.TrimSpace(encoded)
	for _, enc := range []*base64.Encoding{base64.URLEncoding, base64.StdEncoding, base64.RawURLEncoding, base64.RawStdEncoding} {
		raw, err := enc.DecodeString(encoded)
		if err != nil {
			continue
		}
		if len(raw) != keyMaterialLen {
			return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrInvalidKey, len(raw), keyMaterialLen)
		}
		return raw, nil
	}
	return nil, fmt.Errorf("%w: not base64", ErrInvalidKey)
}

// Encrypt seals plaintext for the given phone number.
func (c *Cipher) Encrypt(plaintext, phoneNumber string) (string, error) {
	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("otp: nonce generation failed: %w", err)
	}

	out := make([]byte, 0, 1+len(nonce)+len(plaintext)+aead.Overhead())
	out = append(out, cipherVersion)
	out = append(out, nonce...)
	out = aead.Seal(out, nonce, []byte(plaintext), []byte(phoneNumber))
	return base64.RawURLEncoding.EncodeToString(out), nil
}

// Decrypt opens a value produced by Encrypt for the same phone number.
func (c *Cipher) Decrypt(ciphertext, phoneNumber string) (string, error) {
	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}

	raw, err := base64.RawURLEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", ErrDecryptFailed
	}
	if len(raw) < 1+aead.NonceSize()+aead.Overhead() || raw[0] != cipherVersion {
		return "", ErrDecryptFailed
	}

	nonce := raw[1 : 1+aead.NonceSize()]
	plain, err := aead.Open(nil, nonce, raw[1+aead.NonceSize():], []byte(phoneNumber))
	if err != nil {
		return "", ErrDecryptFailed
	}

	return string(plain), nil
}
