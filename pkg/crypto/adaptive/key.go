package adaptive

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// KeySize is the size of every key accepted by this package.
const KeySize = chacha20poly1305.KeySize

// Key derivation limits.
const (
	MinPassphraseLength = 8
	MinSaltLength       = 16
)

// Argon2id parameters for passphrase derivation.
const (
	argon2Time    = 3
	argon2Memory  = 64 * 1024
	argon2Threads = 4
)

var (
	ErrPassphraseTooWeak = errors.New("adaptive: passphrase must be at least 8 characters")
	ErrSaltTooShort      = errors.New("adaptive: salt must be at least 16 bytes")
)

// ParseKey decodes a 32-byte key given as hex (64 chars) or standard
// base64. An optional "hex:" or "base64:" prefix forces the encoding.
func ParseKey(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	var (
		key []byte
		err error
	)
	switch {
	case strings.HasPrefix(s, "hex:"):
		key, err = hex.DecodeString(s[len("hex:"):])
	case strings.HasPrefix(s, "base64:"):
		key, err = base64.StdEncoding.DecodeString(s[len("base64:"):])
	case len(s) == hex.EncodedLen(KeySize):
		key, err = hex.DecodeString(s)
	default:
		key, err = base64.StdEncoding.DecodeString(s)
	}
	if err != nil {
		return nil, fmt.Errorf("adaptive: decode key: %w", err)
	}
	if len(key) != KeySize {
		return nil, fmt.Errorf("adaptive: key must be %d bytes, got %d", KeySize, len(key))
	}
	return key, nil
}

// DeriveKeyFromPassphrase derives a key from a passphrase with Argon2id.
// The salt must be stable across restarts or previously sealed data
// becomes unreadable.
func DeriveKeyFromPassphrase(passphrase, salt []byte) ([]byte, error) {
	if len(passphrase) < MinPassphraseLength {
		return nil, ErrPassphraseTooWeak
	}
	if len(salt) < MinSaltLength {
		return nil, ErrSaltTooShort
	}
	return argon2.IDKey(passphrase, salt, argon2Time, argon2Memory, argon2Threads, KeySize), nil
}

// DeriveSubkey derives a purpose-bound key from a master key with HKDF.
func DeriveSubkey(masterKey []byte, info string) ([]byte, error) {
	if len(masterKey) < MinSaltLength {
		return nil, fmt.Errorf("adaptive: master key too short")
	}
	reader := hkdf.New(sha256.New, masterKey, nil, []byte(info))
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, fmt.Errorf("adaptive: derive subkey: %w", err)
	}
	return key, nil
}
