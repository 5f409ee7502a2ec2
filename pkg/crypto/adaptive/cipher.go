// Package adaptive provides authenticated encryption with hardware-aware
// algorithm selection.
package adaptive

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"runtime"

	"golang.org/x/crypto/chacha20poly1305"
)

// CipherType identifies the cipher algorithm.
type CipherType string

const (
	CipherAESGCM   CipherType = "aes-gcm"
	CipherChaCha20 CipherType = "chacha20-poly1305"
)

// Algorithm ids recorded in sealed payloads.
const (
	idAESGCM   byte = 1
	idChaCha20 byte = 2
)

// ErrMalformed is returned when a sealed payload cannot be opened.
var ErrMalformed = errors.New("adaptive: malformed ciphertext")

// Cipher seals and opens payloads. Implementations are safe for concurrent
// use.
type Cipher interface {
	// Type returns the cipher type.
	Type() CipherType

	// Seal encrypts plaintext and authenticates additionalData. The output
	// is self-describing: algorithm id, nonce, ciphertext and tag.
	Seal(plaintext, additionalData []byte) ([]byte, error)

	// Open reverses Seal.
	Open(sealed, additionalData []byte) ([]byte, error)
}

// AEAD is a Cipher backed by AES-GCM or ChaCha20-Poly1305. It can open
// payloads sealed by either algorithm with the same key, so data written on
// one host stays readable on another with different hardware.
type AEAD struct {
	preferred byte
	aesgcm    cipher.AEAD
	chacha    cipher.AEAD
}

// New creates a cipher for a 32-byte key, preferring AES-GCM on platforms
// with hardware AES support and ChaCha20-Poly1305 otherwise.
func New(key []byte) (*AEAD, error) {
	if hasAESNI() {
		return NewWithType(key, CipherAESGCM)
	}
	return NewWithType(key, CipherChaCha20)
}

// NewWithType creates a cipher that seals with the given algorithm.
func NewWithType(key []byte, cipherType CipherType) (*AEAD, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("adaptive: key must be %d bytes, got %d", KeySize, len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	cc, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}

	c := &AEAD{aesgcm: gcm, chacha: cc}
	switch cipherType {
	case CipherAESGCM:
		c.preferred = idAESGCM
	case CipherChaCha20:
		c.preferred = idChaCha20
	default:
		return nil, errors.New("adaptive: unknown cipher type: " + string(cipherType))
	}
	return c, nil
}

// Type returns the algorithm used by Seal.
func (c *AEAD) Type() CipherType {
	if c.preferred == idAESGCM {
		return CipherAESGCM
	}
	return CipherChaCha20
}

// Overhead returns the number of bytes Seal adds to a plaintext.
func (c *AEAD) Overhead() int {
	aead := c.byID(c.preferred)
	return 1 + aead.NonceSize() + aead.Overhead()
}

// Seal encrypts plaintext with additional data.
func (c *AEAD) Seal(plaintext, additionalData []byte) ([]byte, error) {
	aead := c.byID(c.preferred)

	out := make([]byte, 1+aead.NonceSize(), 1+aead.NonceSize()+len(plaintext)+aead.Overhead())
	out[0] = c.preferred
	nonce := out[1:]
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return aead.Seal(out, nonce, plaintext, additionalData), nil
}

// Open decrypts a payload produced by Seal.
func (c *AEAD) Open(sealed, additionalData []byte) ([]byte, error) {
	if len(sealed) < 1 {
		return nil, ErrMalformed
	}
	aead := c.byID(sealed[0])
	if aead == nil || len(sealed) < 1+aead.NonceSize()+aead.Overhead() {
		return nil, ErrMalformed
	}
	nonce := sealed[1 : 1+aead.NonceSize()]
	plaintext, err := aead.Open(nil, nonce, sealed[1+aead.NonceSize():], additionalData)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return plaintext, nil
}

func (c *AEAD) byID(id byte) cipher.AEAD {
	switch id {
	case idAESGCM:
		return c.aesgcm
	case idChaCha20:
		return c.chacha
	default:
		return nil
	}
}

// hasAESNI reports whether the platform is expected to accelerate AES.
// Go uses AES-NI on amd64 and the ARMv8 crypto extensions on arm64.
func hasAESNI() bool {
	switch runtime.GOARCH {
	case "amd64", "arm64":
		return true
	default:
		return false
	}
}
