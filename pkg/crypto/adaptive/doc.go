// Package adaptive provides at-rest encryption for autosave blobs.
//
// A single key drives two AEAD algorithms:
//
//   - AES-256-GCM: preferred when hardware AES support is available
//   - ChaCha20-Poly1305: preferred otherwise
//
// Sealed payloads record the algorithm that produced them, so any AEAD
// built from the same key can open them.
//
// Usage:
//
//	key, err := adaptive.ParseKey(cfg.Security.EncryptionKey)
//	c, err := adaptive.New(key)
//	sealed, err := c.Seal(plaintext, aad)
//	plaintext, err := c.Open(sealed, aad)
package adaptive
