// Package cryptox holds the cryptographic primitives the server relies on:
// ed25519 signing keys, the signed envelope carried by certificates and
// messages, and the sealed-box / secret-box wrappers built on top of it.
//
// The server itself never decrypts user payloads; encryption helpers exist
// so that tests and tooling can produce the exact bytes clients send.
package cryptox

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// ErrInvalidKey is returned when key material has the wrong size.
var ErrInvalidKey = errors.New("invalid key")

// SigningKey is a device (or organization root) private key.
type SigningKey = ed25519.PrivateKey

// VerifyKey is the public half of a SigningKey.
type VerifyKey = ed25519.PublicKey

// GenerateSigningKey creates a fresh ed25519 key pair.
func GenerateSigningKey() (SigningKey, VerifyKey, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, err
	}
	return priv, pub, nil
}

// LoadVerifyKey checks raw bytes are a well formed ed25519 public key.
func LoadVerifyKey(raw []byte) (VerifyKey, error) {
	if len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("%w: verify key must be %d bytes, got %d", ErrInvalidKey, ed25519.PublicKeySize, len(raw))
	}
	return VerifyKey(raw), nil
}

// Fingerprint returns a 32 bytes blake2b digest of data. Used to index
// X.509 certificates submitted for PKI enrollment.
func Fingerprint(data []byte) []byte {
	sum := blake2b.Sum256(data)
	return sum[:]
}
