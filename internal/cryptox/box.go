package cryptox

import (
	"crypto/rand"
	"errors"
	"io"

	"golang.org/x/crypto/nacl/box"
	"golang.org/x/crypto/nacl/secretbox"
)

// ErrDecryption means the ciphertext was not produced for this key.
var ErrDecryption = errors.New("decryption failed")

const secretNonceSize = 24

// PrivateKey / PublicKey are curve25519 keys used by the sealed box.
type (
	PrivateKey = *[32]byte
	PublicKey  = *[32]byte
)

// SecretKey is a symmetric key for the secret box.
type SecretKey = *[32]byte

// GenerateBoxKey creates a curve25519 key pair.
func GenerateBoxKey() (PublicKey, PrivateKey, error) {
	return box.GenerateKey(rand.Reader)
}

// GenerateSecretKey creates a random secret box key.
func GenerateSecretKey() (SecretKey, error) {
	var k [32]byte
	if _, err := io.ReadFull(rand.Reader, k[:]); err != nil {
		return nil, err
	}
	return &k, nil
}

// EncryptFor seals data so only the owner of recipient's private key can
// open it. The sender stays anonymous.
func EncryptFor(recipient PublicKey, data []byte) ([]byte, error) {
	return box.SealAnonymous(nil, data, recipient, rand.Reader)
}

// DecryptFor opens a sealed box.
func DecryptFor(pub PublicKey, priv PrivateKey, ciphertext []byte) ([]byte, error) {
	out, ok := box.OpenAnonymous(nil, ciphertext, pub, priv)
	if !ok {
		return nil, ErrDecryption
	}
	return out, nil
}

// EncryptWith encrypts data with a symmetric key. The random nonce is
// stored in front of the ciphertext.
func EncryptWith(key SecretKey, data []byte) ([]byte, error) {
	var nonce [secretNonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, err
	}
	return secretbox.Seal(nonce[:], data, &nonce, key), nil
}

// DecryptWith reverses EncryptWith.
func DecryptWith(key SecretKey, ciphertext []byte) ([]byte, error) {
	if len(ciphertext) < secretNonceSize+secretbox.Overhead {
		return nil, ErrDecryption
	}
	var nonce [secretNonceSize]byte
	copy(nonce[:], ciphertext[:secretNonceSize])
	out, ok := secretbox.Open(nil, ciphertext[secretNonceSize:], &nonce, key)
	if !ok {
		return nil, ErrDecryption
	}
	return out, nil
}
