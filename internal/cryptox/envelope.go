package cryptox

import (
	"bytes"
	"crypto/ed25519"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/klauspost/compress/zlib"
	"github.com/vmihailenco/msgpack/v5"
)

// RootAuthor is the author of data signed by the organization root key.
const RootAuthor = ""

var (
	ErrBadSignature      = errors.New("signature was forged or corrupt")
	ErrAuthorMismatch    = errors.New("unexpected author")
	ErrTimestampMismatch = errors.New("unexpected timestamp")
	ErrPacking           = errors.New("invalid signed data packing")
	ErrTooLarge          = errors.New("signed data too large once decompressed")
)

// MaxUnpackedSize bounds the decompressed size of a signed envelope.
// Certificates are a few KiB, so anything near this is hostile.
const MaxUnpackedSize = 1 << 20

type signedEnvelope struct {
	Author    *string   `msgpack:"author"`
	Timestamp time.Time `msgpack:"timestamp"`
	Content   []byte    `msgpack:"content"`
}

// Sign prepends an ed25519 signature to payload.
func Sign(key SigningKey, payload []byte) []byte {
	sig := ed25519.Sign(key, payload)
	out := make([]byte, 0, len(sig)+len(payload))
	out = append(out, sig...)
	return append(out, payload...)
}

// Verify checks the signature prefix of signed and returns the payload.
func Verify(key VerifyKey, signed []byte) ([]byte, error) {
	if len(signed) < ed25519.SignatureSize {
		return nil, ErrBadSignature
	}
	sig, payload := signed[:ed25519.SignatureSize], signed[ed25519.SignatureSize:]
	if len(key) != ed25519.PublicKeySize || !ed25519.Verify(key, payload, sig) {
		return nil, ErrBadSignature
	}
	return payload, nil
}

// BuildSigned packs content with its author and timestamp then signs the
// result. An empty author means the organization root key signed it.
func BuildSigned(author string, key SigningKey, content []byte, timestamp time.Time) ([]byte, error) {
	env := signedEnvelope{Timestamp: timestamp.UTC(), Content: content}
	if author != RootAuthor {
		env.Author = &author
	}
	raw, err := msgpack.Marshal(&env)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPacking, err)
	}
	packed, err := compress(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPacking, err)
	}
	return Sign(key, packed), nil
}

// VerifySigned checks the signature and that the envelope meta matches the
// expected author and timestamp, then returns the inner content.
func VerifySigned(signed []byte, expectedAuthor string, key VerifyKey, expectedTimestamp time.Time) ([]byte, error) {
	author, ts, content, err := VerifySignedMeta(signed, key)
	if err != nil {
		return nil, err
	}
	if author != expectedAuthor {
		return nil, fmt.Errorf("%w: expected %q, got %q", ErrAuthorMismatch, expectedAuthor, author)
	}
	if !ts.Equal(expectedTimestamp) {
		return nil, fmt.Errorf("%w: expected %s, got %s", ErrTimestampMismatch, expectedTimestamp, ts)
	}
	return content, nil
}

// VerifySignedMeta checks the signature and returns the envelope meta along
// with the content.
func VerifySignedMeta(signed []byte, key VerifyKey) (author string, timestamp time.Time, content []byte, err error) {
	payload, err := Verify(key, signed)
	if err != nil {
		return "", time.Time{}, nil, err
	}
	env, err := unpack(payload)
	if err != nil {
		return "", time.Time{}, nil, err
	}
	return envAuthor(env), env.Timestamp.UTC(), env.Content, nil
}

// UnsecureExtractMeta reads the author and timestamp of signed without
// checking the signature. Nothing it returns may be trusted until the
// envelope goes through VerifySigned.
func UnsecureExtractMeta(signed []byte) (author string, timestamp time.Time, err error) {
	if len(signed) < ed25519.SignatureSize {
		return "", time.Time{}, fmt.Errorf("%w: missing signature", ErrPacking)
	}
	env, err := unpack(signed[ed25519.SignatureSize:])
	if err != nil {
		return "", time.Time{}, err
	}
	return envAuthor(env), env.Timestamp.UTC(), nil
}

func envAuthor(env *signedEnvelope) string {
	if env.Author == nil {
		return RootAuthor
	}
	return *env.Author
}

func unpack(payload []byte) (*signedEnvelope, error) {
	raw, err := decompress(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPacking, err)
	}
	env := &signedEnvelope{}
	if err := msgpack.Unmarshal(raw, env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPacking, err)
	}
	return env, nil
}

func compress(raw []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	if _, err := w.Write(raw); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decompress(packed []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(packed))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	raw, err := io.ReadAll(io.LimitReader(r, MaxUnpackedSize+1))
	if err != nil {
		return nil, err
	}
	if len(raw) > MaxUnpackedSize {
		return nil, ErrTooLarge
	}
	return raw, nil
}
