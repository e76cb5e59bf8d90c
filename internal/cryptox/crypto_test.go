package cryptox

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ts = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

func TestBuildSigned_RoundTrip(t *testing.T) {
	sk, vk, err := GenerateSigningKey()
	require.NoError(t, err)

	signed, err := BuildSigned("alice@dev1", sk, []byte("content"), ts)
	require.NoError(t, err)

	got, err := VerifySigned(signed, "alice@dev1", vk, ts)
	require.NoError(t, err)
	assert.Equal(t, []byte("content"), got)
}

func TestBuildSigned_RootAuthor(t *testing.T) {
	sk, vk, err := GenerateSigningKey()
	require.NoError(t, err)

	signed, err := BuildSigned(RootAuthor, sk, []byte("c"), ts)
	require.NoError(t, err)

	author, when, _, err := VerifySignedMeta(signed, vk)
	require.NoError(t, err)
	assert.Equal(t, RootAuthor, author)
	assert.True(t, when.Equal(ts))

	_, err = VerifySigned(signed, RootAuthor, vk, ts)
	require.NoError(t, err)
}

func TestVerifySigned_Errors(t *testing.T) {
	sk, vk, err := GenerateSigningKey()
	require.NoError(t, err)
	_, otherVK, err := GenerateSigningKey()
	require.NoError(t, err)

	signed, err := BuildSigned("alice@dev1", sk, []byte("content"), ts)
	require.NoError(t, err)

	tampered := bytes.Clone(signed)
	tampered[len(tampered)-1] ^= 0xff

	tests := []struct {
		name   string
		data   []byte
		author string
		vk     VerifyKey
		when   time.Time
		want   error
	}{
		{"wrong key", signed, "alice@dev1", otherVK, ts, ErrBadSignature},
		{"tampered", tampered, "alice@dev1", vk, ts, ErrBadSignature},
		{"too short", []byte("abc"), "alice@dev1", vk, ts, ErrBadSignature},
		{"author", signed, "bob@dev1", vk, ts, ErrAuthorMismatch},
		{"timestamp", signed, "alice@dev1", vk, ts.Add(time.Second), ErrTimestampMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := VerifySigned(tt.data, tt.author, tt.vk, tt.when)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestVerifySigned_BadPacking(t *testing.T) {
	sk, vk, err := GenerateSigningKey()
	require.NoError(t, err)

	signed := Sign(sk, []byte("not zlib"))
	_, err = VerifySigned(signed, "a@b", vk, ts)
	assert.ErrorIs(t, err, ErrPacking)

}

func TestVerifySigned_DecompressionBomb(t *testing.T) {
	sk, vk, err := GenerateSigningKey()
	require.NoError(t, err)

	// Zeros compress about a thousand times, the envelope stays small.
	bomb, err := BuildSigned("alice@dev1", sk, make([]byte, 8*MaxUnpackedSize), ts)
	require.NoError(t, err)
	require.Less(t, len(bomb), MaxUnpackedSize/8)

	_, _, _, err = VerifySignedMeta(bomb, vk)
	assert.ErrorIs(t, err, ErrPacking)
	assert.ErrorIs(t, err, ErrTooLarge)

	fits, err := BuildSigned("alice@dev1", sk, make([]byte, MaxUnpackedSize/2), ts)
	require.NoError(t, err)
	content, err := VerifySigned(fits, "alice@dev1", vk, ts)
	require.NoError(t, err)
	assert.Len(t, content, MaxUnpackedSize/2)
}

func TestUnsecureExtractMeta(t *testing.T) {
	sk, _, err := GenerateSigningKey()
	require.NoError(t, err)

	signed, err := BuildSigned("alice@dev1", sk, []byte("content"), ts)
	require.NoError(t, err)
	forged := bytes.Clone(signed)
	forged[0] ^= 0xff
	root, err := BuildSigned(RootAuthor, sk, []byte("content"), ts)
	require.NoError(t, err)
	bomb, err := BuildSigned("alice@dev1", sk, make([]byte, 2*MaxUnpackedSize), ts)
	require.NoError(t, err)

	tests := []struct {
		name       string
		data       []byte
		wantAuthor string
		wantErr    error
	}{
		{name: "signed", data: signed, wantAuthor: "alice@dev1"},
		{name: "forged signature", data: forged, wantAuthor: "alice@dev1"},
		{name: "root", data: root, wantAuthor: RootAuthor},
		{name: "too short", data: []byte("abc"), wantErr: ErrPacking},
		{name: "not zlib", data: Sign(sk, []byte("not zlib")), wantErr: ErrPacking},
		{name: "too large", data: bomb, wantErr: ErrTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			author, when, err := UnsecureExtractMeta(tt.data)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantAuthor, author)
			assert.True(t, when.Equal(ts))
		})
	}
}

func TestLoadVerifyKey(t *testing.T) {
	_, vk, err := GenerateSigningKey()
	require.NoError(t, err)

	got, err := LoadVerifyKey([]byte(vk))
	require.NoError(t, err)
	assert.Equal(t, vk, got)

	_, err = LoadVerifyKey([]byte("short"))
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestSealedBox(t *testing.T) {
	pub, priv, err := GenerateBoxKey()
	require.NoError(t, err)
	otherPub, otherPriv, err := GenerateBoxKey()
	require.NoError(t, err)

	ct, err := EncryptFor(pub, []byte("hello"))
	require.NoError(t, err)

	pt, err := DecryptFor(pub, priv, ct)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), pt)

	_, err = DecryptFor(otherPub, otherPriv, ct)
	assert.ErrorIs(t, err, ErrDecryption)
}

func TestSecretBox(t *testing.T) {
	key, err := GenerateSecretKey()
	require.NoError(t, err)
	other, err := GenerateSecretKey()
	require.NoError(t, err)

	ct, err := EncryptWith(key, []byte("hello"))
	require.NoError(t, err)

	pt, err := DecryptWith(key, ct)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), pt)

	_, err = DecryptWith(other, ct)
	assert.ErrorIs(t, err, ErrDecryption)

	_, err = DecryptWith(key, []byte("short"))
	assert.ErrorIs(t, err, ErrDecryption)
}

func TestFingerprint(t *testing.T) {
	a := Fingerprint([]byte("a"))
	assert.Len(t, a, 32)
	assert.Equal(t, a, Fingerprint([]byte("a")))
	assert.NotEqual(t, a, Fingerprint([]byte("b")))
}
