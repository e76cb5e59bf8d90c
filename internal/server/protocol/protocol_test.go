package protocol

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

func TestNegotiate(t *testing.T) {
	tests := []struct {
		name    string
		header  string
		want    APIVersion
		wantErr bool
	}{
		{"exact", "4.0", APIVersion{4, 0}, false},
		{"lower minor", "3.1", APIVersion{3, 1}, false},
		{"higher minor capped", "2.99", APIVersion{2, 8}, false},
		{"pick highest common", "2.5,3.0,9.0", APIVersion{3, 0}, false},
		{"semicolons", "9.1;4.0", APIVersion{4, 0}, false},
		{"none", "1.0", APIVersion{}, true},
		{"garbage", "four", APIVersion{}, true},
		{"empty", "", APIVersion{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Negotiate(tt.header, SupportedAPIVersions)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnsupportedAPIVersion)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSupportedAPIVersionsHeader(t *testing.T) {
	assert.Equal(t, "2.8;3.3;4.0", SupportedAPIVersionsHeader())
}

func TestLoadReq_RoundTrip(t *testing.T) {
	vlobID := uuid.New()
	ts := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	raw, err := DumpReq(&VlobUpdateReq{
		EncryptionRevision: 1,
		VlobID:             vlobID,
		Timestamp:          ts,
		Version:            2,
		Blob:               []byte("ciphertext2"),
	})
	require.NoError(t, err)

	req, err := LoadReq(KindAuthenticated, APIVersion{4, 0}, raw)
	require.NoError(t, err)

	got, ok := req.(*VlobUpdateReq)
	require.True(t, ok, "got %T", req)
	assert.Equal(t, vlobID, got.VlobID)
	assert.Equal(t, uint64(2), got.Version)
	assert.True(t, got.Timestamp.Equal(ts))
	assert.Equal(t, []byte("ciphertext2"), got.Blob)
}

func TestLoadReq_Errors(t *testing.T) {
	ping, err := DumpReq(&PingReq{Ping: "hi"})
	require.NoError(t, err)
	listen, err := DumpReq(&EventsListenReq{Wait: true})
	require.NoError(t, err)
	certGet, err := DumpReq(&CertificateGetReq{})
	require.NoError(t, err)
	unknown, err := msgpack.Marshal(map[string]any{"cmd": "launch_rocket"})
	require.NoError(t, err)

	_, err = LoadReq(KindAnonymous, APIVersion{4, 0}, []byte{0xc1})
	assert.ErrorIs(t, err, ErrInvalidMsgFormat)

	_, err = LoadReq(KindAnonymous, APIVersion{4, 0}, unknown)
	assert.ErrorIs(t, err, ErrUnknownCommand)

	// events_listen is replaced by SSE from API 4.
	_, err = LoadReq(KindAuthenticated, APIVersion{4, 0}, listen)
	assert.ErrorIs(t, err, ErrUnknownCommand)
	_, err = LoadReq(KindAuthenticated, APIVersion{2, 8}, listen)
	assert.NoError(t, err)

	_, err = LoadReq(KindAuthenticated, APIVersion{3, 0}, certGet)
	assert.ErrorIs(t, err, ErrUnknownCommand)

	// ping exists for every kind
	for _, kind := range []ConnectionKind{KindAnonymous, KindInvited, KindAuthenticated} {
		_, err = LoadReq(kind, APIVersion{4, 0}, ping)
		assert.NoError(t, err, kind)
	}

	// invited commands are not reachable anonymously
	info, err := DumpReq(&InviteInfoReq{})
	require.NoError(t, err)
	_, err = LoadReq(KindAnonymous, APIVersion{4, 0}, info)
	assert.ErrorIs(t, err, ErrUnknownCommand)
}

func TestDumpRep_StructuredError(t *testing.T) {
	ts := time.Date(2020, 1, 1, 10, 0, 0, 0, time.UTC)
	raw, err := DumpRep(&RequireGreaterTimestampRep{
		Status:              StatusRequireGreaterTimestamp,
		StrictlyGreaterThan: ts,
	})
	require.NoError(t, err)

	var out map[string]any
	require.NoError(t, LoadRep(raw, &out))
	assert.Equal(t, "require_greater_timestamp", out["status"])
	gt, ok := out["strictly_greater_than"].(time.Time)
	require.True(t, ok)
	assert.True(t, gt.Equal(ts))
}

func TestCommands(t *testing.T) {
	v3 := Commands(KindAuthenticated, APIVersion{3, 0})
	v4 := Commands(KindAuthenticated, APIVersion{4, 0})
	assert.Contains(t, v3, "events_listen")
	assert.NotContains(t, v4, "events_listen")
	assert.Contains(t, v4, "certificate_get")
	assert.Contains(t, Commands(KindInvited, APIVersion{2, 0}), "invite_4_claimer_communicate")
}
