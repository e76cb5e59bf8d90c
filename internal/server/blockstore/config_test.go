package blockstore

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/Scille/parsec-cloud-sub009/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConfig(t *testing.T) {
	tests := []struct {
		name    string
		specs   []string
		want    Config
		wantErr bool
	}{
		{name: "mocked", specs: []string{"MOCKED"}, want: Config{Type: TypeMocked}},
		{name: "postgresql", specs: []string{"postgresql"}, want: Config{Type: TypePostgreSQL}},
		{
			name:  "s3 without endpoint",
			specs: []string{"s3:eu-west-1:blocks:key:secret"},
			want:  Config{Type: TypeS3, S3: &S3Config{Region: "eu-west-1", Bucket: "blocks", Key: "key", Secret: "secret"}},
		},
		{
			name:  "s3 with escaped endpoint",
			specs: []string{`s3:http\://minio\:9000:eu-west-1:blocks:key:secret`},
			want: Config{Type: TypeS3, S3: &S3Config{
				Endpoint: "http://minio:9000", Region: "eu-west-1", Bucket: "blocks", Key: "key", Secret: "secret",
			}},
		},
		{
			name:  "swift",
			specs: []string{`swift:https\://auth.example.com/v2.0:tenant:parsec:user:pass`},
			want: Config{Type: TypeSwift, Swift: &SwiftConfig{
				AuthURL: "https://auth.example.com/v2.0", Tenant: "tenant", Container: "parsec", User: "user", Password: "pass",
			}},
		},
		{
			name:  "raid1 out of order",
			specs: []string{"raid1:1:POSTGRESQL", "raid1:0:MOCKED"},
			want:  Config{Type: TypeRAID1, Nodes: []Config{{Type: TypeMocked}, {Type: TypePostgreSQL}}},
		},
		{
			name:  "raid5",
			specs: []string{"raid5:0:MOCKED", "raid5:1:MOCKED", "raid5:2:MOCKED"},
			want:  Config{Type: TypeRAID5, Nodes: []Config{{Type: TypeMocked}, {Type: TypeMocked}, {Type: TypeMocked}}},
		},
		{name: "empty", specs: nil, wantErr: true},
		{name: "unknown", specs: []string{"ftp:foo"}, wantErr: true},
		{name: "two without raid", specs: []string{"MOCKED", "MOCKED"}, wantErr: true},
		{name: "raid5 too small", specs: []string{"raid5:0:MOCKED", "raid5:1:MOCKED"}, wantErr: true},
		{name: "raid gap", specs: []string{"raid0:0:MOCKED", "raid0:2:MOCKED"}, wantErr: true},
		{name: "raid duplicate", specs: []string{"raid0:0:MOCKED", "raid0:0:MOCKED"}, wantErr: true},
		{name: "mixed raid", specs: []string{"raid0:0:MOCKED", "raid1:1:MOCKED"}, wantErr: true},
		{name: "bad s3", specs: []string{"s3:only:three"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseConfig(tt.specs)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestConfig_UnmarshalJSON(t *testing.T) {
	var fromString struct {
		Blockstore Config `json:"blockstore"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"blockstore": "raid1:0:MOCKED, raid1:1:MOCKED"}`), &fromString))
	assert.Equal(t, TypeRAID1, fromString.Blockstore.Type)
	assert.Len(t, fromString.Blockstore.Nodes, 2)

	var fromObject struct {
		Blockstore Config `json:"blockstore"`
	}
	raw := `{"blockstore": {"type": "RAID1", "partial_create_ok": true, "nodes": [{"type": "MOCKED"}, "MOCKED"]}}`
	require.NoError(t, json.Unmarshal([]byte(raw), &fromObject))
	assert.True(t, fromObject.Blockstore.PartialCreateOK)
	assert.Equal(t, []Config{{Type: TypeMocked}, {Type: TypeMocked}}, fromObject.Blockstore.Nodes)
}

func TestNew(t *testing.T) {
	ctx := context.Background()

	bs, err := New(ctx, Config{Type: TypeMocked}, nil, logging.Nop())
	require.NoError(t, err)
	assert.IsType(t, &MemoryBlockstore{}, bs)

	_, err = New(ctx, Config{Type: TypePostgreSQL}, nil, logging.Nop())
	assert.Error(t, err)

	bs, err = New(ctx, Config{Type: TypeRAID5, Nodes: []Config{{Type: TypeMocked}, {Type: TypeMocked}, {Type: TypeMocked}}}, nil, logging.Nop())
	require.NoError(t, err)
	assert.IsType(t, &RAID5Blockstore{}, bs)

	_, err = New(ctx, Config{Type: TypeRAID1}, nil, logging.Nop())
	assert.Error(t, err)

	_, err = New(ctx, Config{Type: "FTP"}, nil, logging.Nop())
	assert.Error(t, err)
}
