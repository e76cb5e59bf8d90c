package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Scille/parsec-cloud-sub009/internal/cryptox"
	"github.com/Scille/parsec-cloud-sub009/internal/logging"
	"github.com/Scille/parsec-cloud-sub009/internal/server/events"
	"github.com/Scille/parsec-cloud-sub009/internal/server/models"
	"github.com/Scille/parsec-cloud-sub009/internal/server/webhooks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrganizationService_Create(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t)

	first, err := e.svc.Organizations.Create(ctx, CreateParams{OrganizationID: coolOrg})
	require.NoError(t, err)
	limit := int64(3)
	second, err := e.svc.Organizations.Create(ctx, CreateParams{OrganizationID: coolOrg, ActiveUsersLimit: &limit})
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	org, err := e.svc.Organizations.Get(ctx, coolOrg)
	require.NoError(t, err)
	assert.Equal(t, second, org.BootstrapToken)
	assert.Equal(t, &limit, org.ActiveUsersLimit)
	assert.True(t, org.UserProfileOutsiderAllowed)

	_, err = e.svc.Organizations.Create(ctx, CreateParams{OrganizationID: "bad id!"})
	assert.ErrorIs(t, err, ErrInvalidData)
}

func TestOrganizationService_CreateAfterBootstrap(t *testing.T) {
	e := newTestEnv(t)
	e.bootstrap(t)

	_, err := e.svc.Organizations.Create(context.Background(), CreateParams{OrganizationID: coolOrg})
	assert.ErrorIs(t, err, ErrAlreadyExists)
}

func TestOrganizationService_Bootstrap(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		prepare func(e *testEnv, p *BootstrapParams)
		wantErr error
	}{
		{
			name:    "ok",
			prepare: func(e *testEnv, p *BootstrapParams) {},
		},
		{
			name:    "bad token",
			prepare: func(e *testEnv, p *BootstrapParams) { p.BootstrapToken = "nope" },
			wantErr: ErrInvalidBootstrapToken,
		},
		{
			name:    "unknown organization",
			prepare: func(e *testEnv, p *BootstrapParams) { p.OrganizationID = "OtherOrg" },
			wantErr: ErrNotFound,
		},
		{
			name: "signed by another root key",
			prepare: func(e *testEnv, p *BootstrapParams) {
				_, other, err := cryptox.GenerateSigningKey()
				require.NoError(t, err)
				p.RootVerifyKey = other
			},
			wantErr: ErrInvalidCertification,
		},
		{
			name: "stale certificates",
			prepare: func(e *testEnv, p *BootstrapParams) {
				e.clock.Advance(time.Hour)
			},
			wantErr: ErrBadTimestamp,
		},
		{
			name: "redacted certificate of another user",
			prepare: func(e *testEnv, p *BootstrapParams) {
				other, _ := e.userCerts(t, nil, "bob@dev1", models.UserProfileAdmin, nil)
				p.RedactedUserCertificate = other.User
			},
			wantErr: ErrInvalidData,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEnv(t)
			token, err := e.svc.Organizations.Create(ctx, CreateParams{OrganizationID: coolOrg})
			require.NoError(t, err)
			certs, _ := e.userCerts(t, nil, "alice@dev1", models.UserProfileAdmin, humanHandle("alice"))
			p := BootstrapParams{
				OrganizationID:            coolOrg,
				BootstrapToken:            token,
				RootVerifyKey:             e.rootKey.Public().(cryptox.VerifyKey),
				UserCertificate:           certs.User,
				DeviceCertificate:         certs.Device,
				RedactedUserCertificate:   certs.RedactedUser,
				RedactedDeviceCertificate: certs.RedactedDevice,
			}
			tt.prepare(e, &p)

			err = e.svc.Organizations.Bootstrap(ctx, p)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)

			org, err := e.svc.Organizations.Get(ctx, coolOrg)
			require.NoError(t, err)
			assert.True(t, org.IsBootstrapped())
			assert.ErrorIs(t, e.svc.Organizations.Bootstrap(ctx, p), ErrAlreadyBootstrapped)
		})
	}
}

func TestOrganizationService_BootstrapOversizedCertificates(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t)
	token, err := e.svc.Organizations.Create(ctx, CreateParams{OrganizationID: coolOrg})
	require.NoError(t, err)

	bomb, err := cryptox.BuildSigned(cryptox.RootAuthor, e.rootKey, make([]byte, 4*cryptox.MaxUnpackedSize), t0)
	require.NoError(t, err)
	p := BootstrapParams{
		OrganizationID:    coolOrg,
		RootVerifyKey:     e.rootKey.Public().(cryptox.VerifyKey),
		UserCertificate:   bomb,
		DeviceCertificate: bomb,
	}

	p.BootstrapToken = "nope"
	assert.ErrorIs(t, e.svc.Organizations.Bootstrap(ctx, p), ErrInvalidBootstrapToken)

	p.BootstrapToken = token
	assert.ErrorIs(t, e.svc.Organizations.Bootstrap(ctx, p), ErrInvalidCertification)

	e.bootstrapWithToken(t, token)
	assert.ErrorIs(t, e.svc.Organizations.Bootstrap(ctx, p), ErrAlreadyBootstrapped)
}

func TestOrganizationService_BootstrapBadTimestampDetails(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t)
	token, err := e.svc.Organizations.Create(ctx, CreateParams{OrganizationID: coolOrg})
	require.NoError(t, err)
	certs, _ := e.userCerts(t, nil, "alice@dev1", models.UserProfileAdmin, nil)
	e.clock.Advance(time.Hour)

	err = e.svc.Organizations.Bootstrap(ctx, BootstrapParams{
		OrganizationID: coolOrg, BootstrapToken: token,
		RootVerifyKey:   e.rootKey.Public().(cryptox.VerifyKey),
		UserCertificate: certs.User, DeviceCertificate: certs.Device,
	})
	var bad *BadTimestampError
	require.True(t, errors.As(err, &bad))
	assert.True(t, bad.ClientTimestamp.Equal(t0))
	assert.True(t, bad.BackendTimestamp.Equal(t0.Add(time.Hour)))
}

func TestOrganizationService_BootstrapRequiresAdmin(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t)
	token, err := e.svc.Organizations.Create(ctx, CreateParams{OrganizationID: coolOrg})
	require.NoError(t, err)
	certs, _ := e.userCerts(t, nil, "alice@dev1", models.UserProfileStandard, nil)

	err = e.svc.Organizations.Bootstrap(ctx, BootstrapParams{
		OrganizationID: coolOrg, BootstrapToken: token,
		RootVerifyKey:   e.rootKey.Public().(cryptox.VerifyKey),
		UserCertificate: certs.User, DeviceCertificate: certs.Device,
	})
	assert.ErrorIs(t, err, ErrInvalidData)
}

func TestOrganizationService_SpontaneousBootstrap(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t, func(d *Deps) { d.SpontaneousBootstrap = true })
	certs, _ := e.userCerts(t, nil, "alice@dev1", models.UserProfileAdmin, nil)

	err := e.svc.Organizations.Bootstrap(ctx, BootstrapParams{
		OrganizationID:  coolOrg,
		RootVerifyKey:   e.rootKey.Public().(cryptox.VerifyKey),
		UserCertificate: certs.User, DeviceCertificate: certs.Device,
	})
	require.NoError(t, err)

	org, err := e.svc.Organizations.Get(ctx, coolOrg)
	require.NoError(t, err)
	assert.True(t, org.IsBootstrapped())
}

func TestOrganizationService_BootstrapWebhook(t *testing.T) {
	got := make(chan webhooks.BootstrapInfo, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var info webhooks.BootstrapInfo
		if err := json.NewDecoder(r.Body).Decode(&info); err == nil {
			got <- info
		}
	}))
	defer srv.Close()

	e := newTestEnv(t, func(d *Deps) {
		d.BootstrapHook = webhooks.NewBootstrapNotifier(srv.URL, logging.Nop())
	})
	e.bootstrap(t)

	select {
	case info := <-got:
		assert.Equal(t, coolOrg, info.OrganizationID)
		assert.Equal(t, models.DeviceID("alice@dev1"), info.DeviceID)
		require.NotNil(t, info.HumanEmail)
		assert.Equal(t, "alice@example.com", *info.HumanEmail)
	case <-time.After(5 * time.Second):
		t.Fatal("bootstrap webhook not called")
	}
}

func TestOrganizationService_UpdateExpired(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t)
	e.bootstrap(t)
	expired := record(t, e.bus, events.TypeOrganizationExpired)

	yes := true
	require.NoError(t, e.svc.Organizations.Update(ctx, coolOrg, models.OrganizationUpdate{IsExpired: &yes}))

	org, err := e.svc.Organizations.Get(ctx, coolOrg)
	require.NoError(t, err)
	assert.True(t, org.IsExpired)
	assert.Len(t, expired(), 1)

	assert.ErrorIs(t, e.svc.Organizations.Update(ctx, "Unknown", models.OrganizationUpdate{IsExpired: &yes}), ErrNotFound)
}

func TestOrganizationService_Stats(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t)
	alice := e.bootstrap(t)
	e.clock.Advance(time.Minute)
	bob := e.createUser(t, alice, "bob@dev1", models.UserProfileStandard)
	e.createRealm(t, bob)

	stats, err := e.svc.Organizations.CallerStats(ctx, alice.caller())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Users)
	assert.Equal(t, 2, stats.ActiveUsers)
	assert.Equal(t, 1, stats.Realms)
	assert.Contains(t, stats.UsersPerProfileDetail, models.UsersPerProfileDetail{Profile: models.UserProfileAdmin, Active: 1})
	assert.Contains(t, stats.UsersPerProfileDetail, models.UsersPerProfileDetail{Profile: models.UserProfileStandard, Active: 1})

	_, err = e.svc.Organizations.CallerStats(ctx, bob.caller())
	assert.ErrorIs(t, err, ErrNotAllowed)

	// only alice existed at t0
	items, err := e.svc.Organizations.ServerStats(ctx, t0)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 1, items[0].Stats.Users)
	assert.Equal(t, 0, items[0].Stats.Realms)
	assert.True(t, items[0].IsBootstrapped)
}

func TestOrganizationService_Config(t *testing.T) {
	e := newTestEnv(t)
	alice := e.bootstrap(t)

	cfg, err := e.svc.Organizations.Config(context.Background(), alice.caller())
	require.NoError(t, err)
	assert.Nil(t, cfg.ActiveUsersLimit)
	assert.True(t, cfg.UserProfileOutsiderAllowed)
	assert.Nil(t, cfg.SequesterAuthorityCertificate)
}
