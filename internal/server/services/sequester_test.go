package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Scille/parsec-cloud-sub009/internal/cryptox"
	"github.com/Scille/parsec-cloud-sub009/internal/server/certificates"
	"github.com/Scille/parsec-cloud-sub009/internal/server/models"
	"github.com/Scille/parsec-cloud-sub009/internal/server/webhooks"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWebhook struct {
	posted map[uuid.UUID][]byte
	err    error
}

func (f *fakeWebhook) Post(_ context.Context, _ models.OrganizationID, svc *models.SequesterService, blob []byte) error {
	if f.err != nil {
		return f.err
	}
	if f.posted == nil {
		f.posted = make(map[uuid.UUID][]byte)
	}
	f.posted[svc.ServiceID] = blob
	return nil
}

func newSequesteredEnv(t *testing.T, opts ...func(*Deps)) (*testEnv, *testDevice) {
	t.Helper()
	e := newTestEnv(t, opts...)
	var err error
	e.authorityKey, _, err = cryptox.GenerateSigningKey()
	require.NoError(t, err)
	return e, e.bootstrap(t)
}

func (e *testEnv) serviceCert(t *testing.T, key cryptox.SigningKey, label string) (uuid.UUID, []byte) {
	t.Helper()
	id := uuid.New()
	return id, sign(t, &certificates.SequesterServiceCertificate{
		Timestamp: e.clock.Now(), ServiceID: id, ServiceLabel: label, EncryptionKey: []byte("public key der"),
	}, key)
}

func (e *testEnv) registerService(t *testing.T, typ models.SequesterServiceType, label string) uuid.UUID {
	t.Helper()
	id, cert := e.serviceCert(t, e.authorityKey, label)
	p := SequesterRegisterParams{Certificate: cert, Type: typ}
	if typ == models.SequesterServiceTypeWebhook {
		p.WebhookURL = "https://sequester.example.com/" + label
	}
	_, err := e.svc.Sequester.Register(context.Background(), coolOrg, p)
	require.NoError(t, err)
	return id
}

func TestSequesterService_Register(t *testing.T) {
	ctx := context.Background()
	e, alice := newSequesteredEnv(t)

	id := e.registerService(t, models.SequesterServiceTypeStorage, "storage")
	services, err := e.svc.Sequester.List(ctx, coolOrg)
	require.NoError(t, err)
	require.Len(t, services, 1)
	assert.Equal(t, id, services[0].ServiceID)
	assert.Equal(t, "storage", services[0].ServiceLabel)
	assert.True(t, services[0].IsEnabled())

	cfg, err := e.svc.Organizations.Config(ctx, alice.caller())
	require.NoError(t, err)
	assert.NotNil(t, cfg.SequesterAuthorityCertificate)
	assert.Len(t, cfg.SequesterServicesCertificates, 1)

	// signed by the root key instead of the authority
	_, cert := e.serviceCert(t, e.rootKey, "rogue")
	_, err = e.svc.Sequester.Register(ctx, coolOrg, SequesterRegisterParams{Certificate: cert, Type: models.SequesterServiceTypeStorage})
	assert.ErrorIs(t, err, ErrInvalidCertification)

	_, cert = e.serviceCert(t, e.authorityKey, "hook")
	_, err = e.svc.Sequester.Register(ctx, coolOrg, SequesterRegisterParams{Certificate: cert, Type: models.SequesterServiceTypeWebhook})
	assert.ErrorIs(t, err, ErrInvalidData)
	_, err = e.svc.Sequester.Register(ctx, coolOrg, SequesterRegisterParams{Certificate: cert, Type: "CARRIER_PIGEON"})
	assert.ErrorIs(t, err, ErrInvalidData)

	require.NoError(t, e.svc.Sequester.Disable(ctx, coolOrg, id))
	assert.ErrorIs(t, e.svc.Sequester.Disable(ctx, coolOrg, id), ErrAlreadyDisabled)
	assert.ErrorIs(t, e.svc.Sequester.Disable(ctx, coolOrg, uuid.New()), ErrNotFound)

	cfg, err = e.svc.Organizations.Config(ctx, alice.caller())
	require.NoError(t, err)
	assert.Empty(t, cfg.SequesterServicesCertificates)
}

func TestSequesterService_NotSequestered(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t)
	e.bootstrap(t)
	key, _, err := cryptox.GenerateSigningKey()
	require.NoError(t, err)
	_, cert := e.serviceCert(t, key, "storage")

	_, err = e.svc.Sequester.Register(ctx, coolOrg, SequesterRegisterParams{Certificate: cert, Type: models.SequesterServiceTypeStorage})
	assert.ErrorIs(t, err, ErrNotASequesteredOrg)
	_, err = e.svc.Sequester.List(ctx, coolOrg)
	assert.ErrorIs(t, err, ErrNotASequesteredOrg)
}

func TestVlobService_Sequester(t *testing.T) {
	ctx := context.Background()
	hook := &fakeWebhook{}
	e, alice := newSequesteredEnv(t, func(d *Deps) { d.Sequester = hook })
	storage := e.registerService(t, models.SequesterServiceTypeStorage, "storage")
	webhook := e.registerService(t, models.SequesterServiceTypeWebhook, "webhook")
	realm := e.createRealm(t, alice)
	e.clock.Advance(time.Second)

	create := func(blob map[uuid.UUID][]byte) (uuid.UUID, error) {
		vlob := uuid.New()
		return vlob, e.svc.Vlobs.Create(ctx, alice.caller(), VlobCreateParams{
			RealmID: realm, EncryptionRevision: 1, VlobID: vlob, Timestamp: e.clock.Now(),
			Blob: []byte("blob"), SequesterBlob: blob,
		})
	}

	_, err := create(nil)
	var inconsistent *SequesterInconsistencyError
	require.True(t, errors.As(err, &inconsistent))
	assert.NotNil(t, inconsistent.AuthorityCertificate)
	assert.Len(t, inconsistent.ServiceCertificates, 2)

	_, err = create(map[uuid.UUID][]byte{storage: []byte("s"), uuid.New(): []byte("w")})
	assert.ErrorIs(t, err, ErrSequesterInconsistency)

	vlob, err := create(map[uuid.UUID][]byte{storage: []byte("for storage"), webhook: []byte("for webhook")})
	require.NoError(t, err)
	assert.Equal(t, map[uuid.UUID][]byte{webhook: []byte("for webhook")}, hook.posted)

	res, err := e.svc.Vlobs.Read(ctx, alice.caller(), 1, vlob, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, map[uuid.UUID][]byte{storage: []byte("for storage")}, res.Atom.SequesterBlob)

	hook.err = &webhooks.RejectedError{ServiceID: webhook, Reason: "no thanks"}
	_, err = create(map[uuid.UUID][]byte{storage: []byte("s"), webhook: []byte("w")})
	var rejected *RejectedBySequesterServiceError
	require.True(t, errors.As(err, &rejected))
	assert.Equal(t, webhook, rejected.ServiceID)
	assert.Equal(t, "webhook", rejected.ServiceLabel)
	assert.Equal(t, "no thanks", rejected.Reason)

	hook.err = webhooks.ErrUnavailable
	_, err = create(map[uuid.UUID][]byte{storage: []byte("s"), webhook: []byte("w")})
	assert.ErrorIs(t, err, ErrTimeout)

	// disabled services are no longer expected
	require.NoError(t, e.svc.Sequester.Disable(ctx, coolOrg, webhook))
	_, err = create(map[uuid.UUID][]byte{storage: []byte("s")})
	assert.NoError(t, err)
}
