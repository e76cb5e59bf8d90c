package httpserver

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/Scille/parsec-cloud-sub009/internal/common"
	"github.com/Scille/parsec-cloud-sub009/internal/cryptox"
	"github.com/Scille/parsec-cloud-sub009/internal/server/auth"
	"github.com/Scille/parsec-cloud-sub009/internal/server/certificates"
	"github.com/Scille/parsec-cloud-sub009/internal/server/protocol"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (e *testEnv) admin(t *testing.T, method, path string, body any, out any) int {
	t.Helper()
	return e.adminWithToken(t, "Bearer "+adminToken, method, path, body, out)
}

func (e *testEnv) adminWithToken(t *testing.T, authorization, method, path string, body any, out any) int {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, e.ts.URL+"/administration"+path, reader)
	require.NoError(t, err)
	req.Header.Set(common.HeaderAuthorization, authorization)
	resp, err := e.ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestAdmin_Authorization(t *testing.T) {
	e := newTestEnv(t)
	jwtToken, err := auth.GenerateToken([]byte(adminToken), time.Minute)
	require.NoError(t, err)

	tests := []struct {
		name          string
		authorization string
		want          int
	}{
		{name: "raw token", authorization: "Bearer " + adminToken, want: http.StatusNotFound},
		{name: "jwt", authorization: "Bearer " + jwtToken, want: http.StatusNotFound},
		{name: "missing", authorization: "", want: http.StatusForbidden},
		{name: "wrong token", authorization: "Bearer nope", want: http.StatusForbidden},
		{name: "wrong scheme", authorization: "Basic " + adminToken, want: http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var rep map[string]string
			status := e.adminWithToken(t, tt.authorization, http.MethodGet, "/organizations/NoSuchOrg", nil, &rep)
			assert.Equal(t, tt.want, status)
			if tt.want == http.StatusForbidden {
				assert.Equal(t, "not_allowed", rep["error"])
			} else {
				assert.Equal(t, "not_found", rep["error"])
			}
		})
	}
}

func TestAdmin_Organizations(t *testing.T) {
	e := newTestEnv(t)

	var created map[string]string
	require.Equal(t, http.StatusOK, e.admin(t, http.MethodPost, "/organizations", map[string]any{
		"organization_id": "CoolOrg", "active_users_limit": 10,
	}, &created))
	require.NotEmpty(t, created["bootstrap_token"])

	var rep map[string]string
	assert.Equal(t, http.StatusBadRequest, e.admin(t, http.MethodPost, "/organizations", map[string]any{"organization_id": "bad org"}, &rep))
	assert.Equal(t, "bad_data", rep["error"])
	assert.Equal(t, http.StatusBadRequest, e.admin(t, http.MethodPost, "/organizations", map[string]any{"organization_id": "Other", "dummy": 1}, &rep))

	var org organizationRep
	require.Equal(t, http.StatusOK, e.admin(t, http.MethodGet, "/organizations/CoolOrg", nil, &org))
	limit := int64(10)
	assert.Equal(t, organizationRep{ActiveUsersLimit: &limit, UserProfileOutsiderAllowed: true}, org)

	// The token is usable to bootstrap over RPC.
	req, alice := e.bootstrapReq(t, created["bootstrap_token"])
	var boot protocol.ErrorRep
	e.callAnonymous(t, coolOrg, req, &boot)
	require.Equal(t, protocol.StatusOK, boot.Status)

	// Only organizations not bootstrapped yet can be created again.
	assert.Equal(t, http.StatusBadRequest, e.admin(t, http.MethodPost, "/organizations", map[string]any{"organization_id": "CoolOrg"}, &rep))
	assert.Equal(t, "already_exists", rep["error"])

	require.Equal(t, http.StatusOK, e.admin(t, http.MethodPatch, "/organizations/CoolOrg", `{"active_users_limit": null, "user_profile_outsider_allowed": false}`, nil))
	org = organizationRep{}
	require.Equal(t, http.StatusOK, e.admin(t, http.MethodGet, "/organizations/CoolOrg", nil, &org))
	assert.Equal(t, organizationRep{IsBootstrapped: true}, org)

	assert.Equal(t, http.StatusBadRequest, e.admin(t, http.MethodPatch, "/organizations/CoolOrg", `{"active_users_limit": "many"}`, nil))
	assert.Equal(t, http.StatusNotFound, e.admin(t, http.MethodPatch, "/organizations/NoSuchOrg", `{"is_expired": true}`, nil))

	require.Equal(t, http.StatusOK, e.admin(t, http.MethodPatch, "/organizations/CoolOrg", `{"is_expired": true}`, nil))
	body := dumpReq(t, &protocol.PingReq{})
	resp := e.post(t, protocol.KindAuthenticated, coolOrg, body, signedBy(alice.id, alice.key, body))
	assert.Equal(t, StatusOrganizationExpired, resp.StatusCode)
}

func TestAdmin_OrganizationStats(t *testing.T) {
	e := newTestEnv(t)
	e.bootstrap(t)

	var stats struct {
		Users       int `json:"users"`
		ActiveUsers int `json:"active_users"`
		Realms      int `json:"realms"`
	}
	require.Equal(t, http.StatusOK, e.admin(t, http.MethodGet, "/organizations/CoolOrg/stats", nil, &stats))
	assert.Equal(t, 1, stats.Users)
	assert.Equal(t, 1, stats.ActiveUsers)
	assert.Equal(t, 0, stats.Realms)

	// No user existed yet.
	require.Equal(t, http.StatusOK, e.admin(t, http.MethodGet, "/organizations/CoolOrg/stats?at=2019-01-01T00:00:00Z", nil, &stats))
	assert.Equal(t, 0, stats.Users)

	assert.Equal(t, http.StatusBadRequest, e.admin(t, http.MethodGet, "/organizations/CoolOrg/stats?at=yesterday", nil, nil))
	assert.Equal(t, http.StatusNotFound, e.admin(t, http.MethodGet, "/organizations/NoSuchOrg/stats", nil, nil))
}

func TestAdmin_ServerStats(t *testing.T) {
	e := newTestEnv(t)
	e.bootstrap(t)
	e.clock.Advance(time.Hour)

	var rep struct {
		Stats []struct {
			OrganizationID string `json:"organization_id"`
			Users          int    `json:"users"`
		} `json:"stats"`
	}
	require.Equal(t, http.StatusOK, e.admin(t, http.MethodGet, "/stats", nil, &rep))
	require.Len(t, rep.Stats, 1)
	assert.Equal(t, "CoolOrg", rep.Stats[0].OrganizationID)
	assert.Equal(t, 1, rep.Stats[0].Users)

	rep.Stats = nil
	require.Equal(t, http.StatusOK, e.admin(t, http.MethodGet, "/stats?from=2020-01-02", nil, &rep))
	assert.Empty(t, rep.Stats)

	rep.Stats = nil
	require.Equal(t, http.StatusOK, e.admin(t, http.MethodGet, "/stats?to=2019-12-31T00:00:00Z", nil, &rep))
	assert.Empty(t, rep.Stats)

	req, err := http.NewRequest(http.MethodGet, e.ts.URL+"/administration/stats?format=csv", nil)
	require.NoError(t, err)
	req.Header.Set(common.HeaderAuthorization, "Bearer "+adminToken)
	resp, err := e.ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/csv", resp.Header.Get("Content-Type"))
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t,
		strings.Join(serverStatsCSVHeader, ",")+"\n"+"CoolOrg,0,0,0,1,1,1,0,0,0,0,0\n",
		string(raw))

	var bad map[string]string
	assert.Equal(t, http.StatusBadRequest, e.admin(t, http.MethodGet, "/stats?format=xml", nil, &bad))
	assert.Equal(t, "bad_format", bad["error"])
	assert.Equal(t, http.StatusBadRequest, e.admin(t, http.MethodGet, "/stats?from=soon", nil, &bad))
	assert.Equal(t, "bad_from", bad["error"])
}

func TestAdmin_SequesterServices(t *testing.T) {
	e := newTestEnv(t)
	var created map[string]string
	require.Equal(t, http.StatusOK, e.admin(t, http.MethodPost, "/organizations", map[string]any{"organization_id": "CoolOrg"}, &created))

	authorityKey, authorityVerify, err := cryptox.GenerateSigningKey()
	require.NoError(t, err)
	req, _ := e.bootstrapReq(t, created["bootstrap_token"])
	req.SequesterAuthorityCertificate = sign(t, &certificates.SequesterAuthorityCertificate{
		Timestamp: e.clock.Now(), VerifyKey: authorityVerify,
	}, e.rootKey)
	var boot protocol.ErrorRep
	e.callAnonymous(t, coolOrg, req, &boot)
	require.Equal(t, protocol.StatusOK, boot.Status)

	serviceID := uuid.New()
	cert := sign(t, &certificates.SequesterServiceCertificate{
		Timestamp: e.clock.Now(), ServiceID: serviceID, ServiceLabel: "Archives", EncryptionKey: []byte("public key der"),
	}, authorityKey)

	path := "/organizations/CoolOrg/sequester/services"
	var registered sequesterServiceRep
	require.Equal(t, http.StatusOK, e.admin(t, http.MethodPost, path, map[string]any{"service_certificate": cert}, &registered))
	assert.Equal(t, serviceID, registered.ServiceID)
	assert.Equal(t, "Archives", registered.ServiceLabel)
	assert.Equal(t, "STORAGE", string(registered.ServiceType))
	assert.Nil(t, registered.DisabledOn)

	var errRep map[string]string
	assert.Equal(t, http.StatusBadRequest, e.admin(t, http.MethodPost, path, map[string]any{"service_certificate": cert}, &errRep))
	assert.Equal(t, "already_exists", errRep["error"])
	assert.Equal(t, http.StatusBadRequest, e.admin(t, http.MethodPost, path, map[string]any{"service_certificate": []byte("garbage")}, &errRep))
	assert.Equal(t, "bad_data", errRep["error"])

	var list struct {
		Services []sequesterServiceRep `json:"services"`
	}
	require.Equal(t, http.StatusOK, e.admin(t, http.MethodGet, path, nil, &list))
	require.Len(t, list.Services, 1)
	assert.Equal(t, serviceID, list.Services[0].ServiceID)

	require.Equal(t, http.StatusOK, e.admin(t, http.MethodDelete, path+"/"+serviceID.String(), nil, nil))
	assert.Equal(t, http.StatusBadRequest, e.admin(t, http.MethodDelete, path+"/"+serviceID.String(), nil, &errRep))
	assert.Equal(t, "already_disabled", errRep["error"])
	assert.Equal(t, http.StatusNotFound, e.admin(t, http.MethodDelete, path+"/"+uuid.NewString(), nil, nil))
	assert.Equal(t, http.StatusNotFound, e.admin(t, http.MethodDelete, path+"/nope", nil, nil))

	list.Services = nil
	require.Equal(t, http.StatusOK, e.admin(t, http.MethodGet, path, nil, &list))
	require.Len(t, list.Services, 1)
	assert.NotNil(t, list.Services[0].DisabledOn)
}

func TestAdmin_SequesterNotSequestered(t *testing.T) {
	e := newTestEnv(t)
	e.bootstrap(t)

	var rep map[string]string
	status := e.admin(t, http.MethodPost, "/organizations/CoolOrg/sequester/services", map[string]any{"service_certificate": []byte("x")}, &rep)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "not_a_sequestered_organization", rep["error"])
}
