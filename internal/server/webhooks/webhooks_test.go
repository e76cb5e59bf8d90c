package webhooks

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Scille/parsec-cloud-sub009/internal/logging"
	"github.com/Scille/parsec-cloud-sub009/internal/server/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSequesterClient_Post(t *testing.T) {
	serviceID := uuid.MustParse("00000000-0000-0000-0000-00000000000a")

	tests := []struct {
		name        string
		status      int
		body        string
		wantErr     error
		wantReason  string
		wantAccepts bool
	}{
		{name: "accepted", status: http.StatusOK, wantAccepts: true},
		{name: "rejected", status: http.StatusBadRequest, body: `{"reason":"virus detected"}`, wantReason: "virus detected"},
		{name: "bad rejection body", status: http.StatusBadRequest, body: `nope`, wantErr: ErrUnavailable},
		{name: "server error", status: http.StatusInternalServerError, wantErr: ErrUnavailable},
		{name: "forbidden", status: http.StatusForbidden, wantErr: ErrUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotQuery map[string][]string
			var gotBody []byte
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotQuery = r.URL.Query()
				gotBody, _ = io.ReadAll(r.Body)
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := NewSequesterClient(time.Second, logging.Nop())
			svc := &models.SequesterService{ServiceID: serviceID, WebhookURL: srv.URL + "/hook?x=1"}
			err := c.Post(context.Background(), "CoolOrg", svc, []byte("ciphertext"))

			assert.Equal(t, "CoolOrg", gotQuery["organization_id"][0])
			assert.Equal(t, serviceID.String(), gotQuery["service_id"][0])
			assert.Equal(t, "1", gotQuery["x"][0])
			assert.Equal(t, []byte("ciphertext"), gotBody)

			switch {
			case tt.wantAccepts:
				require.NoError(t, err)
			case tt.wantReason != "":
				var rej *RejectedError
				require.ErrorAs(t, err, &rej)
				assert.Equal(t, serviceID, rej.ServiceID)
				assert.Equal(t, tt.wantReason, rej.Reason)
			default:
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestSequesterClient_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	c := NewSequesterClient(50*time.Millisecond, logging.Nop())
	svc := &models.SequesterService{ServiceID: uuid.New(), WebhookURL: srv.URL}
	err := c.Post(context.Background(), "CoolOrg", svc, []byte("x"))
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestSequesterClient_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	c := NewSequesterClient(time.Second, logging.Nop())
	err := c.Post(context.Background(), "CoolOrg", &models.SequesterService{ServiceID: uuid.New(), WebhookURL: addr}, nil)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestBootstrapNotifier(t *testing.T) {
	got := make(chan BootstrapInfo, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var info BootstrapInfo
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&info))
		got <- info
	}))
	defer srv.Close()

	email := "alice@example.com"
	n := NewBootstrapNotifier(srv.URL, logging.Nop())
	n.Notify(context.Background(), BootstrapInfo{OrganizationID: "CoolOrg", DeviceID: "alice@dev1", HumanEmail: &email})

	select {
	case info := <-got:
		assert.Equal(t, models.OrganizationID("CoolOrg"), info.OrganizationID)
		assert.Equal(t, models.DeviceID("alice@dev1"), info.DeviceID)
		require.NotNil(t, info.HumanEmail)
		assert.Equal(t, email, *info.HumanEmail)
	case <-time.After(5 * time.Second):
		t.Fatal("webhook not called")
	}
}

func TestBootstrapNotifier_Disabled(t *testing.T) {
	var n *BootstrapNotifier
	n.Notify(context.Background(), BootstrapInfo{})
	NewBootstrapNotifier("", logging.Nop()).Notify(context.Background(), BootstrapInfo{})
}
