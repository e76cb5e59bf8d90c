package httpserver

import (
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/Scille/parsec-cloud-sub009/internal/common"
	"github.com/Scille/parsec-cloud-sub009/internal/logging"
	"github.com/Scille/parsec-cloud-sub009/internal/server/models"
	"github.com/Scille/parsec-cloud-sub009/internal/server/protocol"
	"github.com/Scille/parsec-cloud-sub009/internal/server/services"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// Non standard statuses of the RPC handshake.
const (
	StatusOrganizationExpired = 460
	StatusUserRevoked         = 461
)

// clientContext is what the handshake learnt about the peer. Exactly one
// of caller and invitation is set for authenticated and invited peers.
type clientContext struct {
	kind       protocol.ConnectionKind
	apiVersion protocol.APIVersion
	org        models.OrganizationID
	// organization is nil when a spontaneous bootstrap targets an
	// unknown organization.
	organization *models.Organization
	connID       uuid.UUID
	caller       *services.Caller
	invitation   *models.Invitation
	logger       logging.Logger
}

type handshakeError struct {
	status int
	msg    string
}

func (e *handshakeError) Error() string {
	return fmt.Sprintf("%d %s", e.status, e.msg)
}

func reject(status int, msg string) *handshakeError {
	return &handshakeError{status: status, msg: msg}
}

func (s *Server) writeHandshakeError(w http.ResponseWriter, r *http.Request, herr *handshakeError) {
	if herr.status == http.StatusUnprocessableEntity {
		w.Header().Set(common.HeaderSupportedAPIVersions, protocol.SupportedAPIVersionsHeader())
	}
	if herr.status >= http.StatusInternalServerError {
		s.logger.Error(r.Context(), "handshake failed", "path", r.URL.Path, "error", herr.msg)
	}
	http.Error(w, herr.msg, herr.status)
}

func mediaType(header string) string {
	mt, _, _ := strings.Cut(header, ";")
	return strings.ToLower(strings.TrimSpace(mt))
}

func accepts(header, mt string) bool {
	for _, part := range strings.Split(header, ",") {
		if v := mediaType(part); v == mt || v == "*/*" {
			return true
		}
	}
	return false
}

// handshake validates the headers of an RPC or SSE request. body is the
// signed payload of authenticated requests, empty for SSE.
func (s *Server) handshake(r *http.Request, kind protocol.ConnectionKind, body []byte, sse bool) (*clientContext, *handshakeError) {
	ctx := r.Context()

	version, err := protocol.Negotiate(r.Header.Get(common.HeaderAPIVersion), protocol.SupportedAPIVersions)
	if err != nil {
		return nil, reject(http.StatusUnprocessableEntity, "unsupported api version")
	}

	cc := &clientContext{
		kind:       kind,
		apiVersion: version,
		org:        models.OrganizationID(chi.URLParam(r, "organization_id")),
		connID:     uuid.New(),
	}
	if err := cc.org.Validate(); err != nil {
		return nil, reject(http.StatusNotFound, "organization not found")
	}

	org, err := s.svc.Organizations.Get(ctx, cc.org)
	switch {
	case errors.Is(err, services.ErrNotFound):
		if kind != protocol.KindAnonymous || !s.opts.SpontaneousBootstrap {
			return nil, reject(http.StatusNotFound, "organization not found")
		}
	case err != nil:
		return nil, reject(http.StatusInternalServerError, err.Error())
	case org.IsExpired:
		return nil, reject(StatusOrganizationExpired, "organization expired")
	}
	cc.organization = org

	if sse {
		if !accepts(r.Header.Get("Accept"), common.ContentTypeEventStream) {
			return nil, reject(http.StatusNotAcceptable, "bad accept type")
		}
	} else if mediaType(r.Header.Get("Content-Type")) != common.ContentTypeMsgpack {
		return nil, reject(http.StatusUnsupportedMediaType, "bad content type")
	}

	switch kind {
	case protocol.KindAuthenticated:
		if herr := s.authenticate(r, cc, body); herr != nil {
			return nil, herr
		}
	case protocol.KindInvited:
		if herr := s.resolveInvitation(r, cc); herr != nil {
			return nil, herr
		}
	}

	cc.logger = s.logger.With(
		"conn_id", cc.connID.String(),
		"organization_id", string(cc.org),
		"kind", string(kind),
		"api_version", version.String(),
	)
	if cc.caller != nil {
		cc.logger = cc.logger.With("device_id", string(cc.caller.DeviceID))
	}
	return cc, nil
}

func (s *Server) authenticate(r *http.Request, cc *clientContext, body []byte) *handshakeError {
	if r.Header.Get(common.HeaderAuthorization) != common.AuthorizationMethodSignEd25519 {
		return reject(http.StatusUnauthorized, "bad authorization method")
	}
	author, err := base64.StdEncoding.DecodeString(r.Header.Get(common.HeaderAuthor))
	if err != nil {
		return reject(http.StatusUnauthorized, "bad author header")
	}
	deviceID := models.DeviceID(author)
	if deviceID.Validate() != nil {
		return reject(http.StatusUnauthorized, "bad author header")
	}
	signature, err := base64.StdEncoding.DecodeString(r.Header.Get(common.HeaderSignature))
	if err != nil || len(signature) != ed25519.SignatureSize {
		return reject(http.StatusUnauthorized, "bad signature header")
	}

	caller, err := s.svc.Users.Authenticate(r.Context(), cc.org, deviceID)
	switch {
	case errors.Is(err, services.ErrNotFound):
		return reject(http.StatusUnauthorized, "unknown device")
	case errors.Is(err, services.ErrRevokedUser):
		return reject(StatusUserRevoked, "user revoked")
	case err != nil:
		return reject(http.StatusInternalServerError, err.Error())
	}
	if !ed25519.Verify(caller.VerifyKey, body, signature) {
		return reject(http.StatusUnauthorized, "bad signature")
	}
	cc.caller = caller
	return nil
}

func (s *Server) resolveInvitation(r *http.Request, cc *clientContext) *handshakeError {
	token, err := models.ParseInvitationToken(r.Header.Get(common.HeaderInvitationToken))
	if err != nil {
		return reject(http.StatusUnauthorized, "bad invitation token")
	}
	inv, err := s.svc.Invites.Claimer(r.Context(), cc.org, token)
	switch {
	case errors.Is(err, services.ErrNotFound):
		return reject(http.StatusNotFound, "invitation not found")
	case errors.Is(err, services.ErrAlreadyDeleted):
		return reject(http.StatusGone, "invitation already used")
	case err != nil:
		return reject(http.StatusInternalServerError, err.Error())
	}
	cc.invitation = inv
	return nil
}
