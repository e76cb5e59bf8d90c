package httpserver

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/Scille/parsec-cloud-sub009/internal/common"
	"github.com/Scille/parsec-cloud-sub009/internal/server/auth"
	"github.com/Scille/parsec-cloud-sub009/internal/server/models"
	"github.com/Scille/parsec-cloud-sub009/internal/server/services"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const dateLayout = "2006-01-02"

func (s *Server) administrationRoutes() http.Handler {
	r := chi.NewRouter()
	r.Use(s.requireAdministration)

	r.Post("/organizations", s.adminCreateOrganization)
	r.Get("/organizations/{organization_id}", s.adminGetOrganization)
	r.Patch("/organizations/{organization_id}", s.adminPatchOrganization)
	r.Get("/organizations/{organization_id}/stats", s.adminOrganizationStats)
	r.Route("/organizations/{organization_id}/sequester/services", func(r chi.Router) {
		r.Post("/", s.adminRegisterSequesterService)
		r.Get("/", s.adminListSequesterServices)
		r.Delete("/{service_id}", s.adminDisableSequesterService)
	})
	r.Get("/stats", s.adminServerStats)

	return r
}

func (s *Server) requireAdministration(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		err := auth.CheckAdministrationToken(r.Header.Get(common.HeaderAuthorization), []byte(s.opts.AdministrationToken))
		if err != nil {
			s.logger.Warn(r.Context(), "administration request rejected", "path", r.URL.Path, "error", err)
			writeJSONError(w, http.StatusForbidden, "not_allowed")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", common.ContentTypeJSON)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}

// writeAdminError maps service errors of the administration API.
func (s *Server) writeAdminError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, services.ErrNotFound):
		writeJSONError(w, http.StatusNotFound, "not_found")
	case errors.Is(err, services.ErrAlreadyExists):
		writeJSONError(w, http.StatusBadRequest, "already_exists")
	case errors.Is(err, services.ErrInvalidData), errors.Is(err, services.ErrInvalidCertification):
		writeJSONError(w, http.StatusBadRequest, "bad_data")
	case errors.Is(err, services.ErrNotASequesteredOrg):
		writeJSONError(w, http.StatusBadRequest, "not_a_sequestered_organization")
	case errors.Is(err, services.ErrAlreadyDisabled):
		writeJSONError(w, http.StatusBadRequest, "already_disabled")
	default:
		s.logger.Error(r.Context(), "administration request failed", "path", r.URL.Path, "error", err)
		writeJSONError(w, http.StatusInternalServerError, "internal_error")
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

type createOrganizationReq struct {
	OrganizationID             models.OrganizationID `json:"organization_id"`
	ActiveUsersLimit           *int64                `json:"active_users_limit"`
	UserProfileOutsiderAllowed *bool                 `json:"user_profile_outsider_allowed"`
}

func (s *Server) adminCreateOrganization(w http.ResponseWriter, r *http.Request) {
	var req createOrganizationReq
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "bad_data")
		return
	}
	token, err := s.svc.Organizations.Create(r.Context(), services.CreateParams{
		OrganizationID:             req.OrganizationID,
		ActiveUsersLimit:           req.ActiveUsersLimit,
		UserProfileOutsiderAllowed: req.UserProfileOutsiderAllowed,
	})
	if err != nil {
		s.writeAdminError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"bootstrap_token": token})
}

type organizationRep struct {
	IsBootstrapped             bool   `json:"is_bootstrapped"`
	IsExpired                  bool   `json:"is_expired"`
	ActiveUsersLimit           *int64 `json:"active_users_limit"`
	UserProfileOutsiderAllowed bool   `json:"user_profile_outsider_allowed"`
}

func (s *Server) adminGetOrganization(w http.ResponseWriter, r *http.Request) {
	org, err := s.svc.Organizations.Get(r.Context(), models.OrganizationID(chi.URLParam(r, "organization_id")))
	if err != nil {
		s.writeAdminError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, organizationRep{
		IsBootstrapped:             org.IsBootstrapped(),
		IsExpired:                  org.IsExpired,
		ActiveUsersLimit:           org.ActiveUsersLimit,
		UserProfileOutsiderAllowed: org.UserProfileOutsiderAllowed,
	})
}

// patchOrganizationReq keeps active_users_limit raw to tell an explicit
// null (no limit) from an absent field.
type patchOrganizationReq struct {
	IsExpired                  *bool           `json:"is_expired"`
	ActiveUsersLimit           json.RawMessage `json:"active_users_limit"`
	UserProfileOutsiderAllowed *bool           `json:"user_profile_outsider_allowed"`
}

func (s *Server) adminPatchOrganization(w http.ResponseWriter, r *http.Request) {
	var req patchOrganizationReq
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "bad_data")
		return
	}
	upd := models.OrganizationUpdate{
		IsExpired:                  req.IsExpired,
		UserProfileOutsiderAllowed: req.UserProfileOutsiderAllowed,
	}
	if req.ActiveUsersLimit != nil {
		var limit *int64
		if err := json.Unmarshal(req.ActiveUsersLimit, &limit); err != nil {
			writeJSONError(w, http.StatusBadRequest, "bad_data")
			return
		}
		upd.ActiveUsersLimit = &limit
	}
	if err := s.svc.Organizations.Update(r.Context(), models.OrganizationID(chi.URLParam(r, "organization_id")), upd); err != nil {
		s.writeAdminError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct{}{})
}

func (s *Server) adminOrganizationStats(w http.ResponseWriter, r *http.Request) {
	var at *time.Time
	if raw := r.URL.Query().Get("at"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "bad_data")
			return
		}
		at = &t
	}
	stats, err := s.svc.Organizations.Stats(r.Context(), models.OrganizationID(chi.URLParam(r, "organization_id")), at)
	if err != nil {
		s.writeAdminError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

type serverStatsItem struct {
	OrganizationID models.OrganizationID `json:"organization_id"`
	models.OrganizationStats
}

var serverStatsCSVHeader = []string{
	"organization_id", "data_size", "metadata_size", "realms", "active_users", "users",
	"admin_users_active", "admin_users_revoked",
	"standard_users_active", "standard_users_revoked",
	"outsider_users_active", "outsider_users_revoked",
}

// adminServerStats reports every organization existing at "to" (default
// now) and created at or after "from" (default ever).
func (s *Server) adminServerStats(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	format := q.Get("format")
	if format == "" {
		format = "json"
	}
	if format != "json" && format != "csv" {
		writeJSONError(w, http.StatusBadRequest, "bad_format")
		return
	}
	to := s.opts.Clock.Now()
	var from time.Time
	for name, dst := range map[string]*time.Time{"from": &from, "to": &to} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		t, err := time.Parse(dateLayout, raw)
		if err != nil {
			if t, err = time.Parse(time.RFC3339, raw); err != nil {
				writeJSONError(w, http.StatusBadRequest, "bad_"+name)
				return
			}
		}
		*dst = t
	}

	items, err := s.svc.Organizations.ServerStats(r.Context(), to)
	if err != nil {
		s.writeAdminError(w, r, err)
		return
	}
	stats := make([]serverStatsItem, 0, len(items))
	for _, it := range items {
		if it.CreatedOn.Before(from) {
			continue
		}
		stats = append(stats, serverStatsItem{OrganizationID: it.OrganizationID, OrganizationStats: it.Stats})
	}

	if format == "json" {
		writeJSON(w, http.StatusOK, map[string]any{"stats": stats})
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="parsec-server-stats.csv"`)
	w.WriteHeader(http.StatusOK)
	cw := csv.NewWriter(w)
	_ = cw.Write(serverStatsCSVHeader)
	for _, it := range stats {
		perProfile := map[models.UserProfile]models.UsersPerProfileDetail{}
		for _, d := range it.UsersPerProfileDetail {
			perProfile[d.Profile] = d
		}
		row := []string{
			string(it.OrganizationID),
			strconv.FormatInt(it.DataSize, 10),
			strconv.FormatInt(it.MetadataSize, 10),
			strconv.Itoa(it.Realms),
			strconv.Itoa(it.ActiveUsers),
			strconv.Itoa(it.Users),
		}
		for _, p := range models.UserProfiles {
			row = append(row, strconv.Itoa(perProfile[p].Active), strconv.Itoa(perProfile[p].Revoked))
		}
		_ = cw.Write(row)
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		s.logger.Warn(r.Context(), "cannot write stats csv", "error", err)
	}
}

type registerSequesterServiceReq struct {
	ServiceCertificate []byte                      `json:"service_certificate"`
	ServiceType        models.SequesterServiceType `json:"service_type"`
	WebhookURL         string                      `json:"webhook_url,omitempty"`
}

type sequesterServiceRep struct {
	ServiceID    uuid.UUID                   `json:"service_id"`
	ServiceLabel string                      `json:"service_label"`
	ServiceType  models.SequesterServiceType `json:"service_type"`
	WebhookURL   string                      `json:"webhook_url,omitempty"`
	CreatedOn    time.Time                   `json:"created_on"`
	DisabledOn   *time.Time                  `json:"disabled_on"`
}

func toSequesterServiceRep(svc *models.SequesterService) sequesterServiceRep {
	return sequesterServiceRep{
		ServiceID:    svc.ServiceID,
		ServiceLabel: svc.ServiceLabel,
		ServiceType:  svc.Type,
		WebhookURL:   svc.WebhookURL,
		CreatedOn:    svc.CreatedOn,
		DisabledOn:   svc.DisabledOn,
	}
}

func (s *Server) adminRegisterSequesterService(w http.ResponseWriter, r *http.Request) {
	var req registerSequesterServiceReq
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "bad_data")
		return
	}
	if req.ServiceType == "" {
		req.ServiceType = models.SequesterServiceTypeStorage
	}
	svc, err := s.svc.Sequester.Register(r.Context(), models.OrganizationID(chi.URLParam(r, "organization_id")), services.SequesterRegisterParams{
		Certificate: req.ServiceCertificate,
		Type:        req.ServiceType,
		WebhookURL:  req.WebhookURL,
	})
	if err != nil {
		s.writeAdminError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSequesterServiceRep(svc))
}

func (s *Server) adminListSequesterServices(w http.ResponseWriter, r *http.Request) {
	list, err := s.svc.Sequester.List(r.Context(), models.OrganizationID(chi.URLParam(r, "organization_id")))
	if err != nil {
		s.writeAdminError(w, r, err)
		return
	}
	out := make([]sequesterServiceRep, 0, len(list))
	for _, svc := range list {
		out = append(out, toSequesterServiceRep(svc))
	}
	writeJSON(w, http.StatusOK, map[string]any{"services": out})
}

func (s *Server) adminDisableSequesterService(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "service_id"))
	if err != nil {
		writeJSONError(w, http.StatusNotFound, "not_found")
		return
	}
	if err := s.svc.Sequester.Disable(r.Context(), models.OrganizationID(chi.URLParam(r, "organization_id")), id); err != nil {
		s.writeAdminError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct{}{})
}
