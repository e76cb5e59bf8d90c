package services

import (
	"context"
	"fmt"

	"github.com/Scille/parsec-cloud-sub009/internal/cryptox"
	"github.com/Scille/parsec-cloud-sub009/internal/server/certificates"
	"github.com/Scille/parsec-cloud-sub009/internal/server/models"
	"github.com/Scille/parsec-cloud-sub009/internal/server/repositories/repomanager"
	"github.com/google/uuid"
)

// SequesterService manages the sequester services of an organization.
// It is driven by the administration API.
type SequesterService struct {
	base
}

type SequesterRegisterParams struct {
	Certificate []byte
	Type        models.SequesterServiceType
	WebhookURL  string
}

// Register adds a service whose certificate is signed by the organization
// sequester authority.
func (s *SequesterService) Register(ctx context.Context, org models.OrganizationID, p SequesterRegisterParams) (*models.SequesterService, error) {
	switch p.Type {
	case models.SequesterServiceTypeStorage:
		p.WebhookURL = ""
	case models.SequesterServiceTypeWebhook:
		if p.WebhookURL == "" {
			return nil, fmt.Errorf("%w: webhook service requires an url", ErrInvalidData)
		}
	default:
		return nil, fmt.Errorf("%w: unknown service type %q", ErrInvalidData, p.Type)
	}

	var svc *models.SequesterService
	err := s.repos.WithTx(ctx, func(ctx context.Context, r *repomanager.Repositories) error {
		o, err := r.Organizations.Get(ctx, org)
		if err != nil {
			return repoError(err, ErrNotFound)
		}
		if o.SequesterAuthority == nil {
			return ErrNotASequesteredOrg
		}
		key, err := cryptox.LoadVerifyKey(o.SequesterAuthority.VerifyKey)
		if err != nil {
			return err
		}
		c, err := certificates.Verify[certificates.SequesterServiceCertificate](p.Certificate, key)
		if err != nil {
			return certError(err)
		}
		svc = &models.SequesterService{
			ServiceID:    c.ServiceID,
			ServiceLabel: c.ServiceLabel,
			Certificate:  p.Certificate,
			Type:         p.Type,
			WebhookURL:   p.WebhookURL,
			CreatedOn:    c.Timestamp,
		}
		if err := r.Sequester.Create(ctx, org, svc); err != nil {
			return repoError(err, ErrNotFound)
		}
		_, err = r.Certificates.Append(ctx, org, string(certificates.KindSequesterService), c.Timestamp, p.Certificate)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info(ctx, "sequester service registered", "organization_id", org, "service_id", svc.ServiceID, "type", svc.Type)
	return svc, nil
}

// List returns every service of the organization, disabled ones included.
func (s *SequesterService) List(ctx context.Context, org models.OrganizationID) ([]*models.SequesterService, error) {
	var out []*models.SequesterService
	err := s.repos.View(ctx, func(ctx context.Context, r *repomanager.Repositories) error {
		o, err := r.Organizations.Get(ctx, org)
		if err != nil {
			return repoError(err, ErrNotFound)
		}
		if o.SequesterAuthority == nil {
			return ErrNotASequesteredOrg
		}
		out, err = r.Sequester.List(ctx, org)
		return err
	})
	return out, err
}

// Disable stops requiring ciphertexts for the service. It cannot be undone.
func (s *SequesterService) Disable(ctx context.Context, org models.OrganizationID, id uuid.UUID) error {
	return s.repos.WithTx(ctx, func(ctx context.Context, r *repomanager.Repositories) error {
		svc, err := r.Sequester.Get(ctx, org, id)
		if err != nil {
			return repoError(err, ErrNotFound)
		}
		if !svc.IsEnabled() {
			return ErrAlreadyDisabled
		}
		return r.Sequester.Disable(ctx, org, id, s.now())
	})
}
