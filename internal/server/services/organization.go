package services

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/Scille/parsec-cloud-sub009/internal/common"
	"github.com/Scille/parsec-cloud-sub009/internal/cryptox"
	"github.com/Scille/parsec-cloud-sub009/internal/server/certificates"
	"github.com/Scille/parsec-cloud-sub009/internal/server/events"
	"github.com/Scille/parsec-cloud-sub009/internal/server/models"
	"github.com/Scille/parsec-cloud-sub009/internal/server/repositories/repomanager"
	"github.com/Scille/parsec-cloud-sub009/internal/server/webhooks"
)

// OrganizationService handles the organization lifecycle: creation by an
// administrator, bootstrap by the first user, expiration and statistics.
type OrganizationService struct {
	base
	bootstrapHook        *webhooks.BootstrapNotifier
	spontaneousBootstrap bool
}

// CreateParams configures a new organization. Nil fields take defaults:
// no active users limit, outsiders allowed.
type CreateParams struct {
	OrganizationID             models.OrganizationID
	ActiveUsersLimit           *int64
	UserProfileOutsiderAllowed *bool
}

// Create registers an organization and returns its bootstrap token.
// Creating again an organization that is not bootstrapped yet overwrites
// its configuration and issues a new token.
func (s *OrganizationService) Create(ctx context.Context, p CreateParams) (string, error) {
	if err := p.OrganizationID.Validate(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidData, err)
	}
	if p.ActiveUsersLimit != nil && *p.ActiveUsersLimit < 0 {
		return "", fmt.Errorf("%w: negative active users limit", ErrInvalidData)
	}
	token, err := common.MakeRandHexString(32)
	if err != nil {
		return "", fmt.Errorf("generate bootstrap token: %w", err)
	}
	org := &models.Organization{
		OrganizationID:             p.OrganizationID,
		BootstrapToken:             token,
		ActiveUsersLimit:           p.ActiveUsersLimit,
		UserProfileOutsiderAllowed: true,
		CreatedOn:                  s.now(),
	}
	if p.UserProfileOutsiderAllowed != nil {
		org.UserProfileOutsiderAllowed = *p.UserProfileOutsiderAllowed
	}
	err = s.repos.WithTx(ctx, func(ctx context.Context, r *repomanager.Repositories) error {
		return repoError(r.Organizations.Create(ctx, org), ErrNotFound)
	})
	if err != nil {
		return "", err
	}
	s.logger.Info(ctx, "organization created", "organization_id", p.OrganizationID)
	return token, nil
}

func (s *OrganizationService) Get(ctx context.Context, id models.OrganizationID) (*models.Organization, error) {
	var org *models.Organization
	err := s.repos.View(ctx, func(ctx context.Context, r *repomanager.Repositories) error {
		var err error
		org, err = r.Organizations.Get(ctx, id)
		return repoError(err, ErrNotFound)
	})
	return org, err
}

func (s *OrganizationService) List(ctx context.Context) ([]*models.Organization, error) {
	var orgs []*models.Organization
	err := s.repos.View(ctx, func(ctx context.Context, r *repomanager.Repositories) error {
		var err error
		orgs, err = r.Organizations.List(ctx)
		return err
	})
	return orgs, err
}

// Update applies a partial update. Expiring an organization closes the
// connections of its devices.
func (s *OrganizationService) Update(ctx context.Context, id models.OrganizationID, upd models.OrganizationUpdate) error {
	if upd.ActiveUsersLimit != nil && *upd.ActiveUsersLimit != nil && **upd.ActiveUsersLimit < 0 {
		return fmt.Errorf("%w: negative active users limit", ErrInvalidData)
	}
	err := s.repos.WithTx(ctx, func(ctx context.Context, r *repomanager.Repositories) error {
		return repoError(r.Organizations.Update(ctx, id, upd), ErrNotFound)
	})
	if err != nil {
		return err
	}
	if upd.IsExpired != nil && *upd.IsExpired {
		s.logger.Info(ctx, "organization expired", "organization_id", id)
		s.publish(&events.OrganizationExpired{OrganizationID: id})
	}
	return nil
}

type BootstrapParams struct {
	OrganizationID                models.OrganizationID
	BootstrapToken                string
	RootVerifyKey                 []byte
	UserCertificate               []byte
	DeviceCertificate             []byte
	RedactedUserCertificate       []byte
	RedactedDeviceCertificate     []byte
	SequesterAuthorityCertificate []byte
}

// Bootstrap registers the first user of the organization. Its certificates
// must be signed by the root key the organization gets bound to.
func (s *OrganizationService) Bootstrap(ctx context.Context, p BootstrapParams) error {
	// Token and state are checked before any certificate gets unpacked,
	// then again under the row lock.
	err := s.repos.View(ctx, func(ctx context.Context, r *repomanager.Repositories) error {
		org, err := r.Organizations.Get(ctx, p.OrganizationID)
		if errors.Is(err, common.ErrorNotFound) && s.spontaneousBootstrap {
			if p.OrganizationID.Validate() != nil {
				return ErrNotFound
			}
			return nil
		} else if err != nil {
			return repoError(err, ErrNotFound)
		}
		return checkBootstrappable(org, p.BootstrapToken)
	})
	if err != nil {
		return err
	}

	rootKey, err := cryptox.LoadVerifyKey(p.RootVerifyKey)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidData, err)
	}
	nu, err := s.loadNewUser(rootKey, nil, newUserCertificates{
		User: p.UserCertificate, Device: p.DeviceCertificate,
		RedactedUser: p.RedactedUserCertificate, RedactedDevice: p.RedactedDeviceCertificate,
	})
	if err != nil {
		return err
	}
	if nu.user.Profile != models.UserProfileAdmin {
		return fmt.Errorf("%w: bootstrapping user must be an administrator", ErrInvalidData)
	}

	var authority *models.SequesterAuthority
	if p.SequesterAuthorityCertificate != nil {
		sa, err := certificates.Verify[certificates.SequesterAuthorityCertificate](p.SequesterAuthorityCertificate, rootKey)
		if err != nil {
			return certError(err)
		}
		if !sa.Timestamp.Equal(nu.user.Timestamp) {
			return fmt.Errorf("%w: sequester authority and user certificates must share their timestamp", ErrInvalidData)
		}
		authority = &models.SequesterAuthority{Certificate: p.SequesterAuthorityCertificate, VerifyKey: sa.VerifyKey}
	}

	now := s.now()
	err = s.repos.WithTx(ctx, func(ctx context.Context, r *repomanager.Repositories) error {
		org, err := r.Organizations.GetForUpdate(ctx, p.OrganizationID)
		if errors.Is(err, common.ErrorNotFound) && s.spontaneousBootstrap {
			if vErr := p.OrganizationID.Validate(); vErr != nil {
				return ErrNotFound
			}
			org = &models.Organization{
				OrganizationID:             p.OrganizationID,
				UserProfileOutsiderAllowed: true,
				CreatedOn:                  now,
			}
			if err := r.Organizations.Create(ctx, org); err != nil {
				return repoError(err, ErrNotFound)
			}
		} else if err != nil {
			return repoError(err, ErrNotFound)
		}
		if err := checkBootstrappable(org, p.BootstrapToken); err != nil {
			return err
		}
		if err := r.Organizations.Bootstrap(ctx, p.OrganizationID, p.RootVerifyKey, now, authority); err != nil {
			if errors.Is(err, common.ErrorAlreadyExists) {
				return ErrAlreadyBootstrapped
			}
			return repoError(err, ErrNotFound)
		}
		if err := r.Users.CreateUser(ctx, p.OrganizationID, nu.userModel(), nu.deviceModel()); err != nil {
			return repoError(err, ErrNotFound)
		}
		if err := nu.appendToLog(ctx, r, p.OrganizationID); err != nil {
			return err
		}
		if authority != nil {
			if _, err := r.Certificates.Append(ctx, p.OrganizationID, string(certificates.KindSequesterAuthority), nu.user.Timestamp, authority.Certificate); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info(ctx, "organization bootstrapped", "organization_id", p.OrganizationID, "device_id", nu.device.DeviceID)
	info := webhooks.BootstrapInfo{
		OrganizationID: p.OrganizationID,
		DeviceID:       nu.device.DeviceID,
		DeviceLabel:    nu.device.DeviceLabel,
	}
	if hh := nu.user.HumanHandle; hh != nil {
		info.HumanEmail, info.HumanLabel = &hh.Email, &hh.Label
	}
	s.bootstrapHook.Notify(ctx, info)
	return nil
}

func checkBootstrappable(org *models.Organization, token string) error {
	if org.IsBootstrapped() {
		return ErrAlreadyBootstrapped
	}
	// spontaneously created organizations have no token to check
	if org.BootstrapToken != "" && subtle.ConstantTimeCompare([]byte(org.BootstrapToken), []byte(token)) != 1 {
		return ErrInvalidBootstrapToken
	}
	return nil
}

// Stats computes the organization statistics as they were at at, or now
// when at is nil.
func (s *OrganizationService) Stats(ctx context.Context, id models.OrganizationID, at *time.Time) (*models.OrganizationStats, error) {
	var stats *models.OrganizationStats
	err := s.repos.View(ctx, func(ctx context.Context, r *repomanager.Repositories) error {
		if _, err := r.Organizations.Get(ctx, id); err != nil {
			return repoError(err, ErrNotFound)
		}
		var err error
		stats, err = organizationStats(ctx, r, id, at)
		return err
	})
	return stats, err
}

func organizationStats(ctx context.Context, r *repomanager.Repositories, id models.OrganizationID, at *time.Time) (*models.OrganizationStats, error) {
	stats := &models.OrganizationStats{}
	users, err := r.Users.ListUsers(ctx, id)
	if err != nil {
		return nil, err
	}
	perProfile := make(map[models.UserProfile]*models.UsersPerProfileDetail, len(models.UserProfiles))
	for _, p := range models.UserProfiles {
		perProfile[p] = &models.UsersPerProfileDetail{Profile: p}
	}
	for _, u := range users {
		if at != nil && u.CreatedOn.After(*at) {
			continue
		}
		revoked := u.IsRevoked()
		if at != nil {
			revoked = u.IsRevokedAt(*at)
		}
		stats.Users++
		detail := perProfile[u.Profile]
		if detail == nil {
			continue
		}
		if revoked {
			detail.Revoked++
		} else {
			detail.Active++
			stats.ActiveUsers++
		}
	}
	for _, p := range models.UserProfiles {
		stats.UsersPerProfileDetail = append(stats.UsersPerProfileDetail, *perProfile[p])
	}

	realms, err := r.Realms.List(ctx, id)
	if err != nil {
		return nil, err
	}
	for _, realm := range realms {
		if at == nil || !realm.CreatedOn.After(*at) {
			stats.Realms++
		}
	}
	if stats.DataSize, err = r.Blocks.Size(ctx, id, nil, at); err != nil {
		return nil, err
	}
	if stats.MetadataSize, err = r.Vlobs.Size(ctx, id, nil, at); err != nil {
		return nil, err
	}
	return stats, nil
}

// OrganizationStatsItem is one row of the server-wide statistics.
type OrganizationStatsItem struct {
	OrganizationID models.OrganizationID
	CreatedOn      time.Time
	IsBootstrapped bool
	IsExpired      bool
	Stats          models.OrganizationStats
}

// ServerStats computes the statistics of every organization that existed
// at at.
func (s *OrganizationService) ServerStats(ctx context.Context, at time.Time) ([]OrganizationStatsItem, error) {
	var items []OrganizationStatsItem
	err := s.repos.View(ctx, func(ctx context.Context, r *repomanager.Repositories) error {
		orgs, err := r.Organizations.List(ctx)
		if err != nil {
			return err
		}
		for _, org := range orgs {
			if org.CreatedOn.After(at) {
				continue
			}
			stats, err := organizationStats(ctx, r, org.OrganizationID, &at)
			if err != nil {
				return err
			}
			items = append(items, OrganizationStatsItem{
				OrganizationID: org.OrganizationID,
				CreatedOn:      org.CreatedOn,
				IsBootstrapped: org.IsBootstrapped(),
				IsExpired:      org.IsExpired,
				Stats:          *stats,
			})
		}
		return nil
	})
	sort.Slice(items, func(i, j int) bool { return items[i].OrganizationID < items[j].OrganizationID })
	return items, err
}

// OrganizationConfig is what devices learn about their organization.
type OrganizationConfig struct {
	ActiveUsersLimit              *int64
	UserProfileOutsiderAllowed    bool
	SequesterAuthorityCertificate []byte
	SequesterServicesCertificates [][]byte
}

func (s *OrganizationService) Config(ctx context.Context, caller Caller) (*OrganizationConfig, error) {
	var cfg *OrganizationConfig
	err := s.repos.View(ctx, func(ctx context.Context, r *repomanager.Repositories) error {
		org, err := r.Organizations.Get(ctx, caller.OrganizationID)
		if err != nil {
			return repoError(err, ErrNotFound)
		}
		cfg = &OrganizationConfig{
			ActiveUsersLimit:           org.ActiveUsersLimit,
			UserProfileOutsiderAllowed: org.UserProfileOutsiderAllowed,
		}
		if org.SequesterAuthority == nil {
			return nil
		}
		cfg.SequesterAuthorityCertificate = org.SequesterAuthority.Certificate
		services, err := enabledSequesterServices(ctx, r, caller.OrganizationID)
		if err != nil {
			return err
		}
		cfg.SequesterServicesCertificates = make([][]byte, 0, len(services))
		for _, svc := range services {
			cfg.SequesterServicesCertificates = append(cfg.SequesterServicesCertificates, svc.Certificate)
		}
		return nil
	})
	return cfg, err
}

// CallerStats is organization_stats, reserved to administrators.
func (s *OrganizationService) CallerStats(ctx context.Context, caller Caller) (*models.OrganizationStats, error) {
	if caller.Profile != models.UserProfileAdmin {
		return nil, ErrNotAllowed
	}
	return s.Stats(ctx, caller.OrganizationID, nil)
}
