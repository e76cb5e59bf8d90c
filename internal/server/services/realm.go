package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Scille/parsec-cloud-sub009/internal/common"
	"github.com/Scille/parsec-cloud-sub009/internal/server/certificates"
	"github.com/Scille/parsec-cloud-sub009/internal/server/events"
	"github.com/Scille/parsec-cloud-sub009/internal/server/models"
	"github.com/Scille/parsec-cloud-sub009/internal/server/repositories/repomanager"
	"github.com/google/uuid"
)

// RealmService handles realm creation, roles and reencryption maintenance.
type RealmService struct {
	base
}

// lastGrant returns the most recent grant of user in realm, nil if the user
// never had a role there.
func lastGrant(ctx context.Context, r *repomanager.Repositories, org models.OrganizationID, realm uuid.UUID, user models.UserID) (*models.RealmGrant, error) {
	g, err := r.Realms.LastGrant(ctx, org, realm, user)
	if errors.Is(err, common.ErrorNotFound) {
		return nil, nil
	}
	return g, err
}

// currentRole returns the role user holds in realm, nil when none.
func currentRole(ctx context.Context, r *repomanager.Repositories, org models.OrganizationID, realm uuid.UUID, user models.UserID) (*models.RealmRole, error) {
	g, err := lastGrant(ctx, r, org, realm, user)
	if err != nil || g == nil {
		return nil, err
	}
	return g.Role, nil
}

// loadRealm fetches the realm and checks the caller holds any role in it.
func loadRealm(ctx context.Context, r *repomanager.Repositories, caller Caller, realmID uuid.UUID, forUpdate bool) (*models.Realm, *models.RealmRole, error) {
	get := r.Realms.Get
	if forUpdate {
		get = r.Realms.GetForUpdate
	}
	realm, err := get(ctx, caller.OrganizationID, realmID)
	if err != nil {
		return nil, nil, repoError(err, ErrNotFound)
	}
	role, err := currentRole(ctx, r, caller.OrganizationID, realmID, caller.UserID())
	if err != nil {
		return nil, nil, err
	}
	if role == nil {
		return nil, nil, ErrNotAllowed
	}
	return realm, role, nil
}

func (s *RealmService) loadRoleCertificate(caller Caller, raw []byte) (*certificates.RealmRoleCertificate, error) {
	c, err := certificates.Verify[certificates.RealmRoleCertificate](raw, caller.VerifyKey)
	if err != nil {
		return nil, certError(err)
	}
	if *c.Author != caller.DeviceID {
		return nil, fmt.Errorf("%w: role certificate must be certified by the caller", ErrInvalidCertification)
	}
	if err := s.checkBallpark(c.Timestamp); err != nil {
		return nil, err
	}
	return c, nil
}

// Create creates a realm from a self-signed OWNER role certificate.
func (s *RealmService) Create(ctx context.Context, caller Caller, roleCertificate []byte) error {
	c, err := s.loadRoleCertificate(caller, roleCertificate)
	if err != nil {
		return err
	}
	if c.UserID != caller.UserID() || c.Role == nil || *c.Role != models.RealmRoleOwner {
		return fmt.Errorf("%w: realm must be created with an OWNER role for its author", ErrInvalidData)
	}

	author := caller.DeviceID
	err = s.repos.WithTx(ctx, func(ctx context.Context, r *repomanager.Repositories) error {
		realm := &models.Realm{RealmID: c.RealmID, EncryptionRevision: 1, CreatedOn: c.Timestamp}
		grant := &models.RealmGrant{
			RealmID: c.RealmID, UserID: c.UserID, Role: c.Role,
			Certificate: roleCertificate, GrantedBy: &author, GrantedOn: c.Timestamp,
		}
		if err := r.Realms.Create(ctx, caller.OrganizationID, realm, grant); err != nil {
			return repoError(err, ErrNotFound)
		}
		_, err := r.Certificates.Append(ctx, caller.OrganizationID, string(certificates.KindRealmRole), c.Timestamp, roleCertificate)
		return err
	})
	if err != nil {
		return err
	}
	s.publish(&events.RealmRolesUpdated{
		OrganizationID: caller.OrganizationID, Author: caller.DeviceID,
		RealmID: c.RealmID, UserID: c.UserID, Role: c.Role,
	})
	return nil
}

// Status returns the realm, which the caller must be part of.
func (s *RealmService) Status(ctx context.Context, caller Caller, realmID uuid.UUID) (*models.Realm, error) {
	var realm *models.Realm
	err := s.repos.View(ctx, func(ctx context.Context, r *repomanager.Repositories) error {
		var err error
		realm, _, err = loadRealm(ctx, r, caller, realmID, false)
		return err
	})
	return realm, err
}

func (s *RealmService) Stats(ctx context.Context, caller Caller, realmID uuid.UUID) (*models.RealmStats, error) {
	var stats models.RealmStats
	err := s.repos.View(ctx, func(ctx context.Context, r *repomanager.Repositories) error {
		if _, _, err := loadRealm(ctx, r, caller, realmID, false); err != nil {
			return err
		}
		var err error
		if stats.BlocksSize, err = r.Blocks.Size(ctx, caller.OrganizationID, &realmID, nil); err != nil {
			return err
		}
		stats.VlobsSize, err = r.Vlobs.Size(ctx, caller.OrganizationID, &realmID, nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

// RoleCertificates returns every role certificate of the realm, oldest first.
func (s *RealmService) RoleCertificates(ctx context.Context, caller Caller, realmID uuid.UUID) ([][]byte, error) {
	var out [][]byte
	err := s.repos.View(ctx, func(ctx context.Context, r *repomanager.Repositories) error {
		if _, _, err := loadRealm(ctx, r, caller, realmID, false); err != nil {
			return err
		}
		grants, err := r.Realms.Grants(ctx, caller.OrganizationID, realmID)
		if err != nil {
			return err
		}
		for _, g := range grants {
			out = append(out, g.Certificate)
		}
		return nil
	})
	return out, err
}

// UpdateRoles grants, changes or removes the role of another user.
func (s *RealmService) UpdateRoles(ctx context.Context, caller Caller, roleCertificate, recipientMessage []byte) error {
	c, err := s.loadRoleCertificate(caller, roleCertificate)
	if err != nil {
		return err
	}
	if c.UserID == caller.UserID() {
		return fmt.Errorf("%w: cannot change one's own role", ErrNotAllowed)
	}

	var msgIndex uint64
	err = s.repos.WithTx(ctx, func(ctx context.Context, r *repomanager.Repositories) error {
		realm, err := r.Realms.GetForUpdate(ctx, caller.OrganizationID, c.RealmID)
		if err != nil {
			return repoError(err, ErrNotFound)
		}
		target, err := r.Users.GetUser(ctx, caller.OrganizationID, c.UserID)
		if err != nil {
			return repoError(err, ErrNotFound)
		}
		if target.Profile == models.UserProfileOutsider && c.Role != nil && c.Role.IsManagement() {
			return ErrIncompatibleProfile
		}
		if realm.InMaintenance() {
			return ErrInMaintenance
		}

		authorGrant, err := lastGrant(ctx, r, caller.OrganizationID, c.RealmID, caller.UserID())
		if err != nil {
			return err
		}
		targetGrant, err := lastGrant(ctx, r, caller.OrganizationID, c.RealmID, c.UserID)
		if err != nil {
			return err
		}
		var targetRole *models.RealmRole
		if targetGrant != nil {
			targetRole = targetGrant.Role
		}
		needsOwner := (targetRole != nil && targetRole.IsManagement()) || (c.Role != nil && c.Role.IsManagement())
		if authorGrant == nil || authorGrant.Role == nil {
			return ErrNotAllowed
		}
		switch *authorGrant.Role {
		case models.RealmRoleOwner:
		case models.RealmRoleManager:
			if needsOwner {
				return ErrNotAllowed
			}
		default:
			return ErrNotAllowed
		}
		if sameRole(targetRole, c.Role) {
			return ErrAlreadyGranted
		}

		if targetGrant != nil && !c.Timestamp.After(targetGrant.GrantedOn) {
			return &RequireGreaterTimestampError{StrictlyGreaterThan: targetGrant.GrantedOn}
		}
		if c.Timestamp.Before(authorGrant.GrantedOn) {
			return &RequireGreaterTimestampError{StrictlyGreaterThan: authorGrant.GrantedOn}
		}

		author := caller.DeviceID
		if err := r.Realms.AddGrant(ctx, caller.OrganizationID, &models.RealmGrant{
			RealmID: c.RealmID, UserID: c.UserID, Role: c.Role,
			Certificate: roleCertificate, GrantedBy: &author, GrantedOn: c.Timestamp,
		}); err != nil {
			return err
		}
		if _, err := r.Certificates.Append(ctx, caller.OrganizationID, string(certificates.KindRealmRole), c.Timestamp, roleCertificate); err != nil {
			return err
		}
		if recipientMessage != nil {
			msgIndex, err = r.Messages.Append(ctx, caller.OrganizationID, c.UserID, caller.DeviceID, c.Timestamp, recipientMessage)
			return err
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.publish(&events.RealmRolesUpdated{
		OrganizationID: caller.OrganizationID, Author: caller.DeviceID,
		RealmID: c.RealmID, UserID: c.UserID, Role: c.Role,
	})
	if recipientMessage != nil {
		s.publish(&events.MessageReceived{
			OrganizationID: caller.OrganizationID, Author: caller.DeviceID,
			Recipient: c.UserID, Index: msgIndex,
		})
	}
	return nil
}

func sameRole(a, b *models.RealmRole) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// participants returns the users currently holding a role in realm.
func participants(ctx context.Context, r *repomanager.Repositories, org models.OrganizationID, realm uuid.UUID) (map[models.UserID]bool, error) {
	grants, err := r.Realms.Grants(ctx, org, realm)
	if err != nil {
		return nil, err
	}
	current := map[models.UserID]*models.RealmRole{}
	for _, g := range grants {
		current[g.UserID] = g.Role
	}
	out := make(map[models.UserID]bool, len(current))
	for u, role := range current {
		if role != nil {
			out[u] = true
		}
	}
	return out, nil
}

type StartMaintenanceParams struct {
	RealmID               uuid.UUID
	EncryptionRevision    uint64
	Timestamp             time.Time
	PerParticipantMessage map[models.UserID][]byte
}

// StartReencryptionMaintenance bumps the realm encryption revision and
// hands the new key to every participant.
func (s *RealmService) StartReencryptionMaintenance(ctx context.Context, caller Caller, p StartMaintenanceParams) error {
	if err := s.checkBallpark(p.Timestamp); err != nil {
		return err
	}
	var delivered []*events.MessageReceived
	err := s.repos.WithTx(ctx, func(ctx context.Context, r *repomanager.Repositories) error {
		realm, role, err := loadRealm(ctx, r, caller, p.RealmID, true)
		if err != nil {
			return err
		}
		if *role != models.RealmRoleOwner {
			return ErrNotAllowed
		}
		if realm.InMaintenance() {
			return ErrInMaintenance
		}
		if p.EncryptionRevision != realm.EncryptionRevision+1 {
			return ErrBadEncryptionRevision
		}
		members, err := participants(ctx, r, caller.OrganizationID, p.RealmID)
		if err != nil {
			return err
		}
		if len(members) != len(p.PerParticipantMessage) {
			return ErrParticipantsMismatch
		}
		for u := range p.PerParticipantMessage {
			if !members[u] {
				return ErrParticipantsMismatch
			}
		}

		if err := r.Realms.StartMaintenance(ctx, caller.OrganizationID, p.RealmID, p.EncryptionRevision, caller.DeviceID, p.Timestamp); err != nil {
			return err
		}
		for u, body := range p.PerParticipantMessage {
			idx, err := r.Messages.Append(ctx, caller.OrganizationID, u, caller.DeviceID, p.Timestamp, body)
			if err != nil {
				return err
			}
			delivered = append(delivered, &events.MessageReceived{
				OrganizationID: caller.OrganizationID, Author: caller.DeviceID, Recipient: u, Index: idx,
			})
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info(ctx, "reencryption maintenance started", "organization_id", caller.OrganizationID,
		"realm_id", p.RealmID, "encryption_revision", p.EncryptionRevision)
	s.publish(&events.RealmMaintenanceStarted{
		OrganizationID: caller.OrganizationID, Author: caller.DeviceID,
		RealmID: p.RealmID, EncryptionRevision: p.EncryptionRevision,
	})
	for _, ev := range delivered {
		s.publish(ev)
	}
	return nil
}

// FinishReencryptionMaintenance leaves maintenance once every atom of the
// previous revision has been reencrypted.
func (s *RealmService) FinishReencryptionMaintenance(ctx context.Context, caller Caller, realmID uuid.UUID, revision uint64) error {
	err := s.repos.WithTx(ctx, func(ctx context.Context, r *repomanager.Repositories) error {
		realm, role, err := loadRealm(ctx, r, caller, realmID, true)
		if err != nil {
			return err
		}
		if *role != models.RealmRoleOwner {
			return ErrNotAllowed
		}
		if !realm.InMaintenance() {
			return ErrNotInMaintenance
		}
		if revision != realm.EncryptionRevision {
			return ErrBadEncryptionRevision
		}
		total, done, err := r.Vlobs.ReencryptionProgress(ctx, caller.OrganizationID, realmID, revision-1, revision)
		if err != nil {
			return err
		}
		if done < total {
			return fmt.Errorf("%w: reencryption operations are not over (%d/%d)", ErrMaintenance, done, total)
		}
		return r.Realms.FinishMaintenance(ctx, caller.OrganizationID, realmID)
	})
	if err != nil {
		return err
	}

	s.logger.Info(ctx, "reencryption maintenance finished", "organization_id", caller.OrganizationID,
		"realm_id", realmID, "encryption_revision", revision)
	s.publish(&events.RealmMaintenanceFinished{
		OrganizationID: caller.OrganizationID, Author: caller.DeviceID,
		RealmID: realmID, EncryptionRevision: revision,
	})
	return nil
}

// UserRealms lists the realms where the caller currently holds a role.
func (s *RealmService) UserRealms(ctx context.Context, org models.OrganizationID, user models.UserID) ([]uuid.UUID, error) {
	var out []uuid.UUID
	err := s.repos.View(ctx, func(ctx context.Context, r *repomanager.Repositories) error {
		var err error
		out, err = r.Realms.UserRealms(ctx, org, user)
		return err
	})
	return out, err
}
