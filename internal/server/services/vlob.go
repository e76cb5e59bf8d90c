package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/Scille/parsec-cloud-sub009/internal/server/events"
	"github.com/Scille/parsec-cloud-sub009/internal/server/models"
	"github.com/Scille/parsec-cloud-sub009/internal/server/repositories/repomanager"
	"github.com/Scille/parsec-cloud-sub009/internal/server/webhooks"
	"github.com/google/uuid"
)

// VlobService stores the versioned encrypted metadata of realms.
type VlobService struct {
	base
	webhook SequesterWebhook
}

// checkRevision applies the encryption revision rules of writes.
func checkRevision(realm *models.Realm, revision uint64) error {
	if realm.InMaintenance() {
		switch revision {
		case realm.EncryptionRevision:
			return nil
		case realm.EncryptionRevision - 1:
			return ErrInMaintenance
		default:
			return ErrBadEncryptionRevision
		}
	}
	if revision != realm.EncryptionRevision {
		return ErrBadEncryptionRevision
	}
	return nil
}

// checkWrite checks the caller may write in realm at revision with ts.
func checkWrite(ctx context.Context, r *repomanager.Repositories, caller Caller, realmID uuid.UUID, revision uint64, ts time.Time, forUpdate bool) (*models.Realm, error) {
	realm, role, err := loadRealm(ctx, r, caller, realmID, forUpdate)
	if err != nil {
		return nil, err
	}
	if !role.CanWrite() {
		return nil, ErrNotAllowed
	}
	if err := checkRevision(realm, revision); err != nil {
		return nil, err
	}
	g, err := lastGrant(ctx, r, caller.OrganizationID, realmID, caller.UserID())
	if err != nil {
		return nil, err
	}
	if !ts.After(g.GrantedOn) {
		return nil, &RequireGreaterTimestampError{StrictlyGreaterThan: g.GrantedOn}
	}
	return realm, nil
}

// enabledSequesterServices lists the services a vlob write must encrypt for.
func enabledSequesterServices(ctx context.Context, r *repomanager.Repositories, org models.OrganizationID) ([]*models.SequesterService, error) {
	all, err := r.Sequester.List(ctx, org)
	if err != nil {
		return nil, err
	}
	var out []*models.SequesterService
	for _, s := range all {
		if s.IsEnabled() {
			out = append(out, s)
		}
	}
	return out, nil
}

// checkSequester validates blob against the organization sequester setup
// and returns the services concerned.
func checkSequester(ctx context.Context, r *repomanager.Repositories, org models.OrganizationID, blob map[uuid.UUID][]byte) ([]*models.SequesterService, error) {
	o, err := r.Organizations.Get(ctx, org)
	if err != nil {
		return nil, repoError(err, ErrNotFound)
	}
	if o.SequesterAuthority == nil {
		if blob != nil {
			return nil, ErrNotASequesteredOrg
		}
		return nil, nil
	}
	services, err := enabledSequesterServices(ctx, r, org)
	if err != nil {
		return nil, err
	}
	consistent := len(blob) == len(services)
	for _, s := range services {
		if _, ok := blob[s.ServiceID]; !ok {
			consistent = false
		}
	}
	if !consistent {
		e := &SequesterInconsistencyError{AuthorityCertificate: o.SequesterAuthority.Certificate}
		for _, s := range services {
			e.ServiceCertificates = append(e.ServiceCertificates, s.Certificate)
		}
		return nil, e
	}
	return services, nil
}

// dispatchSequester posts to webhook services and returns the blobs that
// must be stored with the atom.
func (s *VlobService) dispatchSequester(ctx context.Context, org models.OrganizationID, services []*models.SequesterService, blob map[uuid.UUID][]byte) (map[uuid.UUID][]byte, error) {
	if len(services) == 0 {
		return nil, nil
	}
	stored := make(map[uuid.UUID][]byte)
	for _, svc := range services {
		if svc.Type != models.SequesterServiceTypeWebhook {
			stored[svc.ServiceID] = blob[svc.ServiceID]
			continue
		}
		if s.webhook == nil {
			return nil, fmt.Errorf("%w: no webhook client configured", ErrTimeout)
		}
		err := s.webhook.Post(ctx, org, svc, blob[svc.ServiceID])
		var rejected *webhooks.RejectedError
		switch {
		case err == nil:
		case errors.As(err, &rejected):
			return nil, &RejectedBySequesterServiceError{ServiceID: svc.ServiceID, ServiceLabel: svc.ServiceLabel, Reason: rejected.Reason}
		default:
			s.logger.Warn(ctx, "sequester webhook unavailable", "organization_id", org, "service_id", svc.ServiceID, "error", err)
			return nil, fmt.Errorf("%w: %v", ErrTimeout, err)
		}
	}
	return stored, nil
}

type VlobCreateParams struct {
	RealmID            uuid.UUID
	EncryptionRevision uint64
	VlobID             uuid.UUID
	Timestamp          time.Time
	Blob               []byte
	SequesterBlob      map[uuid.UUID][]byte
}

// Create inserts version 1 of a vlob.
func (s *VlobService) Create(ctx context.Context, caller Caller, p VlobCreateParams) error {
	if err := s.checkBallpark(p.Timestamp); err != nil {
		return err
	}
	var services []*models.SequesterService
	err := s.repos.View(ctx, func(ctx context.Context, r *repomanager.Repositories) error {
		if _, err := checkWrite(ctx, r, caller, p.RealmID, p.EncryptionRevision, p.Timestamp, false); err != nil {
			return err
		}
		var err error
		services, err = checkSequester(ctx, r, caller.OrganizationID, p.SequesterBlob)
		return err
	})
	if err != nil {
		return err
	}
	stored, err := s.dispatchSequester(ctx, caller.OrganizationID, services, p.SequesterBlob)
	if err != nil {
		return err
	}

	var checkpoint uint64
	err = s.repos.WithTx(ctx, func(ctx context.Context, r *repomanager.Repositories) error {
		if _, err := checkWrite(ctx, r, caller, p.RealmID, p.EncryptionRevision, p.Timestamp, true); err != nil {
			return err
		}
		if _, err := r.Vlobs.Latest(ctx, caller.OrganizationID, p.VlobID); err == nil {
			return ErrAlreadyExists
		} else if err = repoError(err, nil); err != nil {
			return err
		}
		if err := r.Vlobs.Create(ctx, caller.OrganizationID, &models.VlobAtom{
			RealmID: p.RealmID, VlobID: p.VlobID, EncryptionRevision: p.EncryptionRevision,
			Version: 1, Author: caller.DeviceID, CreatedOn: p.Timestamp,
			Blob: p.Blob, SequesterBlob: stored,
		}); err != nil {
			return repoError(err, ErrNotFound)
		}
		var err error
		checkpoint, err = s.bump(ctx, r, caller.OrganizationID, p.RealmID, p.VlobID, 1)
		return err
	})
	if err != nil {
		return err
	}
	s.publish(&events.RealmVlobsUpdated{
		OrganizationID: caller.OrganizationID, Author: caller.DeviceID, RealmID: p.RealmID,
		Checkpoint: checkpoint, SrcID: p.VlobID, SrcVersion: 1,
	})
	return nil
}

func (s *VlobService) bump(ctx context.Context, r *repomanager.Repositories, org models.OrganizationID, realmID, vlobID uuid.UUID, version uint64) (uint64, error) {
	checkpoint, err := r.Realms.BumpCheckpoint(ctx, org, realmID)
	if err != nil {
		return 0, err
	}
	err = r.Vlobs.AddChange(ctx, org, realmID, models.VlobChange{Checkpoint: checkpoint, VlobID: vlobID, Version: version})
	return checkpoint, err
}

type VlobUpdateParams struct {
	EncryptionRevision uint64
	VlobID             uuid.UUID
	Version            uint64
	Timestamp          time.Time
	Blob               []byte
	SequesterBlob      map[uuid.UUID][]byte
}

// checkUpdate validates an update against the latest stored version and
// returns the realm of the vlob.
func checkUpdate(ctx context.Context, r *repomanager.Repositories, caller Caller, p VlobUpdateParams, forUpdate bool) (uuid.UUID, error) {
	latest, err := r.Vlobs.Latest(ctx, caller.OrganizationID, p.VlobID)
	if err != nil {
		return uuid.Nil, repoError(err, ErrNotFound)
	}
	if _, err := checkWrite(ctx, r, caller, latest.RealmID, p.EncryptionRevision, p.Timestamp, forUpdate); err != nil {
		return uuid.Nil, err
	}
	if p.Version != latest.Version+1 {
		return uuid.Nil, ErrBadVersion
	}
	if p.Timestamp.Before(latest.CreatedOn) {
		return uuid.Nil, &RequireGreaterTimestampError{StrictlyGreaterThan: latest.CreatedOn}
	}
	return latest.RealmID, nil
}

// Update appends a new version to an existing vlob.
func (s *VlobService) Update(ctx context.Context, caller Caller, p VlobUpdateParams) error {
	if err := s.checkBallpark(p.Timestamp); err != nil {
		return err
	}
	var services []*models.SequesterService
	err := s.repos.View(ctx, func(ctx context.Context, r *repomanager.Repositories) error {
		if _, err := checkUpdate(ctx, r, caller, p, false); err != nil {
			return err
		}
		var err error
		services, err = checkSequester(ctx, r, caller.OrganizationID, p.SequesterBlob)
		return err
	})
	if err != nil {
		return err
	}
	stored, err := s.dispatchSequester(ctx, caller.OrganizationID, services, p.SequesterBlob)
	if err != nil {
		return err
	}

	var (
		realmID    uuid.UUID
		checkpoint uint64
	)
	err = s.repos.WithTx(ctx, func(ctx context.Context, r *repomanager.Repositories) error {
		var err error
		if realmID, err = checkUpdate(ctx, r, caller, p, true); err != nil {
			return err
		}
		if err := r.Vlobs.Create(ctx, caller.OrganizationID, &models.VlobAtom{
			RealmID: realmID, VlobID: p.VlobID, EncryptionRevision: p.EncryptionRevision,
			Version: p.Version, Author: caller.DeviceID, CreatedOn: p.Timestamp,
			Blob: p.Blob, SequesterBlob: stored,
		}); err != nil {
			if errors.Is(repoError(err, nil), ErrAlreadyExists) {
				return ErrBadVersion
			}
			return err
		}
		checkpoint, err = s.bump(ctx, r, caller.OrganizationID, realmID, p.VlobID, p.Version)
		return err
	})
	if err != nil {
		return err
	}
	s.publish(&events.RealmVlobsUpdated{
		OrganizationID: caller.OrganizationID, Author: caller.DeviceID, RealmID: realmID,
		Checkpoint: checkpoint, SrcID: p.VlobID, SrcVersion: p.Version,
	})
	return nil
}

// VlobReadResult is a vlob version and what the client needs to validate
// its author at that time.
type VlobReadResult struct {
	Atom                    *models.VlobAtom
	AuthorLastRoleGrantedOn time.Time
	CertificateIndex        uint64
}

// Read returns the requested version, the latest one created at or before
// at, or the latest one.
func (s *VlobService) Read(ctx context.Context, caller Caller, revision uint64, vlobID uuid.UUID, version *uint64, at *time.Time) (*VlobReadResult, error) {
	var res VlobReadResult
	err := s.repos.View(ctx, func(ctx context.Context, r *repomanager.Repositories) error {
		latest, err := r.Vlobs.Latest(ctx, caller.OrganizationID, vlobID)
		if err != nil {
			return repoError(err, ErrNotFound)
		}
		realm, _, err := loadRealm(ctx, r, caller, latest.RealmID, false)
		if err != nil {
			return err
		}
		if revision == 0 || revision > realm.EncryptionRevision {
			return ErrBadEncryptionRevision
		}
		atom, err := r.Vlobs.Read(ctx, caller.OrganizationID, vlobID, revision, version, at)
		if err != nil {
			switch {
			case version != nil:
				return repoError(err, ErrBadVersion)
			case at != nil:
				return repoError(err, ErrNotFound)
			default:
				return repoError(err, ErrBadEncryptionRevision)
			}
		}
		res.Atom = atom

		grants, err := r.Realms.Grants(ctx, caller.OrganizationID, latest.RealmID)
		if err != nil {
			return err
		}
		author := atom.Author.UserID()
		for _, g := range grants {
			if g.UserID == author && !g.GrantedOn.After(atom.CreatedOn) {
				res.AuthorLastRoleGrantedOn = g.GrantedOn
			}
		}
		res.CertificateIndex, err = r.Certificates.IndexAt(ctx, caller.OrganizationID, atom.CreatedOn)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// ListVersions lists the versions of a vlob. During maintenance the
// versions not yet reencrypted are taken from the previous revision.
func (s *VlobService) ListVersions(ctx context.Context, caller Caller, vlobID uuid.UUID) ([]models.VlobVersionInfo, error) {
	var out []models.VlobVersionInfo
	err := s.repos.View(ctx, func(ctx context.Context, r *repomanager.Repositories) error {
		latest, err := r.Vlobs.Latest(ctx, caller.OrganizationID, vlobID)
		if err != nil {
			return repoError(err, ErrNotFound)
		}
		realm, _, err := loadRealm(ctx, r, caller, latest.RealmID, false)
		if err != nil {
			return err
		}
		current, err := r.Vlobs.ListVersions(ctx, caller.OrganizationID, vlobID, realm.EncryptionRevision)
		if err != nil {
			return err
		}
		out = current
		if !realm.InMaintenance() {
			return nil
		}
		previous, err := r.Vlobs.ListVersions(ctx, caller.OrganizationID, vlobID, realm.EncryptionRevision-1)
		if err != nil {
			return err
		}
		seen := make(map[uint64]bool, len(current))
		for _, v := range current {
			seen[v.Version] = true
		}
		for _, v := range previous {
			if !seen[v.Version] {
				out = append(out, v)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, err
}

// PollChanges returns the current checkpoint of the realm and the latest
// version of every vlob changed after since.
func (s *VlobService) PollChanges(ctx context.Context, caller Caller, realmID uuid.UUID, since uint64) (uint64, map[uuid.UUID]uint64, error) {
	var (
		checkpoint uint64
		changes    map[uuid.UUID]uint64
	)
	err := s.repos.View(ctx, func(ctx context.Context, r *repomanager.Repositories) error {
		realm, _, err := loadRealm(ctx, r, caller, realmID, false)
		if err != nil {
			return err
		}
		if realm.InMaintenance() {
			return ErrInMaintenance
		}
		checkpoint = realm.Checkpoint
		changes, err = r.Vlobs.Changes(ctx, caller.OrganizationID, realmID, since)
		return err
	})
	return checkpoint, changes, err
}

func checkReencryption(ctx context.Context, r *repomanager.Repositories, caller Caller, realmID uuid.UUID, revision uint64) error {
	realm, role, err := loadRealm(ctx, r, caller, realmID, false)
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
	return nil
}

// ReencryptionBatch returns up to size atoms of the previous revision that
// have no counterpart at revision yet.
func (s *VlobService) ReencryptionBatch(ctx context.Context, caller Caller, realmID uuid.UUID, revision uint64, size int) ([]models.ReencryptionEntry, error) {
	if size < 1 || size > 1000 {
		return nil, fmt.Errorf("%w: batch size must be between 1 and 1000", ErrInvalidData)
	}
	var out []models.ReencryptionEntry
	err := s.repos.View(ctx, func(ctx context.Context, r *repomanager.Repositories) error {
		if err := checkReencryption(ctx, r, caller, realmID, revision); err != nil {
			return err
		}
		var err error
		out, err = r.Vlobs.ReencryptionBatch(ctx, caller.OrganizationID, realmID, revision-1, revision, size)
		return err
	})
	return out, err
}

// SaveReencryptionBatch stores reencrypted atoms and reports the progress
// of the maintenance.
func (s *VlobService) SaveReencryptionBatch(ctx context.Context, caller Caller, realmID uuid.UUID, revision uint64, batch []models.ReencryptionEntry) (total, done int, err error) {
	if len(batch) > 1000 {
		return 0, 0, fmt.Errorf("%w: batch too large", ErrInvalidData)
	}
	err = s.repos.WithTx(ctx, func(ctx context.Context, r *repomanager.Repositories) error {
		if err := checkReencryption(ctx, r, caller, realmID, revision); err != nil {
			return err
		}
		if err := r.Vlobs.SaveReencrypted(ctx, caller.OrganizationID, realmID, revision-1, revision, batch); err != nil {
			return err
		}
		var err error
		total, done, err = r.Vlobs.ReencryptionProgress(ctx, caller.OrganizationID, realmID, revision-1, revision)
		return err
	})
	return total, done, err
}
