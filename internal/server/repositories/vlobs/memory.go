package vlobs

import (
	"bytes"
	"context"
	"sort"
	"time"

	"github.com/Scille/parsec-cloud-sub009/internal/common"
	"github.com/Scille/parsec-cloud-sub009/internal/server/models"
	"github.com/google/uuid"
)

type orgData struct {
	// atoms are kept sorted by (version, encryption revision).
	atoms   map[uuid.UUID][]*models.VlobAtom
	changes map[uuid.UUID][]models.VlobChange
}

// MemoryRepository is not safe for concurrent use: the memory repository
// manager serializes access.
type MemoryRepository struct {
	orgs map[models.OrganizationID]*orgData
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{orgs: make(map[models.OrganizationID]*orgData)}
}

func (r *MemoryRepository) org(org models.OrganizationID) *orgData {
	d, ok := r.orgs[org]
	if !ok {
		d = &orgData{
			atoms:   make(map[uuid.UUID][]*models.VlobAtom),
			changes: make(map[uuid.UUID][]models.VlobChange),
		}
		r.orgs[org] = d
	}
	return d
}

// view never allocates so reads stay safe under a shared lock.
func (r *MemoryRepository) view(org models.OrganizationID) *orgData {
	if d, ok := r.orgs[org]; ok {
		return d
	}
	return &orgData{}
}

func cloneAtom(a *models.VlobAtom) *models.VlobAtom {
	c := *a
	c.Blob = bytes.Clone(a.Blob)
	if a.SequesterBlob != nil {
		c.SequesterBlob = make(map[uuid.UUID][]byte, len(a.SequesterBlob))
		for k, v := range a.SequesterBlob {
			c.SequesterBlob[k] = bytes.Clone(v)
		}
	}
	return &c
}

func (r *MemoryRepository) insert(d *orgData, atom *models.VlobAtom) error {
	atoms := d.atoms[atom.VlobID]
	for _, a := range atoms {
		if a.Version == atom.Version && a.EncryptionRevision == atom.EncryptionRevision {
			return common.ErrorAlreadyExists
		}
	}
	atoms = append(atoms, cloneAtom(atom))
	sort.Slice(atoms, func(i, j int) bool {
		if atoms[i].Version != atoms[j].Version {
			return atoms[i].Version < atoms[j].Version
		}
		return atoms[i].EncryptionRevision < atoms[j].EncryptionRevision
	})
	d.atoms[atom.VlobID] = atoms
	return nil
}

func (r *MemoryRepository) Latest(_ context.Context, org models.OrganizationID, vlobID uuid.UUID) (*models.VlobAtom, error) {
	atoms := r.view(org).atoms[vlobID]
	if len(atoms) == 0 {
		return nil, common.ErrorNotFound
	}
	return cloneAtom(atoms[len(atoms)-1]), nil
}

func (r *MemoryRepository) Create(_ context.Context, org models.OrganizationID, atom *models.VlobAtom) error {
	return r.insert(r.org(org), atom)
}

func (r *MemoryRepository) Read(_ context.Context, org models.OrganizationID, vlobID uuid.UUID, revision uint64, version *uint64, at *time.Time) (*models.VlobAtom, error) {
	atoms := r.view(org).atoms[vlobID]
	for i := len(atoms) - 1; i >= 0; i-- {
		a := atoms[i]
		if a.EncryptionRevision != revision {
			continue
		}
		switch {
		case version != nil:
			if a.Version == *version {
				return cloneAtom(a), nil
			}
		case at != nil:
			if !a.CreatedOn.After(*at) {
				return cloneAtom(a), nil
			}
		default:
			return cloneAtom(a), nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r *MemoryRepository) ListVersions(_ context.Context, org models.OrganizationID, vlobID uuid.UUID, revision uint64) ([]models.VlobVersionInfo, error) {
	var out []models.VlobVersionInfo
	for _, a := range r.view(org).atoms[vlobID] {
		if a.EncryptionRevision == revision {
			out = append(out, models.VlobVersionInfo{Version: a.Version, CreatedOn: a.CreatedOn, Author: a.Author})
		}
	}
	return out, nil
}

func (r *MemoryRepository) AddChange(_ context.Context, org models.OrganizationID, realmID uuid.UUID, change models.VlobChange) error {
	d := r.org(org)
	d.changes[realmID] = append(d.changes[realmID], change)
	return nil
}

func (r *MemoryRepository) Changes(_ context.Context, org models.OrganizationID, realmID uuid.UUID, since uint64) (map[uuid.UUID]uint64, error) {
	out := make(map[uuid.UUID]uint64)
	for _, c := range r.view(org).changes[realmID] {
		if c.Checkpoint > since && c.Version > out[c.VlobID] {
			out[c.VlobID] = c.Version
		}
	}
	return out, nil
}

// realmAtoms returns the atoms of realmID at revision, ordered by vlob id
// then version.
func (r *MemoryRepository) realmAtoms(d *orgData, realmID uuid.UUID, revision uint64) []*models.VlobAtom {
	var out []*models.VlobAtom
	for _, atoms := range d.atoms {
		for _, a := range atoms {
			if a.RealmID == realmID && a.EncryptionRevision == revision {
				out = append(out, a)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if c := bytes.Compare(out[i].VlobID[:], out[j].VlobID[:]); c != 0 {
			return c < 0
		}
		return out[i].Version < out[j].Version
	})
	return out
}

func hasRevision(d *orgData, vlobID uuid.UUID, version, revision uint64) bool {
	for _, a := range d.atoms[vlobID] {
		if a.Version == version && a.EncryptionRevision == revision {
			return true
		}
	}
	return false
}

func (r *MemoryRepository) ReencryptionBatch(_ context.Context, org models.OrganizationID, realmID uuid.UUID, oldRev, newRev uint64, size int) ([]models.ReencryptionEntry, error) {
	d := r.view(org)
	var out []models.ReencryptionEntry
	for _, a := range r.realmAtoms(d, realmID, oldRev) {
		if len(out) >= size {
			break
		}
		if hasRevision(d, a.VlobID, a.Version, newRev) {
			continue
		}
		out = append(out, models.ReencryptionEntry{VlobID: a.VlobID, Version: a.Version, Blob: bytes.Clone(a.Blob)})
	}
	return out, nil
}

func (r *MemoryRepository) SaveReencrypted(_ context.Context, org models.OrganizationID, realmID uuid.UUID, oldRev, newRev uint64, entries []models.ReencryptionEntry) error {
	d := r.org(org)
	for _, e := range entries {
		var src *models.VlobAtom
		for _, a := range d.atoms[e.VlobID] {
			if a.RealmID == realmID && a.Version == e.Version && a.EncryptionRevision == oldRev {
				src = a
				break
			}
		}
		if src == nil || hasRevision(d, e.VlobID, e.Version, newRev) {
			continue
		}
		atom := cloneAtom(src)
		atom.EncryptionRevision = newRev
		atom.Blob = e.Blob
		if err := r.insert(d, atom); err != nil {
			return err
		}
	}
	return nil
}

func (r *MemoryRepository) ReencryptionProgress(_ context.Context, org models.OrganizationID, realmID uuid.UUID, oldRev, newRev uint64) (int, int, error) {
	d := r.view(org)
	var total, done int
	for _, a := range r.realmAtoms(d, realmID, oldRev) {
		total++
		if hasRevision(d, a.VlobID, a.Version, newRev) {
			done++
		}
	}
	return total, done, nil
}

func (r *MemoryRepository) Size(_ context.Context, org models.OrganizationID, realmID *uuid.UUID, at *time.Time) (int64, error) {
	var size int64
	for _, atoms := range r.view(org).atoms {
		for _, a := range atoms {
			if realmID != nil && a.RealmID != *realmID {
				continue
			}
			if at != nil && a.CreatedOn.After(*at) {
				continue
			}
			size += int64(len(a.Blob))
		}
	}
	return size, nil
}
