package users

import (
	"context"
	"sort"
	"time"

	"github.com/Scille/parsec-cloud-sub009/internal/common"
	"github.com/Scille/parsec-cloud-sub009/internal/server/models"
)

type orgData struct {
	users   map[models.UserID]*models.User
	devices map[models.DeviceID]*models.Device
}

// MemoryRepository is not safe for concurrent use: the memory repository
// manager serializes access.
type MemoryRepository struct {
	orgs map[models.OrganizationID]*orgData
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{orgs: make(map[models.OrganizationID]*orgData)}
}

func (r *MemoryRepository) org(id models.OrganizationID) *orgData {
	d, ok := r.orgs[id]
	if !ok {
		d = &orgData{
			users:   make(map[models.UserID]*models.User),
			devices: make(map[models.DeviceID]*models.Device),
		}
		r.orgs[id] = d
	}
	return d
}

func cloneUser(u *models.User) *models.User {
	c := *u
	if u.HumanHandle != nil {
		h := *u.HumanHandle
		c.HumanHandle = &h
	}
	if u.RevokedOn != nil {
		t := *u.RevokedOn
		c.RevokedOn = &t
	}
	return &c
}

func cloneDevice(d *models.Device) *models.Device {
	c := *d
	return &c
}

func (r *MemoryRepository) CreateUser(ctx context.Context, org models.OrganizationID, user *models.User, device *models.Device) error {
	data := r.org(org)
	if _, ok := data.users[user.UserID]; ok {
		return common.ErrorAlreadyExists
	}
	if _, ok := data.devices[device.DeviceID]; ok {
		return common.ErrorAlreadyExists
	}
	if user.HumanHandle != nil {
		for _, other := range data.users {
			if !other.IsRevoked() && other.HumanHandle != nil && other.HumanHandle.Email == user.HumanHandle.Email {
				return common.ErrorAlreadyExists
			}
		}
	}
	data.users[user.UserID] = cloneUser(user)
	data.devices[device.DeviceID] = cloneDevice(device)
	return nil
}

func (r *MemoryRepository) CreateDevice(_ context.Context, org models.OrganizationID, device *models.Device) error {
	data := r.org(org)
	if _, ok := data.devices[device.DeviceID]; ok {
		return common.ErrorAlreadyExists
	}
	if _, ok := data.users[device.DeviceID.UserID()]; !ok {
		return common.ErrorNotFound
	}
	data.devices[device.DeviceID] = cloneDevice(device)
	return nil
}

func (r *MemoryRepository) GetUser(_ context.Context, org models.OrganizationID, id models.UserID) (*models.User, error) {
	u, ok := r.org(org).users[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return cloneUser(u), nil
}

func (r *MemoryRepository) GetDevice(_ context.Context, org models.OrganizationID, id models.DeviceID) (*models.Device, error) {
	d, ok := r.org(org).devices[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return cloneDevice(d), nil
}

func (r *MemoryRepository) ListUsers(_ context.Context, org models.OrganizationID) ([]*models.User, error) {
	data := r.org(org)
	out := make([]*models.User, 0, len(data.users))
	for _, u := range data.users {
		out = append(out, cloneUser(u))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedOn.Equal(out[j].CreatedOn) {
			return out[i].CreatedOn.Before(out[j].CreatedOn)
		}
		return out[i].UserID < out[j].UserID
	})
	return out, nil
}

func (r *MemoryRepository) ListDevices(_ context.Context, org models.OrganizationID, user models.UserID) ([]*models.Device, error) {
	var out []*models.Device
	for _, d := range r.org(org).devices {
		if d.DeviceID.UserID() == user {
			out = append(out, cloneDevice(d))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedOn.Equal(out[j].CreatedOn) {
			return out[i].CreatedOn.Before(out[j].CreatedOn)
		}
		return out[i].DeviceID < out[j].DeviceID
	})
	return out, nil
}

func (r *MemoryRepository) Revoke(_ context.Context, org models.OrganizationID, id models.UserID, certificate []byte, certifier models.DeviceID, on time.Time) error {
	u, ok := r.org(org).users[id]
	if !ok || u.IsRevoked() {
		return common.ErrorNotFound
	}
	u.RevokedOn = &on
	u.RevokedUserCertificate = certificate
	u.RevokedUserCertifier = &certifier
	return nil
}
