package users

import (
	"context"
	"time"

	"github.com/Scille/parsec-cloud-sub009/internal/server/models"
)

// Repository stores users and their devices.
type Repository interface {
	// CreateUser inserts a user together with its first device.
	CreateUser(ctx context.Context, org models.OrganizationID, user *models.User, device *models.Device) error
	CreateDevice(ctx context.Context, org models.OrganizationID, device *models.Device) error
	GetUser(ctx context.Context, org models.OrganizationID, id models.UserID) (*models.User, error)
	GetDevice(ctx context.Context, org models.OrganizationID, id models.DeviceID) (*models.Device, error)
	ListUsers(ctx context.Context, org models.OrganizationID) ([]*models.User, error)
	ListDevices(ctx context.Context, org models.OrganizationID, user models.UserID) ([]*models.Device, error)
	Revoke(ctx context.Context, org models.OrganizationID, id models.UserID, certificate []byte, certifier models.DeviceID, on time.Time) error
}
