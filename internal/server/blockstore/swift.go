package blockstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/Scille/parsec-cloud-sub009/internal/server/models"
	"github.com/google/uuid"
	"github.com/ncw/swift/v2"
)

type swiftAPI interface {
	ObjectPutBytes(ctx context.Context, container string, objectName string, contents []byte, contentType string) error
	ObjectGetBytes(ctx context.Context, container string, objectName string) ([]byte, error)
}

type SwiftConfig struct {
	AuthURL   string `json:"auth_url"`
	Tenant    string `json:"tenant"`
	Container string `json:"container"`
	User      string `json:"user"`
	Password  string `json:"password"`
}

// newSwiftConnection is a seam for tests.
var newSwiftConnection = func(ctx context.Context, cfg SwiftConfig) (swiftAPI, error) {
	conn := &swift.Connection{
		UserName: cfg.User,
		ApiKey:   cfg.Password,
		AuthUrl:  cfg.AuthURL,
		Tenant:   cfg.Tenant,
	}
	if err := conn.Authenticate(ctx); err != nil {
		return nil, err
	}
	return conn, nil
}

type SwiftBlockstore struct {
	conn      swiftAPI
	container string
}

func NewSwiftBlockstore(ctx context.Context, cfg SwiftConfig) (*SwiftBlockstore, error) {
	conn, err := newSwiftConnection(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("swift auth: %w", err)
	}
	return &SwiftBlockstore{conn: conn, container: cfg.Container}, nil
}

func (s *SwiftBlockstore) Read(ctx context.Context, org models.OrganizationID, blockID uuid.UUID) ([]byte, error) {
	data, err := s.conn.ObjectGetBytes(ctx, s.container, objectName(org, blockID))
	if err != nil {
		if errors.Is(err, swift.ObjectNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("swift get: %w", err)
	}
	return data, nil
}

func (s *SwiftBlockstore) Create(ctx context.Context, org models.OrganizationID, blockID uuid.UUID, data []byte) error {
	if err := s.conn.ObjectPutBytes(ctx, s.container, objectName(org, blockID), data, "application/octet-stream"); err != nil {
		return fmt.Errorf("swift put: %w", err)
	}
	return nil
}
