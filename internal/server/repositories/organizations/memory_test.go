package organizations

import (
	"context"
	"testing"

	"github.com/Scille/parsec-cloud-sub009/internal/common"
	"github.com/Scille/parsec-cloud-sub009/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryRepository_CreateOverwritesUntilBootstrapped(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()

	require.NoError(t, repo.Create(ctx, &models.Organization{OrganizationID: "CoolOrg", BootstrapToken: "T1", CreatedOn: now}))
	limit := int64(1)
	require.NoError(t, repo.Create(ctx, &models.Organization{OrganizationID: "CoolOrg", BootstrapToken: "T2", ActiveUsersLimit: &limit}))

	org, err := repo.Get(ctx, "CoolOrg")
	require.NoError(t, err)
	assert.Equal(t, "T2", org.BootstrapToken)
	assert.Equal(t, now, org.CreatedOn)
	require.NotNil(t, org.ActiveUsersLimit)

	require.NoError(t, repo.Bootstrap(ctx, "CoolOrg", []byte("rvk"), now, nil))
	assert.ErrorIs(t, repo.Bootstrap(ctx, "CoolOrg", []byte("rvk"), now, nil), common.ErrorAlreadyExists)
	assert.ErrorIs(t, repo.Create(ctx, &models.Organization{OrganizationID: "CoolOrg"}), common.ErrorAlreadyExists)
}

func TestMemoryRepository_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	require.NoError(t, repo.Create(ctx, &models.Organization{OrganizationID: "CoolOrg"}))

	org, err := repo.Get(ctx, "CoolOrg")
	require.NoError(t, err)
	org.IsExpired = true

	again, err := repo.Get(ctx, "CoolOrg")
	require.NoError(t, err)
	assert.False(t, again.IsExpired)
}

func TestMemoryRepository_Update(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	limit := int64(3)
	require.NoError(t, repo.Create(ctx, &models.Organization{OrganizationID: "CoolOrg", ActiveUsersLimit: &limit}))

	var noLimit *int64
	outsider := false
	require.NoError(t, repo.Update(ctx, "CoolOrg", models.OrganizationUpdate{
		ActiveUsersLimit:           &noLimit,
		UserProfileOutsiderAllowed: &outsider,
	}))
	org, err := repo.Get(ctx, "CoolOrg")
	require.NoError(t, err)
	assert.Nil(t, org.ActiveUsersLimit)
	assert.False(t, org.UserProfileOutsiderAllowed)

	assert.ErrorIs(t, repo.Update(ctx, "Nope", models.OrganizationUpdate{}), common.ErrorNotFound)

	orgs, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, orgs, 1)
}
