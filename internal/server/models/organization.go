package models

import "time"

type Organization struct {
	OrganizationID             OrganizationID
	BootstrapToken             string
	RootVerifyKey              []byte
	IsExpired                  bool
	ActiveUsersLimit           *int64
	UserProfileOutsiderAllowed bool
	CreatedOn                  time.Time
	BootstrappedOn             *time.Time
	SequesterAuthority         *SequesterAuthority
}

func (o *Organization) IsBootstrapped() bool {
	return o.RootVerifyKey != nil
}

// OrganizationConfig holds the settings an administrator can overwrite.
type OrganizationConfig struct {
	ActiveUsersLimit           *int64
	UserProfileOutsiderAllowed bool
}

// OrganizationUpdate is a partial update: nil fields are left untouched.
// ActiveUsersLimit is a double pointer so "no limit" can be set explicitly.
type OrganizationUpdate struct {
	IsExpired                  *bool
	ActiveUsersLimit           **int64
	UserProfileOutsiderAllowed *bool
}

type UsersPerProfileDetail struct {
	Profile UserProfile `json:"profile"`
	Active  int         `json:"active"`
	Revoked int         `json:"revoked"`
}

type OrganizationStats struct {
	Users                 int                     `json:"users"`
	ActiveUsers           int                     `json:"active_users"`
	Realms                int                     `json:"realms"`
	DataSize              int64                   `json:"data_size"`
	MetadataSize          int64                   `json:"metadata_size"`
	UsersPerProfileDetail []UsersPerProfileDetail `json:"users_per_profile_detail"`
}
