package models

import "time"

type UserProfile string

const (
	UserProfileAdmin    UserProfile = "ADMIN"
	UserProfileStandard UserProfile = "STANDARD"
	UserProfileOutsider UserProfile = "OUTSIDER"
)

func (p UserProfile) Valid() bool {
	switch p {
	case UserProfileAdmin, UserProfileStandard, UserProfileOutsider:
		return true
	}
	return false
}

// UserProfiles lists every profile, in display order.
var UserProfiles = []UserProfile{UserProfileAdmin, UserProfileStandard, UserProfileOutsider}

type User struct {
	UserID                  UserID
	HumanHandle             *HumanHandle
	Profile                 UserProfile
	UserCertificate         []byte
	RedactedUserCertificate []byte
	UserCertifier           *DeviceID
	CreatedOn               time.Time

	RevokedOn              *time.Time
	RevokedUserCertificate []byte
	RevokedUserCertifier   *DeviceID
}

func (u *User) IsRevoked() bool {
	return u.RevokedOn != nil
}

// IsRevokedAt reports whether the user was revoked at or before t.
func (u *User) IsRevokedAt(t time.Time) bool {
	return u.RevokedOn != nil && !u.RevokedOn.After(t)
}

type Device struct {
	DeviceID                  DeviceID
	DeviceLabel               *string
	VerifyKey                 []byte
	DeviceCertificate         []byte
	RedactedDeviceCertificate []byte
	DeviceCertifier           *DeviceID
	CreatedOn                 time.Time
}

// Trustchain holds the certificates a client needs to walk the chain of
// certifiers back to the organization root.
type Trustchain struct {
	Devices      [][]byte
	Users        [][]byte
	RevokedUsers [][]byte
}

// HumanFindResult is one row returned by a human search.
type HumanFindResult struct {
	UserID      UserID
	HumanHandle *HumanHandle
	Revoked     bool
}
