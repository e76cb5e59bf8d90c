// Package models holds the identifiers and entities the server stores.
// All of them are plain data: validation of client-provided values happens
// in the certificates and services packages.
package models

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

var ErrInvalidID = errors.New("invalid identifier")

var (
	organizationIDRe = regexp.MustCompile(`^[A-Za-z0-9_]{1,32}$`)
	entityIDRe       = regexp.MustCompile(`^[\w\-]{1,32}$`)
)

type OrganizationID string

func (o OrganizationID) Validate() error {
	if !organizationIDRe.MatchString(string(o)) {
		return fmt.Errorf("%w: organization %q", ErrInvalidID, string(o))
	}
	return nil
}

func (o OrganizationID) String() string { return string(o) }

type UserID string

func (u UserID) Validate() error {
	if !entityIDRe.MatchString(string(u)) {
		return fmt.Errorf("%w: user %q", ErrInvalidID, string(u))
	}
	return nil
}

type DeviceName string

// DeviceID is `<user_id>@<device_name>`.
type DeviceID string

func NewDeviceID(u UserID, d DeviceName) DeviceID {
	return DeviceID(string(u) + "@" + string(d))
}

func (d DeviceID) split() (string, string, bool) {
	return strings.Cut(string(d), "@")
}

func (d DeviceID) UserID() UserID {
	u, _, _ := d.split()
	return UserID(u)
}

func (d DeviceID) DeviceName() DeviceName {
	_, n, _ := d.split()
	return DeviceName(n)
}

func (d DeviceID) Validate() error {
	u, n, ok := d.split()
	if !ok || !entityIDRe.MatchString(u) || !entityIDRe.MatchString(n) {
		return fmt.Errorf("%w: device %q", ErrInvalidID, string(d))
	}
	return nil
}

func (d DeviceID) String() string { return string(d) }

// InvitationToken is the 128 bits secret shared with the claimer.
type InvitationToken = uuid.UUID

// ParseInvitationToken accepts both the hex and the dashed uuid forms.
func ParseInvitationToken(s string) (InvitationToken, error) {
	return uuid.Parse(s)
}

// HumanHandle binds a user to a real person.
type HumanHandle struct {
	Email string `msgpack:"email" json:"email"`
	Label string `msgpack:"label" json:"label"`
}
