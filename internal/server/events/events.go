// Package events is the in-process event bus tying services and client
// connections together. It is a coordination primitive only: nothing is
// persisted, and a bounded per-organization history is kept so SSE clients
// can resume after a short disconnection.
package events

import (
	"github.com/Scille/parsec-cloud-sub009/internal/server/models"
	"github.com/google/uuid"
)

type Type string

const (
	TypePinged                   Type = "pinged"
	TypeMessageReceived          Type = "message.received"
	TypeInviteStatusChanged      Type = "invite.status_changed"
	TypeInviteConduitUpdated     Type = "invite.conduit_updated"
	TypeRealmRolesUpdated        Type = "realm.roles_updated"
	TypeRealmMaintenanceStarted  Type = "realm.maintenance_started"
	TypeRealmMaintenanceFinished Type = "realm.maintenance_finished"
	TypeRealmVlobsUpdated        Type = "realm.vlobs_updated"
	TypePkiEnrollmentUpdated     Type = "pki_enrollment.updated"
	TypeUserRevoked              Type = "user.revoked"
	TypeOrganizationExpired      Type = "organization.expired"
)

// Event is implemented by every event sent on the bus.
type Event interface {
	Type() Type
	Organization() models.OrganizationID
}

// ClientEvent marks events that are forwarded to client connections and
// therefore recorded in the replay history.
type ClientEvent interface {
	Event
	clientVisible()
}

type client struct{}

func (client) clientVisible() {}

type Pinged struct {
	client
	OrganizationID models.OrganizationID
	Author         models.DeviceID
	Ping           string
}

func (e *Pinged) Type() Type                          { return TypePinged }
func (e *Pinged) Organization() models.OrganizationID { return e.OrganizationID }

type MessageReceived struct {
	client
	OrganizationID models.OrganizationID
	Author         models.DeviceID
	Recipient      models.UserID
	Index          uint64
}

func (e *MessageReceived) Type() Type                          { return TypeMessageReceived }
func (e *MessageReceived) Organization() models.OrganizationID { return e.OrganizationID }

type InviteStatusChanged struct {
	client
	OrganizationID models.OrganizationID
	Greeter        models.UserID
	Token          models.InvitationToken
	Status         models.InvitationStatus
}

func (e *InviteStatusChanged) Type() Type                          { return TypeInviteStatusChanged }
func (e *InviteStatusChanged) Organization() models.OrganizationID { return e.OrganizationID }

// InviteConduitUpdated wakes up the peer waiting on a conduit exchange.
type InviteConduitUpdated struct {
	OrganizationID models.OrganizationID
	Token          models.InvitationToken
}

func (e *InviteConduitUpdated) Type() Type                          { return TypeInviteConduitUpdated }
func (e *InviteConduitUpdated) Organization() models.OrganizationID { return e.OrganizationID }

type RealmRolesUpdated struct {
	client
	OrganizationID models.OrganizationID
	Author         models.DeviceID
	RealmID        uuid.UUID
	UserID         models.UserID
	Role           *models.RealmRole
}

func (e *RealmRolesUpdated) Type() Type                          { return TypeRealmRolesUpdated }
func (e *RealmRolesUpdated) Organization() models.OrganizationID { return e.OrganizationID }

type RealmMaintenanceStarted struct {
	client
	OrganizationID     models.OrganizationID
	Author             models.DeviceID
	RealmID            uuid.UUID
	EncryptionRevision uint64
}

func (e *RealmMaintenanceStarted) Type() Type                          { return TypeRealmMaintenanceStarted }
func (e *RealmMaintenanceStarted) Organization() models.OrganizationID { return e.OrganizationID }

type RealmMaintenanceFinished struct {
	client
	OrganizationID     models.OrganizationID
	Author             models.DeviceID
	RealmID            uuid.UUID
	EncryptionRevision uint64
}

func (e *RealmMaintenanceFinished) Type() Type                          { return TypeRealmMaintenanceFinished }
func (e *RealmMaintenanceFinished) Organization() models.OrganizationID { return e.OrganizationID }

type RealmVlobsUpdated struct {
	client
	OrganizationID models.OrganizationID
	Author         models.DeviceID
	RealmID        uuid.UUID
	Checkpoint     uint64
	SrcID          uuid.UUID
	SrcVersion     uint64
}

func (e *RealmVlobsUpdated) Type() Type                          { return TypeRealmVlobsUpdated }
func (e *RealmVlobsUpdated) Organization() models.OrganizationID { return e.OrganizationID }

type PkiEnrollmentUpdated struct {
	client
	OrganizationID models.OrganizationID
}

func (e *PkiEnrollmentUpdated) Type() Type                          { return TypePkiEnrollmentUpdated }
func (e *PkiEnrollmentUpdated) Organization() models.OrganizationID { return e.OrganizationID }

type UserRevoked struct {
	OrganizationID models.OrganizationID
	UserID         models.UserID
}

func (e *UserRevoked) Type() Type                          { return TypeUserRevoked }
func (e *UserRevoked) Organization() models.OrganizationID { return e.OrganizationID }

type OrganizationExpired struct {
	OrganizationID models.OrganizationID
}

func (e *OrganizationExpired) Type() Type                          { return TypeOrganizationExpired }
func (e *OrganizationExpired) Organization() models.OrganizationID { return e.OrganizationID }
