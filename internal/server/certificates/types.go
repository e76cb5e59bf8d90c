package certificates

import (
	"crypto/ed25519"
	"time"

	"github.com/Scille/parsec-cloud-sub009/internal/server/models"
	"github.com/google/uuid"
)

type UserCertificate struct {
	Type        Kind                `msgpack:"type"`
	Author      *models.DeviceID    `msgpack:"author"`
	Timestamp   time.Time           `msgpack:"timestamp"`
	UserID      models.UserID       `msgpack:"user_id"`
	HumanHandle *models.HumanHandle `msgpack:"human_handle"`
	PublicKey   []byte              `msgpack:"public_key"`
	Profile     models.UserProfile  `msgpack:"profile"`
}

func (c *UserCertificate) CertificateKind() Kind { return KindUser }
func (c *UserCertificate) kindTag() Kind         { return c.Type }
func (c *UserCertificate) setKind()              { c.Type = KindUser }
func (c *UserCertificate) Meta() (*models.DeviceID, time.Time) {
	return c.Author, c.Timestamp
}

func (c *UserCertificate) validate() error {
	if err := c.UserID.Validate(); err != nil {
		return invalid("%v", err)
	}
	if !c.Profile.Valid() {
		return invalid("unknown profile %q", c.Profile)
	}
	if len(c.PublicKey) != 32 {
		return invalid("public key must be 32 bytes")
	}
	if c.HumanHandle != nil && c.HumanHandle.Email == "" {
		return invalid("human handle without email")
	}
	return nil
}

// IsRedactedOf reports whether c is full with the human handle removed.
func (c *UserCertificate) IsRedactedOf(full *UserCertificate) bool {
	return c.HumanHandle == nil &&
		sameAuthor(c.Author, full.Author) &&
		c.Timestamp.Equal(full.Timestamp) &&
		c.UserID == full.UserID &&
		c.Profile == full.Profile &&
		string(c.PublicKey) == string(full.PublicKey)
}

type DeviceCertificate struct {
	Type        Kind             `msgpack:"type"`
	Author      *models.DeviceID `msgpack:"author"`
	Timestamp   time.Time        `msgpack:"timestamp"`
	DeviceID    models.DeviceID  `msgpack:"device_id"`
	DeviceLabel *string          `msgpack:"device_label"`
	VerifyKey   []byte           `msgpack:"verify_key"`
}

func (c *DeviceCertificate) CertificateKind() Kind { return KindDevice }
func (c *DeviceCertificate) kindTag() Kind         { return c.Type }
func (c *DeviceCertificate) setKind()              { c.Type = KindDevice }
func (c *DeviceCertificate) Meta() (*models.DeviceID, time.Time) {
	return c.Author, c.Timestamp
}

func (c *DeviceCertificate) validate() error {
	if err := c.DeviceID.Validate(); err != nil {
		return invalid("%v", err)
	}
	if len(c.VerifyKey) != ed25519.PublicKeySize {
		return invalid("verify key must be %d bytes", ed25519.PublicKeySize)
	}
	return nil
}

// IsRedactedOf reports whether c is full with the device label removed.
func (c *DeviceCertificate) IsRedactedOf(full *DeviceCertificate) bool {
	return c.DeviceLabel == nil &&
		sameAuthor(c.Author, full.Author) &&
		c.Timestamp.Equal(full.Timestamp) &&
		c.DeviceID == full.DeviceID &&
		string(c.VerifyKey) == string(full.VerifyKey)
}

type RevokedUserCertificate struct {
	Type      Kind             `msgpack:"type"`
	Author    *models.DeviceID `msgpack:"author"`
	Timestamp time.Time        `msgpack:"timestamp"`
	UserID    models.UserID    `msgpack:"user_id"`
}

func (c *RevokedUserCertificate) CertificateKind() Kind { return KindRevokedUser }
func (c *RevokedUserCertificate) kindTag() Kind         { return c.Type }
func (c *RevokedUserCertificate) setKind()              { c.Type = KindRevokedUser }
func (c *RevokedUserCertificate) Meta() (*models.DeviceID, time.Time) {
	return c.Author, c.Timestamp
}

func (c *RevokedUserCertificate) validate() error {
	if c.Author == nil {
		return invalid("revocation must be signed by a device")
	}
	if err := c.UserID.Validate(); err != nil {
		return invalid("%v", err)
	}
	return nil
}

type RealmRoleCertificate struct {
	Type      Kind              `msgpack:"type"`
	Author    *models.DeviceID  `msgpack:"author"`
	Timestamp time.Time         `msgpack:"timestamp"`
	RealmID   uuid.UUID         `msgpack:"realm_id"`
	UserID    models.UserID     `msgpack:"user_id"`
	Role      *models.RealmRole `msgpack:"role"`
}

func (c *RealmRoleCertificate) CertificateKind() Kind { return KindRealmRole }
func (c *RealmRoleCertificate) kindTag() Kind         { return c.Type }
func (c *RealmRoleCertificate) setKind()              { c.Type = KindRealmRole }
func (c *RealmRoleCertificate) Meta() (*models.DeviceID, time.Time) {
	return c.Author, c.Timestamp
}

func (c *RealmRoleCertificate) validate() error {
	if c.Author == nil {
		return invalid("realm role must be signed by a device")
	}
	if c.RealmID == uuid.Nil {
		return invalid("missing realm id")
	}
	if err := c.UserID.Validate(); err != nil {
		return invalid("%v", err)
	}
	if c.Role != nil && !c.Role.Valid() {
		return invalid("unknown role %q", *c.Role)
	}
	return nil
}

type SequesterAuthorityCertificate struct {
	Type      Kind             `msgpack:"type"`
	Author    *models.DeviceID `msgpack:"author"`
	Timestamp time.Time        `msgpack:"timestamp"`
	VerifyKey []byte           `msgpack:"verify_key_der"`
}

func (c *SequesterAuthorityCertificate) CertificateKind() Kind { return KindSequesterAuthority }
func (c *SequesterAuthorityCertificate) kindTag() Kind         { return c.Type }
func (c *SequesterAuthorityCertificate) setKind()              { c.Type = KindSequesterAuthority }
func (c *SequesterAuthorityCertificate) Meta() (*models.DeviceID, time.Time) {
	return c.Author, c.Timestamp
}

func (c *SequesterAuthorityCertificate) validate() error {
	if c.Author != nil {
		return invalid("sequester authority must be signed by the root key")
	}
	if len(c.VerifyKey) != ed25519.PublicKeySize {
		return invalid("sequester verify key must be %d bytes", ed25519.PublicKeySize)
	}
	return nil
}

// SequesterServiceCertificate is signed by the sequester authority key.
type SequesterServiceCertificate struct {
	Type          Kind             `msgpack:"type"`
	Author        *models.DeviceID `msgpack:"author"`
	Timestamp     time.Time        `msgpack:"timestamp"`
	ServiceID     uuid.UUID        `msgpack:"service_id"`
	ServiceLabel  string           `msgpack:"service_label"`
	EncryptionKey []byte           `msgpack:"encryption_key_der"`
}

func (c *SequesterServiceCertificate) CertificateKind() Kind { return KindSequesterService }
func (c *SequesterServiceCertificate) kindTag() Kind         { return c.Type }
func (c *SequesterServiceCertificate) setKind()              { c.Type = KindSequesterService }
func (c *SequesterServiceCertificate) Meta() (*models.DeviceID, time.Time) {
	return c.Author, c.Timestamp
}

func (c *SequesterServiceCertificate) validate() error {
	if c.Author != nil {
		return invalid("sequester service must be signed by the sequester authority")
	}
	if c.ServiceID == uuid.Nil {
		return invalid("missing service id")
	}
	if c.ServiceLabel == "" {
		return invalid("missing service label")
	}
	if len(c.EncryptionKey) == 0 {
		return invalid("missing encryption key")
	}
	return nil
}

func sameAuthor(a, b *models.DeviceID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
