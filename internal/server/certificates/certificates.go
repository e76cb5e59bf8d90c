// Package certificates defines the signed certificates exchanged between
// clients and the server, and the generic helpers to sign and verify them.
//
// A certificate is a msgpack document wrapped in a cryptox signed envelope.
// The envelope author and timestamp must match the ones inside the document.
package certificates

import (
	"errors"
	"fmt"
	"time"

	"github.com/Scille/parsec-cloud-sub009/internal/cryptox"
	"github.com/Scille/parsec-cloud-sub009/internal/server/models"
	"github.com/vmihailenco/msgpack/v5"
)

type Kind string

const (
	KindUser               Kind = "user_certificate"
	KindDevice             Kind = "device_certificate"
	KindRevokedUser        Kind = "revoked_user_certificate"
	KindRealmRole          Kind = "realm_role_certificate"
	KindSequesterAuthority Kind = "sequester_authority_certificate"
	KindSequesterService   Kind = "sequester_service_certificate"
)

var (
	// ErrInvalidCertification means the signature or the envelope meta is wrong.
	ErrInvalidCertification = errors.New("invalid certification")
	// ErrInvalidData means the certificate content is malformed.
	ErrInvalidData = errors.New("invalid certificate data")
)

// Certificate is implemented by every certificate type.
type Certificate interface {
	CertificateKind() Kind
	// Meta returns the certifier (nil for the organization root) and
	// the certification timestamp.
	Meta() (*models.DeviceID, time.Time)
	validate() error
	setKind()
	kindTag() Kind
}

// pointer constrains a type parameter to *C implementing Certificate.
type pointer[C any] interface {
	*C
	Certificate
}

func authorString(author *models.DeviceID) string {
	if author == nil {
		return cryptox.RootAuthor
	}
	return string(*author)
}

// Sign serializes and signs c with key.
func Sign(c Certificate, key cryptox.SigningKey) ([]byte, error) {
	c.setKind()
	if err := c.validate(); err != nil {
		return nil, err
	}
	content, err := msgpack.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidData, err)
	}
	author, ts := c.Meta()
	return cryptox.BuildSigned(authorString(author), key, content, ts)
}

// Verify checks the signature of signed against key, then decodes and
// validates the certificate.
func Verify[C any, PC pointer[C]](signed []byte, key cryptox.VerifyKey) (PC, error) {
	author, ts, content, err := cryptox.VerifySignedMeta(signed, key)
	if errors.Is(err, cryptox.ErrBadSignature) {
		// Name the claimed signer, usually the wrong device signed.
		if claimed, _, metaErr := cryptox.UnsecureExtractMeta(signed); metaErr == nil {
			return nil, fmt.Errorf("%w: %v (claimed author %q)", ErrInvalidCertification, err, claimed)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCertification, err)
	}
	cert, err := decode[C, PC](content)
	if err != nil {
		return nil, err
	}
	certAuthor, certTs := cert.Meta()
	if authorString(certAuthor) != author || !certTs.Equal(ts) {
		return nil, fmt.Errorf("%w: envelope meta does not match content", ErrInvalidCertification)
	}
	return cert, nil
}

func decode[C any, PC pointer[C]](content []byte) (PC, error) {
	cert := PC(new(C))
	if err := msgpack.Unmarshal(content, cert); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidData, err)
	}
	if cert.kindTag() != cert.CertificateKind() {
		return nil, fmt.Errorf("%w: expected %s, got %q", ErrInvalidData, cert.CertificateKind(), cert.kindTag())
	}
	if err := cert.validate(); err != nil {
		return nil, err
	}
	return cert, nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidData, fmt.Sprintf(format, args...))
}
