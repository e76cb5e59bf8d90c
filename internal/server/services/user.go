package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/Scille/parsec-cloud-sub009/internal/cryptox"
	"github.com/Scille/parsec-cloud-sub009/internal/server/certificates"
	"github.com/Scille/parsec-cloud-sub009/internal/server/events"
	"github.com/Scille/parsec-cloud-sub009/internal/server/models"
	"github.com/Scille/parsec-cloud-sub009/internal/server/repositories/repomanager"
)

// UserService handles users, devices, revocation and the certificate log.
type UserService struct {
	base
}

type newUserCertificates struct {
	User           []byte
	Device         []byte
	RedactedUser   []byte
	RedactedDevice []byte
}

// newUser is a user and its first device whose certificates were checked.
type newUser struct {
	raw    newUserCertificates
	user   *certificates.UserCertificate
	device *certificates.DeviceCertificate
}

func sameDevice(a *models.DeviceID, b *models.DeviceID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// loadNewUser verifies the certificates of a new user with key, expecting
// author as certifier (nil for the organization root).
func (b *base) loadNewUser(key cryptox.VerifyKey, author *models.DeviceID, c newUserCertificates) (*newUser, error) {
	u, err := certificates.Verify[certificates.UserCertificate](c.User, key)
	if err != nil {
		return nil, certError(err)
	}
	d, err := certificates.Verify[certificates.DeviceCertificate](c.Device, key)
	if err != nil {
		return nil, certError(err)
	}
	if !sameDevice(u.Author, author) || !sameDevice(d.Author, author) {
		return nil, fmt.Errorf("%w: unexpected certifier", ErrInvalidCertification)
	}
	if !u.Timestamp.Equal(d.Timestamp) {
		return nil, fmt.Errorf("%w: user and device certificates must share their timestamp", ErrInvalidData)
	}
	if d.DeviceID.UserID() != u.UserID {
		return nil, fmt.Errorf("%w: device and user mismatch", ErrInvalidData)
	}
	if err := b.checkBallpark(u.Timestamp); err != nil {
		return nil, err
	}

	if c.RedactedUser == nil && u.HumanHandle == nil {
		c.RedactedUser = c.User
	}
	if c.RedactedDevice == nil && d.DeviceLabel == nil {
		c.RedactedDevice = c.Device
	}
	ru, err := certificates.Verify[certificates.UserCertificate](c.RedactedUser, key)
	if err != nil {
		return nil, certError(err)
	}
	if !ru.IsRedactedOf(u) {
		return nil, fmt.Errorf("%w: redacted user certificate differs from user certificate", ErrInvalidData)
	}
	rd, err := certificates.Verify[certificates.DeviceCertificate](c.RedactedDevice, key)
	if err != nil {
		return nil, certError(err)
	}
	if !rd.IsRedactedOf(d) {
		return nil, fmt.Errorf("%w: redacted device certificate differs from device certificate", ErrInvalidData)
	}
	return &newUser{raw: c, user: u, device: d}, nil
}

func (n *newUser) userModel() *models.User {
	return &models.User{
		UserID:                  n.user.UserID,
		HumanHandle:             n.user.HumanHandle,
		Profile:                 n.user.Profile,
		UserCertificate:         n.raw.User,
		RedactedUserCertificate: n.raw.RedactedUser,
		UserCertifier:           n.user.Author,
		CreatedOn:               n.user.Timestamp,
	}
}

func (n *newUser) deviceModel() *models.Device {
	return deviceModel(n.device, n.raw.Device, n.raw.RedactedDevice)
}

func deviceModel(d *certificates.DeviceCertificate, raw, redacted []byte) *models.Device {
	return &models.Device{
		DeviceID:                  d.DeviceID,
		DeviceLabel:               d.DeviceLabel,
		VerifyKey:                 d.VerifyKey,
		DeviceCertificate:         raw,
		RedactedDeviceCertificate: redacted,
		DeviceCertifier:           d.Author,
		CreatedOn:                 d.Timestamp,
	}
}

func (n *newUser) appendToLog(ctx context.Context, r *repomanager.Repositories, org models.OrganizationID) error {
	if _, err := r.Certificates.Append(ctx, org, string(certificates.KindUser), n.user.Timestamp, n.raw.User); err != nil {
		return err
	}
	_, err := r.Certificates.Append(ctx, org, string(certificates.KindDevice), n.device.Timestamp, n.raw.Device)
	return err
}

// insertNewUser enforces the organization limits, then stores the user with
// its first device.
func insertNewUser(ctx context.Context, r *repomanager.Repositories, org models.OrganizationID, n *newUser) error {
	o, err := r.Organizations.GetForUpdate(ctx, org)
	if err != nil {
		return repoError(err, ErrNotFound)
	}
	if n.user.Profile == models.UserProfileOutsider && !o.UserProfileOutsiderAllowed {
		return fmt.Errorf("%w: outsider profile is not allowed", ErrNotAllowed)
	}
	users, err := r.Users.ListUsers(ctx, org)
	if err != nil {
		return err
	}
	active := 0
	for _, u := range users {
		if u.IsRevoked() {
			continue
		}
		active++
		if n.user.HumanHandle != nil && u.HumanHandle != nil && strings.EqualFold(u.HumanHandle.Email, n.user.HumanHandle.Email) {
			return fmt.Errorf("%w: human handle already taken", ErrAlreadyExists)
		}
	}
	if o.ActiveUsersLimit != nil && int64(active) >= *o.ActiveUsersLimit {
		return ErrActiveUsersLimitReached
	}
	if err := r.Users.CreateUser(ctx, org, n.userModel(), n.deviceModel()); err != nil {
		return repoError(err, ErrNotFound)
	}
	return n.appendToLog(ctx, r, org)
}

type UserCreateParams struct {
	UserCertificate           []byte
	DeviceCertificate         []byte
	RedactedUserCertificate   []byte
	RedactedDeviceCertificate []byte
}

// CreateUser registers a user certified by an administrator device.
func (s *UserService) CreateUser(ctx context.Context, caller Caller, p UserCreateParams) error {
	if caller.Profile != models.UserProfileAdmin {
		return ErrNotAllowed
	}
	author := caller.DeviceID
	nu, err := s.loadNewUser(caller.VerifyKey, &author, newUserCertificates{
		User: p.UserCertificate, Device: p.DeviceCertificate,
		RedactedUser: p.RedactedUserCertificate, RedactedDevice: p.RedactedDeviceCertificate,
	})
	if err != nil {
		return err
	}
	err = s.repos.WithTx(ctx, func(ctx context.Context, r *repomanager.Repositories) error {
		return insertNewUser(ctx, r, caller.OrganizationID, nu)
	})
	if err != nil {
		return err
	}
	s.logger.Info(ctx, "user created", "organization_id", caller.OrganizationID, "user_id", nu.user.UserID, "by", caller.DeviceID)
	return nil
}

type DeviceCreateParams struct {
	DeviceCertificate         []byte
	RedactedDeviceCertificate []byte
}

// CreateDevice registers a new device of the caller's own user.
func (s *UserService) CreateDevice(ctx context.Context, caller Caller, p DeviceCreateParams) error {
	d, err := certificates.Verify[certificates.DeviceCertificate](p.DeviceCertificate, caller.VerifyKey)
	if err != nil {
		return certError(err)
	}
	if d.Author == nil || *d.Author != caller.DeviceID {
		return fmt.Errorf("%w: device must be certified by the caller", ErrInvalidCertification)
	}
	if d.DeviceID.UserID() != caller.UserID() {
		return fmt.Errorf("%w: a device can only be created for its own user", ErrInvalidData)
	}
	if err := s.checkBallpark(d.Timestamp); err != nil {
		return err
	}
	redacted := p.RedactedDeviceCertificate
	if redacted == nil && d.DeviceLabel == nil {
		redacted = p.DeviceCertificate
	}
	rd, err := certificates.Verify[certificates.DeviceCertificate](redacted, caller.VerifyKey)
	if err != nil {
		return certError(err)
	}
	if !rd.IsRedactedOf(d) {
		return fmt.Errorf("%w: redacted device certificate differs from device certificate", ErrInvalidData)
	}

	return s.repos.WithTx(ctx, func(ctx context.Context, r *repomanager.Repositories) error {
		if err := r.Users.CreateDevice(ctx, caller.OrganizationID, deviceModel(d, p.DeviceCertificate, redacted)); err != nil {
			return repoError(err, ErrNotFound)
		}
		_, err := r.Certificates.Append(ctx, caller.OrganizationID, string(certificates.KindDevice), d.Timestamp, p.DeviceCertificate)
		return err
	})
}

// RevokeUser revokes another user. Only administrators may revoke.
func (s *UserService) RevokeUser(ctx context.Context, caller Caller, revokedCertificate []byte) error {
	if caller.Profile != models.UserProfileAdmin {
		return ErrNotAllowed
	}
	c, err := certificates.Verify[certificates.RevokedUserCertificate](revokedCertificate, caller.VerifyKey)
	if err != nil {
		return certError(err)
	}
	if c.Author == nil || *c.Author != caller.DeviceID {
		return fmt.Errorf("%w: revocation must be certified by the caller", ErrInvalidCertification)
	}
	if c.UserID == caller.UserID() {
		return fmt.Errorf("%w: cannot revoke oneself", ErrNotAllowed)
	}
	if err := s.checkBallpark(c.Timestamp); err != nil {
		return err
	}
	err = s.repos.WithTx(ctx, func(ctx context.Context, r *repomanager.Repositories) error {
		u, err := r.Users.GetUser(ctx, caller.OrganizationID, c.UserID)
		if err != nil {
			return repoError(err, ErrNotFound)
		}
		if u.IsRevoked() {
			return ErrAlreadyRevoked
		}
		if err := r.Users.Revoke(ctx, caller.OrganizationID, c.UserID, revokedCertificate, caller.DeviceID, c.Timestamp); err != nil {
			return repoError(err, ErrAlreadyRevoked)
		}
		_, err = r.Certificates.Append(ctx, caller.OrganizationID, string(certificates.KindRevokedUser), c.Timestamp, revokedCertificate)
		return err
	})
	if err != nil {
		return err
	}
	s.logger.Info(ctx, "user revoked", "organization_id", caller.OrganizationID, "user_id", c.UserID, "by", caller.DeviceID)
	s.publish(&events.UserRevoked{OrganizationID: caller.OrganizationID, UserID: c.UserID})
	return nil
}

// UserInfo is a user with its devices and the certificates needed to
// validate them.
type UserInfo struct {
	UserCertificate        []byte
	RevokedUserCertificate []byte
	DeviceCertificates     [][]byte
	Trustchain             models.Trustchain
}

// GetUser returns a user and the chain of its certifiers. Outsiders only
// get redacted certificates.
func (s *UserService) GetUser(ctx context.Context, caller Caller, id models.UserID) (*UserInfo, error) {
	redacted := caller.Profile == models.UserProfileOutsider
	pickUser := func(u *models.User) []byte {
		if redacted {
			return u.RedactedUserCertificate
		}
		return u.UserCertificate
	}
	pickDevice := func(d *models.Device) []byte {
		if redacted {
			return d.RedactedDeviceCertificate
		}
		return d.DeviceCertificate
	}

	var info *UserInfo
	err := s.repos.View(ctx, func(ctx context.Context, r *repomanager.Repositories) error {
		u, err := r.Users.GetUser(ctx, caller.OrganizationID, id)
		if err != nil {
			return repoError(err, ErrNotFound)
		}
		devices, err := r.Users.ListDevices(ctx, caller.OrganizationID, id)
		if err != nil {
			return err
		}
		info = &UserInfo{UserCertificate: pickUser(u), RevokedUserCertificate: u.RevokedUserCertificate}

		var queue []*models.DeviceID
		queue = append(queue, u.UserCertifier, u.RevokedUserCertifier)
		for _, d := range devices {
			info.DeviceCertificates = append(info.DeviceCertificates, pickDevice(d))
			queue = append(queue, d.DeviceCertifier)
		}

		seenDevices := map[models.DeviceID]bool{}
		seenUsers := map[models.UserID]bool{id: true}
		for len(queue) > 0 {
			next := queue[0]
			queue = queue[1:]
			if next == nil || seenDevices[*next] {
				continue
			}
			seenDevices[*next] = true
			d, err := r.Users.GetDevice(ctx, caller.OrganizationID, *next)
			if err != nil {
				return repoError(err, ErrNotFound)
			}
			info.Trustchain.Devices = append(info.Trustchain.Devices, pickDevice(d))
			queue = append(queue, d.DeviceCertifier)

			uid := next.UserID()
			if seenUsers[uid] {
				continue
			}
			seenUsers[uid] = true
			certifier, err := r.Users.GetUser(ctx, caller.OrganizationID, uid)
			if err != nil {
				return repoError(err, ErrNotFound)
			}
			info.Trustchain.Users = append(info.Trustchain.Users, pickUser(certifier))
			if certifier.RevokedUserCertificate != nil {
				info.Trustchain.RevokedUsers = append(info.Trustchain.RevokedUsers, certifier.RevokedUserCertificate)
			}
			queue = append(queue, certifier.UserCertifier, certifier.RevokedUserCertifier)
		}
		return nil
	})
	return info, err
}

type HumanFindParams struct {
	Query        string
	OmitRevoked  bool
	OmitNonHuman bool
	Page         int
	PerPage      int
}

type HumanFindPage struct {
	Results []models.HumanFindResult
	Total   int
}

// HumanFind searches users by email, label or id. Humans come first,
// sorted by label, then non-human users sorted by id.
func (s *UserService) HumanFind(ctx context.Context, caller Caller, p HumanFindParams) (*HumanFindPage, error) {
	if caller.Profile == models.UserProfileOutsider {
		return nil, ErrNotAllowed
	}
	if p.Page < 1 || p.PerPage < 1 || p.PerPage > 100 {
		return nil, fmt.Errorf("%w: bad paging", ErrInvalidData)
	}
	var users []*models.User
	err := s.repos.View(ctx, func(ctx context.Context, r *repomanager.Repositories) error {
		var err error
		users, err = r.Users.ListUsers(ctx, caller.OrganizationID)
		return err
	})
	if err != nil {
		return nil, err
	}

	query := strings.ToLower(strings.TrimSpace(p.Query))
	var humans, others []models.HumanFindResult
	for _, u := range users {
		if p.OmitRevoked && u.IsRevoked() {
			continue
		}
		if u.HumanHandle == nil {
			if p.OmitNonHuman || (query != "" && !strings.Contains(strings.ToLower(string(u.UserID)), query)) {
				continue
			}
			others = append(others, models.HumanFindResult{UserID: u.UserID, Revoked: u.IsRevoked()})
			continue
		}
		if query != "" &&
			!strings.Contains(strings.ToLower(u.HumanHandle.Email), query) &&
			!strings.Contains(strings.ToLower(u.HumanHandle.Label), query) {
			continue
		}
		humans = append(humans, models.HumanFindResult{UserID: u.UserID, HumanHandle: u.HumanHandle, Revoked: u.IsRevoked()})
	}
	sort.SliceStable(humans, func(i, j int) bool {
		return strings.ToLower(humans[i].HumanHandle.Label) < strings.ToLower(humans[j].HumanHandle.Label)
	})
	sort.SliceStable(others, func(i, j int) bool { return others[i].UserID < others[j].UserID })
	all := append(humans, others...)

	page := &HumanFindPage{Total: len(all)}
	start := (p.Page - 1) * p.PerPage
	if start < len(all) {
		end := min(start+p.PerPage, len(all))
		page.Results = all[start:end]
	}
	return page, nil
}

// Certificates returns the certificate log after offset and the index of
// the last certificate.
func (s *UserService) Certificates(ctx context.Context, caller Caller, offset uint64) ([]*models.CertificateRecord, uint64, error) {
	var (
		records []*models.CertificateRecord
		last    uint64
	)
	err := s.repos.View(ctx, func(ctx context.Context, r *repomanager.Repositories) error {
		var err error
		if records, err = r.Certificates.List(ctx, caller.OrganizationID, offset); err != nil {
			return err
		}
		last, err = r.Certificates.Last(ctx, caller.OrganizationID)
		return err
	})
	return records, last, err
}

// Authenticate resolves the device of an incoming connection. It fails
// with ErrNotFound for unknown devices and ErrRevokedUser for revoked users.
func (s *UserService) Authenticate(ctx context.Context, org models.OrganizationID, deviceID models.DeviceID) (*Caller, error) {
	var caller *Caller
	err := s.repos.View(ctx, func(ctx context.Context, r *repomanager.Repositories) error {
		d, err := r.Users.GetDevice(ctx, org, deviceID)
		if err != nil {
			return repoError(err, ErrNotFound)
		}
		u, err := r.Users.GetUser(ctx, org, deviceID.UserID())
		if err != nil {
			return repoError(err, ErrNotFound)
		}
		if u.IsRevoked() {
			return ErrRevokedUser
		}
		caller = &Caller{OrganizationID: org, DeviceID: deviceID, Profile: u.Profile, VerifyKey: cryptox.VerifyKey(d.VerifyKey)}
		return nil
	})
	if err != nil && !errors.Is(err, ErrNotFound) && !errors.Is(err, ErrRevokedUser) {
		s.logger.Error(ctx, "authentication lookup failed", "organization_id", org, "device_id", deviceID, "error", err)
	}
	return caller, err
}
