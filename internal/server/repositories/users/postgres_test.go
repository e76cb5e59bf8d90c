package users

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/Scille/parsec-cloud-sub009/internal/common"
	"github.com/Scille/parsec-cloud-sub009/internal/server/models"
	"github.com/jackc/pgx/v5/pgconn"
)

var now = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db), mock, db
}

var userCols = []string{"user_id", "human_email", "human_label", "profile", "user_certificate", "redacted_user_certificate",
	"user_certifier", "created_on", "revoked_on", "revoked_user_certificate", "revoked_user_certifier"}

func alice() (*models.User, *models.Device) {
	label := "laptop"
	return &models.User{
			UserID:                  "alice",
			HumanHandle:             &models.HumanHandle{Email: "alice@example.com", Label: "Alice"},
			Profile:                 models.UserProfileAdmin,
			UserCertificate:         []byte("ucert"),
			RedactedUserCertificate: []byte("rucert"),
			CreatedOn:               now,
		}, &models.Device{
			DeviceID:                  "alice@dev1",
			DeviceLabel:               &label,
			VerifyKey:                 []byte("vk"),
			DeviceCertificate:         []byte("dcert"),
			RedactedDeviceCertificate: []byte("rdcert"),
			CreatedOn:                 now,
		}
}

func TestCreateUser_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	u, d := alice()
	mock.ExpectExec(`(?s)^INSERT\s+INTO\s+users\s*\(organization_id,\s*user_id`).
		WithArgs("CoolOrg", "alice", "alice@example.com", "Alice", "ADMIN", []byte("ucert"), []byte("rucert"), nil, now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`(?s)^INSERT\s+INTO\s+devices`).
		WithArgs("CoolOrg", "alice@dev1", "alice", "laptop", []byte("vk"), []byte("dcert"), []byte("rdcert"), nil, now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.CreateUser(context.Background(), "CoolOrg", u, d); err != nil {
		t.Fatalf("CreateUser error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestCreateUser_Duplicate(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`(?s)^INSERT\s+INTO\s+users`).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	u, d := alice()
	err := repo.CreateUser(context.Background(), "CoolOrg", u, d)
	if !errors.Is(err, common.ErrorAlreadyExists) {
		t.Fatalf("want common.ErrorAlreadyExists, got %v", err)
	}
}

func TestCreateDevice_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`(?s)^INSERT\s+INTO\s+devices`).
		WillReturnError(errors.New("db down"))

	_, d := alice()
	err := repo.CreateDevice(context.Background(), "CoolOrg", d)
	if err == nil || !regexp.MustCompile(`db error: .*db down`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}

func TestGetUser_Found(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`(?s)^SELECT\s+user_id.*FROM\s+users\s+WHERE\s+organization_id\s*=\s*\$1\s+AND\s+user_id\s*=\s*\$2$`).
		WithArgs("CoolOrg", "bob").
		WillReturnRows(sqlmock.NewRows(userCols).
			AddRow("bob", nil, nil, "STANDARD", []byte("c"), []byte("rc"), "alice@dev1", now, now, []byte("rev"), "alice@dev1"))

	u, err := repo.GetUser(context.Background(), "CoolOrg", "bob")
	if err != nil {
		t.Fatalf("GetUser error: %v", err)
	}
	if u.HumanHandle != nil || u.Profile != models.UserProfileStandard {
		t.Fatalf("unexpected user: %+v", u)
	}
	if u.UserCertifier == nil || *u.UserCertifier != "alice@dev1" {
		t.Fatalf("unexpected certifier: %v", u.UserCertifier)
	}
	if !u.IsRevoked() || string(u.RevokedUserCertificate) != "rev" {
		t.Fatalf("expected revoked user: %+v", u)
	}
}

func TestGetUser_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`(?s)^SELECT.*FROM\s+users`).
		WithArgs("CoolOrg", "ghost").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetUser(context.Background(), "CoolOrg", "ghost")
	if !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("want common.ErrorNotFound, got %v", err)
	}
}

func TestGetDevice_Found(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`(?s)^SELECT\s+device_id.*FROM\s+devices\s+WHERE\s+organization_id\s*=\s*\$1\s+AND\s+device_id\s*=\s*\$2$`).
		WithArgs("CoolOrg", "alice@dev1").
		WillReturnRows(sqlmock.NewRows([]string{"device_id", "device_label", "verify_key", "device_certificate",
			"redacted_device_certificate", "device_certifier", "created_on"}).
			AddRow("alice@dev1", nil, []byte("vk"), []byte("c"), []byte("rc"), nil, now))

	d, err := repo.GetDevice(context.Background(), "CoolOrg", "alice@dev1")
	if err != nil {
		t.Fatalf("GetDevice error: %v", err)
	}
	if d.DeviceLabel != nil || d.DeviceCertifier != nil || string(d.VerifyKey) != "vk" {
		t.Fatalf("unexpected device: %+v", d)
	}
}

func TestListUsers(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`(?s)^SELECT.*FROM\s+users\s+WHERE\s+organization_id\s*=\s*\$1\s+ORDER\s+BY`).
		WithArgs("CoolOrg").
		WillReturnRows(sqlmock.NewRows(userCols).
			AddRow("alice", "alice@example.com", "Alice", "ADMIN", []byte("c"), []byte("rc"), nil, now, nil, nil, nil).
			AddRow("bob", "bob@example.com", "Bob", "STANDARD", []byte("c"), []byte("rc"), "alice@dev1", now, nil, nil, nil))

	users, err := repo.ListUsers(context.Background(), "CoolOrg")
	if err != nil {
		t.Fatalf("ListUsers error: %v", err)
	}
	if len(users) != 2 || users[1].HumanHandle.Email != "bob@example.com" {
		t.Fatalf("unexpected users: %+v", users)
	}
}

func TestRevoke(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^UPDATE\s+users\s+SET\s+revoked_on.*AND\s+revoked_on\s+IS\s+NULL$`
	mock.ExpectExec(q).
		WithArgs("CoolOrg", "bob", now, []byte("rev"), "alice@dev1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q).
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := repo.Revoke(context.Background(), "CoolOrg", "bob", []byte("rev"), "alice@dev1", now); err != nil {
		t.Fatalf("Revoke error: %v", err)
	}
	err := repo.Revoke(context.Background(), "CoolOrg", "bob", []byte("rev"), "alice@dev1", now)
	if !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("want common.ErrorNotFound, got %v", err)
	}
}
