package repomanager

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/Scille/parsec-cloud-sub009/internal/server/repositories/organizations"
	"github.com/Scille/parsec-cloud-sub009/internal/server/repositories/realms"
	"github.com/Scille/parsec-cloud-sub009/internal/server/repositories/users"
	"github.com/Scille/parsec-cloud-sub009/internal/server/repositories/vlobs"
	"github.com/pressly/goose/v3"
)

func newDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return db, mock
}

func TestNewPostgresRepositoryManager_ReturnsInterface(t *testing.T) {
	db, _ := newDB(t)
	defer db.Close()

	m, err := NewPostgresRepositoryManager(db)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var _ RepositoryManager = m
	var _ RepositoryManager = NewMemoryRepositoryManager()
}

func TestFactories_ReturnConcreteRepos(t *testing.T) {
	db, _ := newDB(t)
	defer db.Close()

	m := &PostgresRepositoryManager{db: db}
	repos := m.repositories(db)

	if repos.Organizations == nil || repos.Users == nil || repos.Certificates == nil || repos.Realms == nil ||
		repos.Vlobs == nil || repos.Blocks == nil || repos.Messages == nil || repos.Invitations == nil ||
		repos.Pki == nil || repos.Sequester == nil {
		t.Fatalf("missing repository in %+v", repos)
	}

	if _, ok := repos.Organizations.(*organizations.PostgresRepository); !ok {
		t.Fatalf("Organizations: unexpected type %T", repos.Organizations)
	}
	if _, ok := repos.Users.(*users.PostgresRepository); !ok {
		t.Fatalf("Users: unexpected type %T", repos.Users)
	}
	if _, ok := repos.Realms.(*realms.PostgresRepository); !ok {
		t.Fatalf("Realms: unexpected type %T", repos.Realms)
	}
	if _, ok := repos.Vlobs.(*vlobs.PostgresRepository); !ok {
		t.Fatalf("Vlobs: unexpected type %T", repos.Vlobs)
	}
}

func TestWithTx_CommitsOnSuccess(t *testing.T) {
	db, mock := newDB(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE\s+realms\s+SET\s+checkpoint`).
		WillReturnRows(sqlmock.NewRows([]string{"checkpoint"}).AddRow(int64(1)))
	mock.ExpectCommit()

	m, _ := NewPostgresRepositoryManager(db)
	err := m.WithTx(context.Background(), func(ctx context.Context, repos *Repositories) error {
		_, err := repos.Realms.BumpCheckpoint(ctx, "CoolOrg", [16]byte{1})
		return err
	})
	if err != nil {
		t.Fatalf("WithTx error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestWithTx_RollsBackOnError(t *testing.T) {
	db, mock := newDB(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectRollback()

	boom := errors.New("boom")
	m, _ := NewPostgresRepositoryManager(db)
	err := m.WithTx(context.Background(), func(context.Context, *Repositories) error { return boom })
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRunMigrations_Success(t *testing.T) {
	db, _ := newDB(t)
	defer db.Close()

	orig := gooseUpContext
	gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
		if dir != "." {
			return errors.New("unexpected dir")
		}
		if len(opts) != 0 {
			return errors.New("unexpected opts")
		}
		return nil
	}
	defer func() { gooseUpContext = orig }()

	m := &PostgresRepositoryManager{db: db}
	if err := m.RunMigrations(context.Background()); err != nil {
		t.Fatalf("RunMigrations error: %v", err)
	}
}

func TestRunMigrations_Error(t *testing.T) {
	db, _ := newDB(t)
	defer db.Close()

	orig := gooseUpContext
	gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
		return errors.New("boom")
	}
	defer func() { gooseUpContext = orig }()

	m := &PostgresRepositoryManager{db: db}
	if err := m.RunMigrations(context.Background()); err == nil || err.Error() != "boom" {
		t.Fatalf("expected boom, got %v", err)
	}
}

func TestMemoryManager_SerializesTransactions(t *testing.T) {
	m := NewMemoryRepositoryManager()
	ctx := context.Background()

	inside := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = m.WithTx(ctx, func(context.Context, *Repositories) error {
			close(inside)
			<-release
			return nil
		})
	}()
	<-inside

	done := make(chan struct{})
	go func() {
		_ = m.View(ctx, func(context.Context, *Repositories) error { return nil })
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("View ran while a transaction was in progress")
	case <-time.After(20 * time.Millisecond):
	}
	close(release)
	<-done
}

func TestMemoryManager_CancelledContext(t *testing.T) {
	m := NewMemoryRepositoryManager()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := m.WithTx(ctx, func(context.Context, *Repositories) error { called = true; return nil })
	if !errors.Is(err, context.Canceled) || called {
		t.Fatalf("expected cancellation before fn, got err=%v called=%v", err, called)
	}
}
