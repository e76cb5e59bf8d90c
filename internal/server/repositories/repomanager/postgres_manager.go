// Package repomanager provides RepositoryManager implementations for
// PostgreSQL and for memory, wiring together repository constructors,
// transactions and database migrations (via goose).
package repomanager

import (
	"context"
	"database/sql"

	"github.com/Scille/parsec-cloud-sub009/internal/dbx"
	"github.com/Scille/parsec-cloud-sub009/internal/server/migrations"
	"github.com/Scille/parsec-cloud-sub009/internal/server/repositories/blocks"
	"github.com/Scille/parsec-cloud-sub009/internal/server/repositories/certlog"
	"github.com/Scille/parsec-cloud-sub009/internal/server/repositories/invitations"
	"github.com/Scille/parsec-cloud-sub009/internal/server/repositories/messages"
	"github.com/Scille/parsec-cloud-sub009/internal/server/repositories/organizations"
	"github.com/Scille/parsec-cloud-sub009/internal/server/repositories/pki"
	"github.com/Scille/parsec-cloud-sub009/internal/server/repositories/realms"
	"github.com/Scille/parsec-cloud-sub009/internal/server/repositories/sequester"
	"github.com/Scille/parsec-cloud-sub009/internal/server/repositories/users"
	"github.com/Scille/parsec-cloud-sub009/internal/server/repositories/vlobs"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// PostgresRepositoryManager vends PostgreSQL-backed repositories bound to a
// transaction and exposes a schema migration hook.
type PostgresRepositoryManager struct {
	db *sql.DB
}

// Organizations returns an organizations.Repository bound to the provided DBTX.
func (m *PostgresRepositoryManager) Organizations(db dbx.DBTX) organizations.Repository {
	return organizations.NewPostgresRepository(db)
}

// Users returns a users.Repository bound to the provided DBTX.
func (m *PostgresRepositoryManager) Users(db dbx.DBTX) users.Repository {
	return users.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) Certificates(db dbx.DBTX) certlog.Repository {
	return certlog.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) Realms(db dbx.DBTX) realms.Repository {
	return realms.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) Vlobs(db dbx.DBTX) vlobs.Repository {
	return vlobs.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) Blocks(db dbx.DBTX) blocks.Repository {
	return blocks.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) Messages(db dbx.DBTX) messages.Repository {
	return messages.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) Invitations(db dbx.DBTX) invitations.Repository {
	return invitations.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) Pki(db dbx.DBTX) pki.Repository {
	return pki.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) Sequester(db dbx.DBTX) sequester.Repository {
	return sequester.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) repositories(db dbx.DBTX) *Repositories {
	return &Repositories{
		Organizations: m.Organizations(db),
		Users:         m.Users(db),
		Certificates:  m.Certificates(db),
		Realms:        m.Realms(db),
		Vlobs:         m.Vlobs(db),
		Blocks:        m.Blocks(db),
		Messages:      m.Messages(db),
		Invitations:   m.Invitations(db),
		Pki:           m.Pki(db),
		Sequester:     m.Sequester(db),
	}
}

func (m *PostgresRepositoryManager) WithTx(ctx context.Context, fn TxFunc) error {
	return dbx.WithTx(ctx, m.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		return fn(ctx, m.repositories(tx))
	})
}

func (m *PostgresRepositoryManager) View(ctx context.Context, fn TxFunc) error {
	return dbx.WithTx(ctx, m.db, &sql.TxOptions{ReadOnly: true}, func(ctx context.Context, tx dbx.DBTX) error {
		return fn(ctx, m.repositories(tx))
	})
}

func (m *PostgresRepositoryManager) Close() error {
	return m.db.Close()
}

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// RunMigrations sets up goose with the embedded migrations and runs them
// against the manager's database.
func (m *PostgresRepositoryManager) RunMigrations(ctx context.Context) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return err
	}
	if err := gooseUpContext(ctx, m.db, "."); err != nil {
		return err
	}
	return nil
}

// NewPostgresRepositoryManager constructs a PostgreSQL-backed RepositoryManager.
func NewPostgresRepositoryManager(db *sql.DB) (*PostgresRepositoryManager, error) {
	return &PostgresRepositoryManager{db: db}, nil
}
