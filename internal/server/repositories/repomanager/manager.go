package repomanager

import (
	"context"

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
)

// Repositories groups every repository bound to the same transaction.
type Repositories struct {
	Organizations organizations.Repository
	Users         users.Repository
	Certificates  certlog.Repository
	Realms        realms.Repository
	Vlobs         vlobs.Repository
	Blocks        blocks.Repository
	Messages      messages.Repository
	Invitations   invitations.Repository
	Pki           pki.Repository
	Sequester     sequester.Repository
}

// TxFunc receives repositories scoped to one transaction.
type TxFunc func(ctx context.Context, repos *Repositories) error

type RepositoryManager interface {
	RunMigrations(ctx context.Context) error
	// WithTx runs fn in a transaction, committed when fn returns nil.
	WithTx(ctx context.Context, fn TxFunc) error
	// View runs a read-only fn.
	View(ctx context.Context, fn TxFunc) error
	Close() error
}
