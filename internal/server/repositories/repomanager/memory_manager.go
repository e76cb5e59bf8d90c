package repomanager

import (
	"context"
	"sync"

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

// MemoryRepositoryManager keeps everything in process memory. Transactions
// are fully serialized and never rolled back: callers validate before their
// first write.
type MemoryRepositoryManager struct {
	mu    sync.Mutex
	repos *Repositories
}

func NewMemoryRepositoryManager() *MemoryRepositoryManager {
	return &MemoryRepositoryManager{repos: &Repositories{
		Organizations: organizations.NewMemoryRepository(),
		Users:         users.NewMemoryRepository(),
		Certificates:  certlog.NewMemoryRepository(),
		Realms:        realms.NewMemoryRepository(),
		Vlobs:         vlobs.NewMemoryRepository(),
		Blocks:        blocks.NewMemoryRepository(),
		Messages:      messages.NewMemoryRepository(),
		Invitations:   invitations.NewMemoryRepository(),
		Pki:           pki.NewMemoryRepository(),
		Sequester:     sequester.NewMemoryRepository(),
	}}
}

func (m *MemoryRepositoryManager) RunMigrations(context.Context) error { return nil }

func (m *MemoryRepositoryManager) WithTx(ctx context.Context, fn TxFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(ctx, m.repos)
}

// View shares WithTx's lock: memory repositories lazily create their
// per-organization maps, even on reads.
func (m *MemoryRepositoryManager) View(ctx context.Context, fn TxFunc) error {
	return m.WithTx(ctx, fn)
}

func (m *MemoryRepositoryManager) Close() error { return nil }
