// Package server wires the configured storage, blockstore, email and
// webhook backends into the services, then runs the HTTP server until a
// termination signal arrives.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/Scille/parsec-cloud-sub009/internal/logging"
	"github.com/Scille/parsec-cloud-sub009/internal/server/blockstore"
	"github.com/Scille/parsec-cloud-sub009/internal/server/config"
	"github.com/Scille/parsec-cloud-sub009/internal/server/email"
	"github.com/Scille/parsec-cloud-sub009/internal/server/events"
	"github.com/Scille/parsec-cloud-sub009/internal/server/httpserver"
	"github.com/Scille/parsec-cloud-sub009/internal/server/repositories/repomanager"
	"github.com/Scille/parsec-cloud-sub009/internal/server/services"
	"github.com/Scille/parsec-cloud-sub009/internal/server/webhooks"
)

type App struct {
	config *config.Config
	logger logging.Logger
	repos  repomanager.RepositoryManager
	server *httpserver.Server
}

// openRepositories returns the repositories and, for PostgreSQL, the
// database handle also used by the POSTGRESQL blockstore.
func openRepositories(ctx context.Context, c *config.Config) (repomanager.RepositoryManager, *sql.DB, error) {
	if c.InMemory() {
		return repomanager.NewMemoryRepositoryManager(), nil, nil
	}

	db, err := sql.Open("pgx", c.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("db open error: %w", err)
	}
	db.SetMaxOpenConns(c.DBMaxConnections)
	db.SetMaxIdleConns(c.DBMinConnections)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("db ping error: %w", err)
	}

	m, err := repomanager.NewPostgresRepositoryManager(db)
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	if err := m.RunMigrations(ctx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("migration error: %w", err)
	}
	return m, db, nil
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	level := c.LogLevel
	if c.Debug {
		level = "debug"
	}
	logger, err := logging.New(c.LogBackend, level, os.Stdout)
	if err != nil {
		return nil, err
	}

	repos, db, err := openRepositories(ctx, c)
	if err != nil {
		return nil, err
	}

	store, err := blockstore.New(ctx, c.Blockstore, db, logger)
	if err != nil {
		repos.Close()
		return nil, fmt.Errorf("blockstore init error: %w", err)
	}

	sender, err := email.New(c.Email.Backend(), logger)
	if err != nil {
		repos.Close()
		return nil, fmt.Errorf("email init error: %w", err)
	}
	var mailer *email.InvitationMailer
	if sender != nil {
		mailer = email.NewInvitationMailer(sender, c.BackendAddr, logger)
	}

	var bootstrapHook *webhooks.BootstrapNotifier
	if c.OrganizationBootstrapWebhookURL != "" {
		bootstrapHook = webhooks.NewBootstrapNotifier(c.OrganizationBootstrapWebhookURL, logger)
	}

	bus := events.NewBus(c.EventsRetention)
	svc := services.New(services.Deps{
		Repos:                repos,
		Blockstore:           store,
		Bus:                  bus,
		Logger:               logger,
		Sequester:            webhooks.NewSequesterClient(c.SequesterWebhookTimeout, logger),
		Mailer:               mailer,
		BootstrapHook:        bootstrapHook,
		SpontaneousBootstrap: c.OrganizationSpontaneousBootstrap,
	})

	srv := httpserver.New(c.Addr(), httpserver.Options{
		AdministrationToken:  c.AdministrationToken,
		SSEKeepalive:         c.SSEKeepalive,
		SpontaneousBootstrap: c.OrganizationSpontaneousBootstrap,
	}, svc, bus, logger)

	if c.AdministrationToken == "" {
		logger.Warn(ctx, "no administration token configured, the administration API is disabled")
	}

	return &App{config: c, logger: logger, repos: repos, server: srv}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	if err := app.server.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

// Run blocks until the server stops, on signal or on a fatal error.
func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...", "address", app.config.Addr(), "in_memory", app.config.InMemory())

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	wg.Wait()

	if err := app.repos.Close(); err != nil {
		app.logger.Warn(context.Background(), "cannot close database", "error", err)
	}
	app.logger.Info(context.Background(), "App stopped")
}
