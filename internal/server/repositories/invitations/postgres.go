package invitations

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Scille/parsec-cloud-sub009/internal/common"
	"github.com/Scille/parsec-cloud-sub009/internal/dbx"
	"github.com/Scille/parsec-cloud-sub009/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const invitationColumns = `token, type, greeter_user_id, claimer_email, created_on, deleted_on, deleted_reason,
		 conduit_state, conduit_greeter_payload, conduit_claimer_payload, conduit_generation,
		 last_exchange_generation, last_exchange_greeter_payload, last_exchange_claimer_payload`

func scanInvitation(row interface{ Scan(dest ...any) error }) (*models.Invitation, error) {
	var (
		inv           models.Invitation
		typ, greeter  string
		state         string
		deletedOn     sql.NullTime
		deletedReason sql.NullString
		lastGen       sql.NullInt64
		lastGreeter   []byte
		lastClaimer   []byte
	)
	err := row.Scan(&inv.Token, &typ, &greeter, &inv.ClaimerEmail, &inv.CreatedOn, &deletedOn, &deletedReason,
		&state, &inv.Conduit.GreeterPayload, &inv.Conduit.ClaimerPayload, &inv.Conduit.Generation,
		&lastGen, &lastGreeter, &lastClaimer)
	if err != nil {
		return nil, err
	}
	inv.Type = models.InvitationType(typ)
	inv.GreeterUserID = models.UserID(greeter)
	inv.DeletedOn = dbx.TimePtr(deletedOn)
	inv.DeletedReason = dbx.StringPtr[models.InvitationDeletedReason](deletedReason)
	inv.Conduit.State = models.ConduitState(state)
	if lastGen.Valid {
		inv.Conduit.LastExchange = &models.ConduitExchange{
			FromGeneration: uint64(lastGen.Int64),
			GreeterPayload: lastGreeter,
			ClaimerPayload: lastClaimer,
		}
	}
	return &inv, nil
}

func (r *PostgresRepository) Create(ctx context.Context, org models.OrganizationID, inv *models.Invitation) error {
	query :=
		`INSERT INTO invitations (organization_id, token, type, greeter_user_id, claimer_email, created_on, conduit_state)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 `

	_, err := r.db.ExecContext(ctx, query, string(org), inv.Token, string(inv.Type), string(inv.GreeterUserID),
		inv.ClaimerEmail, inv.CreatedOn, string(models.ConduitState1WaitPeers))
	if err != nil {
		if dbx.IsUniqueViolation(err) {
			return common.ErrorAlreadyExists
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) queryOne(ctx context.Context, query string, args ...any) (*models.Invitation, error) {
	inv, err := scanInvitation(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return inv, nil
}

func (r *PostgresRepository) Get(ctx context.Context, org models.OrganizationID, token models.InvitationToken) (*models.Invitation, error) {
	query := `SELECT ` + invitationColumns + ` FROM invitations
		 WHERE organization_id = $1 AND token = $2`
	return r.queryOne(ctx, query, string(org), token)
}

func (r *PostgresRepository) GetForUpdate(ctx context.Context, org models.OrganizationID, token models.InvitationToken) (*models.Invitation, error) {
	query := `SELECT ` + invitationColumns + ` FROM invitations
		 WHERE organization_id = $1 AND token = $2 FOR UPDATE`
	return r.queryOne(ctx, query, string(org), token)
}

func (r *PostgresRepository) FindActive(ctx context.Context, org models.OrganizationID, greeter models.UserID, typ models.InvitationType, claimerEmail string) (*models.Invitation, error) {
	query := `SELECT ` + invitationColumns + ` FROM invitations
		 WHERE organization_id = $1 AND greeter_user_id = $2 AND type = $3 AND claimer_email = $4
		   AND deleted_on IS NULL
		 ORDER BY created_on
		 LIMIT 1`
	return r.queryOne(ctx, query, string(org), string(greeter), string(typ), claimerEmail)
}

func (r *PostgresRepository) List(ctx context.Context, org models.OrganizationID, greeter models.UserID) ([]*models.Invitation, error) {
	query := `SELECT ` + invitationColumns + ` FROM invitations
		 WHERE organization_id = $1 AND greeter_user_id = $2 AND deleted_on IS NULL
		 ORDER BY created_on, token`

	rows, err := r.db.QueryContext(ctx, query, string(org), string(greeter))
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var out []*models.Invitation
	for rows.Next() {
		inv, err := scanInvitation(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		out = append(out, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, org models.OrganizationID, token models.InvitationToken, on time.Time, reason models.InvitationDeletedReason) error {
	query :=
		`UPDATE invitations SET deleted_on = $3, deleted_reason = $4
		 WHERE organization_id = $1 AND token = $2 AND deleted_on IS NULL
		 `

	res, err := r.db.ExecContext(ctx, query, string(org), token, on, string(reason))
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func (r *PostgresRepository) SaveConduit(ctx context.Context, org models.OrganizationID, token models.InvitationToken, c models.Conduit) error {
	var (
		lastGen     sql.NullInt64
		lastGreeter []byte
		lastClaimer []byte
	)
	if c.LastExchange != nil {
		lastGen = sql.NullInt64{Int64: int64(c.LastExchange.FromGeneration), Valid: true}
		lastGreeter = c.LastExchange.GreeterPayload
		lastClaimer = c.LastExchange.ClaimerPayload
	}

	query :=
		`UPDATE invitations
		 SET conduit_state = $3, conduit_greeter_payload = $4, conduit_claimer_payload = $5,
		     conduit_generation = $6, last_exchange_generation = $7,
		     last_exchange_greeter_payload = $8, last_exchange_claimer_payload = $9
		 WHERE organization_id = $1 AND token = $2
		 `

	res, err := r.db.ExecContext(ctx, query, string(org), token, string(c.State), c.GreeterPayload, c.ClaimerPayload,
		int64(c.Generation), lastGen, lastGreeter, lastClaimer)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}
