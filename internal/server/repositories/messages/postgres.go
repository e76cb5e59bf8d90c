package messages

import (
	"context"
	"fmt"
	"time"

	"github.com/Scille/parsec-cloud-sub009/internal/dbx"
	"github.com/Scille/parsec-cloud-sub009/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Append(ctx context.Context, org models.OrganizationID, recipient models.UserID, sender models.DeviceID, timestamp time.Time, body []byte) (uint64, error) {
	lock := `SELECT pg_advisory_xact_lock(hashtext('messages/' || $1 || '/' || $2))`
	if _, err := r.db.ExecContext(ctx, lock, string(org), string(recipient)); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}

	query :=
		`INSERT INTO messages (organization_id, recipient, msg_index, sender, sent_on, body)
		 SELECT $1, $2, COALESCE(MAX(msg_index), 0) + 1, $3, $4, $5
		 FROM messages WHERE organization_id = $1 AND recipient = $2
		 RETURNING msg_index
		 `

	var index uint64
	err := r.db.QueryRowContext(ctx, query, string(org), string(recipient), string(sender), timestamp, body).Scan(&index)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return index, nil
}

func (r *PostgresRepository) List(ctx context.Context, org models.OrganizationID, recipient models.UserID, offset uint64) ([]*models.Message, error) {
	query :=
		`SELECT msg_index, sender, sent_on, body FROM messages
		 WHERE organization_id = $1 AND recipient = $2 AND msg_index > $3
		 ORDER BY msg_index
		 `

	rows, err := r.db.QueryContext(ctx, query, string(org), string(recipient), int64(offset))
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var out []*models.Message
	for rows.Next() {
		var (
			m      models.Message
			sender string
		)
		if err := rows.Scan(&m.Index, &sender, &m.Timestamp, &m.Body); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		m.Sender = models.DeviceID(sender)
		out = append(out, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}
