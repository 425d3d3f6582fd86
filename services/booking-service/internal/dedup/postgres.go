package dedup

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/md-rashed-zaman/apptdesk/libs/db"
)

// PostgresStore persists claims as rows of automation_dispatches, unique per key.
type PostgresStore struct {
	db db.Querier
}

func NewPostgresStore(q db.Querier) *PostgresStore {
	return &PostgresStore{db: q}
}

func (s *PostgresStore) Claim(ctx context.Context, key Key) (bool, error) {
	_, err := s.db.Exec(ctx, `
		INSERT INTO automation_dispatches (appointment_id, trigger, relance_number)
		VALUES ($1, $2, $3)
	`, key.AppointmentID, string(key.Trigger), key.Relance)
	if err == nil {
		return true, nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return false, nil
	}
	return false, fmt.Errorf("dedup claim %s: %w", key, err)
}
