package storage

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/apptdesk/libs/db"
	"github.com/md-rashed-zaman/apptdesk/services/booking-service/internal/model"
)

type AppointmentTypeRepository struct {
	db db.DB
}

func NewAppointmentTypeRepository(pool db.DB) *AppointmentTypeRepository {
	return &AppointmentTypeRepository{db: pool}
}

const typeColumns = `id, business_id, name, duration_minutes, buffer_before_minutes, buffer_after_minutes,
	COALESCE(employees_allowed_ids, '{}'), is_active`

func scanType(row pgx.Row) (model.AppointmentType, error) {
	var t model.AppointmentType
	err := row.Scan(
		&t.ID,
		&t.BusinessID,
		&t.Name,
		&t.DurationMinutes,
		&t.BufferBeforeMinutes,
		&t.BufferAfterMinutes,
		&t.EmployeesAllowedIDs,
		&t.IsActive,
	)
	return t, err
}

func (r *AppointmentTypeRepository) List(ctx context.Context, businessID string, activeOnly bool) ([]model.AppointmentType, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+typeColumns+`
		FROM appointment_types
		WHERE business_id = $1
			AND (is_active OR NOT $2)
		ORDER BY name ASC
	`, businessID, activeOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var types []model.AppointmentType
	for rows.Next() {
		t, err := scanType(rows)
		if err != nil {
			return nil, err
		}
		types = append(types, t)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return types, nil
}

func (r *AppointmentTypeRepository) Get(ctx context.Context, businessID, id string) (model.AppointmentType, error) {
	return scanType(r.db.QueryRow(ctx, `
		SELECT `+typeColumns+`
		FROM appointment_types
		WHERE business_id = $1 AND id = $2
	`, businessID, id))
}

func (r *AppointmentTypeRepository) Create(ctx context.Context, t model.AppointmentType) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO appointment_types
			(id, business_id, name, duration_minutes, buffer_before_minutes, buffer_after_minutes, employees_allowed_ids, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, t.ID, t.BusinessID, t.Name, t.DurationMinutes, t.BufferBeforeMinutes, t.BufferAfterMinutes, t.EmployeesAllowedIDs, t.IsActive)
	return err
}

// Update overwrites every mutable field of the type; it returns pgx.ErrNoRows for an unknown id.
func (r *AppointmentTypeRepository) Update(ctx context.Context, t model.AppointmentType) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE appointment_types
		SET name = $3,
			duration_minutes = $4,
			buffer_before_minutes = $5,
			buffer_after_minutes = $6,
			employees_allowed_ids = $7,
			is_active = $8,
			updated_at = now()
		WHERE business_id = $1 AND id = $2
	`, t.BusinessID, t.ID, t.Name, t.DurationMinutes, t.BufferBeforeMinutes, t.BufferAfterMinutes, t.EmployeesAllowedIDs, t.IsActive)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
