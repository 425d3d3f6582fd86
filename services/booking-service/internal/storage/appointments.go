package storage

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/apptdesk/libs/db"
	"github.com/md-rashed-zaman/apptdesk/services/booking-service/internal/model"
)

type AppointmentRepository struct {
	db db.DB
}

func NewAppointmentRepository(pool db.DB) *AppointmentRepository {
	return &AppointmentRepository{db: pool}
}

func (r *AppointmentRepository) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.db.Begin(ctx)
}

const appointmentColumns = `id, business_id, client_id, client_name, COALESCE(client_conversation_id, ''),
	type_id, type_name, COALESCE(employee_id, ''), employee_name, start_time, end_time, status,
	notes_internal, created_at, updated_at`

func scanAppointment(row pgx.Row) (model.Appointment, error) {
	var a model.Appointment
	err := row.Scan(
		&a.ID,
		&a.BusinessID,
		&a.ClientID,
		&a.ClientName,
		&a.ClientConversationID,
		&a.TypeID,
		&a.TypeName,
		&a.EmployeeID,
		&a.EmployeeName,
		&a.StartTime,
		&a.EndTime,
		&a.Status,
		&a.NotesInternal,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	return a, err
}

func collectAppointments(rows pgx.Rows) ([]model.Appointment, error) {
	defer rows.Close()
	var appts []model.Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		appts = append(appts, a)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return appts, nil
}

// Create inserts appt and fills in the timestamps the database assigned.
func (r *AppointmentRepository) Create(ctx context.Context, q db.Querier, appt *model.Appointment) error {
	return q.QueryRow(ctx, `
		INSERT INTO appointments
			(id, business_id, client_id, client_name, client_conversation_id, type_id, type_name,
			 employee_id, employee_name, start_time, end_time, status, notes_internal)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7, NULLIF($8, ''), $9, $10, $11, $12, $13)
		RETURNING created_at, updated_at
	`, appt.ID, appt.BusinessID, appt.ClientID, appt.ClientName, appt.ClientConversationID, appt.TypeID, appt.TypeName,
		appt.EmployeeID, appt.EmployeeName, appt.StartTime, appt.EndTime, string(appt.Status), appt.NotesInternal,
	).Scan(&appt.CreatedAt, &appt.UpdatedAt)
}

func (r *AppointmentRepository) Get(ctx context.Context, businessID, id string) (model.Appointment, error) {
	return scanAppointment(r.db.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE business_id = $1 AND id = $2
	`, businessID, id))
}

// ListRange returns a business's appointments intersecting [from, to), oldest first.
func (r *AppointmentRepository) ListRange(ctx context.Context, businessID string, from, to time.Time) ([]model.Appointment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE business_id = $1
			AND start_time < $3
			AND end_time > $2
		ORDER BY start_time ASC
	`, businessID, from, to)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

// ListLiveForEmployee returns non-cancelled appointments intersecting [from, to) that belong
// to employeeID or to no one. Run inside the booking transaction to re-check a slot.
func (r *AppointmentRepository) ListLiveForEmployee(ctx context.Context, q db.Querier, businessID, employeeID string, from, to time.Time) ([]model.Appointment, error) {
	rows, err := q.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE business_id = $1
			AND (employee_id = $2 OR employee_id IS NULL OR $2 = '')
			AND status <> 'cancelled'
			AND start_time < $4
			AND end_time > $3
		ORDER BY start_time ASC
	`, businessID, employeeID, from, to)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

// LockDay takes a transaction-scoped advisory lock on one business day. The exclusion
// constraint ignores unassigned rows, so every booking for the day queues here before its
// conflict check.
func (r *AppointmentRepository) LockDay(ctx context.Context, q db.Querier, businessID, day string) error {
	_, err := q.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, "booking:"+businessID+":"+day)
	return err
}

// ListForAutomation scans every business for appointments starting in [from, to) whose
// status can still produce an automated message.
func (r *AppointmentRepository) ListForAutomation(ctx context.Context, from, to time.Time) ([]model.Appointment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE status IN ('scheduled', 'confirmed', 'no_show')
			AND start_time >= $1
			AND start_time < $2
		ORDER BY business_id, start_time ASC
	`, from, to)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (r *AppointmentRepository) UpdateStatus(ctx context.Context, q db.Querier, businessID, id string, status model.Status) (model.Appointment, error) {
	return scanAppointment(q.QueryRow(ctx, `
		UPDATE appointments
		SET status = $3,
			updated_at = now()
		WHERE business_id = $1 AND id = $2
		RETURNING `+appointmentColumns+`
	`, businessID, id, string(status)))
}

// LinkConversation records the messaging thread used for the appointment's client.
func (r *AppointmentRepository) LinkConversation(ctx context.Context, q db.Querier, businessID, id, conversationID string) error {
	_, err := q.Exec(ctx, `
		UPDATE appointments
		SET client_conversation_id = $3,
			updated_at = now()
		WHERE business_id = $1 AND id = $2 AND client_conversation_id IS NULL
	`, businessID, id, conversationID)
	return err
}
