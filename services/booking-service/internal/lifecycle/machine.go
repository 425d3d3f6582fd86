package lifecycle

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/apptdesk/libs/db"
	"github.com/md-rashed-zaman/apptdesk/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/apptdesk/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/apptdesk/services/booking-service/internal/storage"
)

type Store interface {
	Get(ctx context.Context, businessID, id string) (model.Appointment, error)
	UpdateStatus(ctx context.Context, q db.Querier, businessID, id string, status model.Status) (model.Appointment, error)
}

type EventWriter interface {
	Insert(ctx context.Context, q db.Querier, evt outbox.Event) error
}

// NoShowHook runs synchronously after an appointment has been committed as no_show.
type NoShowHook func(ctx context.Context, appt model.Appointment)

// Machine applies staff-driven status changes. Any valid status may be entered from any
// other; the only side effect beyond persistence is the no-show hook.
type Machine struct {
	db     db.DB
	store  Store
	events EventWriter
	logger *slog.Logger
	noShow NoShowHook
}

func NewMachine(pool db.DB, store Store, events EventWriter, logger *slog.Logger) *Machine {
	return &Machine{db: pool, store: store, events: events, logger: logger}
}

// OnNoShow registers the hook fired when an appointment enters no_show.
func (m *Machine) OnNoShow(hook NoShowHook) {
	m.noShow = hook
}

func (m *Machine) Transition(ctx context.Context, businessID, id string, to model.Status) (model.Appointment, error) {
	if !Valid(to) {
		return model.Appointment{}, fmt.Errorf("%w: %q", model.ErrInvalidStatus, to)
	}

	current, err := m.store.Get(ctx, businessID, id)
	if err != nil {
		if storage.IsNotFound(err) {
			return model.Appointment{}, model.ErrNotFound
		}
		return model.Appointment{}, err
	}
	if current.Status == to {
		return current, nil
	}

	tx, err := m.db.Begin(ctx)
	if err != nil {
		return model.Appointment{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	updated, err := m.store.UpdateStatus(ctx, tx, businessID, id, to)
	if err != nil {
		if storage.IsNotFound(err) {
			return model.Appointment{}, model.ErrNotFound
		}
		return model.Appointment{}, err
	}

	payload, err := json.Marshal(map[string]any{
		"appointment_id": updated.ID,
		"business_id":    updated.BusinessID,
		"from_status":    string(current.Status),
		"to_status":      string(updated.Status),
		"changed_at":     updated.UpdatedAt.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return model.Appointment{}, err
	}
	if err := m.events.Insert(ctx, tx, outbox.Event{
		AggregateType: "appointment",
		AggregateID:   updated.ID,
		EventType:     outbox.EventAppointmentStatusChanged,
		Payload:       payload,
	}); err != nil {
		return model.Appointment{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return model.Appointment{}, err
	}

	m.logger.Info("appointment status changed",
		"appointment_id", updated.ID,
		"business_id", updated.BusinessID,
		"from", current.Status,
		"to", updated.Status,
	)

	if updated.Status == model.StatusNoShow && m.noShow != nil {
		m.noShow(ctx, updated)
	}
	return updated, nil
}
