package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/apptdesk/libs/db"
	"github.com/md-rashed-zaman/apptdesk/libs/lock"
	"github.com/md-rashed-zaman/apptdesk/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/apptdesk/services/booking-service/internal/metrics"
	"github.com/md-rashed-zaman/apptdesk/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/apptdesk/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/apptdesk/services/booking-service/internal/storage"
)

type AppointmentStore interface {
	Create(ctx context.Context, q db.Querier, appt *model.Appointment) error
	ListRange(ctx context.Context, businessID string, from, to time.Time) ([]model.Appointment, error)
	ListLiveForEmployee(ctx context.Context, q db.Querier, businessID, employeeID string, from, to time.Time) ([]model.Appointment, error)
	LockDay(ctx context.Context, q db.Querier, businessID, day string) error
}

type TypeStore interface {
	Get(ctx context.Context, businessID, id string) (model.AppointmentType, error)
}

type Directory interface {
	ListStaff(ctx context.Context, businessID string) ([]model.Staff, error)
	GetClient(ctx context.Context, businessID, id string) (model.Client, error)
}

type SettingsStore interface {
	Get(ctx context.Context, businessID string) (model.Settings, error)
}

type EventWriter interface {
	Insert(ctx context.Context, q db.Querier, evt outbox.Event) error
}

type Config struct {
	// LockTTL bounds how long one booking may hold the business/day lock.
	LockTTL time.Duration
	// LockWait is how long Book waits for a lock held by a concurrent booking.
	LockWait time.Duration
	// SlotGrace is how long a same-day slot stays bookable after the listing grid moved on.
	SlotGrace time.Duration
	Now       func() time.Time
}

// Service computes slots and commits bookings. Book only accepts starts the slot grid
// offers, and re-checks conflicts under a business/day lock held both in Redis and as a
// Postgres advisory lock. The exclusion constraint backs up assigned appointments.
type Service struct {
	db           db.DB
	appointments AppointmentStore
	types        TypeStore
	directory    Directory
	settings     SettingsStore
	events       EventWriter
	locker       lock.Locker
	logger       *slog.Logger
	metrics      *metrics.Metrics
	lockTTL      time.Duration
	lockWait     time.Duration
	slotGrace    time.Duration
	now          func() time.Time
}

func NewService(pool db.DB, appointments AppointmentStore, types TypeStore, directory Directory, settings SettingsStore, events EventWriter, locker lock.Locker, logger *slog.Logger, m *metrics.Metrics, cfg Config) *Service {
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 10 * time.Second
	}
	if cfg.LockWait <= 0 {
		cfg.LockWait = 2 * time.Second
	}
	if cfg.SlotGrace <= 0 {
		cfg.SlotGrace = 15 * time.Minute
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Service{
		db:           pool,
		appointments: appointments,
		types:        types,
		directory:    directory,
		settings:     settings,
		events:       events,
		locker:       locker,
		logger:       logger,
		metrics:      m,
		lockTTL:      cfg.LockTTL,
		lockWait:     cfg.LockWait,
		slotGrace:    cfg.SlotGrace,
		now:          cfg.Now,
	}
}

type SlotsRequest struct {
	BusinessID string
	TypeID     string
	Date       string // YYYY-MM-DD in the business timezone
}

func (s *Service) Slots(ctx context.Context, req SlotsRequest) ([]model.TimeSlot, error) {
	if strings.TrimSpace(req.BusinessID) == "" || strings.TrimSpace(req.TypeID) == "" {
		return nil, fmt.Errorf("%w: business_id and type_id are required", model.ErrInvalidInput)
	}
	typ, err := s.loadType(ctx, req.BusinessID, req.TypeID)
	if err != nil {
		return nil, err
	}
	settings, err := s.settings.Get(ctx, req.BusinessID)
	if err != nil {
		return nil, err
	}
	loc := settings.Company.Location()
	day, err := time.ParseInLocation("2006-01-02", strings.TrimSpace(req.Date), loc)
	if err != nil {
		return nil, fmt.Errorf("%w: date must be YYYY-MM-DD", model.ErrInvalidInput)
	}

	roster, err := s.directory.ListStaff(ctx, req.BusinessID)
	if err != nil {
		return nil, err
	}
	appts, err := s.appointments.ListRange(ctx, req.BusinessID, day, day.AddDate(0, 0, 1))
	if err != nil {
		return nil, err
	}

	q := s.slotQuery(typ, settings, roster, day)
	q.Appointments = appts
	slots := availability.ComputeSlots(q)
	s.metrics.ObserveSlots(len(slots))
	return slots, nil
}

func (s *Service) slotQuery(typ model.AppointmentType, settings model.Settings, roster []model.Staff, day time.Time) availability.SlotQuery {
	var breaks []model.Break
	if settings.Automation.BreaksEnabled {
		breaks = settings.Automation.Breaks
	}
	return availability.SlotQuery{
		Type:      typ,
		Roster:    roster,
		Day:       day,
		WorkHours: availability.WorkHours{Start: settings.Automation.WorkStartTime, End: settings.Automation.WorkEndTime},
		Breaks:    breaks,
		Now:       s.now(),
	}
}

type BookRequest struct {
	BusinessID string
	TypeID     string
	ClientID   string
	EmployeeID string // empty books the appointment unassigned
	Start      time.Time
	Notes      string
}

// Book creates a scheduled appointment for the full block starting at req.Start. It fails
// with model.ErrSlotUnavailable when the slot grid does not offer req.Start or the time was
// taken since the slot was computed.
func (s *Service) Book(ctx context.Context, req BookRequest) (model.Appointment, error) {
	if strings.TrimSpace(req.BusinessID) == "" || strings.TrimSpace(req.TypeID) == "" ||
		strings.TrimSpace(req.ClientID) == "" || req.Start.IsZero() {
		return model.Appointment{}, fmt.Errorf("%w: type, client and slot are required", model.ErrInvalidInput)
	}

	typ, err := s.loadType(ctx, req.BusinessID, req.TypeID)
	if err != nil {
		return model.Appointment{}, err
	}
	client, err := s.directory.GetClient(ctx, req.BusinessID, req.ClientID)
	if err != nil {
		if storage.IsNotFound(err) {
			return model.Appointment{}, fmt.Errorf("%w: unknown client", model.ErrInvalidInput)
		}
		return model.Appointment{}, err
	}
	settings, err := s.settings.Get(ctx, req.BusinessID)
	if err != nil {
		return model.Appointment{}, err
	}
	roster, err := s.directory.ListStaff(ctx, req.BusinessID)
	if err != nil {
		return model.Appointment{}, err
	}
	employee, err := resolveEmployee(typ, roster, req.EmployeeID)
	if err != nil {
		return model.Appointment{}, err
	}

	loc := settings.Company.Location()
	local := req.Start.In(loc)
	day := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	grid := s.slotQuery(typ, settings, roster, day)
	if employee.ID != "" {
		grid.Roster = []model.Staff{employee}
	}
	if !availability.Offers(grid, req.Start, employee.ID, s.slotGrace) {
		s.metrics.ObserveBooking("off_grid")
		s.logger.Info("booking rejected: start not offered",
			"business_id", req.BusinessID,
			"employee_id", employee.ID,
			"start_time", req.Start.UTC().Format(time.RFC3339),
		)
		return model.Appointment{}, fmt.Errorf("%w: %s is not an offered start", model.ErrSlotUnavailable, local.Format("2006-01-02 15:04"))
	}

	appt := model.Appointment{
		ID:            uuid.NewString(),
		BusinessID:    req.BusinessID,
		ClientID:      client.ID,
		ClientName:    client.Name,
		TypeID:        typ.ID,
		TypeName:      typ.Name,
		EmployeeID:    employee.ID,
		EmployeeName:  employee.Name,
		StartTime:     req.Start,
		EndTime:       req.Start.Add(typ.BlockDuration()),
		Status:        model.StatusScheduled,
		NotesInternal: strings.TrimSpace(req.Notes),
	}

	dayKey := day.Format("2006-01-02")
	unlock, err := s.lockDay(ctx, appt.BusinessID, dayKey)
	if err != nil {
		s.metrics.ObserveBooking("conflict")
		return model.Appointment{}, err
	}
	defer unlock()

	if err := s.commit(ctx, &appt, dayKey); err != nil {
		if errors.Is(err, model.ErrSlotUnavailable) {
			s.metrics.ObserveBooking("conflict")
		} else {
			s.metrics.ObserveBooking("error")
		}
		return model.Appointment{}, err
	}
	s.metrics.ObserveBooking("created")
	s.logger.Info("appointment booked",
		"appointment_id", appt.ID,
		"business_id", appt.BusinessID,
		"employee_id", appt.EmployeeID,
		"start_time", appt.StartTime.UTC().Format(time.RFC3339),
	)
	return appt, nil
}

func (s *Service) commit(ctx context.Context, appt *model.Appointment, day string) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := s.appointments.LockDay(ctx, tx, appt.BusinessID, day); err != nil {
		return err
	}

	existing, err := s.appointments.ListLiveForEmployee(ctx, tx, appt.BusinessID, appt.EmployeeID, appt.StartTime, appt.EndTime)
	if err != nil {
		return err
	}
	bookings := make([]availability.Booking, 0, len(existing))
	for _, e := range existing {
		bookings = append(bookings, availability.FromAppointment(e))
	}
	if clash, ok := availability.FirstConflict(availability.FromAppointment(*appt), bookings); ok {
		s.logger.Info("booking rejected: slot taken",
			"business_id", appt.BusinessID,
			"employee_id", appt.EmployeeID,
			"clash_start", clash.Start.UTC().Format(time.RFC3339),
		)
		return model.ErrSlotUnavailable
	}

	if err := s.appointments.Create(ctx, tx, appt); err != nil {
		if storage.IsConflict(err) {
			return model.ErrSlotUnavailable
		}
		return err
	}

	payload, err := json.Marshal(map[string]any{
		"appointment_id": appt.ID,
		"business_id":    appt.BusinessID,
		"client_id":      appt.ClientID,
		"type_id":        appt.TypeID,
		"employee_id":    appt.EmployeeID,
		"start_time":     appt.StartTime.UTC().Format(time.RFC3339),
		"end_time":       appt.EndTime.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}
	if err := s.events.Insert(ctx, tx, outbox.Event{
		AggregateType: "appointment",
		AggregateID:   appt.ID,
		EventType:     outbox.EventAppointmentBooked,
		Payload:       payload,
	}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Service) loadType(ctx context.Context, businessID, typeID string) (model.AppointmentType, error) {
	typ, err := s.types.Get(ctx, businessID, typeID)
	if err != nil {
		if storage.IsNotFound(err) {
			return model.AppointmentType{}, fmt.Errorf("%w: appointment type %s", model.ErrNotFound, typeID)
		}
		return model.AppointmentType{}, err
	}
	if !typ.IsActive {
		return model.AppointmentType{}, fmt.Errorf("%w: appointment type is inactive", model.ErrInvalidInput)
	}
	if typ.BlockDuration() <= 0 {
		return model.AppointmentType{}, fmt.Errorf("%w: appointment type has no duration", model.ErrInvalidInput)
	}
	return typ, nil
}

func resolveEmployee(typ model.AppointmentType, roster []model.Staff, employeeID string) (model.Staff, error) {
	employeeID = strings.TrimSpace(employeeID)
	if employeeID == "" {
		return model.Staff{}, nil
	}
	for _, st := range availability.EligibleEmployees(typ, roster) {
		if st.ID == employeeID {
			return st, nil
		}
	}
	return model.Staff{}, fmt.Errorf("%w: employee %s cannot perform this appointment type", model.ErrInvalidInput, employeeID)
}

// lockDay serializes bookings for one business day across replicas, assigned and
// unassigned alike. Without a locker, or when Redis is unreachable, the advisory lock taken
// in commit is the only guard.
func (s *Service) lockDay(ctx context.Context, businessID, day string) (func(), error) {
	noop := func() {}
	if s.locker == nil {
		return noop, nil
	}
	key := fmt.Sprintf("booking:%s:%s", businessID, day)

	deadline := time.Now().Add(s.lockWait)
	for {
		token, ok, err := s.locker.Lock(ctx, key, s.lockTTL)
		if err != nil {
			s.logger.Warn("booking lock unavailable; relying on database lock", "err", err, "key", key)
			return noop, nil
		}
		if ok {
			return func() {
				if err := s.locker.Unlock(context.WithoutCancel(ctx), key, token); err != nil && !errors.Is(err, lock.ErrNotHeld) {
					s.logger.Warn("booking unlock failed", "err", err, "key", key)
				}
			}, nil
		}
		if time.Now().After(deadline) {
			return nil, model.ErrSlotUnavailable
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}
}
