package automation

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/md-rashed-zaman/apptdesk/services/booking-service/internal/dedup"
	"github.com/md-rashed-zaman/apptdesk/services/booking-service/internal/messaging"
	"github.com/md-rashed-zaman/apptdesk/services/booking-service/internal/metrics"
	"github.com/md-rashed-zaman/apptdesk/services/booking-service/internal/model"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type AppointmentSource interface {
	ListForAutomation(ctx context.Context, from, to time.Time) ([]model.Appointment, error)
	Get(ctx context.Context, businessID, id string) (model.Appointment, error)
}

type SettingsSource interface {
	Get(ctx context.Context, businessID string) (model.Settings, error)
}

// DispatchError wraps a delivery failure. It is logged and counted, never returned.
type DispatchError struct {
	AppointmentID string
	Trigger       model.Trigger
	Relance       int
	Err           error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("dispatch %s (relance %d) for appointment %s: %v", e.Trigger, e.Relance, e.AppointmentID, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }

type EngineConfig struct {
	// NoShowLookback bounds how old a no_show appointment may be and still get a message.
	NoShowLookback  time.Duration
	DispatchTimeout time.Duration
	Now             func() time.Time
}

// Engine evaluates reminder and no-show triggers and sends each automated message at most
// once per (appointment, trigger, relance). The dedup claim is taken before dispatch, so a
// failed send is never retried.
type Engine struct {
	appointments    AppointmentSource
	settings        SettingsSource
	dedup           dedup.Store
	dispatcher      messaging.Dispatcher
	logger          *slog.Logger
	metrics         *metrics.Metrics
	tracer          trace.Tracer
	now             func() time.Time
	lookback        time.Duration
	dispatchTimeout time.Duration

	// settled holds appointments whose no-show claim is already decided, keyed by ID with
	// the start time used for pruning.
	mu      sync.Mutex
	settled map[string]time.Time
}

func NewEngine(appointments AppointmentSource, settings SettingsSource, store dedup.Store, dispatcher messaging.Dispatcher, logger *slog.Logger, m *metrics.Metrics, cfg EngineConfig) *Engine {
	if cfg.NoShowLookback <= 0 {
		cfg.NoShowLookback = 7 * 24 * time.Hour
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Engine{
		appointments:    appointments,
		settings:        settings,
		dedup:           store,
		dispatcher:      dispatcher,
		logger:          logger,
		metrics:         m,
		tracer:          otel.Tracer("booking-service/automation"),
		now:             cfg.Now,
		lookback:        cfg.NoShowLookback,
		dispatchTimeout: cfg.DispatchTimeout,
		settled:         make(map[string]time.Time),
	}
}

// Tick runs one scan over every appointment that can still trigger a message. Only a failed
// scan is returned; per-appointment problems are logged and skipped.
func (e *Engine) Tick(ctx context.Context) error {
	ctx, span := e.tracer.Start(ctx, "automation.tick")
	defer span.End()

	started := time.Now()
	defer func() { e.metrics.ObserveTick(time.Since(started).Seconds()) }()

	now := e.now()
	from := now.Add(-e.lookback)
	to := now.Add(time.Duration(model.MaxReminderHoursBefore)*time.Hour + TriggerWindow)
	appts, err := e.appointments.ListForAutomation(ctx, from, to)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list appointments")
		return fmt.Errorf("list appointments: %w", err)
	}
	span.SetAttributes(attribute.Int("automation.appointments", len(appts)))
	e.pruneSettled(from)

	cache := map[string]*model.Settings{}
	for _, appt := range appts {
		if err := ctx.Err(); err != nil {
			return err
		}
		s := e.settingsFor(ctx, cache, appt.BusinessID)
		if s == nil {
			continue
		}
		for _, r := range EvaluateReminder(now, appt, s.Automation) {
			e.sendReminder(ctx, appt, *s, r)
		}
		if EvaluateNoShow(appt, s.Automation) {
			e.sendNoShow(ctx, appt, *s)
		}
	}
	return nil
}

// HandleNoShow is called synchronously right after an appointment enters no_show.
func (e *Engine) HandleNoShow(ctx context.Context, appt model.Appointment) {
	s, err := e.settings.Get(ctx, appt.BusinessID)
	if err != nil {
		e.logger.Error("automation settings load failed", "err", err, "business_id", appt.BusinessID)
		return
	}
	if !EvaluateNoShow(appt, s.Automation) {
		return
	}
	e.sendNoShow(ctx, appt, s)
}

func (e *Engine) settingsFor(ctx context.Context, cache map[string]*model.Settings, businessID string) *model.Settings {
	if s, ok := cache[businessID]; ok {
		return s
	}
	s, err := e.settings.Get(ctx, businessID)
	if err != nil {
		e.logger.Error("automation settings load failed", "err", err, "business_id", businessID)
		cache[businessID] = nil
		return nil
	}
	cache[businessID] = &s
	return &s
}

func (e *Engine) sendReminder(ctx context.Context, appt model.Appointment, s model.Settings, r model.ReminderRelance) {
	won, err := e.claim(ctx, dedup.Key{AppointmentID: appt.ID, Trigger: model.TriggerReminder, Relance: r.RelanceNumber})
	if err != nil || !won {
		return
	}

	tpl := firstNonEmpty(r.ContentTemplate, s.Automation.ReminderTemplate, DefaultReminderTemplate)
	include := s.Automation.IncludeRescheduleLinkInReminder
	link := ""
	if include {
		link = RescheduleURL(s.Automation.RescheduleBaseURL, CompanySlug(s.Company), appt.ID)
	}
	content := reminderContent(tpl, VarsFor(appt, s.Company, link), include)
	e.dispatch(ctx, appt, s.Automation.Channel, model.TriggerReminder, r.RelanceNumber, content)
}

func (e *Engine) sendNoShow(ctx context.Context, appt model.Appointment, s model.Settings) {
	if e.isSettled(appt.ID) {
		return
	}
	// Staff may have corrected the status since the appointment was read.
	current, err := e.appointments.Get(ctx, appt.BusinessID, appt.ID)
	if err != nil {
		e.logger.Warn("no-show recheck failed", "err", err, "appointment_id", appt.ID)
		return
	}
	if !EvaluateNoShow(current, s.Automation) {
		e.logger.Debug("no-show message suppressed", "appointment_id", appt.ID, "status", current.Status)
		return
	}
	won, err := e.claim(ctx, dedup.Key{AppointmentID: appt.ID, Trigger: model.TriggerNoShow})
	if err != nil {
		return
	}
	e.settle(current)
	if !won {
		return
	}

	tpl := firstNonEmpty(s.Automation.NoShowTemplate, DefaultNoShowTemplate)
	link := RescheduleURL(s.Automation.RescheduleBaseURL, CompanySlug(s.Company), current.ID)
	content := Render(tpl, VarsFor(current, s.Company, link))
	e.dispatch(ctx, current, s.Automation.Channel, model.TriggerNoShow, 0, content)
}

// claim reports whether this process won the right to send. A store error is logged and
// returned; the key stays open so a later tick can still claim it.
func (e *Engine) claim(ctx context.Context, key dedup.Key) (bool, error) {
	ok, err := e.dedup.Claim(ctx, key)
	if err != nil {
		e.logger.Error("automation dedup claim failed", "err", err, "key", key.String())
		return false, err
	}
	e.metrics.ObserveTrigger(string(key.Trigger), ok)
	return ok, nil
}

// A no-show claim is never released, so once decided the appointment needs no further
// recheck or claim attempt.
func (e *Engine) settle(appt model.Appointment) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.settled[appt.ID] = appt.StartTime
}

func (e *Engine) isSettled(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.settled[id]
	return ok
}

// pruneSettled forgets appointments that fell out of the scan window.
func (e *Engine) pruneSettled(before time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for id, start := range e.settled {
		if start.Before(before) {
			delete(e.settled, id)
		}
	}
}

func (e *Engine) dispatch(ctx context.Context, appt model.Appointment, channel model.Channel, trigger model.Trigger, relance int, content string) {
	ctx, span := e.tracer.Start(ctx, "automation.dispatch", trace.WithAttributes(
		attribute.String("appointment.id", appt.ID),
		attribute.String("automation.trigger", string(trigger)),
		attribute.Int("automation.relance", relance),
		attribute.String("automation.channel", string(channel)),
	))
	defer span.End()

	if e.dispatchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.dispatchTimeout)
		defer cancel()
	}

	err := e.dispatcher.Dispatch(ctx, messaging.Message{
		BusinessID:     appt.BusinessID,
		AppointmentID:  appt.ID,
		ClientID:       appt.ClientID,
		ClientName:     appt.ClientName,
		ConversationID: appt.ClientConversationID,
		Channel:        channel,
		Content:        content,
		Trigger:        trigger,
		Relance:        relance,
	})
	if err != nil {
		derr := &DispatchError{AppointmentID: appt.ID, Trigger: trigger, Relance: relance, Err: err}
		span.RecordError(derr)
		span.SetStatus(codes.Error, "dispatch failed")
		e.metrics.ObserveDispatch(string(trigger), string(channel), "failed")
		e.logger.Error("automation dispatch failed", "err", derr, "appointment_id", appt.ID, "business_id", appt.BusinessID)
		return
	}
	e.metrics.ObserveDispatch(string(trigger), string(channel), "sent")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
