package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/md-rashed-zaman/apptdesk/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/apptdesk/services/booking-service/internal/model"
)

type fakeBookings struct {
	slots    []model.TimeSlot
	booked   model.Appointment
	err      error
	lastBook booking.BookRequest
	lastSlot booking.SlotsRequest
}

func (f *fakeBookings) Slots(_ context.Context, req booking.SlotsRequest) ([]model.TimeSlot, error) {
	f.lastSlot = req
	return f.slots, f.err
}

func (f *fakeBookings) Book(_ context.Context, req booking.BookRequest) (model.Appointment, error) {
	f.lastBook = req
	return f.booked, f.err
}

type fakeMachine struct {
	to  model.Status
	id  string
	err error
}

func (f *fakeMachine) Transition(_ context.Context, businessID, id string, to model.Status) (model.Appointment, error) {
	f.id, f.to = id, to
	if f.err != nil {
		return model.Appointment{}, f.err
	}
	return model.Appointment{ID: id, BusinessID: businessID, Status: to}, nil
}

type fakeLister struct{ appts []model.Appointment }

func (f *fakeLister) ListRange(context.Context, string, time.Time, time.Time) ([]model.Appointment, error) {
	return f.appts, nil
}

type fakeSettings struct {
	saved *model.AutomationSettings
}

func (f *fakeSettings) Get(_ context.Context, businessID string) (model.Settings, error) {
	return model.Settings{BusinessID: businessID, Automation: model.DefaultAutomationSettings()}, nil
}

func (f *fakeSettings) PutAutomation(_ context.Context, _ string, s model.AutomationSettings) error {
	f.saved = &s
	return nil
}

type fakeTypes struct {
	created []model.AppointmentType
	err     error
}

func (f *fakeTypes) List(context.Context, string, bool) ([]model.AppointmentType, error) {
	return f.created, nil
}

func (f *fakeTypes) Create(_ context.Context, t model.AppointmentType) error {
	f.created = append(f.created, t)
	return nil
}

func (f *fakeTypes) Update(context.Context, model.AppointmentType) error {
	return f.err
}

type fixture struct {
	bookings *fakeBookings
	machine  *fakeMachine
	settings *fakeSettings
	types    *fakeTypes
	handler  http.Handler
}

func newFixture() *fixture {
	f := &fixture{
		bookings: &fakeBookings{},
		machine:  &fakeMachine{},
		settings: &fakeSettings{},
		types:    &fakeTypes{},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f.handler = NewHandler(f.bookings, f.machine, &fakeLister{}, f.settings, f.types, logger).Routes()
	return f
}

func (f *fixture) do(method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("X-Business-Id", "biz-1")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func TestSlotsEndpoint(t *testing.T) {
	f := newFixture()
	start := time.Date(2026, 1, 28, 9, 0, 0, 0, time.UTC)
	f.bookings.slots = []model.TimeSlot{{Start: start, End: start.Add(30 * time.Minute), EmployeeID: "1", EmployeeName: "Alice"}}

	rec := f.do(http.MethodGet, "/api/v1/slots?type_id=t1&date=2026-01-28", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if f.bookings.lastSlot.BusinessID != "biz-1" || f.bookings.lastSlot.TypeID != "t1" || f.bookings.lastSlot.Date != "2026-01-28" {
		t.Fatalf("unexpected request: %+v", f.bookings.lastSlot)
	}
	var items []slotItem
	if err := json.NewDecoder(rec.Body).Decode(&items); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(items) != 1 || items[0].StartTime != "2026-01-28T09:00:00Z" || items[0].EmployeeName != "Alice" {
		t.Fatalf("unexpected items: %+v", items)
	}
}

func TestCreateAppointmentErrorMapping(t *testing.T) {
	invalid := fmt.Errorf("%w: client required", model.ErrInvalidInput)
	cases := []struct {
		err  error
		want int
	}{
		{model.ErrSlotUnavailable, http.StatusConflict},
		{model.ErrNotFound, http.StatusNotFound},
		{invalid, http.StatusBadRequest},
		{fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		f := newFixture()
		f.bookings.err = tc.err
		rec := f.do(http.MethodPost, "/api/v1/appointments", `{"type_id":"t1","client_id":"c1","start_time":"2026-01-28T09:00:00Z"}`)
		if rec.Code != tc.want {
			t.Fatalf("%v: expected %d, got %d", tc.err, tc.want, rec.Code)
		}
	}
}

func TestCreateAppointment(t *testing.T) {
	f := newFixture()
	start := time.Date(2026, 1, 28, 9, 0, 0, 0, time.UTC)
	f.bookings.booked = model.Appointment{ID: "a1", Status: model.StatusScheduled, StartTime: start, EndTime: start.Add(time.Hour)}

	rec := f.do(http.MethodPost, "/api/v1/appointments", `{"type_id":"t1","client_id":"c1","employee_id":"2","start_time":"2026-01-28T09:00:00Z"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if !f.bookings.lastBook.Start.Equal(start) || f.bookings.lastBook.EmployeeID != "2" || f.bookings.lastBook.BusinessID != "biz-1" {
		t.Fatalf("unexpected book request: %+v", f.bookings.lastBook)
	}
	var item appointmentItem
	if err := json.NewDecoder(rec.Body).Decode(&item); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if item.AppointmentID != "a1" || item.Status != "scheduled" {
		t.Fatalf("unexpected item: %+v", item)
	}
}

func TestCreateAppointmentRejectsBadStart(t *testing.T) {
	f := newFixture()
	rec := f.do(http.MethodPost, "/api/v1/appointments", `{"type_id":"t1","client_id":"c1","start_time":"tomorrow"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestUpdateStatus(t *testing.T) {
	f := newFixture()
	rec := f.do(http.MethodPost, "/api/v1/appointments/a1/status", `{"status":" No_Show "}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if f.machine.id != "a1" || f.machine.to != model.StatusNoShow {
		t.Fatalf("unexpected transition: %s -> %s", f.machine.id, f.machine.to)
	}

	rec = f.do(http.MethodPost, "/api/v1/appointments/a1/status", `{"status":"archived"}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
}

func TestPutAutomationSettingsValidates(t *testing.T) {
	f := newFixture()
	rec := f.do(http.MethodPut, "/api/v1/settings/automation", `{"workStartTime":"18:00","workEndTime":"09:00"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if f.settings.saved != nil {
		t.Fatalf("invalid settings should not be saved")
	}

	rec = f.do(http.MethodPut, "/api/v1/settings/automation", `{"autoReminderEnabled":true,"maxReminderRelances":9}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if f.settings.saved == nil || f.settings.saved.MaxReminderRelances != model.MaxReminderRelances || f.settings.saved.Channel != model.ChannelWhatsApp {
		t.Fatalf("expected normalized settings, got %+v", f.settings.saved)
	}
}

func TestAppointmentTypes(t *testing.T) {
	f := newFixture()
	rec := f.do(http.MethodPost, "/api/v1/appointment-types", `{"name":"Coupe","duration_minutes":30,"is_active":true}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(f.types.created) != 1 || f.types.created[0].ID == "" || f.types.created[0].BusinessID != "biz-1" {
		t.Fatalf("unexpected created types: %+v", f.types.created)
	}

	rec = f.do(http.MethodPost, "/api/v1/appointment-types", `{"name":"Coupe","duration_minutes":0}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}

	f.types.err = model.ErrNotFound
	rec = f.do(http.MethodPut, "/api/v1/appointment-types/missing", `{"name":"Coupe","duration_minutes":30}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestBusinessIDRequired(t *testing.T) {
	f := newFixture()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/appointments", nil)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}
