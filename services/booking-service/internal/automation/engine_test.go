package automation

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/md-rashed-zaman/apptdesk/services/booking-service/internal/dedup"
	"github.com/md-rashed-zaman/apptdesk/services/booking-service/internal/messaging"
	"github.com/md-rashed-zaman/apptdesk/services/booking-service/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAppointments struct {
	mu      sync.Mutex
	appts   map[string]model.Appointment
	listErr error
	gets    int
}

func newFakeAppointments(appts ...model.Appointment) *fakeAppointments {
	f := &fakeAppointments{appts: map[string]model.Appointment{}}
	for _, a := range appts {
		f.appts[a.ID] = a
	}
	return f
}

func (f *fakeAppointments) ListForAutomation(_ context.Context, from, to time.Time) ([]model.Appointment, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Appointment
	for _, a := range f.appts {
		if !a.StartTime.Before(from) && a.StartTime.Before(to) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeAppointments) Get(_ context.Context, _ string, id string) (model.Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	a, ok := f.appts[id]
	if !ok {
		return model.Appointment{}, model.ErrNotFound
	}
	return a, nil
}

func (f *fakeAppointments) getCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.gets
}

func (f *fakeAppointments) setStatus(id string, status model.Status) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a := f.appts[id]
	a.Status = status
	f.appts[id] = a
}

type fakeSettings struct {
	settings model.Settings
	err      error
}

func (f *fakeSettings) Get(_ context.Context, businessID string) (model.Settings, error) {
	s := f.settings
	s.BusinessID = businessID
	return s, f.err
}

type recordingDispatcher struct {
	mu   sync.Mutex
	sent []messaging.Message
	err  error
}

func (d *recordingDispatcher) Dispatch(_ context.Context, msg messaging.Message) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sent = append(d.sent, msg)
	return d.err
}

func (d *recordingDispatcher) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.sent)
}

func testSettings() model.Settings {
	a := model.DefaultAutomationSettings()
	a.AutoReminderEnabled = true
	a.AutoReminderOffsetHours = 4
	a.AutoNoShowMessageEnabled = true
	a.RescheduleBaseURL = "https://x/r/{slugEntreprise}"
	a.Channel = model.ChannelEmail
	return model.Settings{
		Automation: a,
		Company:    model.CompanyProfile{Name: "Salon Éclat", Email: "contact@eclat.fr", Phone: "0102030405", Timezone: "UTC"},
	}
}

func newEngine(appts *fakeAppointments, settings *fakeSettings, d *recordingDispatcher) *Engine {
	return NewEngine(appts, settings, dedup.NewMemoryStore(), d, slog.New(slog.NewTextHandler(io.Discard, nil)), nil, EngineConfig{
		Now: func() time.Time { return now },
	})
}

func TestTickSendsReminderOnce(t *testing.T) {
	appts := newFakeAppointments(model.Appointment{
		ID: "a1", BusinessID: "biz-1", ClientID: "c1", ClientName: "Jeanne",
		Status: model.StatusScheduled, StartTime: now.Add(4*time.Hour + 30*time.Minute),
	})
	d := &recordingDispatcher{}
	e := newEngine(appts, &fakeSettings{settings: testSettings()}, d)

	require.NoError(t, e.Tick(context.Background()))
	require.NoError(t, e.Tick(context.Background()))

	require.Equal(t, 1, d.count())
	msg := d.sent[0]
	assert.Equal(t, model.TriggerReminder, msg.Trigger)
	assert.Equal(t, 1, msg.Relance)
	assert.Equal(t, model.ChannelEmail, msg.Channel)
	assert.Equal(t, "c1", msg.ClientID)
	assert.Contains(t, msg.Content, "Jeanne")
	assert.Contains(t, msg.Content, "28/01/2026")
	assert.Contains(t, msg.Content, "10:30")
	assert.NotContains(t, msg.Content, "{reschedule_url}")
	assert.NotContains(t, msg.Content, "https://")
}

func TestTickReminderWithRescheduleLink(t *testing.T) {
	s := testSettings()
	s.Automation.IncludeRescheduleLinkInReminder = true
	appts := newFakeAppointments(model.Appointment{
		ID: "a1", BusinessID: "biz-1", ClientID: "c1", Status: model.StatusConfirmed, StartTime: now.Add(4 * time.Hour),
	})
	d := &recordingDispatcher{}
	require.NoError(t, newEngine(appts, &fakeSettings{settings: s}, d).Tick(context.Background()))

	require.Equal(t, 1, d.count())
	assert.True(t, strings.HasSuffix(d.sent[0].Content, "\nhttps://x/r/salon-eclat?appointmentId=a1"), d.sent[0].Content)
}

func TestTickFiresEachRelanceSeparately(t *testing.T) {
	s := testSettings()
	s.Automation.MaxReminderRelances = 2
	s.Automation.ReminderRelances = []model.ReminderRelance{
		{RelanceNumber: 1, HoursBefore: 24, ContentTemplate: "J-1 {client_name}"},
		{RelanceNumber: 2, HoursBefore: 2, ContentTemplate: "H-2 {client_name}"},
	}
	start := now.Add(24*time.Hour + 15*time.Minute)
	appts := newFakeAppointments(model.Appointment{ID: "a1", BusinessID: "biz-1", ClientID: "c1", ClientName: "Jeanne", Status: model.StatusScheduled, StartTime: start})
	d := &recordingDispatcher{}
	clock := now
	e := NewEngine(appts, &fakeSettings{settings: s}, dedup.NewMemoryStore(), d, slog.New(slog.NewTextHandler(io.Discard, nil)), nil, EngineConfig{
		Now: func() time.Time { return clock },
	})

	require.NoError(t, e.Tick(context.Background()))
	clock = start.Add(-2*time.Hour - 5*time.Minute)
	require.NoError(t, e.Tick(context.Background()))
	require.NoError(t, e.Tick(context.Background()))

	require.Equal(t, 2, d.count())
	assert.Equal(t, "J-1 Jeanne", d.sent[0].Content)
	assert.Equal(t, "H-2 Jeanne", d.sent[1].Content)
	assert.Equal(t, 2, d.sent[1].Relance)
}

func TestNoShowMessageContainsRescheduleURL(t *testing.T) {
	appt := model.Appointment{ID: "a42", BusinessID: "biz-1", ClientID: "c1", ClientName: "Jeanne", Status: model.StatusNoShow, StartTime: now.Add(-2 * time.Hour)}
	appts := newFakeAppointments(appt)
	d := &recordingDispatcher{}
	e := newEngine(appts, &fakeSettings{settings: testSettings()}, d)

	e.HandleNoShow(context.Background(), appt)
	require.NoError(t, e.Tick(context.Background()))

	require.Equal(t, 1, d.count())
	assert.Equal(t, model.TriggerNoShow, d.sent[0].Trigger)
	assert.Contains(t, d.sent[0].Content, "https://x/r/salon-eclat?appointmentId=a42")
	assert.NotContains(t, d.sent[0].Content, "{slugEntreprise}")
}

type countingStore struct {
	dedup.Store
	claims int
	err    error
}

func (c *countingStore) Claim(ctx context.Context, key dedup.Key) (bool, error) {
	c.claims++
	if c.err != nil {
		return false, c.err
	}
	return c.Store.Claim(ctx, key)
}

func TestTickSkipsSettledNoShows(t *testing.T) {
	appts := newFakeAppointments(model.Appointment{ID: "a1", BusinessID: "biz-1", ClientID: "c1", Status: model.StatusNoShow, StartTime: now.Add(-3 * time.Hour)})
	store := &countingStore{Store: dedup.NewMemoryStore()}
	d := &recordingDispatcher{}
	e := NewEngine(appts, &fakeSettings{settings: testSettings()}, store, d, slog.New(slog.NewTextHandler(io.Discard, nil)), nil, EngineConfig{
		Now: func() time.Time { return now },
	})

	for i := 0; i < 3; i++ {
		require.NoError(t, e.Tick(context.Background()))
	}
	assert.Equal(t, 1, d.count())
	assert.Equal(t, 1, appts.getCount())
	assert.Equal(t, 1, store.claims)
}

func TestNoShowClaimLostElsewhereIsSettled(t *testing.T) {
	appt := model.Appointment{ID: "a1", BusinessID: "biz-1", ClientID: "c1", Status: model.StatusNoShow, StartTime: now.Add(-3 * time.Hour)}
	appts := newFakeAppointments(appt)
	shared := dedup.NewMemoryStore()
	_, err := shared.Claim(context.Background(), dedup.Key{AppointmentID: "a1", Trigger: model.TriggerNoShow})
	require.NoError(t, err)
	store := &countingStore{Store: shared}
	d := &recordingDispatcher{}
	e := NewEngine(appts, &fakeSettings{settings: testSettings()}, store, d, slog.New(slog.NewTextHandler(io.Discard, nil)), nil, EngineConfig{
		Now: func() time.Time { return now },
	})

	require.NoError(t, e.Tick(context.Background()))
	require.NoError(t, e.Tick(context.Background()))
	assert.Equal(t, 0, d.count())
	assert.Equal(t, 1, appts.getCount())
	assert.Equal(t, 1, store.claims)
}

func TestNoShowClaimErrorIsRetried(t *testing.T) {
	appts := newFakeAppointments(model.Appointment{ID: "a1", BusinessID: "biz-1", ClientID: "c1", Status: model.StatusNoShow, StartTime: now.Add(-3 * time.Hour)})
	store := &countingStore{Store: dedup.NewMemoryStore(), err: errors.New("dedup store down")}
	d := &recordingDispatcher{}
	e := NewEngine(appts, &fakeSettings{settings: testSettings()}, store, d, slog.New(slog.NewTextHandler(io.Discard, nil)), nil, EngineConfig{
		Now: func() time.Time { return now },
	})

	require.NoError(t, e.Tick(context.Background()))
	assert.Equal(t, 0, d.count())

	store.err = nil
	require.NoError(t, e.Tick(context.Background()))
	assert.Equal(t, 1, d.count())
	assert.Equal(t, 2, store.claims)
}

func TestNoShowSuppressedWhenStatusChangedBack(t *testing.T) {
	appt := model.Appointment{ID: "a1", BusinessID: "biz-1", ClientID: "c1", Status: model.StatusNoShow, StartTime: now.Add(-time.Hour)}
	appts := newFakeAppointments(appt)
	appts.setStatus("a1", model.StatusCompleted)
	d := &recordingDispatcher{}
	e := newEngine(appts, &fakeSettings{settings: testSettings()}, d)

	e.HandleNoShow(context.Background(), appt)
	assert.Equal(t, 0, d.count())
}

func TestNoShowDisabled(t *testing.T) {
	s := testSettings()
	s.Automation.AutoNoShowMessageEnabled = false
	appt := model.Appointment{ID: "a1", BusinessID: "biz-1", ClientID: "c1", Status: model.StatusNoShow, StartTime: now.Add(-time.Hour)}
	d := &recordingDispatcher{}
	e := newEngine(newFakeAppointments(appt), &fakeSettings{settings: s}, d)

	e.HandleNoShow(context.Background(), appt)
	require.NoError(t, e.Tick(context.Background()))
	assert.Equal(t, 0, d.count())
}

func TestFailedDispatchIsNotRetried(t *testing.T) {
	appts := newFakeAppointments(model.Appointment{
		ID: "a1", BusinessID: "biz-1", ClientID: "c1", Status: model.StatusScheduled, StartTime: now.Add(4*time.Hour + 10*time.Minute),
	})
	d := &recordingDispatcher{err: errors.New("whatsapp gateway down")}
	e := newEngine(appts, &fakeSettings{settings: testSettings()}, d)

	require.NoError(t, e.Tick(context.Background()))
	require.NoError(t, e.Tick(context.Background()))
	assert.Equal(t, 1, d.count())
}

func TestTickSurfacesScanFailureOnly(t *testing.T) {
	appts := newFakeAppointments()
	appts.listErr = errors.New("db down")
	e := newEngine(appts, &fakeSettings{settings: testSettings()}, &recordingDispatcher{})
	assert.Error(t, e.Tick(context.Background()))

	ok := newFakeAppointments(model.Appointment{ID: "a1", BusinessID: "biz-1", ClientID: "c1", Status: model.StatusScheduled, StartTime: now.Add(4 * time.Hour)})
	d := &recordingDispatcher{}
	e = newEngine(ok, &fakeSettings{err: errors.New("settings unavailable")}, d)
	assert.NoError(t, e.Tick(context.Background()))
	assert.Equal(t, 0, d.count())
}

func TestDispatchError(t *testing.T) {
	cause := errors.New("timeout")
	err := &DispatchError{AppointmentID: "a1", Trigger: model.TriggerReminder, Relance: 2, Err: cause}
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "a1")
}
