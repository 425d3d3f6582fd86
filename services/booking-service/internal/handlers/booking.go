package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/md-rashed-zaman/apptdesk/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/apptdesk/services/booking-service/internal/lifecycle"
	"github.com/md-rashed-zaman/apptdesk/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/apptdesk/services/booking-service/internal/storage"
)

type BookingService interface {
	Slots(ctx context.Context, req booking.SlotsRequest) ([]model.TimeSlot, error)
	Book(ctx context.Context, req booking.BookRequest) (model.Appointment, error)
}

type StatusMachine interface {
	Transition(ctx context.Context, businessID, id string, to model.Status) (model.Appointment, error)
}

type AppointmentLister interface {
	ListRange(ctx context.Context, businessID string, from, to time.Time) ([]model.Appointment, error)
}

type SettingsStore interface {
	Get(ctx context.Context, businessID string) (model.Settings, error)
	PutAutomation(ctx context.Context, businessID string, s model.AutomationSettings) error
}

type TypeStore interface {
	List(ctx context.Context, businessID string, activeOnly bool) ([]model.AppointmentType, error)
	Create(ctx context.Context, t model.AppointmentType) error
	Update(ctx context.Context, t model.AppointmentType) error
}

type Handler struct {
	bookings     BookingService
	machine      StatusMachine
	appointments AppointmentLister
	settings     SettingsStore
	types        TypeStore
	logger       *slog.Logger
}

func NewHandler(bookings BookingService, machine StatusMachine, appointments AppointmentLister, settings SettingsStore, types TypeStore, logger *slog.Logger) *Handler {
	return &Handler{
		bookings:     bookings,
		machine:      machine,
		appointments: appointments,
		settings:     settings,
		types:        types,
		logger:       logger,
	}
}

// Routes registers the API. public wraps the routes anonymous clients can reach (slots and
// booking), typically with a rate limiter.
func (h *Handler) Routes(public ...func(http.Handler) http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Route("/api/v1", func(r chi.Router) {
		r.With(public...).Get("/slots", h.Slots)
		r.With(public...).Post("/appointments", h.Create)
		r.Get("/appointments", h.List)
		r.Post("/appointments/{id}/status", h.UpdateStatus)
		r.Get("/settings/automation", h.GetAutomationSettings)
		r.Put("/settings/automation", h.PutAutomationSettings)
		r.Get("/appointment-types", h.ListTypes)
		r.Post("/appointment-types", h.CreateType)
		r.Put("/appointment-types/{id}", h.UpdateType)
	})
	return r
}

type slotItem struct {
	StartTime    string `json:"start_time"`
	EndTime      string `json:"end_time"`
	EmployeeID   string `json:"employee_id"`
	EmployeeName string `json:"employee_name"`
}

type appointmentItem struct {
	AppointmentID        string `json:"appointment_id"`
	ClientID             string `json:"client_id"`
	ClientName           string `json:"client_name"`
	ClientConversationID string `json:"client_conversation_id,omitempty"`
	TypeID               string `json:"type_id"`
	TypeName             string `json:"type_name"`
	EmployeeID           string `json:"employee_id,omitempty"`
	EmployeeName         string `json:"employee_name,omitempty"`
	StartTime            string `json:"start_time"`
	EndTime              string `json:"end_time"`
	Status               string `json:"status"`
	NotesInternal        string `json:"notes_internal,omitempty"`
	CreatedAt            string `json:"created_at"`
	UpdatedAt            string `json:"updated_at"`
}

type createAppointmentRequest struct {
	BusinessID string `json:"business_id"`
	TypeID     string `json:"type_id"`
	ClientID   string `json:"client_id"`
	EmployeeID string `json:"employee_id"`
	StartTime  string `json:"start_time"`
	Notes      string `json:"notes_internal"`
}

type statusRequest struct {
	BusinessID string `json:"business_id"`
	Status     string `json:"status"`
}

type appointmentTypeItem struct {
	ID                  string   `json:"id"`
	BusinessID          string   `json:"business_id"`
	Name                string   `json:"name"`
	DurationMinutes     int      `json:"duration_minutes"`
	BufferBeforeMinutes int      `json:"buffer_before_minutes"`
	BufferAfterMinutes  int      `json:"buffer_after_minutes"`
	EmployeesAllowedIDs []string `json:"employees_allowed_ids"`
	IsActive            bool     `json:"is_active"`
}

func (h *Handler) Slots(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	slots, err := h.bookings.Slots(r.Context(), booking.SlotsRequest{
		BusinessID: businessID(r, ""),
		TypeID:     strings.TrimSpace(q.Get("type_id")),
		Date:       strings.TrimSpace(q.Get("date")),
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	items := make([]slotItem, 0, len(slots))
	for _, s := range slots {
		items = append(items, slotItem{
			StartTime:    s.Start.Format(time.RFC3339),
			EndTime:      s.End.Format(time.RFC3339),
			EmployeeID:   s.EmployeeID,
			EmployeeName: s.EmployeeName,
		})
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req createAppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	start, err := time.Parse(time.RFC3339, strings.TrimSpace(req.StartTime))
	if err != nil {
		http.Error(w, "invalid start_time", http.StatusBadRequest)
		return
	}

	appt, err := h.bookings.Book(r.Context(), booking.BookRequest{
		BusinessID: businessID(r, req.BusinessID),
		TypeID:     strings.TrimSpace(req.TypeID),
		ClientID:   strings.TrimSpace(req.ClientID),
		EmployeeID: strings.TrimSpace(req.EmployeeID),
		Start:      start,
		Notes:      req.Notes,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAppointmentItem(appt))
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	bizID := businessID(r, "")
	if bizID == "" {
		http.Error(w, "business_id required", http.StatusBadRequest)
		return
	}

	q := r.URL.Query()
	from := time.Now().UTC().Truncate(24 * time.Hour)
	to := from.AddDate(0, 0, 30)
	if raw := strings.TrimSpace(q.Get("from")); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			http.Error(w, "invalid from", http.StatusBadRequest)
			return
		}
		from = parsed
	}
	if raw := strings.TrimSpace(q.Get("to")); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			http.Error(w, "invalid to", http.StatusBadRequest)
			return
		}
		to = parsed
	}
	if !to.After(from) {
		http.Error(w, "to must be after from", http.StatusBadRequest)
		return
	}

	appts, err := h.appointments.ListRange(r.Context(), bizID, from, to)
	if err != nil {
		h.logger.Error("list appointments failed", "err", err, "business_id", bizID)
		http.Error(w, "failed to list appointments", http.StatusInternalServerError)
		return
	}
	items := make([]appointmentItem, 0, len(appts))
	for _, a := range appts {
		items = append(items, toAppointmentItem(a))
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	bizID := businessID(r, req.BusinessID)
	if bizID == "" {
		http.Error(w, "business_id required", http.StatusBadRequest)
		return
	}
	status, err := lifecycle.Parse(req.Status)
	if err != nil {
		h.writeError(w, err)
		return
	}

	appt, err := h.machine.Transition(r.Context(), bizID, chi.URLParam(r, "id"), status)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentItem(appt))
}

func (h *Handler) GetAutomationSettings(w http.ResponseWriter, r *http.Request) {
	bizID := businessID(r, "")
	if bizID == "" {
		http.Error(w, "business_id required", http.StatusBadRequest)
		return
	}
	s, err := h.settings.Get(r.Context(), bizID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.Automation)
}

func (h *Handler) PutAutomationSettings(w http.ResponseWriter, r *http.Request) {
	bizID := businessID(r, "")
	if bizID == "" {
		http.Error(w, "business_id required", http.StatusBadRequest)
		return
	}
	var s model.AutomationSettings
	if err := json.NewDecoder(r.Body).Decode(&s); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	s.Normalize()
	if err := s.Validate(); err != nil {
		h.writeError(w, err)
		return
	}
	if err := h.settings.PutAutomation(r.Context(), bizID, s); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *Handler) ListTypes(w http.ResponseWriter, r *http.Request) {
	bizID := businessID(r, "")
	if bizID == "" {
		http.Error(w, "business_id required", http.StatusBadRequest)
		return
	}
	activeOnly := true
	if raw := strings.TrimSpace(r.URL.Query().Get("active_only")); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			http.Error(w, "invalid active_only", http.StatusBadRequest)
			return
		}
		activeOnly = parsed
	}

	types, err := h.types.List(r.Context(), bizID, activeOnly)
	if err != nil {
		h.writeError(w, err)
		return
	}
	items := make([]appointmentTypeItem, 0, len(types))
	for _, t := range types {
		items = append(items, toTypeItem(t))
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *Handler) CreateType(w http.ResponseWriter, r *http.Request) {
	t, ok := h.decodeType(w, r)
	if !ok {
		return
	}
	t.ID = uuid.NewString()
	if err := h.types.Create(r.Context(), t); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTypeItem(t))
}

func (h *Handler) UpdateType(w http.ResponseWriter, r *http.Request) {
	t, ok := h.decodeType(w, r)
	if !ok {
		return
	}
	t.ID = chi.URLParam(r, "id")
	if err := h.types.Update(r.Context(), t); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTypeItem(t))
}

func (h *Handler) decodeType(w http.ResponseWriter, r *http.Request) (model.AppointmentType, bool) {
	var item appointmentTypeItem
	if err := json.NewDecoder(r.Body).Decode(&item); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return model.AppointmentType{}, false
	}
	t := model.AppointmentType{
		BusinessID:          businessID(r, item.BusinessID),
		Name:                strings.TrimSpace(item.Name),
		DurationMinutes:     item.DurationMinutes,
		BufferBeforeMinutes: item.BufferBeforeMinutes,
		BufferAfterMinutes:  item.BufferAfterMinutes,
		EmployeesAllowedIDs: item.EmployeesAllowedIDs,
		IsActive:            item.IsActive,
	}
	if t.BusinessID == "" || t.Name == "" {
		http.Error(w, "business_id and name required", http.StatusBadRequest)
		return model.AppointmentType{}, false
	}
	if t.DurationMinutes <= 0 || t.BufferBeforeMinutes < 0 || t.BufferAfterMinutes < 0 {
		http.Error(w, "duration must be positive and buffers non-negative", http.StatusBadRequest)
		return model.AppointmentType{}, false
	}
	return t, true
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, model.ErrInvalidInput):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, model.ErrNotFound), storage.IsNotFound(err):
		http.Error(w, "not found", http.StatusNotFound)
	case errors.Is(err, model.ErrSlotUnavailable):
		http.Error(w, model.ErrSlotUnavailable.Error(), http.StatusConflict)
	case errors.Is(err, model.ErrInvalidStatus):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	default:
		h.logger.Error("request failed", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

// businessID reads the tenant from X-Business-Id, then the business_id query parameter,
// then fallback (usually the request body).
func businessID(r *http.Request, fallback string) string {
	if id := strings.TrimSpace(r.Header.Get("X-Business-Id")); id != "" {
		return id
	}
	if id := strings.TrimSpace(r.URL.Query().Get("business_id")); id != "" {
		return id
	}
	return strings.TrimSpace(fallback)
}

func toAppointmentItem(a model.Appointment) appointmentItem {
	return appointmentItem{
		AppointmentID:        a.ID,
		ClientID:             a.ClientID,
		ClientName:           a.ClientName,
		ClientConversationID: a.ClientConversationID,
		TypeID:               a.TypeID,
		TypeName:             a.TypeName,
		EmployeeID:           a.EmployeeID,
		EmployeeName:         a.EmployeeName,
		StartTime:            a.StartTime.UTC().Format(time.RFC3339),
		EndTime:              a.EndTime.UTC().Format(time.RFC3339),
		Status:               string(a.Status),
		NotesInternal:        a.NotesInternal,
		CreatedAt:            a.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:            a.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func toTypeItem(t model.AppointmentType) appointmentTypeItem {
	allowed := t.EmployeesAllowedIDs
	if allowed == nil {
		allowed = []string{}
	}
	return appointmentTypeItem{
		ID:                  t.ID,
		BusinessID:          t.BusinessID,
		Name:                t.Name,
		DurationMinutes:     t.DurationMinutes,
		BufferBeforeMinutes: t.BufferBeforeMinutes,
		BufferAfterMinutes:  t.BufferAfterMinutes,
		EmployeesAllowedIDs: allowed,
		IsActive:            t.IsActive,
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
