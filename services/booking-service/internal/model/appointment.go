package model

import "time"

type Status string

const (
	StatusScheduled           Status = "scheduled"
	StatusConfirmed           Status = "confirmed"
	StatusCompleted           Status = "completed"
	StatusCancelled           Status = "cancelled"
	StatusNoShow              Status = "no_show"
	StatusRescheduleRequested Status = "reschedule_requested"
)

type Appointment struct {
	ID                   string
	BusinessID           string
	ClientID             string
	ClientName           string
	ClientConversationID string // empty when no messaging thread is linked yet
	TypeID               string
	TypeName             string
	EmployeeID           string // empty means unassigned
	EmployeeName         string
	StartTime            time.Time
	EndTime              time.Time
	Status               Status
	NotesInternal        string
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

type AppointmentType struct {
	ID                  string
	BusinessID          string
	Name                string
	DurationMinutes     int
	BufferBeforeMinutes int
	BufferAfterMinutes  int
	EmployeesAllowedIDs []string // empty means any staff
	IsActive            bool
}

// BlockDuration is the full footprint of one booking: buffers plus service time.
func (t AppointmentType) BlockDuration() time.Duration {
	return time.Duration(t.BufferBeforeMinutes+t.DurationMinutes+t.BufferAfterMinutes) * time.Minute
}

type Staff struct {
	ID   string
	Name string
}

type Client struct {
	ID   string
	Name string
}

// TimeSlot is a derived, never persisted, bookable interval for one employee.
type TimeSlot struct {
	Start        time.Time
	End          time.Time
	EmployeeID   string
	EmployeeName string
}
