package availability

import (
	"time"

	"github.com/md-rashed-zaman/apptdesk/services/booking-service/internal/model"
)

// Booking is anything that occupies an employee's time: an existing appointment or a
// candidate slot.
type Booking struct {
	EmployeeID string
	Start      time.Time
	End        time.Time
	Status     model.Status
}

func FromAppointment(a model.Appointment) Booking {
	return Booking{EmployeeID: a.EmployeeID, Start: a.StartTime, End: a.EndTime, Status: a.Status}
}

// Overlaps reports whether [aStart,aEnd) and [bStart,bEnd) share time. a starting inside b,
// a ending inside b, or a enclosing b all count; ranges that merely touch do not.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	startsInside := !aStart.Before(bStart) && aStart.Before(bEnd)
	endsInside := aEnd.After(bStart) && !aEnd.After(bEnd)
	encloses := !aStart.After(bStart) && !aEnd.Before(bEnd)
	return startsInside || endsInside || encloses
}

// Conflicts is true when both bookings are live, belong to the same employee (an unassigned
// booking matches everyone) and their ranges overlap.
func Conflicts(a, b Booking) bool {
	if a.Status == model.StatusCancelled || b.Status == model.StatusCancelled {
		return false
	}
	if a.EmployeeID != "" && b.EmployeeID != "" && a.EmployeeID != b.EmployeeID {
		return false
	}
	return Overlaps(a.Start, a.End, b.Start, b.End)
}

// FirstConflict returns the first existing booking that conflicts with candidate.
func FirstConflict(candidate Booking, existing []Booking) (Booking, bool) {
	for _, e := range existing {
		if Conflicts(candidate, e) {
			return e, true
		}
	}
	return Booking{}, false
}
