package availability

import (
	"sort"
	"time"

	"github.com/md-rashed-zaman/apptdesk/services/booking-service/internal/model"
)

// LeadTime is how far ahead of now the first same-day slot may start.
const LeadTime = time.Hour

type WorkHours struct {
	Start model.Clock
	End   model.Clock
}

type SlotQuery struct {
	Type         model.AppointmentType
	Appointments []model.Appointment
	Roster       []model.Staff
	// Day is any instant on the target calendar day, expressed in the business location.
	Day       time.Time
	WorkHours WorkHours
	// Breaks must already be filtered by the breaksEnabled setting.
	Breaks []model.Break
	Now    time.Time
}

// ComputeSlots packs back-to-back blocks of the type's full size (buffers + duration) from
// the start of the working day for every eligible employee, dropping blocks that run past
// the end of the day, overlap a break, or clash with a live appointment. The result is
// ordered by start time. It never fails: missing capacity or bad input yields no slots.
func ComputeSlots(q SlotQuery) []model.TimeSlot {
	block := q.Type.BlockDuration()
	if block <= 0 {
		return nil
	}

	employees := EligibleEmployees(q.Type, q.Roster)
	if len(employees) == 0 {
		return nil
	}

	loc := q.Day.Location()
	day := q.Day
	workStart, err := q.WorkHours.Start.On(day)
	if err != nil {
		return nil
	}
	workEnd, err := q.WorkHours.End.On(day)
	if err != nil || !workEnd.After(workStart) {
		return nil
	}

	start := workStart
	if !q.Now.IsZero() {
		now := q.Now.In(loc)
		switch {
		case sameDay(now, day):
			earliest := now.Add(LeadTime).Truncate(time.Minute)
			if earliest.After(start) {
				start = earliest
			}
		case now.After(day):
			return nil
		}
	}

	breaks := breakWindows(q.Breaks, day)
	existing := make([]Booking, 0, len(q.Appointments))
	for _, a := range q.Appointments {
		existing = append(existing, FromAppointment(a))
	}

	var slots []model.TimeSlot
	for _, emp := range employees {
		for cursor := start; ; cursor = cursor.Add(block) {
			end := cursor.Add(block)
			if end.After(workEnd) {
				break
			}
			if overlapsAnyWindow(cursor, end, breaks) {
				continue
			}
			candidate := Booking{EmployeeID: emp.ID, Start: cursor, End: end, Status: model.StatusScheduled}
			if _, clash := FirstConflict(candidate, existing); clash {
				continue
			}
			slots = append(slots, model.TimeSlot{
				Start:        cursor,
				End:          end,
				EmployeeID:   emp.ID,
				EmployeeName: emp.Name,
			})
		}
	}

	sort.SliceStable(slots, func(i, j int) bool {
		return slots[i].Start.Before(slots[j].Start)
	})
	return slots
}

// Offers reports whether a slot starting at start for employeeID ("" matches anyone) was
// listed by ComputeSlots(q) at some moment within grace before q.Now. Same-day grids shift
// with now, so each minute of the grace period is tried.
func Offers(q SlotQuery, start time.Time, employeeID string, grace time.Duration) bool {
	now := q.Now
	for offset := time.Duration(0); offset <= grace; offset += time.Minute {
		if !now.IsZero() {
			q.Now = now.Add(-offset)
		}
		for _, slot := range ComputeSlots(q) {
			if slot.Start.Equal(start) && (employeeID == "" || slot.EmployeeID == employeeID) {
				return true
			}
		}
		if now.IsZero() {
			break
		}
	}
	return false
}

// EligibleEmployees filters the roster by the type's allow-list; an empty list allows everyone.
func EligibleEmployees(t model.AppointmentType, roster []model.Staff) []model.Staff {
	if len(t.EmployeesAllowedIDs) == 0 {
		return roster
	}
	allowed := make(map[string]struct{}, len(t.EmployeesAllowedIDs))
	for _, id := range t.EmployeesAllowedIDs {
		allowed[id] = struct{}{}
	}
	var out []model.Staff
	for _, s := range roster {
		if _, ok := allowed[s.ID]; ok {
			out = append(out, s)
		}
	}
	return out
}

type window struct {
	start time.Time
	end   time.Time
}

func breakWindows(breaks []model.Break, day time.Time) []window {
	out := make([]window, 0, len(breaks))
	for _, b := range breaks {
		start, err := b.StartTime.On(day)
		if err != nil {
			continue
		}
		end, err := b.EndTime.On(day)
		if err != nil || !end.After(start) {
			continue
		}
		out = append(out, window{start: start, end: end})
	}
	return out
}

func overlapsAnyWindow(start, end time.Time, windows []window) bool {
	for _, w := range windows {
		if Overlaps(start, end, w.start, w.end) {
			return true
		}
	}
	return false
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
