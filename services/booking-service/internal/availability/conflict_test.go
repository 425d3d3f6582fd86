package availability

import (
	"testing"
	"time"

	"github.com/md-rashed-zaman/apptdesk/services/booking-service/internal/model"
)

func TestOverlaps(t *testing.T) {
	base := time.Date(2026, 1, 28, 10, 0, 0, 0, time.UTC)
	at := func(min int) time.Time { return base.Add(time.Duration(min) * time.Minute) }

	cases := []struct {
		name                       string
		aStart, aEnd, bStart, bEnd int
		want                       bool
	}{
		{"identical", 0, 30, 0, 30, true},
		{"starts inside", 15, 45, 0, 30, true},
		{"ends inside", -15, 15, 0, 30, true},
		{"encloses", -15, 45, 0, 30, true},
		{"enclosed", 5, 10, 0, 30, true},
		{"touches before", -30, 0, 0, 30, false},
		{"touches after", 30, 60, 0, 30, false},
		{"disjoint", 60, 90, 0, 30, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Overlaps(at(tc.aStart), at(tc.aEnd), at(tc.bStart), at(tc.bEnd))
			if got != tc.want {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}
}

func TestConflicts(t *testing.T) {
	start := time.Date(2026, 1, 28, 10, 0, 0, 0, time.UTC)
	end := start.Add(30 * time.Minute)
	a := Booking{EmployeeID: "e1", Start: start, End: end, Status: model.StatusConfirmed}

	if !Conflicts(a, Booking{EmployeeID: "e1", Start: start, End: end, Status: model.StatusScheduled}) {
		t.Fatal("expected same-employee overlap to conflict")
	}
	if Conflicts(a, Booking{EmployeeID: "e2", Start: start, End: end, Status: model.StatusScheduled}) {
		t.Fatal("different employees must not conflict")
	}
	if !Conflicts(a, Booking{Start: start, End: end, Status: model.StatusScheduled}) {
		t.Fatal("unassigned booking must conflict with any employee")
	}
	if Conflicts(a, Booking{EmployeeID: "e1", Start: start, End: end, Status: model.StatusCancelled}) {
		t.Fatal("cancelled booking must not conflict")
	}
}
