package automation

import (
	"sort"
	"time"

	"github.com/md-rashed-zaman/apptdesk/services/booking-service/internal/lifecycle"
	"github.com/md-rashed-zaman/apptdesk/services/booking-service/internal/model"
)

// TriggerWindow is how long after its due time a trigger still fires. It must be at least
// the scheduler interval or reminders can fall between two ticks.
const TriggerWindow = time.Hour

// EffectiveRelances returns the reminders to evaluate, ordered by relance number. Without
// configured relances a single one is derived from autoReminderOffsetHours.
func EffectiveRelances(s model.AutomationSettings) []model.ReminderRelance {
	if len(s.ReminderRelances) == 0 {
		offset := s.AutoReminderOffsetHours
		if offset <= 0 {
			offset = model.DefaultReminderOffsetHours
		}
		return []model.ReminderRelance{{RelanceNumber: 1, HoursBefore: offset, ContentTemplate: s.ReminderTemplate}}
	}

	relances := append([]model.ReminderRelance(nil), s.ReminderRelances...)
	sort.SliceStable(relances, func(i, j int) bool {
		return relances[i].RelanceNumber < relances[j].RelanceNumber
	})
	limit := s.MaxReminderRelances
	if limit < model.MinReminderRelances {
		limit = model.MinReminderRelances
	}
	if limit > model.MaxReminderRelances {
		limit = model.MaxReminderRelances
	}
	if len(relances) > limit {
		relances = relances[:limit]
	}
	return relances
}

// EvaluateReminder returns the relances due for appt at now: reminders are enabled, the
// appointment is still scheduled or confirmed, and the hours left before it start fall in
// [hoursBefore, hoursBefore+1). Whether the relance was already sent is not checked here.
func EvaluateReminder(now time.Time, appt model.Appointment, s model.AutomationSettings) []model.ReminderRelance {
	if !s.AutoReminderEnabled || !lifecycle.IsReminderEligible(appt.Status) {
		return nil
	}
	until := appt.StartTime.Sub(now)
	var due []model.ReminderRelance
	for _, r := range EffectiveRelances(s) {
		if r.HoursBefore <= 0 {
			continue
		}
		offset := time.Duration(r.HoursBefore) * time.Hour
		if until >= offset && until < offset+TriggerWindow {
			due = append(due, r)
		}
	}
	return due
}

func EvaluateNoShow(appt model.Appointment, s model.AutomationSettings) bool {
	return s.AutoNoShowMessageEnabled && appt.Status == model.StatusNoShow
}
