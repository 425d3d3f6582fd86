package lifecycle

import (
	"fmt"
	"strings"

	"github.com/md-rashed-zaman/apptdesk/services/booking-service/internal/model"
)

var statuses = []model.Status{
	model.StatusScheduled,
	model.StatusConfirmed,
	model.StatusCompleted,
	model.StatusCancelled,
	model.StatusNoShow,
	model.StatusRescheduleRequested,
}

func Valid(s model.Status) bool {
	for _, known := range statuses {
		if s == known {
			return true
		}
	}
	return false
}

func Parse(raw string) (model.Status, error) {
	s := model.Status(strings.ToLower(strings.TrimSpace(raw)))
	if !Valid(s) {
		return "", fmt.Errorf("%w: %q", model.ErrInvalidStatus, raw)
	}
	return s, nil
}

func IsReminderEligible(s model.Status) bool {
	return s == model.StatusScheduled || s == model.StatusConfirmed
}
