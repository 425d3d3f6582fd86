package model

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

type Channel string

const (
	ChannelEmail    Channel = "email"
	ChannelSMS      Channel = "sms"
	ChannelWhatsApp Channel = "whatsapp"
)

func (c Channel) Valid() bool {
	switch c {
	case ChannelEmail, ChannelSMS, ChannelWhatsApp:
		return true
	}
	return false
}

const (
	DefaultWorkStart           = "09:00"
	DefaultWorkEnd             = "18:00"
	DefaultReminderOffsetHours = 24
	MinReminderRelances        = 1
	MaxReminderRelances        = 3

	// MaxReminderHoursBefore bounds how far ahead the scheduler scans for reminders.
	MaxReminderHoursBefore = 720
)

// Clock is a time of day stored as "HH:MM".
type Clock string

// Minutes returns minutes since midnight.
func (c Clock) Minutes() (int, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(string(c)))
	if err != nil {
		return 0, fmt.Errorf("invalid clock %q: %w", string(c), err)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// On places the clock on the calendar day of day, in day's location.
func (c Clock) On(day time.Time) (time.Time, error) {
	mins, err := c.Minutes()
	if err != nil {
		return time.Time{}, err
	}
	y, m, d := day.Date()
	return time.Date(y, m, d, mins/60, mins%60, 0, 0, day.Location()), nil
}

type Break struct {
	StartTime Clock `json:"startTime"`
	EndTime   Clock `json:"endTime"`
}

type ReminderRelance struct {
	RelanceNumber   int    `json:"relanceNumber"`
	HoursBefore     int    `json:"hoursBefore"`
	ContentTemplate string `json:"contentTemplate"`
}

// AutomationSettings is the automation section of a business settings document.
type AutomationSettings struct {
	AutoReminderEnabled             bool              `json:"autoReminderEnabled"`
	AutoReminderOffsetHours         int               `json:"autoReminderOffsetHours"`
	IncludeRescheduleLinkInReminder bool              `json:"includeRescheduleLinkInReminder"`
	AutoNoShowMessageEnabled        bool              `json:"autoNoShowMessageEnabled"`
	RescheduleBaseURL               string            `json:"rescheduleBaseUrl"`
	MaxReminderRelances             int               `json:"maxReminderRelances"`
	ReminderRelances                []ReminderRelance `json:"reminderRelances"`
	ReminderTemplate                string            `json:"reminderTemplate,omitempty"`
	NoShowTemplate                  string            `json:"noShowTemplate,omitempty"`
	Channel                         Channel           `json:"channel,omitempty"`
	WorkStartTime                   Clock             `json:"workStartTime"`
	WorkEndTime                     Clock             `json:"workEndTime"`
	BreaksEnabled                   bool              `json:"breaksEnabled"`
	Breaks                          []Break           `json:"breaks"`
}

// CompanyProfile is the company section of the settings document, used for message templates.
type CompanyProfile struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Slug     string `json:"slug,omitempty"`
	Timezone string `json:"timezone,omitempty"`
}

// Location resolves the company timezone, falling back to UTC.
func (p CompanyProfile) Location() *time.Location {
	if p.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(p.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Settings is the slice of the business settings document this service reads and writes.
type Settings struct {
	BusinessID string             `json:"-"`
	Automation AutomationSettings `json:"automation"`
	Company    CompanyProfile     `json:"company"`
}

// Normalize fills defaults, clamps the relance count to 1..3 and orders relances by number.
func (s *AutomationSettings) Normalize() {
	if s.AutoReminderOffsetHours <= 0 {
		s.AutoReminderOffsetHours = DefaultReminderOffsetHours
	}
	if s.MaxReminderRelances < MinReminderRelances {
		s.MaxReminderRelances = MinReminderRelances
	}
	if s.MaxReminderRelances > MaxReminderRelances {
		s.MaxReminderRelances = MaxReminderRelances
	}
	if !s.Channel.Valid() {
		s.Channel = ChannelWhatsApp
	}
	if strings.TrimSpace(string(s.WorkStartTime)) == "" {
		s.WorkStartTime = DefaultWorkStart
	}
	if strings.TrimSpace(string(s.WorkEndTime)) == "" {
		s.WorkEndTime = DefaultWorkEnd
	}
	sort.SliceStable(s.ReminderRelances, func(i, j int) bool {
		return s.ReminderRelances[i].RelanceNumber < s.ReminderRelances[j].RelanceNumber
	})
}

// Validate rejects settings the slot calculator or scheduler cannot work with.
func (s AutomationSettings) Validate() error {
	start, err := s.WorkStartTime.Minutes()
	if err != nil {
		return fmt.Errorf("%w: workStartTime: %v", ErrInvalidInput, err)
	}
	end, err := s.WorkEndTime.Minutes()
	if err != nil {
		return fmt.Errorf("%w: workEndTime: %v", ErrInvalidInput, err)
	}
	if end <= start {
		return fmt.Errorf("%w: workEndTime must be after workStartTime", ErrInvalidInput)
	}
	for i, b := range s.Breaks {
		bs, err := b.StartTime.Minutes()
		if err != nil {
			return fmt.Errorf("%w: breaks[%d].startTime: %v", ErrInvalidInput, i, err)
		}
		be, err := b.EndTime.Minutes()
		if err != nil {
			return fmt.Errorf("%w: breaks[%d].endTime: %v", ErrInvalidInput, i, err)
		}
		if be <= bs {
			return fmt.Errorf("%w: breaks[%d] ends before it starts", ErrInvalidInput, i)
		}
	}
	if s.AutoReminderOffsetHours > MaxReminderHoursBefore {
		return fmt.Errorf("%w: autoReminderOffsetHours must be at most %d", ErrInvalidInput, MaxReminderHoursBefore)
	}
	seen := map[int]bool{}
	for _, r := range s.ReminderRelances {
		if r.RelanceNumber < 1 || r.RelanceNumber > MaxReminderRelances {
			return fmt.Errorf("%w: relanceNumber %d out of range", ErrInvalidInput, r.RelanceNumber)
		}
		if r.HoursBefore <= 0 || r.HoursBefore > MaxReminderHoursBefore {
			return fmt.Errorf("%w: relance %d hoursBefore must be within 1..%d", ErrInvalidInput, r.RelanceNumber, MaxReminderHoursBefore)
		}
		if seen[r.RelanceNumber] {
			return fmt.Errorf("%w: duplicate relance %d", ErrInvalidInput, r.RelanceNumber)
		}
		seen[r.RelanceNumber] = true
	}
	return nil
}

// DefaultAutomationSettings is what a business gets before it saves anything.
func DefaultAutomationSettings() AutomationSettings {
	s := AutomationSettings{
		AutoReminderOffsetHours: DefaultReminderOffsetHours,
		MaxReminderRelances:     1,
	}
	s.Normalize()
	return s
}
