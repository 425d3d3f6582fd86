package automation

import (
	"testing"
	"time"

	"github.com/md-rashed-zaman/apptdesk/services/booking-service/internal/model"
	"github.com/stretchr/testify/assert"
)

func TestRender(t *testing.T) {
	out := Render("Bonjour {client_name}, RDV le {appointment_date} à {appointment_time} chez {company_name} ({company_email}, {company_phone}) {reschedule_url} {unknown}", Vars{
		ClientName:      "Jeanne",
		AppointmentDate: "28/01/2026",
		AppointmentTime: "10:00",
		CompanyName:     "Salon Éclat",
		CompanyEmail:    "contact@eclat.fr",
		CompanyPhone:    "0102030405",
		RescheduleURL:   "https://x/r/salon-eclat?appointmentId=a1",
	})
	assert.Equal(t, "Bonjour Jeanne, RDV le 28/01/2026 à 10:00 chez Salon Éclat (contact@eclat.fr, 0102030405) https://x/r/salon-eclat?appointmentId=a1 {unknown}", out)
}

func TestRescheduleURL(t *testing.T) {
	assert.Equal(t, "https://x/r/salon-eclat?appointmentId=a1", RescheduleURL("https://x/r/{slugEntreprise}", "salon-eclat", "a1"))
	assert.Equal(t, "https://x/book?src=sms&appointmentId=a%2F1", RescheduleURL("https://x/book?src=sms", "ignored", "a/1"))
	assert.Equal(t, "", RescheduleURL("  ", "salon", "a1"))
}

func TestSlugify(t *testing.T) {
	cases := map[string]string{
		"Salon Éclat":           "salon-eclat",
		"  Coiffure & Beauté  ": "coiffure-beaute",
		"L'Atelier n°7":         "l-atelier-n-7",
		"":                      "",
	}
	for in, want := range cases {
		assert.Equal(t, want, Slugify(in), in)
	}
}

func TestCompanySlugPrefersStoredSlug(t *testing.T) {
	assert.Equal(t, "eclat", CompanySlug(model.CompanyProfile{Name: "Salon Éclat", Slug: "eclat"}))
	assert.Equal(t, "salon-eclat", CompanySlug(model.CompanyProfile{Name: "Salon Éclat"}))
}

func TestVarsForUsesCompanyTimezone(t *testing.T) {
	appt := model.Appointment{ClientName: "Jeanne", StartTime: time.Date(2026, 1, 28, 9, 0, 0, 0, time.UTC)}
	v := VarsFor(appt, model.CompanyProfile{Name: "Salon", Timezone: "Europe/Paris"}, "")
	assert.Equal(t, "28/01/2026", v.AppointmentDate)
	assert.Equal(t, "10:00", v.AppointmentTime)
}

func TestReminderContentLinkHandling(t *testing.T) {
	vars := Vars{ClientName: "Jeanne", RescheduleURL: "https://x/r/s?appointmentId=a1"}

	assert.Equal(t, "Bonjour Jeanne https://x/r/s?appointmentId=a1", reminderContent("Bonjour {client_name} {reschedule_url}", vars, true))
	assert.Equal(t, "Bonjour Jeanne\nhttps://x/r/s?appointmentId=a1", reminderContent("Bonjour {client_name}", vars, true))
	assert.Equal(t, "Bonjour Jeanne", reminderContent("Bonjour {client_name} {reschedule_url}", vars, false))
}
