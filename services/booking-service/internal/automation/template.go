package automation

import (
	"net/url"
	"strings"
	"unicode"

	"github.com/md-rashed-zaman/apptdesk/services/booking-service/internal/model"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const (
	DefaultReminderTemplate = "Bonjour {client_name}, nous vous rappelons votre rendez-vous du {appointment_date} à {appointment_time} chez {company_name}. Pour toute question : {company_phone}."
	DefaultNoShowTemplate   = "Bonjour {client_name}, nous ne vous avons pas vu à votre rendez-vous du {appointment_date} à {appointment_time}. Vous pouvez en reprendre un ici : {reschedule_url}"

	slugPlaceholder = "{slugEntreprise}"
	urlPlaceholder  = "{reschedule_url}"
)

// Vars are the values substituted into message templates.
type Vars struct {
	ClientName      string
	AppointmentDate string
	AppointmentTime string
	CompanyName     string
	CompanyEmail    string
	CompanyPhone    string
	RescheduleURL   string
}

// Render replaces every known placeholder in tpl. Unknown placeholders are left as is.
func Render(tpl string, v Vars) string {
	return strings.NewReplacer(
		"{client_name}", v.ClientName,
		"{appointment_date}", v.AppointmentDate,
		"{appointment_time}", v.AppointmentTime,
		"{company_name}", v.CompanyName,
		"{company_email}", v.CompanyEmail,
		"{company_phone}", v.CompanyPhone,
		urlPlaceholder, v.RescheduleURL,
	).Replace(tpl)
}

// VarsFor formats appt in the company's timezone (dd/MM/yyyy, HH:mm).
func VarsFor(appt model.Appointment, company model.CompanyProfile, rescheduleURL string) Vars {
	start := appt.StartTime.In(company.Location())
	return Vars{
		ClientName:      appt.ClientName,
		AppointmentDate: start.Format("02/01/2006"),
		AppointmentTime: start.Format("15:04"),
		CompanyName:     company.Name,
		CompanyEmail:    company.Email,
		CompanyPhone:    company.Phone,
		RescheduleURL:   rescheduleURL,
	}
}

// RescheduleURL fills {slugEntreprise} in base and appends the appointment id as the
// appointmentId query parameter. An empty base yields an empty URL.
func RescheduleURL(base, slug, appointmentID string) string {
	base = strings.TrimSpace(base)
	if base == "" {
		return ""
	}
	u := strings.ReplaceAll(base, slugPlaceholder, url.PathEscape(slug))
	sep := "?"
	if strings.Contains(u, "?") {
		sep = "&"
	}
	return u + sep + "appointmentId=" + url.QueryEscape(appointmentID)
}

// CompanySlug prefers the stored slug and otherwise derives one from the company name.
func CompanySlug(company model.CompanyProfile) string {
	if s := strings.TrimSpace(company.Slug); s != "" {
		return s
	}
	return Slugify(company.Name)
}

var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Slugify lowercases s, drops accents and joins the remaining letters and digits with '-'.
func Slugify(s string) string {
	folded, _, err := transform.String(stripMarks, s)
	if err != nil {
		folded = s
	}

	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(folded) {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			b.WriteRune(r)
			dash = false
		case b.Len() > 0 && !dash:
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

// reminderContent renders a reminder template, handling the reschedule link setting: when
// enabled the link is substituted, and appended on its own line if the template lacks the
// placeholder; when disabled the placeholder is blanked.
func reminderContent(tpl string, vars Vars, includeLink bool) string {
	if !includeLink {
		vars.RescheduleURL = ""
		return strings.TrimSpace(Render(tpl, vars))
	}
	out := Render(tpl, vars)
	if vars.RescheduleURL != "" && !strings.Contains(tpl, urlPlaceholder) {
		out += "\n" + vars.RescheduleURL
	}
	return out
}
