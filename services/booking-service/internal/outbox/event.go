package outbox

// Event is the domain event envelope written to the outbox table.
// The Kafka topic name equals EventType (one topic per event).
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

const (
	EventAppointmentBooked        = "booking.appointment.booked.v1"
	EventAppointmentStatusChanged = "booking.appointment.status_changed.v1"
	EventMessageDispatched        = "automation.message.dispatched.v1"
)
