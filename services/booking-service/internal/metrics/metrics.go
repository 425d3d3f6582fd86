package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics exposes counters/histograms for slot computation, booking and automation.
type Metrics struct {
	slotComputations *prometheus.CounterVec
	bookings         *prometheus.CounterVec
	triggers         *prometheus.CounterVec
	dispatches       *prometheus.CounterVec
	tickDuration     prometheus.Histogram
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		slotComputations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "apptdesk",
			Subsystem: "booking",
			Name:      "slot_computations_total",
			Help:      "Slot computations, labelled by whether any slot was found",
		}, []string{"result"}),
		bookings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "apptdesk",
			Subsystem: "booking",
			Name:      "bookings_total",
			Help:      "Booking attempts by outcome",
		}, []string{"outcome"}),
		triggers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "apptdesk",
			Subsystem: "automation",
			Name:      "trigger_fired_total",
			Help:      "Automation triggers that evaluated true, by claim result",
		}, []string{"trigger", "claimed"}),
		dispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "apptdesk",
			Subsystem: "automation",
			Name:      "dispatch_total",
			Help:      "Automated message dispatches by channel and status",
		}, []string{"trigger", "channel", "status"}),
		tickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "apptdesk",
			Subsystem: "automation",
			Name:      "tick_duration_seconds",
			Help:      "Duration of one automation scan",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.slotComputations, m.bookings, m.triggers, m.dispatches, m.tickDuration)
	return m
}

func (m *Metrics) ObserveSlots(count int) {
	if m == nil {
		return
	}
	result := "found"
	if count == 0 {
		result = "empty"
	}
	m.slotComputations.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveBooking(outcome string) {
	if m == nil {
		return
	}
	m.bookings.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveTrigger(trigger string, claimed bool) {
	if m == nil {
		return
	}
	label := "false"
	if claimed {
		label = "true"
	}
	m.triggers.WithLabelValues(trigger, label).Inc()
}

func (m *Metrics) ObserveDispatch(trigger, channel, status string) {
	if m == nil {
		return
	}
	m.dispatches.WithLabelValues(trigger, channel, status).Inc()
}

func (m *Metrics) ObserveTick(seconds float64) {
	if m == nil {
		return
	}
	m.tickDuration.Observe(seconds)
}
