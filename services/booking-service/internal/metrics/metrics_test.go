package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.ObserveSlots(0)
	m.ObserveSlots(4)
	m.ObserveBooking("created")
	m.ObserveTrigger("reminder", true)
	m.ObserveDispatch("reminder", "whatsapp", "sent")
	m.ObserveDispatch("reminder", "whatsapp", "sent")
	m.ObserveTick(0.2)

	if got := testutil.ToFloat64(m.dispatches.WithLabelValues("reminder", "whatsapp", "sent")); got != 2 {
		t.Fatalf("expected 2 dispatches, got %v", got)
	}
	if got := testutil.ToFloat64(m.slotComputations.WithLabelValues("empty")); got != 1 {
		t.Fatalf("expected 1 empty computation, got %v", got)
	}
}

func TestMetricsNilSafe(t *testing.T) {
	var m *Metrics
	m.ObserveSlots(1)
	m.ObserveBooking("conflict")
	m.ObserveTrigger("no_show", false)
	m.ObserveDispatch("no_show", "sms", "failed")
	m.ObserveTick(1)
}
