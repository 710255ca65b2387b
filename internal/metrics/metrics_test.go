package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestSchedulingMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewSchedulingMetrics(reg)

	m.ObserveBooking("success")
	m.ObserveBooking("success")
	m.ObserveBooking("slot_unavailable")
	m.ObserveTransition("cancelled")
	m.ObserveNotification("reminder")
	m.ObserveLockWait(0.01)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.bookingsTotal.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.bookingsTotal.WithLabelValues("slot_unavailable")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.transitionsTotal.WithLabelValues("cancelled")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.notificationsTotal.WithLabelValues("reminder")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.lockWait))
}

func TestSchedulingMetricsNilSafe(t *testing.T) {
	var m *SchedulingMetrics
	m.ObserveBooking("success")
	m.ObserveTransition("confirmed")
	m.ObserveNotification("confirmation")
	m.ObserveLockWait(0.1)
}
