package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// DispatchMetrics records delivery outcomes per destination.
type DispatchMetrics struct {
	sent         *prometheus.CounterVec
	rescheduled  *prometheus.CounterVec
	deadLettered *prometheus.CounterVec
	sendDuration *prometheus.HistogramVec
	failClosed   prometheus.Counter
}

// NewDispatchMetrics registers the dispatch worker metrics on the provided registerer.
func NewDispatchMetrics(reg prometheus.Registerer) *DispatchMetrics {
	if reg == nil {
		return &DispatchMetrics{}
	}
	sent := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_sent_total",
		Help: "Jobs acknowledged by the destination platform.",
	}, []string{"destination"})
	rescheduled := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_rescheduled_total",
		Help: "Jobs pushed back into the queue, by reason.",
	}, []string{"destination", "reason"})
	deadLettered := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_dead_letter_total",
		Help: "Jobs parked for operator attention, by error kind.",
	}, []string{"destination", "kind"})
	sendDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dispatch_send_duration_seconds",
		Help:    "Adapter call duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"destination"})
	failClosed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dispatch_fail_closed_total",
		Help: "Cycles aborted because the coordination cache was unreachable.",
	})
	reg.MustRegister(sent, rescheduled, deadLettered, sendDuration, failClosed)
	return &DispatchMetrics{
		sent:         sent,
		rescheduled:  rescheduled,
		deadLettered: deadLettered,
		sendDuration: sendDuration,
		failClosed:   failClosed,
	}
}

// IncSent increments the sent counter for the destination.
func (d *DispatchMetrics) IncSent(destination string) {
	if d == nil || d.sent == nil {
		return
	}
	d.sent.WithLabelValues(normalizeLabel(destination)).Inc()
}

// IncRescheduled increments the rescheduled counter. Reason distinguishes
// flow control (rate_limit, claim_contention) from real failures (backoff).
func (d *DispatchMetrics) IncRescheduled(destination, reason string) {
	if d == nil || d.rescheduled == nil {
		return
	}
	d.rescheduled.WithLabelValues(normalizeLabel(destination), normalizeLabel(reason)).Inc()
}

// IncDeadLettered increments the dead-letter counter for the error kind.
func (d *DispatchMetrics) IncDeadLettered(destination, kind string) {
	if d == nil || d.deadLettered == nil {
		return
	}
	d.deadLettered.WithLabelValues(normalizeLabel(destination), normalizeLabel(kind)).Inc()
}

// ObserveSendDuration records one adapter call duration.
func (d *DispatchMetrics) ObserveSendDuration(destination string, duration time.Duration) {
	if d == nil || d.sendDuration == nil {
		return
	}
	d.sendDuration.WithLabelValues(normalizeLabel(destination)).Observe(duration.Seconds())
}

// IncFailClosed records a cycle aborted on coordination-cache failure.
func (d *DispatchMetrics) IncFailClosed() {
	if d == nil || d.failClosed == nil {
		return
	}
	d.failClosed.Inc()
}
