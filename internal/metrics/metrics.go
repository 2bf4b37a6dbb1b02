package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	scansTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "checkin_scans_total",
		Help: "Total number of tag scans by location, outcome and reason",
	}, []string{"location", "outcome", "reason"})
	registrationsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "checkin_registrations_total",
		Help: "Total number of attendees registered",
	})
	tagBindingsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "checkin_tag_bindings_total",
		Help: "Total number of tags bound to registrations",
	}, []string{"mode"})
	alertsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "checkin_alerts_sent_total",
		Help: "Total number of staff push alerts by result",
	}, []string{"result"})
)

// Register registers Prometheus collectors. Call once at startup.
func Register(registry prometheus.Registerer) {
	registry.MustRegister(scansTotal, registrationsTotal, tagBindingsTotal, alertsTotal)
}

// IncScan counts one scan outcome. reason is empty for allowed scans.
func IncScan(location, outcome, reason string) {
	scansTotal.WithLabelValues(location, outcome, reason).Inc()
}

// IncRegistration increments the registrations counter.
func IncRegistration() { registrationsTotal.Inc() }

// IncTagBinding increments the bindings counter for the given mode.
func IncTagBinding(mode string) { tagBindingsTotal.WithLabelValues(mode).Inc() }

// IncAlert counts one push alert delivery attempt.
func IncAlert(result string) { alertsTotal.WithLabelValues(result).Inc() }
