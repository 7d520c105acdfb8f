package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the outreach engine
type Metrics struct {
	EmailsSentTotal   prometheus.Counter
	EmailsFailedTotal prometheus.Counter
	OpensTotal        prometheus.Counter
	RepliesTotal      prometheus.Counter
	BatchesTotal      prometheus.Counter

	SMTPReconnectsTotal prometheus.Counter
	IMAPReconnectsTotal prometheus.Counter

	registry *prometheus.Registry
}

// New creates a new Metrics instance with all metrics registered
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		EmailsSentTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "outreach_emails_sent_total",
			Help: "Total number of successfully dispatched emails",
		}),
		EmailsFailedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "outreach_emails_failed_total",
			Help: "Total number of failed dispatch attempts",
		}),
		OpensTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "outreach_opens_total",
			Help: "Total number of first-time tracking pixel hits",
		}),
		RepliesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "outreach_replies_total",
			Help: "Total number of first-time reply correlations",
		}),
		BatchesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "outreach_batches_total",
			Help: "Total number of dispatch batches executed",
		}),
		SMTPReconnectsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "outreach_smtp_reconnects_total",
			Help: "Total number of SMTP session rebuilds",
		}),
		IMAPReconnectsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "outreach_imap_reconnects_total",
			Help: "Total number of IMAP session rebuilds",
		}),
		registry: reg,
	}

	reg.MustRegister(
		m.EmailsSentTotal,
		m.EmailsFailedTotal,
		m.OpensTotal,
		m.RepliesTotal,
		m.BatchesTotal,
		m.SMTPReconnectsTotal,
		m.IMAPReconnectsTotal,
	)

	return m
}

// Handler returns an HTTP handler serving the registry
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
