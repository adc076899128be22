package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ActiveLines = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dialer_active_lines",
		Help: "Number of lines currently in a non-idle state",
	})

	QueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "dialer_queue_depth",
		Help: "Contacts waiting in the live dial queue",
	}, []string{"campaign_id"})

	DialsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dialer_dials_total",
		Help: "Total outbound dial attempts placed",
	}, []string{"campaign_id"})

	ConnectsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dialer_connects_total",
		Help: "Total calls bridged to an agent",
	}, []string{"campaign_id"})

	AgentBusyRejects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dialer_agent_busy_rejects_total",
		Help: "Human answers rejected because no agent slot was free",
	})

	ComplianceSkips = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dialer_compliance_skips_total",
		Help: "Queue entries skipped by the compliance filter",
	})

	WebhookAuthFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dialer_webhook_auth_failures_total",
		Help: "Provider callbacks rejected by token verification",
	})

	OperationalAlerts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dialer_operational_alerts_total",
		Help: "Non-fatal inconsistencies surfaced to operators",
	})
)
