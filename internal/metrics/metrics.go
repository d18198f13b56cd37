package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	EmailsSent = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "emails_sent_total",
			Help: "Total emails sent",
		},
	)

	EmailFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "email_failures_total",
			Help: "Total emails that exhausted their retries",
		},
	)

	EmailRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "email_retries_total",
			Help: "Total delivery retries",
		},
	)

	JobsStarted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "send_jobs_started_total",
			Help: "Total send jobs registered",
		},
	)

	JobsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "send_jobs_active",
			Help: "Send jobs currently running",
		},
	)

	CampaignFirings = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campaign_firings_total",
			Help: "Scheduled campaign firings by outcome",
		},
		[]string{"outcome"},
	)
)

func Init() {
	prometheus.MustRegister(EmailsSent)
	prometheus.MustRegister(EmailFailures)
	prometheus.MustRegister(EmailRetries)
	prometheus.MustRegister(JobsStarted)
	prometheus.MustRegister(JobsActive)
	prometheus.MustRegister(CampaignFirings)
}
