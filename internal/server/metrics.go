package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

type metrics struct {
	checks    *prometheus.CounterVec
	invalid   *prometheus.CounterVec
	findings  *prometheus.CounterVec
	checkTime prometheus.Histogram
	requests  *prometheus.CounterVec
}

// newMetrics registers the server's collectors on reg.
func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		checks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "corstester",
			Name:      "checks_total",
			Help:      "CORS checks by outcome (allowed, blocked, error).",
		}, []string{"result"}),
		invalid: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "corstester",
			Name:      "validation_failures_total",
			Help:      "Rejected check requests by offending field.",
		}, []string{"field"}),
		findings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "corstester",
			Name:      "findings_total",
			Help:      "Findings reported by checks, by severity.",
		}, []string{"severity"}),
		checkTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "corstester",
			Name:      "check_duration_seconds",
			Help:      "Time spent probing the target for one check.",
			Buckets:   prometheus.DefBuckets,
		}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "corstester",
			Name:      "http_requests_total",
			Help:      "API requests by route and status code.",
		}, []string{"route", "code"}),
	}
	reg.MustRegister(
		m.checks, m.invalid, m.findings, m.checkTime, m.requests,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}
