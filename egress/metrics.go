// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package egress

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the daemon's Prometheus collectors on a private
// registry, exposed via GET /metrics on the control listener.
type Metrics struct {
	registry *prometheus.Registry

	// Decisions counts admissions by posture and decision.
	Decisions *prometheus.CounterVec

	// Bytes counts forwarded bytes by direction ("in" = upstream to
	// caller, "out" = caller to upstream).
	Bytes *prometheus.CounterVec

	// SubscriberDrops counts events lost to subscriber queue overflow.
	SubscriberDrops prometheus.Counter

	// Subscribers tracks live event-stream subscriptions.
	Subscribers prometheus.Gauge
}

// NewMetrics creates and registers the collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "warden",
			Subsystem: "egress",
			Name:      "decisions_total",
			Help:      "Egress admission decisions by posture and decision.",
		}, []string{"posture", "decision"}),
		Bytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "warden",
			Subsystem: "egress",
			Name:      "bytes_total",
			Help:      "Bytes forwarded through the proxy by direction.",
		}, []string{"direction"}),
		SubscriberDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "warden",
			Subsystem: "events",
			Name:      "subscriber_drops_total",
			Help:      "Events dropped from subscriber queues on overflow.",
		}),
		Subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "warden",
			Subsystem: "events",
			Name:      "subscribers",
			Help:      "Live event-stream subscriptions.",
		}),
	}
	m.registry.MustRegister(m.Decisions, m.Bytes, m.SubscriberDrops, m.Subscribers)
	return m
}

// Handler returns the scrape handler for the private registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
