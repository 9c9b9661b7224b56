// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package jobs

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts job lifecycle events. A nil *Metrics records nothing.
type Metrics struct {
	Started  *prometheus.CounterVec
	Finished *prometheus.CounterVec
	Running  *prometheus.GaugeVec
	Duration *prometheus.HistogramVec
}

// NewMetrics creates the job metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Started: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dangercat",
			Subsystem: "jobs",
			Name:      "started_total",
			Help:      "Number of jobs started.",
		}, []string{"kind"}),
		Finished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dangercat",
			Subsystem: "jobs",
			Name:      "finished_total",
			Help:      "Number of jobs that left their slot, by outcome.",
		}, []string{"kind", "outcome"}),
		Running: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "dangercat",
			Subsystem: "jobs",
			Name:      "workers_running",
			Help:      "Number of worker goroutines still computing, including abandoned ones.",
		}, []string{"kind"}),
		Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "dangercat",
			Subsystem: "jobs",
			Name:      "duration_seconds",
			Help:      "Wall time spent in job workers.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}, []string{"kind"}),
	}

	if reg != nil {
		reg.MustRegister(m.Started, m.Finished, m.Running, m.Duration)
	}
	return m
}

func (m *Metrics) started(kind Kind) {
	if m == nil {
		return
	}
	m.Started.WithLabelValues(kind.String()).Inc()
	m.Running.WithLabelValues(kind.String()).Inc()
}

func (m *Metrics) stopped(kind Kind, since time.Time) {
	if m == nil {
		return
	}
	m.Running.WithLabelValues(kind.String()).Dec()
	m.Duration.WithLabelValues(kind.String()).Observe(time.Since(since).Seconds())
}

func (m *Metrics) finished(kind Kind, outcome string) {
	if m == nil {
		return
	}
	m.Finished.WithLabelValues(kind.String(), outcome).Inc()
}
