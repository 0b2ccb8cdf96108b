// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package fetch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	fetchesInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "folio",
		Subsystem: "fetch",
		Name:      "in_flight",
		Help:      "Registered fetches that have not finished",
	})

	// Labels: result (committed, cancelled, stale, error)
	fetchResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "folio",
		Subsystem: "fetch",
		Name:      "results_total",
		Help:      "Fetch commits by result",
	}, []string{"result"})

	fetchesCancelled = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "folio",
		Subsystem: "fetch",
		Name:      "cancelled_total",
		Help:      "Fetches pre-empted by optimistic writes",
	})

	fetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "folio",
		Subsystem: "fetch",
		Name:      "duration_seconds",
		Help:      "Time from Begin to Done",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	})
)
