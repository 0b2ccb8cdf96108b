// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package mutation

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Labels: intent, outcome (committed, rolled_back, rejected)
	mutationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "folio",
		Subsystem: "mutation",
		Name:      "total",
		Help:      "Optimistic mutations by intent and outcome",
	}, []string{"intent", "outcome"})

	// Labels: intent
	mutationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "folio",
		Subsystem: "mutation",
		Name:      "duration_seconds",
		Help:      "Time from optimistic apply to settle",
		Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	}, []string{"intent"})
)
