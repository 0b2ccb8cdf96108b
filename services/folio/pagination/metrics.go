// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package pagination

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Labels: kind (first, more, revalidate)
	pagesLoaded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "folio",
		Subsystem: "pagination",
		Name:      "pages_loaded_total",
		Help:      "Pages committed to lists",
	}, []string{"kind"})

	// Labels: kind (first, more, revalidate)
	loadsCoalesced = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "folio",
		Subsystem: "pagination",
		Name:      "loads_coalesced_total",
		Help:      "Load calls that joined an in-flight request",
	}, []string{"kind"})
)
