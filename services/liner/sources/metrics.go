// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package sources

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// sourceFetchesTotal counts per-provider fetch outcomes.
// Labels: provider, outcome (accepted, rejected, not_found, timeout,
// error, unavailable)
var sourceFetchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "liner",
	Subsystem: "sources",
	Name:      "fetches_total",
	Help:      "Total provider fetches by provider and outcome",
}, []string{"provider", "outcome"})

// recordFetch records one provider fetch outcome.
func recordFetch(provider, outcome string) {
	sourceFetchesTotal.WithLabelValues(provider, outcome).Inc()
}
