// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package budget

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Prometheus Metrics for Budget Decisions
// =============================================================================

var (
	// budgetChecksTotal counts limit checks by resource and outcome.
	// Labels: resource, status (allowed, rate_denied, cost_denied)
	budgetChecksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "liner",
		Subsystem: "budget",
		Name:      "checks_total",
		Help:      "Total budget limit checks by resource and outcome",
	}, []string{"resource", "status"})

	// budgetCostTotal tracks cumulative recorded cost units by resource.
	// Labels: resource
	budgetCostTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "liner",
		Subsystem: "budget",
		Name:      "cost_units_total",
		Help:      "Cumulative recorded cost units by resource",
	}, []string{"resource"})
)

// recordCheck records one limit-check outcome.
func recordCheck(resource, status string) {
	budgetChecksTotal.WithLabelValues(resource, status).Inc()
}

// recordCost records cost units consumed by a request.
func recordCost(resource string, units float64) {
	if units > 0 {
		budgetCostTotal.WithLabelValues(resource).Add(units)
	}
}
