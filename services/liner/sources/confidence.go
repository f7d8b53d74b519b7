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

import "github.com/AleutianAI/liner/services/liner/datatypes"

// ConfidenceTable maps the shape of an accepted-record set to an aggregate
// confidence floor. Each rule is a floor, not a ceiling, so the result is
// monotonic in both record count and best tier.
type ConfidenceTable struct {
	// SingleSource applies when exactly one record was accepted.
	SingleSource datatypes.Confidence `yaml:"single_source"`

	// MultiSource applies when at least MultiSourceCount records were
	// accepted.
	MultiSource      datatypes.Confidence `yaml:"multi_source"`
	MultiSourceCount int                  `yaml:"multi_source_count"`

	// AnyVerified applies when any accepted record came from a
	// verified-tier provider.
	AnyVerified datatypes.Confidence `yaml:"any_verified"`
}

// DefaultConfidenceTable returns the standard aggregation rules.
func DefaultConfidenceTable() ConfidenceTable {
	return ConfidenceTable{
		SingleSource:     datatypes.ConfidenceLow,
		MultiSource:      datatypes.ConfidenceMedium,
		MultiSourceCount: 2,
		AnyVerified:      datatypes.ConfidenceHigh,
	}
}

// Aggregate derives the confidence label for a set of accepted records.
// Zero records is always ConfidenceNone.
func (t ConfidenceTable) Aggregate(records []datatypes.SourceRecord) datatypes.Confidence {
	if len(records) == 0 {
		return datatypes.ConfidenceNone
	}

	minMulti := t.MultiSourceCount
	if minMulti <= 0 {
		minMulti = 2
	}

	c := t.SingleSource
	if c == "" {
		c = datatypes.ConfidenceLow
	}
	if len(records) >= minMulti {
		c = c.Max(t.MultiSource)
	}
	for _, r := range records {
		if r.Tier == datatypes.ReliabilityVerified {
			c = c.Max(t.AnyVerified)
			break
		}
	}
	return c
}
