// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package catalog

import (
	"testing"

	"github.com/AleutianAI/liner/services/liner/datatypes"
)

func testEntries() []*Entry {
	return []*Entry{
		{
			Title:      "Diễm Xưa",
			Artist:     "Khánh Ly",
			Aliases:    []string{"Diem Xua", "Utsukushii Mukashi"},
			Confidence: datatypes.ConfidenceVerified,
			Narrative:  "A landmark Trịnh Công Sơn composition.",
		},
		{
			Title:      "Thành Phố Buồn",
			Artist:     "Chế Linh",
			Confidence: datatypes.ConfidenceVerified,
			Narrative:  "Lam Phương's Đà Lạt elegy.",
		},
		{
			Title:      "Autumn Leaves",
			Artist:     "Nat King Cole",
			Aliases:    []string{"Les Feuilles mortes"},
			Confidence: datatypes.ConfidenceHigh,
			Narrative:  "A jazz standard.",
		},
	}
}

func TestCatalog_Search_ExactNormalized(t *testing.T) {
	c := New(testEntries())

	// Surface spelling and diacritics must not matter.
	for _, title := range []string{"Diễm Xưa", "diem xua", "DIEM XUA"} {
		e, ok := c.Search(title, "Khánh Ly")
		if !ok {
			t.Fatalf("Search(%q) should hit", title)
		}
		if e.Title != "Diễm Xưa" {
			t.Errorf("Search(%q) = %q", title, e.Title)
		}
	}
}

func TestCatalog_Search_Alias(t *testing.T) {
	c := New(testEntries())
	e, ok := c.Search("Utsukushii Mukashi", "")
	if !ok || e.Title != "Diễm Xưa" {
		t.Fatalf("alias search = %v, %v", e, ok)
	}
}

func TestCatalog_Search_FuzzyThreshold(t *testing.T) {
	c := New(testEntries())

	// Partial title with matching artist should clear the threshold.
	if _, ok := c.Search("Thành Phố", "Chế Linh"); !ok {
		t.Error("partial title with artist should match")
	}

	// Unrelated query must miss.
	if e, ok := c.Search("Bohemian Rhapsody", "Queen"); ok {
		t.Errorf("unrelated query matched %q", e.Title)
	}
}

func TestCatalog_Search_EmptyTitle(t *testing.T) {
	c := New(testEntries())
	if _, ok := c.Search("", "Khánh Ly"); ok {
		t.Error("empty title should not match")
	}
	if _, ok := c.Search("!!!", ""); ok {
		t.Error("title that normalizes to empty should not match")
	}
}

func TestCatalog_Canonical(t *testing.T) {
	c := New(testEntries())

	title, artist, ok := c.Canonical(datatypes.NewQuery("Les Feuilles mortes", ""))
	if !ok || title != "Autumn Leaves" || artist != "Nat King Cole" {
		t.Errorf("Canonical(alias) = %q/%q/%v", title, artist, ok)
	}

	// Exact title without artist canonicalizes to the curated creator.
	title, artist, ok = c.Canonical(datatypes.NewQuery("thanh pho buon", ""))
	if !ok || artist != "Chế Linh" {
		t.Errorf("Canonical(title) = %q/%q/%v", title, artist, ok)
	}

	if _, _, ok := c.Canonical(datatypes.NewQuery("no such song", "")); ok {
		t.Error("unknown query should not canonicalize")
	}
}

func TestCatalog_ReplaceAll(t *testing.T) {
	c := New(testEntries())
	if c.Len() != 3 {
		t.Fatalf("Len = %d", c.Len())
	}
	c.ReplaceAll([]*Entry{{Title: "Only One", Confidence: datatypes.ConfidenceVerified, Narrative: "x"}})
	if c.Len() != 1 {
		t.Fatalf("Len after replace = %d", c.Len())
	}
	if _, ok := c.Search("Diễm Xưa", ""); ok {
		t.Error("old entries should be gone after ReplaceAll")
	}
}

func TestLoadEmbedded(t *testing.T) {
	c, err := LoadEmbedded()
	if err != nil {
		t.Fatalf("LoadEmbedded: %v", err)
	}
	if c.Len() == 0 {
		t.Fatal("embedded catalog is empty")
	}
	e, ok := c.Search("Diễm Xưa", "Khánh Ly")
	if !ok {
		t.Fatal("embedded catalog should contain Diễm Xưa")
	}
	if e.Confidence != datatypes.ConfidenceVerified {
		t.Errorf("Diễm Xưa confidence = %s", e.Confidence)
	}
	if len(e.Citations) == 0 {
		t.Error("verified entry should carry citations")
	}
}
