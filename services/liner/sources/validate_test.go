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
	"testing"

	"github.com/AleutianAI/liner/services/liner/datatypes"
)

func freeTextRecord(text string) *datatypes.SourceRecord {
	return &datatypes.SourceRecord{Fields: datatypes.SourceFields{FreeText: text}}
}

func structuredRecord(title, artist string) *datatypes.SourceRecord {
	return &datatypes.SourceRecord{Fields: datatypes.SourceFields{Title: title, Artist: artist}}
}

func TestValidate_FreeTextAccepted(t *testing.T) {
	v := NewValidator()
	q := datatypes.NewQuery("Diễm Xưa", "Khánh Ly")

	rec := freeTextRecord(
		"Diem Xua is a song composed by Trinh Cong Son and famously performed by Khanh Ly in 1960s Saigon.")
	score, ok := v.Validate(q, rec)
	if !ok {
		t.Fatal("relevant free text should be accepted")
	}
	if score <= 0 || score > 1 {
		t.Errorf("score = %v, want (0,1]", score)
	}
}

func TestValidate_FreeTextRejectedWithoutVocabulary(t *testing.T) {
	v := NewValidator()
	q := datatypes.NewQuery("Diễm Xưa", "")

	// Title present but nothing marks the text as being about music.
	rec := freeTextRecord("Diem Xua is a popular cafe in district three.")
	if _, ok := v.Validate(q, rec); ok {
		t.Error("text without any domain vocabulary term should be rejected")
	}
}

func TestValidate_FreeTextRejectedWithoutTitle(t *testing.T) {
	v := NewValidator()
	q := datatypes.NewQuery("Thành Phố Buồn", "")

	rec := freeTextRecord("A beautiful song recorded in 1970 by a famous singer.")
	if _, ok := v.Validate(q, rec); ok {
		t.Error("text that never mentions the title should be rejected")
	}
}

func TestValidate_FreeTextSignificantWordMajority(t *testing.T) {
	v := NewValidator()
	q := datatypes.NewQuery("Thành Phố Buồn Lắm", "")

	// Title not verbatim: 3 of the 4 significant words appear.
	rec := freeTextRecord("The song Thanh Pho Buon remains a classic of Vietnamese music.")
	if _, ok := v.Validate(q, rec); !ok {
		t.Error("majority of significant title words should be enough")
	}
}

func TestValidate_FreeTextArtistMismatchPenalizesStrongTitle(t *testing.T) {
	v := NewValidator()
	q := datatypes.NewQuery("Diễm Xưa", "Khánh Ly")

	rec := freeTextRecord("Diem Xua is a song from the 1960s, covered by many artists.")
	score, ok := v.Validate(q, rec)
	if !ok {
		t.Fatal("strong title match should survive a missing artist")
	}
	if score >= strongTitleScore {
		t.Errorf("score = %v, want penalized below %v", score, strongTitleScore)
	}
}

func TestValidate_StructuredExactMatch(t *testing.T) {
	v := NewValidator()
	q := datatypes.NewQuery("Diễm Xưa", "Khánh Ly")

	score, ok := v.Validate(q, structuredRecord("Diem Xua", "Khanh Ly"))
	if !ok || score != 1.0 {
		t.Errorf("exact structured match: score=%v ok=%v, want 1.0 true", score, ok)
	}
}

func TestValidate_StructuredArtistMismatchPenalty(t *testing.T) {
	v := NewValidator()
	q := datatypes.NewQuery("Diễm Xưa", "Khánh Ly")

	score, ok := v.Validate(q, structuredRecord("Diem Xua", "Someone Else"))
	if !ok {
		t.Fatal("artist mismatch must not reject a structured candidate")
	}
	if score != defaultArtistPenalty {
		t.Errorf("score = %v, want %v", score, defaultArtistPenalty)
	}
}

func TestValidate_StructuredLowOverlapRejected(t *testing.T) {
	v := NewValidator()
	q := datatypes.NewQuery("Riêng Một Góc Trời", "")

	if _, ok := v.Validate(q, structuredRecord("Completely Different Name", "")); ok {
		t.Error("unrelated structured title should be rejected")
	}
}

func TestValidate_NilAndEmpty(t *testing.T) {
	v := NewValidator()
	q := datatypes.NewQuery("Diễm Xưa", "")

	if _, ok := v.Validate(q, nil); ok {
		t.Error("nil record must be rejected")
	}
	if _, ok := v.Validate(datatypes.Query{}, freeTextRecord("a song")); ok {
		t.Error("empty query must be rejected")
	}
	if _, ok := v.Validate(q, freeTextRecord("")); ok {
		t.Error("empty free text must be rejected")
	}
}
