package template

import "testing"

const sectionedDoc = `---
title: sample
---
# Architecture

<!-- SECTION: overview -->
old overview text
<!-- END SECTION: overview -->

<!-- SECTION: risks -->
old risks text
<!-- END SECTION: risks -->
`

func TestReplaceSectionSwapsBodyPreservingMarkers(t *testing.T) {
	out, err := ReplaceSection(sectionedDoc, "overview", "new overview text")
	if err != nil {
		t.Fatalf("ReplaceSection: %v", err)
	}
	got, err := ExtractSection(out, "overview")
	if err != nil {
		t.Fatalf("ExtractSection: %v", err)
	}
	if got != "new overview text" {
		t.Fatalf("got %q", got)
	}
	// the other section is untouched
	other, err := ExtractSection(out, "risks")
	if err != nil {
		t.Fatalf("ExtractSection risks: %v", err)
	}
	if other != "old risks text" {
		t.Fatalf("got %q", other)
	}
}

func TestReplaceSectionIsIdempotent(t *testing.T) {
	once, err := ReplaceSection(sectionedDoc, "overview", "v1")
	if err != nil {
		t.Fatal(err)
	}
	twice, err := ReplaceSection(once, "overview", "v2")
	if err != nil {
		t.Fatal(err)
	}
	got, err := ExtractSection(twice, "overview")
	if err != nil {
		t.Fatal(err)
	}
	if got != "v2" {
		t.Fatalf("got %q", got)
	}
}

func TestReplaceSectionMissingStartMarker(t *testing.T) {
	_, err := ReplaceSection(sectionedDoc, "nonexistent", "x")
	if err == nil {
		t.Fatal("expected error for missing start marker")
	}
}

func TestReplaceSectionMissingEndMarker(t *testing.T) {
	doc := "<!-- SECTION: broken -->\nbody with no end"
	_, err := ReplaceSection(doc, "broken", "x")
	if err == nil {
		t.Fatal("expected error for missing end marker")
	}
}

func TestExtractSectionMissingStartMarker(t *testing.T) {
	_, err := ExtractSection(sectionedDoc, "nonexistent")
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestExtractSectionTrimsSurroundingNewlines(t *testing.T) {
	got, err := ExtractSection(sectionedDoc, "risks")
	if err != nil {
		t.Fatal(err)
	}
	if got != "old risks text" {
		t.Fatalf("got %q", got)
	}
}

func TestValidSectionName(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"overview", true},
		{"risk-assessment", true},
		{"section2", true},
		{"Overview", false},
		{"risk_assessment", false},
		{"", false},
	}
	for _, c := range cases {
		if got := ValidSectionName(c.in); got != c.want {
			t.Errorf("ValidSectionName(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}
