package template

import "testing"

const validArchitectureDoc = `---
title: sample
---
# Architecture

{{project_name}} — generated {{date}} by {{user_name}}

<!-- SECTION: overview -->
text
<!-- END SECTION: overview -->
`

func TestValidateStructureValidDoc(t *testing.T) {
	result := ValidateStructure(validArchitectureDoc, []string{"overview"})
	if !result.Valid {
		t.Fatalf("expected valid, got errors: %v", result.Errors)
	}
	if len(result.Warnings) != 0 {
		t.Fatalf("expected no warnings, got: %v", result.Warnings)
	}
}

func TestValidateStructureMissingFrontmatterStart(t *testing.T) {
	doc := "# Architecture\n<!-- SECTION: overview -->\nx\n<!-- END SECTION: overview -->\n"
	result := ValidateStructure(doc, []string{"overview"})
	if result.Valid {
		t.Fatal("expected invalid")
	}
	if !contains(result.Errors, "MissingFrontmatterStart") {
		t.Fatalf("got %v", result.Errors)
	}
}

func TestValidateStructureMissingFrontmatterEnd(t *testing.T) {
	doc := "---\ntitle: x\n# Architecture\n<!-- SECTION: overview -->\nx\n<!-- END SECTION: overview -->\n"
	result := ValidateStructure(doc, []string{"overview"})
	if result.Valid {
		t.Fatal("expected invalid")
	}
	if !contains(result.Errors, "MissingFrontmatterEnd") {
		t.Fatalf("got %v", result.Errors)
	}
}

func TestValidateStructureMissingRequiredSection(t *testing.T) {
	result := ValidateStructure(validArchitectureDoc, []string{"overview", "risks"})
	if result.Valid {
		t.Fatal("expected invalid")
	}
	if !contains(result.Errors, "RequiredSectionMissing: risks") {
		t.Fatalf("got %v", result.Errors)
	}
}

func TestValidateStructureUnmatchedSectionMarker(t *testing.T) {
	doc := "---\ntitle: x\n---\n<!-- SECTION: overview -->\nbody with no end\n"
	result := ValidateStructure(doc, nil)
	if result.Valid {
		t.Fatal("expected invalid")
	}
	if !contains(result.Errors, "UnmatchedSectionMarker") {
		t.Fatalf("got %v", result.Errors)
	}
}

func TestValidateStructureUnbalancedBraces(t *testing.T) {
	doc := "---\ntitle: x\n---\n{{project_name}\n"
	result := ValidateStructure(doc, nil)
	if result.Valid {
		t.Fatal("expected invalid")
	}
	if !contains(result.Errors, "UnbalancedVariableBraces") {
		t.Fatalf("got %v", result.Errors)
	}
}

func TestValidateStructureRecommendedVariableWarningsDoNotInvalidate(t *testing.T) {
	doc := "---\ntitle: x\n---\nno placeholders here\n"
	result := ValidateStructure(doc, nil)
	if !result.Valid {
		t.Fatalf("expected valid despite missing recommended vars, got errors: %v", result.Errors)
	}
	for _, v := range recommendedVariables {
		want := "RecommendedVariableMissing: " + v
		if !contains(result.Warnings, want) {
			t.Errorf("expected warning %q, got %v", want, result.Warnings)
		}
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
