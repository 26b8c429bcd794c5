package validate

import (
	"strings"
	"testing"
)

const samplePRDDoc = `# Executive Summary

This product streamlines order fulfillment for mid-size retailers.

# Success Criteria

Ship a working MVP that reduces manual order processing time by half.

# MVP Scope

The MVP covers order intake, inventory checks, and shipment tracking.

# Functional Requirements

FR-001: The system shall allow a customer to cancel an order before shipment.
Acceptance Criteria: cancellation is rejected once the order has shipped.

FR-002: The system shall notify a customer when their order ships.
Acceptance Criteria: notification is sent within one minute of the shipment event.

# Success Metrics

Order processing time drops by 50% within two quarters of launch.
`

func TestScorePRDSectionsAllPresent(t *testing.T) {
	dim := scorePRDSections(samplePRDDoc)
	if dim.Score != 100 {
		t.Errorf("expected score 100, got %v gaps=%v", dim.Score, dim.Findings.Gaps)
	}
}

func TestScorePRDSectionsMissingSection(t *testing.T) {
	doc := strings.Replace(samplePRDDoc, "# Success Metrics", "# Outcomes", 1)
	dim := scorePRDSections(doc)
	if dim.Score >= 100 {
		t.Errorf("expected score below 100, got %v", dim.Score)
	}
}

func TestScorePRDRequirementsAllHaveCriteria(t *testing.T) {
	dim := scorePRDRequirements(samplePRDDoc)
	if dim.Score != 100 {
		t.Errorf("expected score 100, got %v issues=%v", dim.Score, dim.Findings.Issues)
	}
}

func TestScorePRDRequirementsNoRequirementsFound(t *testing.T) {
	dim := scorePRDRequirements("# Functional Requirements\n\nNo formally numbered requirements here.\n")
	if dim.Score != 0 {
		t.Errorf("expected score 0 with no FR-NNN requirements, got %v", dim.Score)
	}
	if len(dim.Findings.Gaps) == 0 {
		t.Error("expected a gap reporting the absence of requirements")
	}
}

func TestScorePRDRequirementsMissingAcceptanceCriteria(t *testing.T) {
	doc := "FR-001: The system shall do something.\nFR-002: The system shall do another thing.\nAcceptance Criteria: covers FR-002.\n"
	dim := scorePRDRequirements(doc)
	if dim.Score != 50 {
		t.Errorf("expected score 50 (1 of 2 requirements with criteria), got %v", dim.Score)
	}
	if len(dim.Findings.Issues) != 1 {
		t.Errorf("expected exactly one issue, got %v", dim.Findings.Issues)
	}
}

func TestScorePRDLanguageNoVagueTerms(t *testing.T) {
	dim := scorePRDLanguage(samplePRDDoc)
	if dim.Score != 100 {
		t.Errorf("expected score 100, got %v", dim.Score)
	}
}

func TestScorePRDLanguageFlagsVagueTerms(t *testing.T) {
	doc := "The system should work better and improve reliability, and properly handle errors."
	dim := scorePRDLanguage(doc)
	if dim.Score != 70 {
		t.Errorf("expected score 70 (3 vague terms), got %v", dim.Score)
	}
	if len(dim.Findings.Issues) != 3 {
		t.Errorf("expected 3 issues, got %v", dim.Findings.Issues)
	}
}

func TestScorePRDGapCategoriesNoGaps(t *testing.T) {
	dim := scorePRDGapCategories(samplePRDDoc)
	if dim.Score != 100 {
		t.Errorf("expected score 100, got %v gaps=%v", dim.Score, dim.Findings.Gaps)
	}
}

func TestScorePRDGapCategoriesDetectsSecurityGap(t *testing.T) {
	doc := "Users must complete a login before accessing their order history."
	dim := scorePRDGapCategories(doc)
	if dim.Score >= 100 {
		t.Errorf("expected a reduced score when login is mentioned without security, got %v", dim.Score)
	}
	found := false
	for _, g := range dim.Findings.Gaps {
		if strings.Contains(g, "security") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a security gap to be reported, got %v", dim.Findings.Gaps)
	}
}

func TestPRDValidatorValidatePasses(t *testing.T) {
	v := NewPRDValidator()
	report := v.Validate(samplePRDDoc)
	if !report.Passed {
		t.Errorf("expected the report to pass the %v gate, got score %v dims=%+v", PRDGate, report.OverallScore, report.Dimensions)
	}
}

func TestPRDValidatorValidateFailsOnSparseDoc(t *testing.T) {
	v := NewPRDValidator()
	report := v.Validate("# Executive Summary\n\nA product.\n")
	if report.Passed {
		t.Errorf("expected a sparse document to fail the gate, got score %v", report.OverallScore)
	}
}
