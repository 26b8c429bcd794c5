// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package validate

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// PRDGate is the pass threshold for PRDValidator's overall score.
const PRDGate = 85.0

var requiredPRDSections = []string{
	"Executive Summary",
	"Success Criteria",
	"MVP Scope",
	"Functional Requirements",
	"Success Metrics",
}

var vagueTerms = []string{"better", "improve", "properly"}

var requirementIDRegex = regexp.MustCompile(`FR-\d+`)

// gapImplications pairs a feature-signal keyword with the concern its
// presence implies the document should also address.
var gapImplications = []struct {
	signal   string
	implies  string
	category string
}{
	{"login", "security", "security"},
	{"authentication", "security", "security"},
	{"payment", "security", "security"},
	{"api", "error handling", "error-handling"},
	{"network request", "error handling", "error-handling"},
}

// PRDValidator checks a PRD document's section completeness, requirement
// formatting, language precision, internal consistency, and coverage of
// gap categories implied by its own feature descriptions.
type PRDValidator struct{}

// NewPRDValidator constructs a PRDValidator.
func NewPRDValidator() *PRDValidator { return &PRDValidator{} }

// Validate scores doc. The five checks are equally weighted, following
// ArchitectureValidator's convention.
func (v *PRDValidator) Validate(doc string) *ValidationReport {
	dims := []DimensionResult{
		scorePRDSections(doc),
		scorePRDRequirements(doc),
		scorePRDLanguage(doc),
		scoreConsistency(doc),
		scorePRDGapCategories(doc),
	}
	overall := average(dims)
	return &ValidationReport{
		OverallScore: overall,
		Dimensions:   dims,
		Passed:       overall >= PRDGate,
		Timestamp:    time.Now().UTC(),
	}
}

func scorePRDSections(doc string) DimensionResult {
	sections := extractSections(doc)
	var findings DimensionFindings
	present := 0
	for _, name := range requiredPRDSections {
		if _, ok := findSection(sections, name); ok {
			present++
		} else {
			findings.Gaps = append(findings.Gaps, fmt.Sprintf("missing required section %q", name))
		}
	}
	return DimensionResult{
		Name:     "sections",
		Score:    100 * float64(present) / float64(len(requiredPRDSections)),
		Findings: findings,
	}
}

func scorePRDRequirements(doc string) DimensionResult {
	// Only the first occurrence of each id opens a requirement; later
	// occurrences are references to it.
	var ids [][]int
	seen := make(map[string]bool)
	for _, idx := range requirementIDRegex.FindAllStringIndex(doc, -1) {
		if id := doc[idx[0]:idx[1]]; !seen[id] {
			seen[id] = true
			ids = append(ids, idx)
		}
	}
	var findings DimensionFindings
	if len(ids) == 0 {
		findings.Gaps = append(findings.Gaps, "no FR-NNN functional requirements found")
		return DimensionResult{Name: "requirements", Score: 0, Findings: findings}
	}

	withCriteria := 0
	for i, idx := range ids {
		end := len(doc)
		if i+1 < len(ids) {
			end = ids[i+1][0]
		}
		window := strings.ToLower(doc[idx[0]:end])
		if strings.Contains(window, "acceptance criteria") || strings.Contains(window, "acceptance:") {
			withCriteria++
		} else {
			findings.Issues = append(findings.Issues, fmt.Sprintf("%s has no acceptance criteria", doc[idx[0]:idx[1]]))
		}
	}
	return DimensionResult{
		Name:     "requirements",
		Score:    100 * float64(withCriteria) / float64(len(ids)),
		Findings: findings,
	}
}

func scorePRDLanguage(doc string) DimensionResult {
	lower := strings.ToLower(doc)
	var findings DimensionFindings
	occurrences := 0
	for _, term := range vagueTerms {
		count := strings.Count(lower, term)
		if count > 0 {
			occurrences += count
			findings.Issues = append(findings.Issues, fmt.Sprintf("vague language %q used %d time(s)", term, count))
		}
	}
	score := 100.0 - 10.0*float64(occurrences)
	if score < 0 {
		score = 0
	}
	return DimensionResult{Name: "language_precision", Score: score, Findings: findings}
}

func scorePRDGapCategories(doc string) DimensionResult {
	lower := strings.ToLower(doc)
	var findings DimensionFindings
	categories := make(map[string]bool)
	for _, gi := range gapImplications {
		if strings.Contains(lower, gi.signal) && !strings.Contains(lower, gi.implies) {
			categories[gi.category] = true
			findings.Gaps = append(findings.Gaps, fmt.Sprintf("mentions %q but not %q (category: %s)", gi.signal, gi.implies, gi.category))
		}
	}
	score := 100.0
	if len(categories) > 0 {
		score = 100.0 - 25.0*float64(len(categories))
		if score < 0 {
			score = 0
		}
	}
	return DimensionResult{Name: "gap_categories", Score: score, Findings: findings}
}
