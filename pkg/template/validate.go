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

package template

import (
	"fmt"
	"strings"
)

// recommendedVariables are not required for structural validity but their
// absence is worth surfacing to a template author.
var recommendedVariables = []string{"project_name", "date", "user_name"}

// ValidationResult is the outcome of ValidateStructure. Errors make the
// template invalid; Warnings never do.
type ValidationResult struct {
	Valid    bool
	Errors   []string
	Warnings []string
}

// ValidateStructure checks an architecture-style template's structural
// invariants:
//
//  1. begins with YAML frontmatter (`---` at BOF and a closing `---`)
//  2. every name in requiredSections has a `<!-- SECTION: name -->` /
//     `<!-- END SECTION: name -->` marker pair present
//  3. every `SECTION:` start has a matching `END SECTION:`
//  4. `{{` and `}}` occur in equal counts
//  5. recommended variables are present (warnings only)
func ValidateStructure(doc string, requiredSections []string) ValidationResult {
	var result ValidationResult
	result.Errors = checkFrontmatter(doc)
	result.Errors = append(result.Errors, checkRequiredSections(doc, requiredSections)...)
	result.Errors = append(result.Errors, checkMarkerPairing(doc)...)

	if !BracesBalanced(doc) {
		result.Errors = append(result.Errors, "UnbalancedVariableBraces")
	}

	present := make(map[string]bool)
	for _, name := range ListVariables(doc) {
		present[name] = true
	}
	for _, v := range recommendedVariables {
		if !present[v] {
			result.Warnings = append(result.Warnings, fmt.Sprintf("RecommendedVariableMissing: %s", v))
		}
	}

	result.Valid = len(result.Errors) == 0
	return result
}

func checkFrontmatter(doc string) []string {
	lines := strings.SplitN(doc, "\n", 3)
	if len(lines) == 0 || strings.TrimSpace(lines[0]) != "---" {
		return []string{"MissingFrontmatterStart"}
	}
	rest := strings.Join(lines[1:], "\n")
	if !strings.Contains(rest, "\n---") && strings.TrimSpace(rest) != "---" {
		return []string{"MissingFrontmatterEnd"}
	}
	return nil
}

func checkRequiredSections(doc string, required []string) []string {
	var errs []string
	for _, name := range required {
		if !strings.Contains(doc, startMarker(name)) || !strings.Contains(doc, endMarker(name)) {
			errs = append(errs, fmt.Sprintf("RequiredSectionMissing: %s", name))
		}
	}
	return errs
}

// checkMarkerPairing counts bare "SECTION:" and "END SECTION:" occurrences
// (independent of requiredSections) so a template with a stray, undeclared
// section still gets flagged.
func checkMarkerPairing(doc string) []string {
	starts := strings.Count(doc, "<!-- SECTION:")
	ends := strings.Count(doc, "<!-- END SECTION:")
	if starts != ends {
		return []string{"UnmatchedSectionMarker"}
	}
	return nil
}
