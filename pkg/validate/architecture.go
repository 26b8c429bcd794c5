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
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

// ArchitectureGate is the pass threshold for ArchitectureValidator's
// overall score.
const ArchitectureGate = 85.0

// TestStrategyGate is the test-strategy dimension score Validate also
// requires for a pass.
const TestStrategyGate = 100.0

// requiredArchitectureSections are matched case-insensitively against
// document headings.
var requiredArchitectureSections = []string{
	"System Overview",
	"Component Architecture",
	"Data Models",
	"API Specifications",
	"Non-Functional Requirements",
	"Test Strategy",
	"Technical Decisions",
}

// contradictionPairs is a small illustrative vocabulary, not an exhaustive
// one. The four pairs are compiled in; no option or config key replaces or
// extends them.
var contradictionPairs = [][2]string{
	{"monolith", "microservices"},
	{"synchronous", "asynchronous"},
	{"sql", "nosql"},
	{"stateless", "stateful"},
}

var testStrategyElements = []struct {
	name     string
	keywords []string
}{
	{"frameworks", []string{"framework", "test framework"}},
	{"pyramid", []string{"test pyramid", "pyramid"}},
	{"ci/cd pipeline", []string{"ci/cd", "continuous integration", "pipeline"}},
	{"quality gates", []string{"quality gate"}},
	{"atdd", []string{"atdd", "acceptance test"}},
}

// ArchitectureValidator scores an architecture document across four
// equally-weighted dimensions: Completeness, PRD Traceability, Test
// Strategy, and Consistency.
type ArchitectureValidator struct {
	// MinSectionWords is the word-count floor a required section's body
	// must clear to count as complete. Zero uses the default of 20.
	MinSectionWords int
}

// NewArchitectureValidator constructs a validator with the default section
// word-count floor.
func NewArchitectureValidator() *ArchitectureValidator {
	return &ArchitectureValidator{MinSectionWords: 20}
}

// Validate scores architectureDoc, using prdDoc for the traceability
// dimension (pass an empty string if there is no PRD yet).
func (v *ArchitectureValidator) Validate(ctx context.Context, architectureDoc, prdDoc string) (*ValidationReport, error) {
	floor := v.MinSectionWords
	if floor <= 0 {
		floor = 20
	}

	dims := make([]DimensionResult, 4)
	g, _ := errgroup.WithContext(ctx)

	g.Go(func() error {
		dims[0] = scoreCompleteness(architectureDoc, floor)
		return nil
	})
	g.Go(func() error {
		dims[1] = scorePRDTraceability(prdDoc, architectureDoc)
		return nil
	})
	g.Go(func() error {
		dims[2] = scoreTestStrategy(architectureDoc)
		return nil
	})
	g.Go(func() error {
		dims[3] = scoreConsistency(architectureDoc)
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	overall := average(dims)
	return &ValidationReport{
		OverallScore: overall,
		Dimensions:   dims,
		Passed:       overall >= ArchitectureGate && dims[2].Score >= TestStrategyGate,
		Timestamp:    time.Now().UTC(),
	}, nil
}

func scoreCompleteness(doc string, minWords int) DimensionResult {
	sections := extractSections(doc)
	var findings DimensionFindings
	complete := 0
	for _, name := range requiredArchitectureSections {
		sec, ok := findSection(sections, name)
		switch {
		case !ok:
			findings.Gaps = append(findings.Gaps, fmt.Sprintf("missing required section %q", name))
		case wordCount(sec.body) < minWords:
			findings.Issues = append(findings.Issues, fmt.Sprintf("section %q is below the %d-word floor", name, minWords))
		default:
			complete++
		}
	}
	return DimensionResult{
		Name:     "completeness",
		Score:    100 * float64(complete) / float64(len(requiredArchitectureSections)),
		Findings: findings,
	}
}

// TraceEntry maps one PRD requirement to its architecture coverage.
type TraceEntry struct {
	Requirement string
	Covered     bool
	ArchSection string
}

func scorePRDTraceability(prdDoc, architectureDoc string) DimensionResult {
	requirements := extractBullets(prdDoc)
	if len(requirements) == 0 {
		return DimensionResult{Name: "prd_traceability", Score: 100}
	}

	sections := extractSections(architectureDoc)
	var findings DimensionFindings
	covered := 0
	for _, req := range requirements {
		entry := TraceEntry{Requirement: req}
		for _, sec := range sections {
			if keywordOverlap(req, sec.body) {
				entry.Covered = true
				entry.ArchSection = sec.title
				break
			}
		}
		if entry.Covered {
			covered++
		} else {
			findings.Gaps = append(findings.Gaps, fmt.Sprintf("requirement not traced to any architecture section: %s", req))
		}
	}
	return DimensionResult{
		Name:     "prd_traceability",
		Score:    100 * float64(covered) / float64(len(requirements)),
		Findings: findings,
	}
}

func scoreTestStrategy(doc string) DimensionResult {
	lower := strings.ToLower(doc)
	var findings DimensionFindings
	present := 0
	for _, el := range testStrategyElements {
		found := false
		for _, kw := range el.keywords {
			if strings.Contains(lower, kw) {
				found = true
				break
			}
		}
		if found {
			present++
		} else {
			findings.Gaps = append(findings.Gaps, fmt.Sprintf("test strategy missing element: %s", el.name))
		}
	}
	return DimensionResult{
		Name:     "test_strategy",
		Score:    20 * float64(present),
		Findings: findings,
	}
}

func scoreConsistency(doc string) DimensionResult {
	lower := strings.ToLower(doc)
	var findings DimensionFindings
	for _, pair := range contradictionPairs {
		if strings.Contains(lower, pair[0]) && strings.Contains(lower, pair[1]) {
			findings.Issues = append(findings.Issues, fmt.Sprintf("unresolved contradiction: %q vs %q both appear", pair[0], pair[1]))
		}
	}
	score := 100.0
	if len(findings.Issues) > 0 {
		score = 0
	}
	return DimensionResult{Name: "consistency", Score: score, Findings: findings}
}
