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
	"regexp"
	"strings"
)

// section is one heading-delimited region of a markdown document.
type section struct {
	level int
	title string
	body  string
}

var headingRegex = regexp.MustCompile(`^(#{1,6})\s+(.+?)\s*$`)

// extractSections splits doc into heading-delimited sections. A section's
// body runs until the next heading at the same or a shallower level. Text
// before the first heading is dropped — no validator in this package reads
// preamble content.
func extractSections(doc string) []section {
	lines := strings.Split(doc, "\n")

	type marker struct {
		level int
		title string
		line  int
	}
	var markers []marker
	for i, line := range lines {
		if m := headingRegex.FindStringSubmatch(line); m != nil {
			markers = append(markers, marker{level: len(m[1]), title: m[2], line: i})
		}
	}

	sections := make([]section, 0, len(markers))
	for i, mk := range markers {
		end := len(lines)
		for j := i + 1; j < len(markers); j++ {
			if markers[j].level <= mk.level {
				end = markers[j].line
				break
			}
		}
		body := strings.Join(lines[mk.line+1:end], "\n")
		sections = append(sections, section{level: mk.level, title: mk.title, body: body})
	}
	return sections
}

// findSection returns the first section whose title matches name
// case-insensitively.
func findSection(sections []section, name string) (section, bool) {
	for _, s := range sections {
		if strings.EqualFold(strings.TrimSpace(s.title), name) {
			return s, true
		}
	}
	return section{}, false
}

var fencedCodeRegex = regexp.MustCompile("(?s)```.*?```")

// stripFencedCode removes fenced code blocks before word-count-based
// scoring; fenced code never counts toward a section's completeness.
func stripFencedCode(text string) string {
	return fencedCodeRegex.ReplaceAllString(text, "")
}

// wordCount counts whitespace-delimited words in text after fenced code
// blocks are stripped.
func wordCount(text string) int {
	return len(strings.Fields(stripFencedCode(text)))
}

var bulletRegex = regexp.MustCompile(`(?m)^\s*[-*]\s+(.+)$`)

// extractBullets returns the text of every top-level markdown bullet
// (`- ...` or `* ...`) in doc.
func extractBullets(doc string) []string {
	matches := bulletRegex.FindAllStringSubmatch(doc, -1)
	bullets := make([]string, 0, len(matches))
	for _, m := range matches {
		bullets = append(bullets, strings.TrimSpace(m[1]))
	}
	return bullets
}

// keywordOverlap reports whether any significant (length > 3) word from a
// is present in b, case-insensitively; enough for traceability matching
// without a full NLP stack.
func keywordOverlap(a, b string) bool {
	bLower := strings.ToLower(b)
	for _, word := range strings.Fields(strings.ToLower(a)) {
		word = strings.Trim(word, ".,;:()[]{}\"'")
		if len(word) > 3 && strings.Contains(bLower, word) {
			return true
		}
	}
	return false
}
