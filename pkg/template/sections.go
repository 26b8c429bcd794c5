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
	"regexp"
	"strings"

	"github.com/bmad-forge/bmad-core/internal/errs"
)

// sectionNameRegex matches the normative `<name>` grammar: [a-z0-9-]+.
var sectionNameRegex = regexp.MustCompile(`^[a-z0-9-]+$`)

func startMarker(name string) string { return fmt.Sprintf("<!-- SECTION: %s -->", name) }
func endMarker(name string) string   { return fmt.Sprintf("<!-- END SECTION: %s -->", name) }

// ReplaceSection swaps the body between the unique `<!-- SECTION: name -->`
// / `<!-- END SECTION: name -->` marker pair for body, preserving both
// markers and everything outside them. Replacement is idempotent: calling
// it again with a different body only ever touches the region between the
// same two markers.
func ReplaceSection(doc, name, body string) (string, error) {
	start := startMarker(name)
	end := endMarker(name)

	startIdx := strings.Index(doc, start)
	if startIdx < 0 {
		return "", errs.NotFoundf(component, "ReplaceSection", "SectionStartMarkerNotFound: %s", name)
	}

	searchFrom := startIdx + len(start)
	endIdx := strings.Index(doc[searchFrom:], end)
	if endIdx < 0 {
		return "", errs.NotFoundf(component, "ReplaceSection", "SectionEndMarkerNotFound: %s", name)
	}
	endIdx += searchFrom

	var out []byte
	out = append(out, doc[:startIdx+len(start)]...)
	out = append(out, '\n')
	out = append(out, body...)
	out = append(out, '\n')
	out = append(out, doc[endIdx:]...)
	return string(out), nil
}

// ExtractSection returns the current body between name's markers.
func ExtractSection(doc, name string) (string, error) {
	start := startMarker(name)
	end := endMarker(name)

	startIdx := strings.Index(doc, start)
	if startIdx < 0 {
		return "", errs.NotFoundf(component, "ExtractSection", "SectionStartMarkerNotFound: %s", name)
	}
	bodyStart := startIdx + len(start)

	endIdx := strings.Index(doc[bodyStart:], end)
	if endIdx < 0 {
		return "", errs.NotFoundf(component, "ExtractSection", "SectionEndMarkerNotFound: %s", name)
	}
	endIdx += bodyStart

	return strings.Trim(doc[bodyStart:endIdx], "\r\n"), nil
}

// ValidSectionName reports whether name matches the normative
// `[a-z0-9-]+` grammar for section names.
func ValidSectionName(name string) bool {
	return sectionNameRegex.MatchString(name)
}
