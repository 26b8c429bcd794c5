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

package workflow

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/bmad-forge/bmad-core/internal/errs"
)

// NodeKind identifies one body-item element recognized inside a <step>.
type NodeKind string

const (
	NodeAction         NodeKind = "action"
	NodeCheck          NodeKind = "check"
	NodeAsk            NodeKind = "ask"
	NodeElicitRequired NodeKind = "elicit-required"
	NodeTemplateOutput NodeKind = "template-output"
	NodeOutput         NodeKind = "output"
)

// Node is one body item. Check nodes carry Children; every other kind
// carries its inner text in Text. TemplateOutput additionally carries File.
type Node struct {
	Kind     NodeKind
	If       string
	File     string
	Text     string
	Children []Node
}

// Step is one parsed <step> element.
type Step struct {
	N        int
	Goal     string
	Optional bool
	If       string
	Body     []Node
}

// tag is one matched opening or closing element in the raw instructions
// text: its element name, attributes, whether it is a closing tag, and its
// byte span. Every element in this grammar is closed explicitly.
type tag struct {
	name    string
	attrs   map[string]string
	closing bool
	start   int
	end     int // index just past the tag's closing '>'
}

var (
	tagRegex  = regexp.MustCompile(`<(/?)([a-zA-Z][a-zA-Z0-9-]*)((?:\s+[a-zA-Z][a-zA-Z0-9_-]*="[^"]*")*)\s*>`)
	attrRegex = regexp.MustCompile(`([a-zA-Z][a-zA-Z0-9_-]*)="([^"]*)"`)
)

// recognizedElements are the only tag names this parser treats as
// structural; unknown elements are left untouched in surrounding text.
var recognizedElements = map[string]bool{
	"step": true, "action": true, "check": true, "ask": true,
	"elicit-required": true, "template-output": true, "output": true,
}

func tokenize(src string) []tag {
	var tags []tag
	for _, m := range tagRegex.FindAllStringSubmatchIndex(src, -1) {
		name := src[m[4]:m[5]]
		if !recognizedElements[name] {
			continue
		}
		t := tag{
			name:    name,
			closing: m[2] != m[3],
			start:   m[0],
			end:     m[1],
		}
		attrText := src[m[6]:m[7]]
		t.attrs = make(map[string]string)
		for _, am := range attrRegex.FindAllStringSubmatch(attrText, -1) {
			t.attrs[am[1]] = am[2]
		}
		tags = append(tags, t)
	}
	return tags
}

// ParseInstructions parses the XML-like, not-strict-XML instructions markup
// into an ordered, monotonically-numbered Step slice.
func ParseInstructions(src string) ([]Step, error) {
	tags := tokenize(src)

	var steps []Step
	i := 0
	for i < len(tags) {
		t := tags[i]
		if t.name != "step" || t.closing {
			i++
			continue
		}
		step, next, err := parseStep(src, tags, i)
		if err != nil {
			return nil, err
		}
		steps = append(steps, step)
		i = next
	}

	for idx, s := range steps {
		if s.N != idx+1 {
			return nil, errs.Validationf(component, "ParseInstructions",
				"step n values must be monotonically increasing from 1 with no gaps or duplicates, got n=%d at position %d", s.N, idx+1)
		}
	}
	return steps, nil
}

// parseStep parses the <step> tag at tags[i] and its body, returning the
// index of the tag just past its matching </step>.
func parseStep(src string, tags []tag, i int) (Step, int, error) {
	open := tags[i]
	n, err := strconv.Atoi(open.attrs["n"])
	if err != nil {
		return Step{}, 0, errs.Validationf(component, "parseStep", "step missing valid n= attribute: %v", err)
	}
	step := Step{
		N:        n,
		Goal:     open.attrs["goal"],
		Optional: open.attrs["optional"] == "true",
		If:       open.attrs["if"],
	}

	body, next, err := parseNodes(src, tags, i+1, "step")
	if err != nil {
		return Step{}, 0, err
	}
	step.Body = body
	return step, next, nil
}

// parseNodes consumes sibling body nodes until the closing tag for
// enclosingName, returning the index just past that closing tag.
func parseNodes(src string, tags []tag, i int, enclosingName string) ([]Node, int, error) {
	var nodes []Node
	for i < len(tags) {
		t := tags[i]
		if t.closing && t.name == enclosingName {
			return nodes, i + 1, nil
		}
		if t.closing {
			i++
			continue
		}

		switch t.name {
		case "check":
			children, next, err := parseNodes(src, tags, i+1, "check")
			if err != nil {
				return nil, 0, err
			}
			nodes = append(nodes, Node{Kind: NodeCheck, If: t.attrs["if"], Children: children})
			i = next
		case "action", "ask", "elicit-required", "output":
			text, next, err := parseLeafText(src, tags, i)
			if err != nil {
				return nil, 0, err
			}
			nodes = append(nodes, Node{Kind: NodeKind(t.name), Text: strings.TrimSpace(text)})
			i = next
		case "template-output":
			text, next, err := parseLeafText(src, tags, i)
			if err != nil {
				return nil, 0, err
			}
			nodes = append(nodes, Node{Kind: NodeTemplateOutput, File: t.attrs["file"], Text: strings.TrimSpace(text)})
			i = next
		default:
			// Unknown or unexpected element at this nesting level is ignored.
			i++
		}
	}
	return nil, 0, errs.Validationf(component, "parseNodes", "unterminated <%s>", enclosingName)
}

// parseLeafText returns the raw text between tags[i]'s opening tag and its
// matching closing tag, and the index just past the closing tag.
func parseLeafText(src string, tags []tag, i int) (string, int, error) {
	open := tags[i]
	for j := i + 1; j < len(tags); j++ {
		if tags[j].closing && tags[j].name == open.name {
			return src[open.end:tags[j].start], j + 1, nil
		}
	}
	return "", 0, errs.Validationf(component, "parseLeafText", "unterminated <%s>", open.name)
}
