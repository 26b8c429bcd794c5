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

package report

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"strings"

	"github.com/nguyenthenguyen/docx"

	"github.com/bmad-forge/bmad-core/internal/errs"
)

// WriteDOCX renders markdown content as a Word document at path. The
// conversion is line-oriented: headings become bold paragraphs, everything
// else becomes plain paragraphs. Fenced code blocks keep their text but
// drop the fences.
func WriteDOCX(path, title, markdown string) error {
	seed, err := emptyDocxArchive()
	if err != nil {
		return errs.Externalf(component, "WriteDOCX", err, "build seed archive")
	}

	r, err := docx.ReadDocxFromMemory(bytes.NewReader(seed), int64(len(seed)))
	if err != nil {
		return errs.Externalf(component, "WriteDOCX", err, "open seed archive")
	}
	defer r.Close()

	doc := r.Editable()
	doc.SetContent(renderDocumentXML(title, markdown))
	if err := doc.WriteToFile(path); err != nil {
		return errs.Externalf(component, "WriteDOCX", err, "write %s", path)
	}
	return nil
}

// emptyDocxArchive builds the smallest archive the docx library will open:
// content types, the package relationship pointing at the main part, and an
// empty document body. SetContent replaces the body wholesale afterwards.
func emptyDocxArchive() ([]byte, error) {
	parts := []struct{ name, body string }{
		{"[Content_Types].xml", `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">
<Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/>
<Default Extension="xml" ContentType="application/xml"/>
<Override PartName="/word/document.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"/>
</Types>`},
		{"_rels/.rels", `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">
<Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/officeDocument" Target="word/document.xml"/>
</Relationships>`},
		{"word/_rels/document.xml.rels", `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships"/>`},
		{"word/document.xml", `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body></w:body></w:document>`},
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, p := range parts {
		w, err := zw.Create(p.name)
		if err != nil {
			return nil, err
		}
		if _, err := w.Write([]byte(p.body)); err != nil {
			return nil, err
		}
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func renderDocumentXML(title, markdown string) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>`)
	b.WriteString(`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>`)

	if title != "" {
		writeParagraph(&b, title, true)
	}

	inFence := false
	for _, line := range strings.Split(markdown, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") {
			inFence = !inFence
			continue
		}
		switch {
		case trimmed == "":
			b.WriteString(`<w:p/>`)
		case !inFence && strings.HasPrefix(trimmed, "#"):
			writeParagraph(&b, strings.TrimSpace(strings.TrimLeft(trimmed, "#")), true)
		default:
			writeParagraph(&b, line, false)
		}
	}

	b.WriteString(`</w:body></w:document>`)
	return b.String()
}

func writeParagraph(b *strings.Builder, text string, bold bool) {
	b.WriteString(`<w:p><w:r>`)
	if bold {
		b.WriteString(`<w:rPr><w:b/></w:rPr>`)
	}
	b.WriteString(`<w:t xml:space="preserve">`)
	b.WriteString(xmlEscape(text))
	b.WriteString(`</w:t></w:r></w:p>`)
}

func xmlEscape(s string) string {
	var buf bytes.Buffer
	// EscapeText only fails on a writer error, which bytes.Buffer never
	// produces.
	_ = xml.EscapeText(&buf, []byte(s))
	return buf.String()
}
