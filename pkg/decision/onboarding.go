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

package decision

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/philippgille/chromem-go"
)

// onboardingDoc is one scanned file's path and content; its bag-of-words
// vector lives in the chromem collection, keyed by the same path.
type onboardingDoc struct {
	path    string
	content string
}

// OnboardingMatch is the result of a successful OnboardingIndex.Match.
type OnboardingMatch struct {
	File       string
	Excerpt    string
	Similarity float64
}

// OnboardingIndex scans a directory of markdown/PDF files and answers
// "does any file match this question's topic" via keyword overlap, with
// chromem-go cosine similarity as a secondary signal that can raise (never
// substitute for) a keyword match.
type OnboardingIndex struct {
	docs []onboardingDoc
	db   *chromem.DB
	col  *chromem.Collection
}

// NewOnboardingIndex scans dir for .md, .txt, and .pdf files and builds the index.
// A missing or empty directory yields an index that never matches, rather
// than an error, since onboarding docs are optional.
func NewOnboardingIndex(ctx context.Context, dir string) (*OnboardingIndex, error) {
	idx := &OnboardingIndex{db: chromem.NewDB()}

	col, err := idx.db.GetOrCreateCollection("onboarding", nil, bagOfWordsEmbed)
	if err != nil {
		return nil, fmt.Errorf("decision: create onboarding collection: %w", err)
	}
	idx.col = col

	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return idx, nil
	}
	if err != nil {
		return nil, fmt.Errorf("decision: read onboarding directory %s: %w", dir, err)
	}

	var docs []chromem.Document
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		content, err := readOnboardingFile(path)
		if err != nil || strings.TrimSpace(content) == "" {
			continue
		}
		idx.docs = append(idx.docs, onboardingDoc{path: path, content: content})
		docs = append(docs, chromem.Document{ID: path, Content: content})
	}

	if len(docs) > 0 {
		if err := idx.col.AddDocuments(ctx, docs, 1); err != nil {
			return nil, fmt.Errorf("decision: index onboarding documents: %w", err)
		}
	}

	return idx, nil
}

func readOnboardingFile(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".txt":
		data, err := os.ReadFile(path)
		if err != nil {
			return "", err
		}
		return string(data), nil
	case ".pdf":
		return readPDF(path)
	default:
		return "", nil
	}
}

func readPDF(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	reader, err := pdf.NewReader(file, info.Size())
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	for page := 1; page <= reader.NumPage(); page++ {
		text, err := reader.Page(page).GetPlainText(nil)
		if err != nil {
			continue
		}
		sb.WriteString(text)
		sb.WriteString("\n")
	}
	return sb.String(), nil
}

// Match returns the strongest onboarding match for question, if the
// literal keyword-overlap requirement is met. Keyword overlap is the
// deciding signal; chromem similarity only informs which matching file is
// reported when more than one matches.
func (idx *OnboardingIndex) Match(question string) (OnboardingMatch, bool) {
	keywords := tokenize(question)
	if len(keywords) == 0 || len(idx.docs) == 0 {
		return OnboardingMatch{}, false
	}

	var best onboardingDoc
	bestOverlap := 0
	for _, doc := range idx.docs {
		overlap := keywordOverlap(keywords, doc.content)
		if overlap > bestOverlap || (overlap > 0 && overlap == bestOverlap &&
			idx.similarity(question, doc.path) > idx.similarity(question, best.path)) {
			bestOverlap = overlap
			best = doc
		}
	}
	if bestOverlap == 0 {
		return OnboardingMatch{}, false
	}

	similarity := idx.similarity(question, best.path)

	return OnboardingMatch{
		File:       best.path,
		Excerpt:    excerpt(best.content, 400),
		Similarity: similarity,
	}, true
}

// similarity returns chromem's cosine similarity between question and the
// document at path, or 0 if the query fails or path is not indexed (never
// fatal — it's a secondary signal only).
func (idx *OnboardingIndex) similarity(question, path string) float64 {
	vec, err := bagOfWordsEmbed(context.Background(), question)
	if err != nil {
		return 0
	}
	results, err := idx.col.QueryEmbedding(context.Background(), vec, idx.col.Count(), nil, nil)
	if err != nil {
		return 0
	}
	for _, r := range results {
		if r.ID == path {
			return float64(r.Similarity)
		}
	}
	return 0
}

func tokenize(s string) map[string]bool {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	})
	out := make(map[string]bool, len(fields))
	for _, f := range fields {
		if len(f) > 2 { // skip stopword-length noise (a, of, to, ...)
			out[f] = true
		}
	}
	return out
}

func keywordOverlap(keywords map[string]bool, content string) int {
	contentWords := tokenize(content)
	count := 0
	for k := range keywords {
		if contentWords[k] {
			count++
		}
	}
	return count
}

func excerpt(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}

// bagOfWordsEmbed is a deterministic, dependency-free stand-in for a real
// embedding model: term-frequency hashed into a fixed-width vector. It
// only needs to preserve enough similarity structure to rank onboarding
// documents relative to one another — the similarity signal is secondary,
// no particular embedding model is required, and nothing in this module
// calls an embeddings API.
func bagOfWordsEmbed(ctx context.Context, text string) ([]float32, error) {
	const dims = 256
	vec := make([]float32, dims)
	for word := range tokenize(text) {
		vec[hashToBucket(word, dims)]++
	}
	return normalize(vec), nil
}

func hashToBucket(s string, buckets int) int {
	var h uint32 = 2166136261
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= 16777619
	}
	return int(h) % buckets
}

func normalize(v []float32) []float32 {
	var sumSq float32
	for _, x := range v {
		sumSq += x * x
	}
	if sumSq == 0 {
		return v
	}
	norm := sqrt32(sumSq)
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = x / norm
	}
	return out
}

func sqrt32(x float32) float32 {
	if x == 0 {
		return 0
	}
	z := x
	for i := 0; i < 20; i++ {
		z -= (z*z - x) / (2 * z)
	}
	return z
}
