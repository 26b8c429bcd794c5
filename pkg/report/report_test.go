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
	"path/filepath"
	"testing"
	"time"

	"github.com/nguyenthenguyen/docx"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/bmad-forge/bmad-core/pkg/depgraph"
	"github.com/bmad-forge/bmad-core/pkg/validate"
)

func TestWriteXLSXRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pipeline.xlsx")

	graph, err := depgraph.Build(depgraph.Graph{
		Nodes: []string{"story-1", "story-2"},
		Edges: []depgraph.Edge{{From: "story-1", To: "story-2", Type: depgraph.EdgeHard, Blocking: true, Reasoning: "schema first"}},
	}, depgraph.BuildOptions{})
	require.NoError(t, err)

	err = WriteXLSX(path, Workbook{
		Validations: map[string]*validate.ValidationReport{
			"architecture": {
				OverallScore: 92.5,
				Passed:       true,
				Timestamp:    time.Now().UTC(),
				Dimensions: []validate.DimensionResult{
					{Name: "completeness", Score: 100},
					{Name: "consistency", Score: 85, Findings: validate.DimensionFindings{
						Issues: []string{"sync vs async unresolved"},
					}},
				},
			},
		},
		Decisions: []validate.TechnicalDecision{
			{ID: "ADR-001", Title: "Use PostgreSQL", Status: validate.StatusAccepted,
				DecisionMaker: validate.MakerWinston, Date: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
				Decision: "PostgreSQL for relational data", Rationale: "team expertise",
				PRDRequirements: []string{"FR-001", "FR-002"}},
		},
		Graph: graph,
	})
	require.NoError(t, err)

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	require.ElementsMatch(t, []string{"Validation", "Decisions", "Dependencies"}, f.GetSheetList())

	validator, err := f.GetCellValue("Validation", "A2")
	require.NoError(t, err)
	require.Equal(t, "architecture", validator)

	id, err := f.GetCellValue("Decisions", "A2")
	require.NoError(t, err)
	require.Equal(t, "ADR-001", id)

	from, err := f.GetCellValue("Dependencies", "A2")
	require.NoError(t, err)
	require.Equal(t, "story-1", from)
}

func TestWriteXLSXRejectsEmptyWorkbook(t *testing.T) {
	err := WriteXLSX(filepath.Join(t.TempDir(), "empty.xlsx"), Workbook{})
	require.Error(t, err)
}

func TestWriteDOCXRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prd.docx")

	md := "# Product Requirements\n\nFR-001: users can sign in.\n\n```\ncode sample\n```\n"
	require.NoError(t, WriteDOCX(path, "Acme PRD", md))

	r, readErr := docx.ReadDocxFile(path)
	require.NoError(t, readErr)
	defer r.Close()

	content := r.Editable().GetContent()
	require.Contains(t, content, "Acme PRD")
	require.Contains(t, content, "Product Requirements")
	require.Contains(t, content, "FR-001: users can sign in.")
	require.Contains(t, content, "code sample")
	require.NotContains(t, content, "```")
}
