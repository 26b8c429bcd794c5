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

// Package report exports pipeline artifacts for stakeholders who consume
// them outside markdown: validation reports, the ADR log, and the
// dependency graph as .xlsx workbooks, and assembled documents as .docx.
package report

import (
	"fmt"
	"sort"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/bmad-forge/bmad-core/internal/errs"
	"github.com/bmad-forge/bmad-core/pkg/depgraph"
	"github.com/bmad-forge/bmad-core/pkg/validate"
)

const component = "report"

// Workbook is the content of one exported .xlsx file. Nil/empty fields
// simply omit their sheet.
type Workbook struct {
	// Validations maps a validator name ("architecture", "prd",
	// "security") to its report.
	Validations map[string]*validate.ValidationReport
	Decisions   []validate.TechnicalDecision
	Graph       *depgraph.DependencyGraph
}

// WriteXLSX writes wb to path. At least one sheet must be present.
func WriteXLSX(path string, wb Workbook) error {
	if len(wb.Validations) == 0 && len(wb.Decisions) == 0 && wb.Graph == nil {
		return errs.Validationf(component, "WriteXLSX", "workbook has no content to export")
	}

	f := excelize.NewFile()
	defer f.Close()

	first := ""
	addSheet := func(name string) (string, error) {
		if first == "" {
			first = name
			if err := f.SetSheetName("Sheet1", name); err != nil {
				return "", err
			}
			return name, nil
		}
		if _, err := f.NewSheet(name); err != nil {
			return "", err
		}
		return name, nil
	}

	if len(wb.Validations) > 0 {
		sheet, err := addSheet("Validation")
		if err != nil {
			return errs.Externalf(component, "WriteXLSX", err, "create validation sheet")
		}
		if err := writeValidationSheet(f, sheet, wb.Validations); err != nil {
			return err
		}
	}
	if len(wb.Decisions) > 0 {
		sheet, err := addSheet("Decisions")
		if err != nil {
			return errs.Externalf(component, "WriteXLSX", err, "create decisions sheet")
		}
		if err := writeDecisionSheet(f, sheet, wb.Decisions); err != nil {
			return err
		}
	}
	if wb.Graph != nil {
		sheet, err := addSheet("Dependencies")
		if err != nil {
			return errs.Externalf(component, "WriteXLSX", err, "create dependencies sheet")
		}
		if err := writeGraphSheet(f, sheet, wb.Graph); err != nil {
			return err
		}
	}

	if err := f.SaveAs(path); err != nil {
		return errs.Externalf(component, "WriteXLSX", err, "save workbook %s", path)
	}
	return nil
}

func setRow(f *excelize.File, sheet string, row int, values ...any) error {
	for col, v := range values {
		cell, err := excelize.CoordinatesToCellName(col+1, row)
		if err != nil {
			return errs.Externalf(component, "setRow", err, "cell coordinates (%d,%d)", col+1, row)
		}
		if err := f.SetCellValue(sheet, cell, v); err != nil {
			return errs.Externalf(component, "setRow", err, "set cell %s!%s", sheet, cell)
		}
	}
	return nil
}

func writeValidationSheet(f *excelize.File, sheet string, reports map[string]*validate.ValidationReport) error {
	if err := setRow(f, sheet, 1, "Validator", "Dimension", "Score", "Passed", "Issues", "Gaps", "Recommendations"); err != nil {
		return err
	}

	names := make([]string, 0, len(reports))
	for name := range reports {
		names = append(names, name)
	}
	sort.Strings(names)

	row := 2
	for _, name := range names {
		r := reports[name]
		if err := setRow(f, sheet, row, name, "overall", r.OverallScore, r.Passed); err != nil {
			return err
		}
		row++
		for _, dim := range r.Dimensions {
			err := setRow(f, sheet, row, name, dim.Name, dim.Score, "",
				strings.Join(dim.Findings.Issues, "; "),
				strings.Join(dim.Findings.Gaps, "; "),
				strings.Join(dim.Findings.Recommendations, "; "))
			if err != nil {
				return err
			}
			row++
		}
	}
	return nil
}

func writeDecisionSheet(f *excelize.File, sheet string, decisions []validate.TechnicalDecision) error {
	if err := setRow(f, sheet, 1, "ID", "Title", "Status", "Decision Maker", "Date", "Decision", "Rationale", "PRD Requirements"); err != nil {
		return err
	}
	for i, d := range decisions {
		err := setRow(f, sheet, i+2, d.ID, d.Title, string(d.Status), string(d.DecisionMaker),
			d.Date.Format("2006-01-02"), d.Decision, d.Rationale, strings.Join(d.PRDRequirements, ", "))
		if err != nil {
			return err
		}
	}
	return nil
}

func writeGraphSheet(f *excelize.File, sheet string, g *depgraph.DependencyGraph) error {
	if err := setRow(f, sheet, 1, "From", "To", "Type", "Blocking", "Reasoning"); err != nil {
		return err
	}
	row := 2
	for _, e := range g.Edges {
		if err := setRow(f, sheet, row, e.From, e.To, string(e.Type), e.Blocking, e.Reasoning); err != nil {
			return err
		}
		row++
	}

	row++ // blank separator row
	if err := setRow(f, sheet, row, "Critical Path", strings.Join(g.CriticalPath, " -> ")); err != nil {
		return err
	}
	row++
	if err := setRow(f, sheet, row, "Bottlenecks", strings.Join(g.Bottlenecks, ", ")); err != nil {
		return err
	}
	row++
	for i, group := range g.Parallelizable {
		if err := setRow(f, sheet, row, fmt.Sprintf("Parallel Group %d", i+1), strings.Join(group, ", ")); err != nil {
			return err
		}
		row++
	}
	return nil
}
