package report

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"
)

const (
	resultsSheet = "Results"
	summarySheet = "Summary"
)

var resultColumns = []interface{}{
	"Group", "Scenario", "Outcome", "Duration (s)", "Step", "Expected", "Actual", "Message", "Teardown", "Screenshot",
}

var outcomeColors = map[Outcome]string{
	Pass:  "C6EFCE",
	Fail:  "FFC7CE",
	Error: "FFEB9C",
	Skip:  "D9D9D9",
}

// WriteXLSX writes r as a workbook with a results sheet and a summary sheet.
func WriteXLSX(w io.Writer, r *Report) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", resultsSheet); err != nil {
		return err
	}
	if err := f.SetSheetRow(resultsSheet, "A1", &resultColumns); err != nil {
		return err
	}
	header, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(resultsSheet, "A1", "J1", header); err != nil {
		return err
	}

	styles := map[Outcome]int{}
	for o, color := range outcomeColors {
		id, err := f.NewStyle(&excelize.Style{
			Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{color}},
		})
		if err != nil {
			return err
		}
		styles[o] = id
	}

	for i, res := range r.Results() {
		row := i + 2
		cell, err := excelize.CoordinatesToCellName(1, row)
		if err != nil {
			return err
		}
		values := []interface{}{
			res.Group,
			res.Scenario,
			string(res.Outcome),
			res.Duration.Seconds(),
			res.Step,
			res.Expected,
			res.Actual,
			res.Message,
			res.TeardownError,
			res.Screenshot,
		}
		if err := f.SetSheetRow(resultsSheet, cell, &values); err != nil {
			return fmt.Errorf("failed to write row %d: %w", row, err)
		}
		if id, ok := styles[res.Outcome]; ok {
			outcomeCell, _ := excelize.CoordinatesToCellName(3, row)
			if err := f.SetCellStyle(resultsSheet, outcomeCell, outcomeCell, id); err != nil {
				return err
			}
		}
	}
	if err := f.SetColWidth(resultsSheet, "A", "B", 40); err != nil {
		return err
	}
	if err := f.SetColWidth(resultsSheet, "E", "H", 30); err != nil {
		return err
	}

	if _, err := f.NewSheet(summarySheet); err != nil {
		return err
	}
	s := r.Summary()
	rows := [][]interface{}{
		{"Suite", r.Suite()},
		{"Run", r.RunID()},
		{"Base URL", r.BaseURL()},
		{"Started", r.Started().UTC().Format(time.RFC3339)},
		{"Finished", r.Finished().UTC().Format(time.RFC3339)},
		{"Total", s.Total},
	}
	for _, o := range Outcomes {
		rows = append(rows, []interface{}{string(o), s.Count(o)})
	}
	rows = append(rows, []interface{}{"Aborted", r.Aborted()})
	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(summarySheet, cell, &row); err != nil {
			return err
		}
	}
	if err := f.SetColWidth(summarySheet, "A", "B", 40); err != nil {
		return err
	}

	return f.Write(w)
}
