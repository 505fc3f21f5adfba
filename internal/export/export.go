// Package export writes run history as a spreadsheet
package export

import (
	"fmt"
	"io"

	"github.com/johnelliott/walkpad/pkg/walkingpad"
	"github.com/xuri/excelize/v2"
)

// Sheet is the name of the worksheet holding the runs
const Sheet = "Runs"

var header = []string{"Start", "Duration (min)", "Distance (m)", "Steps", "Speed (km/h)"}

// Workbook builds a workbook with one row per run, plus a totals row
func Workbook(runs []walkingpad.RunRecord) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", Sheet); err != nil {
		f.Close()
		return nil, err
	}

	for i, h := range header {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(Sheet, cell, h)
	}
	f.SetColWidth(Sheet, "A", "A", 22)
	f.SetColWidth(Sheet, "B", "E", 15)

	dateStyle, err := f.NewStyle(&excelize.Style{CustomNumFmt: strPtr("yyyy-mm-dd hh:mm")})
	if err != nil {
		f.Close()
		return nil, err
	}

	for i, r := range runs {
		row := i + 2
		minutes := r.Duration.Minutes()
		values := []interface{}{
			r.Start,
			round2(minutes),
			r.DistanceMeters,
			r.Steps,
			round2(kmh(r)),
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			if err := f.SetCellValue(Sheet, cell, v); err != nil {
				f.Close()
				return nil, fmt.Errorf("%s: %w", cell, err)
			}
		}
		cell, _ := excelize.CoordinatesToCellName(1, row)
		f.SetCellStyle(Sheet, cell, cell, dateStyle)
	}

	if len(runs) > 0 {
		last := len(runs) + 1
		total := last + 1
		f.SetCellValue(Sheet, fmt.Sprintf("A%d", total), "Total")
		for _, col := range []string{"B", "C", "D"} {
			f.SetCellFormula(Sheet, fmt.Sprintf("%s%d", col, total), fmt.Sprintf("SUM(%s2:%s%d)", col, col, last))
		}
	}
	return f, nil
}

// Write streams the workbook for runs to w
func Write(w io.Writer, runs []walkingpad.RunRecord) error {
	f, err := Workbook(runs)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Write(w)
}

// Save writes the workbook for runs to path
func Save(path string, runs []walkingpad.RunRecord) error {
	f, err := Workbook(runs)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.SaveAs(path)
}

func kmh(r walkingpad.RunRecord) float64 {
	h := r.Duration.Hours()
	if h == 0 {
		return 0
	}
	return float64(r.DistanceMeters) / 1000 / h
}

func round2(f float64) float64 {
	return float64(int64(f*100+0.5)) / 100
}

func strPtr(s string) *string { return &s }
