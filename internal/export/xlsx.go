package export

import (
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/harborlab/cohortwatch/internal/model"
)

// WriteXLSX writes the status table as a single-sheet workbook at path.
func WriteXLSX(path string, table *model.StatusTable) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("status")
	if err != nil {
		return eris.Wrap(err, "export: add xlsx sheet")
	}

	headerRow := sheet.AddRow()
	for _, col := range header(table.MaxWeeks) {
		headerRow.AddCell().SetString(col)
	}

	for _, row := range table.Rows {
		xr := sheet.AddRow()
		for _, cell := range record(row, table.MaxWeeks) {
			xr.AddCell().SetString(cell)
		}
	}

	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "export: save xlsx %s", path)
	}
	return nil
}
