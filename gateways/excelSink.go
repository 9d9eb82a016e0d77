package gateways

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/xuri/excelize/v2"
)

const reportSheet = "Sheet1"

var reportHeadings = []string{
	"Fecha", "Pedido", "Cantidad", "EAN", "CN", "Descripcion",
	"Tipo", "Proveedor", "Precio", "Nota",
}

// ExcelSink appends audit rows to an xlsx workbook, one row per completed
// order. The workbook is created with a heading row on first use; afterwards
// rows are only appended.
type ExcelSink struct {
	mu sync.Mutex
}

func NewExcelSink() *ExcelSink {
	return &ExcelSink{}
}

func (s *ExcelSink) AppendRow(ctx context.Context, destination string, row ReportRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return &GatewayError{Collaborator: "excel", Op: "append_row", Err: err}
	}

	f, isNew, err := openOrCreateWorkbook(destination)
	if err != nil {
		return &GatewayError{Collaborator: "excel", Op: "append_row", Err: err}
	}
	defer f.Close()

	next := 1
	if isNew {
		if err := writeCells(f, 1, headingCells()); err != nil {
			return &GatewayError{Collaborator: "excel", Op: "append_row", Err: err}
		}
		next = 2
	} else {
		rows, err := f.GetRows(reportSheet)
		if err != nil {
			return &GatewayError{Collaborator: "excel", Op: "append_row", Err: err}
		}
		next = len(rows) + 1
	}

	cells := []interface{}{
		row.Timestamp.Format("02/01/2006 15:04"),
		row.OrderID,
		row.Quantity,
		row.Ean,
		row.Cn,
		row.Description,
		row.CompletionType,
		row.Supplier,
		row.Price.String(),
		row.Note,
	}
	if err := writeCells(f, next, cells); err != nil {
		return &GatewayError{Collaborator: "excel", Op: "append_row", Err: err}
	}

	if err := f.SaveAs(destination); err != nil {
		return &GatewayError{Collaborator: "excel", Op: "append_row", Err: err}
	}
	return nil
}

func openOrCreateWorkbook(destination string) (*excelize.File, bool, error) {
	if _, err := os.Stat(destination); err == nil {
		f, err := excelize.OpenFile(destination)
		return f, false, err
	}
	if dir := filepath.Dir(destination); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, false, err
		}
	}
	return excelize.NewFile(), true, nil
}

func headingCells() []interface{} {
	cells := make([]interface{}, len(reportHeadings))
	for i, h := range reportHeadings {
		cells[i] = h
	}
	return cells
}

func writeCells(f *excelize.File, rowNo int, cells []interface{}) error {
	for i, v := range cells {
		cell, err := excelize.CoordinatesToCellName(i+1, rowNo)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(reportSheet, cell, v); err != nil {
			return err
		}
	}
	return nil
}
