package workflow

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
)

const (
	FieldFullName                 = "full_name"
	FieldCpf                      = "cpf"
	FieldCnh                      = "cnh"
	FieldCnhExpiry                = "cnh_expiry"
	FieldPhone                    = "phone"
	FieldType                     = "type"
	FieldOmnilinkRegistrationDate = "omnilink_registration_date"
	FieldIndicationStatus         = "indication_status"
	FieldIndicationReason         = "indication_reason"
)

var sheetFields = map[string]func(*ImportRow, string){
	FieldFullName:                 func(r *ImportRow, v string) { r.FullName = v },
	FieldCpf:                      func(r *ImportRow, v string) { r.Cpf = v },
	FieldCnh:                      func(r *ImportRow, v string) { r.Cnh = v },
	FieldCnhExpiry:                func(r *ImportRow, v string) { r.CnhExpiry = v },
	FieldPhone:                    func(r *ImportRow, v string) { r.Phone = v },
	FieldType:                     func(r *ImportRow, v string) { r.Type = v },
	FieldOmnilinkRegistrationDate: func(r *ImportRow, v string) { r.OmnilinkRegistrationDate = v },
	FieldIndicationStatus:         func(r *ImportRow, v string) { r.IndicationStatus = v },
	FieldIndicationReason:         func(r *ImportRow, v string) { r.IndicationReason = v },
}

var ErrEmptySheet = errors.New("spreadsheet has no header row")

// ColumnMapping maps a logical driver field to the header text of its column.
type ColumnMapping map[string]string

func (m ColumnMapping) Validate() error {
	for _, required := range []string{FieldFullName, FieldCpf} {
		if strings.TrimSpace(m[required]) == "" {
			return fmt.Errorf("column mapping is missing %s", required)
		}
	}
	for field := range m {
		if _, ok := sheetFields[field]; !ok {
			return fmt.Errorf("column mapping has unknown field %q", field)
		}
	}
	return nil
}

func normalizeHeader(h string) string {
	return strings.ToLower(strings.TrimSpace(h))
}

// columnIndexes resolves each mapped header to its column position.
func (m ColumnMapping) columnIndexes(headers []string) (map[string]int, error) {
	positions := make(map[string]int, len(headers))
	for i, h := range headers {
		key := normalizeHeader(h)
		if _, dup := positions[key]; !dup {
			positions[key] = i
		}
	}
	indexes := make(map[string]int, len(m))
	for field, header := range m {
		if strings.TrimSpace(header) == "" {
			continue
		}
		idx, ok := positions[normalizeHeader(header)]
		if !ok {
			return nil, fmt.Errorf("column %q mapped to %s not found in header row", header, field)
		}
		indexes[field] = idx
	}
	return indexes, nil
}

type SheetResult struct {
	Sheet   string      `json:"sheet"`
	Headers []string    `json:"headers"`
	Rows    []ImportRow `json:"-"`
}

// ReadDriverSheet reads an .xlsx workbook. Row 1 holds headers; blank rows are ignored.
// Cells are read unformatted so date cells arrive as serial numbers.
// An empty sheet name selects the first sheet.
func ReadDriverSheet(r io.Reader, sheet string, mapping ColumnMapping) (*SheetResult, error) {
	if err := mapping.Validate(); err != nil {
		return nil, err
	}
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open spreadsheet: %w", err)
	}
	defer f.Close()

	if sheet == "" {
		sheet = f.GetSheetName(0)
	}
	if idx, err := f.GetSheetIndex(sheet); err != nil || idx < 0 {
		return nil, fmt.Errorf("sheet %q not found", sheet)
	}

	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}
	if len(rows) == 0 {
		return nil, ErrEmptySheet
	}

	headers := rows[0]
	indexes, err := mapping.columnIndexes(headers)
	if err != nil {
		return nil, err
	}

	result := &SheetResult{Sheet: sheet, Headers: headers}
	for i, cells := range rows[1:] {
		if blankRow(cells) {
			continue
		}
		row := ImportRow{Line: i + 2}
		for field, idx := range indexes {
			if idx < len(cells) {
				sheetFields[field](&row, strings.TrimSpace(cells[idx]))
			}
		}
		result.Rows = append(result.Rows, row)
	}
	return result, nil
}

func blankRow(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
