package utils

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

const (
	isoDateLayout = "2006-01-02"
	dmyDateLayout = "2/1/2006"

	// 9999-12-31 in the 1900 date system.
	maxExcelSerial = 2958465
)

var (
	serialCellPattern = regexp.MustCompile(`^\d+(\.\d+)?$`)
	isoCellPattern    = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}([T ].*)?$`)
)

// DateOnly truncates t to midnight UTC of its calendar day.
func DateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// ParseSheetDate reads a spreadsheet cell as a calendar date.
// Accepted: decimal date serial (1900 system), yyyy-mm-dd (optionally followed by a T or space time part), dd/mm/yyyy.
// Anything else yields nil.
func ParseSheetDate(cell string) *time.Time {
	cell = strings.TrimSpace(cell)
	if cell == "" {
		return nil
	}

	if serialCellPattern.MatchString(cell) {
		serial, err := strconv.ParseFloat(cell, 64)
		if err != nil {
			return nil
		}
		return excelSerialToDate(serial)
	}

	if isoCellPattern.MatchString(cell) {
		if t, err := time.Parse(isoDateLayout, cell[:len(isoDateLayout)]); err == nil {
			d := DateOnly(t)
			return &d
		}
		return nil
	}

	if t, err := time.Parse(dmyDateLayout, cell); err == nil {
		d := DateOnly(t)
		return &d
	}

	return nil
}

func excelSerialToDate(serial float64) *time.Time {
	if serial < 1 || serial > maxExcelSerial {
		return nil
	}
	t, err := excelize.ExcelDateToTime(serial, false)
	if err != nil {
		return nil
	}
	d := DateOnly(t)
	return &d
}

// FormatDate renders a nullable date as yyyy-mm-dd, empty for nil.
func FormatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(isoDateLayout)
}
