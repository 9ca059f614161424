// Package export renders report tables as CSV and XLSX downloads.
package export

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/woundcare/clinic/pkg/money"
)

const (
	ContentTypeCSV  = "text/csv; charset=utf-8"
	ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	ContentTypePDF  = "application/pdf"
)

type Kind int

const (
	KindText Kind = iota
	KindCurrency
	KindPercent
	KindInt
)

// Cell is one table value. Numbers keep their type so the spreadsheet gets
// numeric cells while the CSV gets the formatted text.
type Cell struct {
	Kind   Kind
	Text   string
	Number decimal.Decimal
	Int    int64
}

func Text(s string) Cell { return Cell{Kind: KindText, Text: s} }

// OptText renders nil as an empty field.
func OptText(s *string) Cell {
	if s == nil {
		return Text("")
	}
	return Text(*s)
}

func Date(d *civil.Date) Cell {
	if d == nil {
		return Text("")
	}
	return Text(d.String())
}

func Currency(d decimal.Decimal) Cell { return Cell{Kind: KindCurrency, Number: d} }
func Percent(d decimal.Decimal) Cell  { return Cell{Kind: KindPercent, Number: d} }
func Int(n int64) Cell                { return Cell{Kind: KindInt, Int: n} }

// String is the CSV rendering: $1234.50, 12.50%.
func (c Cell) String() string {
	switch c.Kind {
	case KindCurrency:
		return money.USD(c.Number)
	case KindPercent:
		return money.PercentString(c.Number)
	case KindInt:
		return fmt.Sprintf("%d", c.Int)
	default:
		return c.Text
	}
}

// Table is a header plus rows of equal width.
type Table struct {
	Sheet  string
	Header []string
	Rows   [][]Cell
}

// WriteCSV writes every field wrapped in double quotes, embedded quotes
// doubled, one record per line.
func WriteCSV(w io.Writer, t Table) error {
	if err := writeRecord(w, t.Header); err != nil {
		return err
	}
	for _, row := range t.Rows {
		fields := make([]string, len(row))
		for i, c := range row {
			fields[i] = c.String()
		}
		if err := writeRecord(w, fields); err != nil {
			return err
		}
	}
	return nil
}

func writeRecord(w io.Writer, fields []string) error {
	var b strings.Builder
	for i, f := range fields {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteByte('"')
		b.WriteString(strings.ReplaceAll(f, `"`, `""`))
		b.WriteByte('"')
	}
	b.WriteByte('\n')
	_, err := io.WriteString(w, b.String())
	return err
}

func CSV(t Table) []byte {
	var buf bytes.Buffer
	_ = WriteCSV(&buf, t)
	return buf.Bytes()
}

var currencyFormat = `"$"#,##0.00;-"$"#,##0.00`

// XLSX renders t as a single-sheet workbook.
func XLSX(t Table) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	sheet := t.Sheet
	if sheet == "" {
		sheet = "Sheet1"
	}
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, err
	}
	currencyStyle, err := f.NewStyle(&excelize.Style{CustomNumFmt: &currencyFormat})
	if err != nil {
		return nil, err
	}
	// built-in 10 is 0.00%
	percentStyle, err := f.NewStyle(&excelize.Style{NumFmt: 10})
	if err != nil {
		return nil, err
	}

	for i, h := range t.Header {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return nil, err
		}
	}
	if len(t.Header) > 0 {
		last, _ := excelize.CoordinatesToCellName(len(t.Header), 1)
		if err := f.SetCellStyle(sheet, "A1", last, headerStyle); err != nil {
			return nil, err
		}
	}

	for r, row := range t.Rows {
		for c, v := range row {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+2)
			var err error
			switch v.Kind {
			case KindCurrency:
				err = f.SetCellFloat(sheet, cell, money.Round(v.Number).InexactFloat64(), -1, 64)
				if err == nil {
					err = f.SetCellStyle(sheet, cell, cell, currencyStyle)
				}
			case KindPercent:
				err = f.SetCellFloat(sheet, cell, v.Number.Div(decimal.NewFromInt(100)).InexactFloat64(), -1, 64)
				if err == nil {
					err = f.SetCellStyle(sheet, cell, cell, percentStyle)
				}
			case KindInt:
				err = f.SetCellInt(sheet, cell, int(v.Int))
			default:
				err = f.SetCellStr(sheet, cell, v.Text)
			}
			if err != nil {
				return nil, fmt.Errorf("write %s: %w", cell, err)
			}
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

// File is a rendered download.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// FileName returns "<prefix>-YYYY-MM-DD.<ext>".
func FileName(prefix string, day civil.Date, ext string) string {
	return prefix + "-" + day.String() + "." + ext
}
