package invoice

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"

	"github.com/woundcare/clinic/pkg/money"
)

// RenderPDF lays the invoice out on a single A4 page: header block, item
// table, then the totals.
func RenderPDF(inv *Invoice, clinicName string) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Invoice "+inv.InvoiceNumber, true)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 16)
	pdf.Cell(120, 10, clinicName)
	pdf.CellFormat(70, 10, "INVOICE", "", 1, "R", false, 0, "")

	pdf.SetFont("Arial", "", 10)
	pdf.CellFormat(190, 6, "Invoice Number: "+inv.InvoiceNumber, "", 1, "R", false, 0, "")
	pdf.CellFormat(190, 6, "Invoice Date: "+inv.InvoiceDate.String(), "", 1, "R", false, 0, "")
	if inv.DueDate != nil {
		pdf.CellFormat(190, 6, "Due Date: "+inv.DueDate.String(), "", 1, "R", false, 0, "")
	}
	pdf.CellFormat(190, 6, "Status: "+inv.Status, "", 1, "R", false, 0, "")
	pdf.Ln(4)

	pdf.SetFont("Arial", "B", 11)
	pdf.Cell(190, 6, "Bill To")
	pdf.Ln(6)
	pdf.SetFont("Arial", "", 10)
	pdf.MultiCell(190, 5, inv.BillTo, "", "L", false)
	pdf.Ln(6)

	widths := []float64{95, 25, 35, 35}
	pdf.SetFont("Arial", "B", 10)
	pdf.SetFillColor(230, 230, 230)
	for i, h := range []string{"Description", "Qty", "Unit Price", "Amount"} {
		align := "R"
		if i == 0 {
			align = "L"
		}
		pdf.CellFormat(widths[i], 7, h, "1", 0, align, true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Arial", "", 10)
	for _, it := range inv.Items {
		pdf.CellFormat(widths[0], 7, it.Description, "1", 0, "L", false, 0, "")
		pdf.CellFormat(widths[1], 7, it.Quantity.String(), "1", 0, "R", false, 0, "")
		pdf.CellFormat(widths[2], 7, money.USD(it.UnitPrice), "1", 0, "R", false, 0, "")
		pdf.CellFormat(widths[3], 7, money.USD(it.Amount), "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}
	pdf.Ln(2)

	totals := [][2]string{
		{"Subtotal", money.USD(inv.Subtotal)},
		{fmt.Sprintf("Tax (%s)", money.PercentString(inv.TaxRate)), money.USD(inv.TaxAmount)},
		{"Total", money.USD(inv.Total)},
	}
	for i, t := range totals {
		if i == len(totals)-1 {
			pdf.SetFont("Arial", "B", 11)
		}
		pdf.CellFormat(155, 7, t[0], "", 0, "R", false, 0, "")
		pdf.CellFormat(35, 7, t[1], "", 1, "R", false, 0, "")
	}

	if inv.Notes != nil && *inv.Notes != "" {
		pdf.Ln(6)
		pdf.SetFont("Arial", "I", 9)
		pdf.MultiCell(190, 5, *inv.Notes, "", "L", false)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render invoice pdf: %w", err)
	}
	return buf.Bytes(), nil
}
