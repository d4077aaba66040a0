package receipt

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"

	"conference-payments/internal/models"
)

// RenderPDF produces the receipt document for a reconciled order. It is a
// pure function of the order's paid state: the same inputs always yield the
// same document body.
func RenderPDF(order *models.Order, payment *models.Payment) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Payment Receipt "+order.OrderID, false)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 18)
	pdf.Cell(0, 10, "Payment Receipt")
	pdf.Ln(12)

	pdf.SetFont("Helvetica", "", 11)
	pdf.Cell(0, 6, fmt.Sprintf("Order: %s", order.OrderID))
	pdf.Ln(6)
	pdf.Cell(0, 6, fmt.Sprintf("Billed to: %s <%s>", order.CustomerName, order.CustomerEmail))
	pdf.Ln(6)
	pdf.Cell(0, 6, fmt.Sprintf("Paid at: %s", payment.UpdatedAt.UTC().Format("2006-01-02 15:04:05 UTC")))
	pdf.Ln(6)
	if payment.Channel != "" {
		pdf.Cell(0, 6, fmt.Sprintf("Payment channel: %s", payment.Channel))
		pdf.Ln(6)
	}
	pdf.Ln(4)

	pdf.SetFont("Helvetica", "B", 11)
	pdf.CellFormat(110, 8, "Item", "1", 0, "L", false, 0, "")
	pdf.CellFormat(20, 8, "Qty", "1", 0, "C", false, 0, "")
	pdf.CellFormat(40, 8, "Unit price", "1", 1, "R", false, 0, "")

	pdf.SetFont("Helvetica", "", 11)
	for _, item := range order.Items {
		pdf.CellFormat(110, 8, item.Name, "1", 0, "L", false, 0, "")
		pdf.CellFormat(20, 8, fmt.Sprintf("%d", item.Quantity), "1", 0, "C", false, 0, "")
		pdf.CellFormat(40, 8, item.UnitPrice.StringFixed(2), "1", 1, "R", false, 0, "")
	}
	pdf.Ln(4)

	pdf.SetFont("Helvetica", "", 11)
	pdf.CellFormat(130, 7, "", "", 0, "L", false, 0, "")
	pdf.CellFormat(40, 7, fmt.Sprintf("Subtotal: %s %s", order.Subtotal.StringFixed(2), order.Currency), "", 1, "R", false, 0, "")
	pdf.CellFormat(130, 7, "", "", 0, "L", false, 0, "")
	pdf.CellFormat(40, 7, fmt.Sprintf("Processing fee: %s %s", order.Fee.StringFixed(2), order.Currency), "", 1, "R", false, 0, "")

	pdf.SetFont("Helvetica", "B", 12)
	pdf.CellFormat(130, 8, "", "", 0, "L", false, 0, "")
	pdf.CellFormat(40, 8, fmt.Sprintf("Total: %s %s", order.Total.StringFixed(2), order.Currency), "", 1, "R", false, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to render receipt pdf: %w", err)
	}
	return buf.Bytes(), nil
}
