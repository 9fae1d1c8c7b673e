package services

import (
	"math"

	"github.com/DLXSERVEIS/Facturacion/internal/models"
)

// VATRate is the fixed 21% rate applied to every invoice.
const VATRate = 0.21

// InvoiceTotals holds the derived amounts of an invoice.
type InvoiceTotals struct {
	Subtotal float64
	Tax      float64
	Total    float64
}

// ComputeTotals derives the per-line totals and the invoice totals from the
// line items. Missing quantity or unit price counts as 0, as do non-finite
// values, so the result is always renderable. The input slice is not
// modified.
func ComputeTotals(items []models.InvoiceLineItem) ([]models.InvoiceLineItem, InvoiceTotals) {
	lines := make([]models.InvoiceLineItem, len(items))
	subtotal := 0.0
	for i, item := range items {
		item.Quantity = finiteOrZero(item.Quantity)
		item.UnitPrice = finiteOrZero(item.UnitPrice)
		item.Total = item.Quantity * item.UnitPrice
		lines[i] = item
		subtotal += item.Total
	}
	tax := subtotal * VATRate
	return lines, InvoiceTotals{
		Subtotal: subtotal,
		Tax:      tax,
		Total:    subtotal + tax,
	}
}

func finiteOrZero(f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}
