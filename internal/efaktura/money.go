package efaktura

import (
	"sort"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Totals is the priced view of an invoice.
type Totals struct {
	LineItems  []LineItem        `json:"lineItems"`
	Subtotal   decimal.Decimal   `json:"subtotal"`
	TotalVAT   decimal.Decimal   `json:"totalVat"`
	GrandTotal decimal.Decimal   `json:"grandTotal"`
	VATSummary []VATSummaryEntry `json:"vatSummary"`
}

// Net returns quantity × unit price without rounding.
func (it InvoiceItem) Net() decimal.Decimal {
	return it.Quantity.Decimal.Mul(it.UnitPrice.Decimal)
}

// VATFor returns the VAT of a single line, rounded half-up to two decimals.
// Sellers outside the VAT system never charge VAT.
func VATFor(it InvoiceItem, vatRegistered bool) decimal.Decimal {
	if !vatRegistered || it.VATRate <= 0 {
		return decimal.Zero
	}
	return it.Net().Mul(decimal.NewFromInt(int64(it.VATRate))).Div(hundred).Round(2)
}

// ComputeTotals prices every line and builds the VAT summary.
//
// VAT is rounded per line and the rounded amounts are summed; subtotal and
// totals are rounded once at aggregation. Issued tax documents depend on this
// exact order, so it must not be collapsed into a single rounding pass.
func ComputeTotals(inv InvoiceData) Totals {
	lines := make([]LineItem, 0, len(inv.Items))
	subtotal := decimal.Zero
	totalVAT := decimal.Zero
	byRate := make(map[VATRate]*VATSummaryEntry)

	for _, item := range inv.Items {
		net := item.Net()
		vat := VATFor(item, inv.Seller.VATRegistered)
		lines = append(lines, LineItem{
			InvoiceItem: item,
			VATAmount:   vat,
			TotalAmount: net.Add(vat),
		})
		subtotal = subtotal.Add(net)
		totalVAT = totalVAT.Add(vat)

		entry, ok := byRate[item.VATRate]
		if !ok {
			entry = &VATSummaryEntry{Rate: item.VATRate, Base: decimal.Zero, Amount: decimal.Zero}
			byRate[item.VATRate] = entry
		}
		entry.Base = entry.Base.Add(net)
		entry.Amount = entry.Amount.Add(vat)
	}

	summary := make([]VATSummaryEntry, 0, len(byRate))
	for _, entry := range byRate {
		summary = append(summary, *entry)
	}
	sort.Slice(summary, func(i, j int) bool { return summary[i].Rate > summary[j].Rate })

	subtotal = subtotal.Round(2)
	totalVAT = totalVAT.Round(2)
	return Totals{
		LineItems:  lines,
		Subtotal:   subtotal,
		TotalVAT:   totalVAT,
		GrandTotal: subtotal.Add(totalVAT).Round(2),
		VATSummary: summary,
	}
}
