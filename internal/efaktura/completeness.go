package efaktura

import (
	"regexp"
	"strings"
)

var pibPattern = regexp.MustCompile(`^\d{9}$`)

// ValidPIB reports whether s is a 9-digit Serbian tax id.
func ValidPIB(s string) bool {
	return pibPattern.MatchString(s)
}

// Check is one independently evaluated completeness rule.
type Check struct {
	Name string `json:"name"`
	OK   bool   `json:"ok"`
}

// Completeness reports how many of the required fields are filled in.
type Completeness struct {
	Valid  int     `json:"valid"`
	Total  int     `json:"total"`
	Checks []Check `json:"checks"`
}

// Complete reports whether every check passed. Generation is only offered
// for complete invoices.
func (c Completeness) Complete() bool {
	return c.Total > 0 && c.Valid == c.Total
}

// CheckCompleteness evaluates the eight generation prerequisites.
func CheckCompleteness(inv InvoiceData) Completeness {
	checks := []Check{
		{Name: "invoiceNumber", OK: strings.TrimSpace(inv.InvoiceNumber) != ""},
		{Name: "seller.name", OK: strings.TrimSpace(inv.Seller.Name) != ""},
		{Name: "seller.pib", OK: ValidPIB(inv.Seller.PIB)},
		{Name: "buyer.name", OK: strings.TrimSpace(inv.Buyer.Name) != ""},
		{Name: "buyer.pib", OK: ValidPIB(inv.Buyer.PIB)},
		{Name: "issueDate", OK: inv.IssueDate != ""},
		{Name: "dueDate", OK: inv.DueDate != ""},
		{Name: "items", OK: hasDescribedItem(inv.Items)},
	}
	c := Completeness{Total: len(checks), Checks: checks}
	for _, check := range checks {
		if check.OK {
			c.Valid++
		}
	}
	return c
}

func hasDescribedItem(items []InvoiceItem) bool {
	for _, item := range items {
		if strings.TrimSpace(item.Description) != "" {
			return true
		}
	}
	return false
}
