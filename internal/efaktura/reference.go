package efaktura

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var mod97 = decimal.NewFromInt(97)

// PaymentReference derives a MOD 97-10 (ISO 7064) payment reference from an
// invoice number: two check digits followed by the number's digits. Numbers
// without digits yield "00".
func PaymentReference(invoiceNumber string) string {
	digits := DigitsOnly(invoiceNumber)
	if digits == "" {
		return "00"
	}
	n, err := decimal.NewFromString(digits + "00")
	if err != nil {
		return "00"
	}
	remainder := n.Mod(mod97).IntPart()
	return fmt.Sprintf("%02d%s", 98-remainder, digits)
}

// DigitsOnly strips everything except ASCII digits.
func DigitsOnly(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
