package efaktura

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

const (
	bankPrefixLen  = 3
	bankAccountLen = 13
	bankAccountMax = 18
)

var amountPrinter = message.NewPrinter(language.MustParse("sr-Latn-RS"))

// FormatBankAccount renders a Serbian bank account as XXX-XXXXXXXXXXXXX-XX.
// Non-digits are dropped and input beyond 18 digits is ignored; shorter
// input is hyphenated as far as it goes.
func FormatBankAccount(account string) string {
	digits := DigitsOnly(account)
	if len(digits) > bankAccountMax {
		digits = digits[:bankAccountMax]
	}
	if len(digits) <= bankPrefixLen {
		return digits
	}
	var b strings.Builder
	b.WriteString(digits[:bankPrefixLen])
	b.WriteByte('-')
	rest := digits[bankPrefixLen:]
	if len(rest) <= bankAccountLen {
		b.WriteString(rest)
		return b.String()
	}
	b.WriteString(rest[:bankAccountLen])
	b.WriteByte('-')
	b.WriteString(rest[bankAccountLen:])
	return b.String()
}

// FormatAmount renders an amount with sr-Latn grouping and exactly two
// fraction digits, e.g. 1.234,50.
func FormatAmount(d decimal.Decimal) string {
	return amountPrinter.Sprint(number.Decimal(d.Round(2).InexactFloat64(), number.Scale(2)))
}

// FormatDate converts an ISO date to DD.MM.YYYY. Unparseable input is
// returned unchanged.
func FormatDate(iso string) string {
	if iso == "" {
		return ""
	}
	t, err := time.Parse(dateLayout, iso)
	if err != nil {
		return iso
	}
	return t.Format("02.01.2006")
}
