package efaktura

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// FieldErrors maps a field path to a human readable problem.
type FieldErrors map[string]string

func (e FieldErrors) Error() string {
	keys := make([]string, 0, len(e))
	for k := range e {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e[k]))
	}
	return "invalid invoice: " + strings.Join(parts, "; ")
}

// Validate checks the structural shape of an invoice. Missing business
// fields are not errors here; see CheckCompleteness.
func Validate(inv InvoiceData) error {
	err := validate.Struct(inv)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	fields := make(FieldErrors, len(verrs))
	for _, fe := range verrs {
		fields[fieldPath(fe.Namespace())] = fe.Tag()
	}
	return fields
}

// fieldPath drops the root struct name from a validator namespace.
func fieldPath(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

// Normalize trims free text, strips non-digits from tax ids, formats the
// seller bank account and refreshes the payment reference.
func Normalize(inv InvoiceData) InvoiceData {
	inv.InvoiceNumber = strings.TrimSpace(inv.InvoiceNumber)
	inv.Seller.PIB = DigitsOnly(inv.Seller.PIB)
	inv.Seller.Name = strings.TrimSpace(inv.Seller.Name)
	if inv.Seller.BankAccount != "" {
		inv.Seller.BankAccount = FormatBankAccount(inv.Seller.BankAccount)
	}
	inv.Buyer.PIB = DigitsOnly(inv.Buyer.PIB)
	inv.Buyer.Name = strings.TrimSpace(inv.Buyer.Name)
	if inv.Currency == "" {
		inv.Currency = DefaultCurrency
	}
	if inv.PaymentMeansCode == "" {
		inv.PaymentMeansCode = DefaultPaymentMeansCode
	}
	if inv.InvoiceNumber != "" {
		inv.PaymentReference = PaymentReference(inv.InvoiceNumber)
	}
	items := make([]InvoiceItem, len(inv.Items))
	for i, item := range inv.Items {
		item.Description = strings.TrimSpace(item.Description)
		if item.Unit == "" {
			item.Unit = UnitPiece
		}
		items[i] = item
	}
	inv.Items = items
	return inv
}
