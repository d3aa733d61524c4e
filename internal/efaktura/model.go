package efaktura

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Unit is the unit-of-measure code carried on an invoice line.
type Unit string

// Unit codes accepted by the generation service.
const (
	UnitPiece   Unit = "kom"
	UnitKg      Unit = "kg"
	UnitMeter   Unit = "m"
	UnitLiter   Unit = "l"
	UnitHour    Unit = "h"
	UnitDay     Unit = "dan"
	UnitKm      Unit = "km"
	UnitPackage Unit = "paket"
)

// VATRate is a Serbian VAT rate in percent.
type VATRate int

// Supported VAT rates.
const (
	VATExempt  VATRate = 0
	VATReduced VATRate = 10
	VATGeneral VATRate = 20
)

// UnmarshalJSON accepts numbers or numeric strings. Anything outside the
// supported set decodes to VATExempt.
func (r *VATRate) UnmarshalJSON(data []byte) error {
	raw := strings.Trim(strings.TrimSpace(string(data)), `"`)
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		*r = VATExempt
		return nil
	}
	switch v {
	case 10, 20:
		*r = VATRate(v)
	default:
		*r = VATExempt
	}
	return nil
}

// Number is a non-negative decimal decoded leniently from form input:
// null, blank, non-numeric and negative values all become zero.
type Number struct {
	decimal.Decimal
}

// NewNumber parses s with the same leniency as JSON decoding.
func NewNumber(s string) Number {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil || d.IsNegative() {
		return Number{Decimal: decimal.Zero}
	}
	return Number{Decimal: d}
}

// NumberFromInt wraps an integer amount.
func NumberFromInt(v int64) Number {
	return NewNumber(strconv.FormatInt(v, 10))
}

// UnmarshalJSON implements json.Unmarshaler.
func (n *Number) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			*n = Number{Decimal: decimal.Zero}
			return nil
		}
		*n = NewNumber(s)
		return nil
	}
	*n = NewNumber(string(data))
	return nil
}

// MarshalJSON renders the value as a bare JSON number.
func (n Number) MarshalJSON() ([]byte, error) {
	return []byte(n.Decimal.String()), nil
}

// SellerData identifies the issuing party.
type SellerData struct {
	PIB           string `json:"pib" validate:"omitempty,numeric,len=9"`
	MB            string `json:"mb,omitempty" validate:"omitempty,numeric"`
	Name          string `json:"name"`
	Address       string `json:"address"`
	City          string `json:"city"`
	PostalCode    string `json:"postalCode,omitempty"`
	Country       string `json:"country" validate:"omitempty,len=2"`
	BankAccount   string `json:"bankAccount,omitempty"`
	BankName      string `json:"bankName,omitempty"`
	VATRegistered bool   `json:"vatRegistered"`
}

// BuyerData identifies the receiving party.
type BuyerData struct {
	PIB           string `json:"pib,omitempty" validate:"omitempty,numeric,len=9"`
	MB            string `json:"mb,omitempty" validate:"omitempty,numeric"`
	Name          string `json:"name"`
	Address       string `json:"address"`
	City          string `json:"city"`
	PostalCode    string `json:"postalCode,omitempty"`
	Country       string `json:"country" validate:"omitempty,len=2"`
	VATRegistered bool   `json:"vatRegistered,omitempty"`
}

// InvoiceItem is a single line as entered by the user. ID only keeps list
// rendering stable on the client.
type InvoiceItem struct {
	ID          string  `json:"id"`
	Description string  `json:"description"`
	Quantity    Number  `json:"quantity"`
	Unit        Unit    `json:"unit" validate:"omitempty,oneof=kom kg m l h dan km paket"`
	UnitPrice   Number  `json:"unitPrice"`
	VATRate     VATRate `json:"vatRate"`
}

// InvoiceData is the full payload submitted to the generation service.
type InvoiceData struct {
	InvoiceNumber    string        `json:"invoiceNumber"`
	IssueDate        string        `json:"issueDate" validate:"omitempty,datetime=2006-01-02"`
	DueDate          string        `json:"dueDate" validate:"omitempty,datetime=2006-01-02"`
	DeliveryDate     string        `json:"deliveryDate,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Seller           SellerData    `json:"seller"`
	Buyer            BuyerData     `json:"buyer"`
	Items            []InvoiceItem `json:"items" validate:"min=1,dive"`
	PaymentMeansCode string        `json:"paymentMeansCode"`
	PaymentReference string        `json:"paymentReference,omitempty"`
	Notes            string        `json:"notes,omitempty"`
	Currency         string        `json:"currency" validate:"omitempty,len=3"`
}

// LineItem is an InvoiceItem with its computed VAT and gross amount.
type LineItem struct {
	InvoiceItem
	VATAmount   decimal.Decimal `json:"vatAmount"`
	TotalAmount decimal.Decimal `json:"totalAmount"`
}

// VATSummaryEntry aggregates base and tax for one VAT rate.
type VATSummaryEntry struct {
	Rate   VATRate         `json:"rate"`
	Base   decimal.Decimal `json:"base"`
	Amount decimal.Decimal `json:"amount"`
}

// Defaults applied to fresh invoices.
const (
	DefaultCountry          = "RS"
	DefaultCurrency         = "RSD"
	DefaultPaymentMeansCode = "30"
	DefaultDueDays          = 30
	dateLayout              = "2006-01-02"
)

// NewItem returns an empty line with the studio defaults.
func NewItem() InvoiceItem {
	return InvoiceItem{
		ID:        uuid.NewString(),
		Quantity:  NumberFromInt(1),
		Unit:      UnitPiece,
		UnitPrice: NumberFromInt(0),
		VATRate:   VATGeneral,
	}
}

// NewInvoice returns a blank invoice dated at now.
func NewInvoice(now time.Time) InvoiceData {
	today := now.UTC().Format(dateLayout)
	return InvoiceData{
		IssueDate:        today,
		DueDate:          now.UTC().AddDate(0, 0, DefaultDueDays).Format(dateLayout),
		DeliveryDate:     today,
		Seller:           SellerData{Country: DefaultCountry},
		Buyer:            BuyerData{Country: DefaultCountry},
		Items:            []InvoiceItem{NewItem()},
		PaymentMeansCode: DefaultPaymentMeansCode,
		Currency:         DefaultCurrency,
	}
}
