package submission

import (
	"encoding/json"
	"strings"
	"unicode/utf8"
)

// Field length caps in runes.
const (
	MaxFieldLen   = 500
	MaxMessageLen = 5000
	MaxHeaderLen  = 200
)

// NotAvailable stands in for empty optional fields in notifications.
const NotAvailable = "N/A"

// FormString decodes any JSON value; everything that is not a string
// becomes "".
type FormString string

// UnmarshalJSON implements json.Unmarshaler.
func (s *FormString) UnmarshalJSON(data []byte) error {
	var v string
	if err := json.Unmarshal(data, &v); err != nil {
		*s = ""
		return nil
	}
	*s = FormString(v)
	return nil
}

// Clean trims s and caps it at limit runes.
func Clean(s FormString, limit int) string {
	out := strings.TrimSpace(string(s))
	if utf8.RuneCountInString(out) <= limit {
		return out
	}
	return string([]rune(out)[:limit])
}

var headerReplacer = strings.NewReplacer("\r", " ", "\n", " ", "\t", " ")

// HeaderValue makes s safe for an email header.
func HeaderValue(s string) string {
	out := strings.TrimSpace(headerReplacer.Replace(s))
	if utf8.RuneCountInString(out) <= MaxHeaderLen {
		return out
	}
	return string([]rune(out)[:MaxHeaderLen])
}

var htmlReplacer = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

// EscapeHTML escapes the characters Telegram's HTML parse mode reserves.
func EscapeHTML(s string) string {
	return htmlReplacer.Replace(s)
}

func orNA(s string) string {
	if s == "" {
		return NotAvailable
	}
	return s
}
