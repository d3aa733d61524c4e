package submission

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lako-services/lako-web/internal/notify"
)

func contactNotification(f ContactForm) notify.Notification {
	name := EscapeHTML(f.Name)
	email := EscapeHTML(f.Email)
	phone := EscapeHTML(orNA(f.Phone))
	businessType := EscapeHTML(orNA(f.BusinessType))
	message := EscapeHTML(f.Message)

	html := strings.Join([]string{
		"<h2>Nova poruka sa sajta</h2>",
		"<p><strong>Ime:</strong> " + name + "</p>",
		"<p><strong>Email:</strong> " + email + "</p>",
		"<p><strong>Telefon:</strong> " + phone + "</p>",
		"<p><strong>Tip biznisa:</strong> " + businessType + "</p>",
		"<p><strong>Poruka:</strong></p>",
		"<p>" + strings.ReplaceAll(message, "\n", "<br>") + "</p>",
	}, "\n")

	telegram := strings.Join([]string{
		"<b>Nova poruka sa sajta!</b>",
		"",
		"<b>Ime:</b> " + name,
		"<b>Email:</b> " + email,
		"<b>Telefon:</b> " + phone,
		"<b>Tip biznisa:</b> " + businessType,
		"",
		"<b>Poruka:</b>",
		message,
	}, "\n")

	return notify.Notification{
		Kind:     notify.KindContact,
		Subject:  fmt.Sprintf("Nova poruka od %s (%s)", HeaderValue(f.Name), HeaderValue(orNA(f.BusinessType))),
		HTML:     html,
		Telegram: telegram,
		ReplyTo:  HeaderValue(f.Email),
	}
}

func registrationNotification(f RegistrationForm) (notify.Notification, error) {
	payload, err := json.Marshal(f)
	if err != nil {
		return notify.Notification{}, fmt.Errorf("encode registration: %w", err)
	}

	rows := []struct{ email, telegram, value string }{
		{"Naziv", "Naziv", f.BusinessName},
		{"Kategorija", "Kategorija", f.Category},
		{"Grad", "Grad", f.City},
		{"Adresa", "Adresa", f.Address},
		{"Telefon", "Telefon", f.Phone},
		{"Instagram", "Instagram", orNA(f.Instagram)},
		{"Web sajt", "Web sajt", orNA(f.Website)},
		{"Kontakt osoba", "Kontakt", f.ContactName},
		{"Email", "Email", f.Email},
	}
	html := []string{"<h2>Novi zahtev za registraciju biznisa</h2>"}
	telegram := []string{"<b>Novi zahtev za registraciju!</b>", ""}
	for _, row := range rows {
		value := EscapeHTML(row.value)
		html = append(html, "<p><strong>"+row.email+":</strong> "+value+"</p>")
		telegram = append(telegram, "<b>"+row.telegram+":</b> "+value)
	}

	return notify.Notification{
		Kind:     notify.KindRegistration,
		Subject:  fmt.Sprintf("Novi zahtev za registraciju: %s (%s)", HeaderValue(f.BusinessName), HeaderValue(f.Category)),
		HTML:     strings.Join(html, "\n"),
		Telegram: strings.Join(telegram, "\n"),
		ReplyTo:  HeaderValue(f.Email),
		Payload:  payload,
	}, nil
}
