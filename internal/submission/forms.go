package submission

import (
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var mailboxPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// NewValidator returns a validator that knows the mailbox tag and reports
// fields by their JSON names.
func NewValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("mailbox", func(fl validator.FieldLevel) bool {
		return mailboxPattern.MatchString(fl.Field().String())
	})
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

type contactRequest struct {
	Name         FormString `json:"name"`
	Email        FormString `json:"email"`
	Phone        FormString `json:"phone"`
	BusinessType FormString `json:"businessType"`
	Message      FormString `json:"message"`
}

// ContactForm is a sanitized contact submission.
type ContactForm struct {
	Name         string `json:"name" validate:"required"`
	Email        string `json:"email" validate:"required,mailbox"`
	Phone        string `json:"phone"`
	BusinessType string `json:"businessType"`
	Message      string `json:"message" validate:"required"`
}

func (r contactRequest) form() ContactForm {
	return ContactForm{
		Name:         Clean(r.Name, MaxFieldLen),
		Email:        Clean(r.Email, MaxFieldLen),
		Phone:        Clean(r.Phone, MaxFieldLen),
		BusinessType: Clean(r.BusinessType, MaxFieldLen),
		Message:      Clean(r.Message, MaxMessageLen),
	}
}

type registrationRequest struct {
	BusinessName FormString `json:"businessName"`
	Category     FormString `json:"category"`
	City         FormString `json:"city"`
	Address      FormString `json:"address"`
	Phone        FormString `json:"phone"`
	Instagram    FormString `json:"instagram"`
	Website      FormString `json:"website"`
	ContactName  FormString `json:"contactName"`
	Email        FormString `json:"email"`
}

// RegistrationForm is a sanitized business registration. Its JSON form is
// what the registration API receives.
type RegistrationForm struct {
	BusinessName string `json:"businessName" validate:"required"`
	Category     string `json:"category" validate:"required"`
	City         string `json:"city" validate:"required"`
	Address      string `json:"address" validate:"required"`
	Phone        string `json:"phone" validate:"required"`
	Instagram    string `json:"instagram"`
	Website      string `json:"website"`
	ContactName  string `json:"contactName" validate:"required"`
	Email        string `json:"email" validate:"required,mailbox"`
}

func (r registrationRequest) form() RegistrationForm {
	return RegistrationForm{
		BusinessName: Clean(r.BusinessName, MaxFieldLen),
		Category:     Clean(r.Category, MaxFieldLen),
		City:         Clean(r.City, MaxFieldLen),
		Address:      Clean(r.Address, MaxFieldLen),
		Phone:        Clean(r.Phone, MaxFieldLen),
		Instagram:    Clean(r.Instagram, MaxFieldLen),
		Website:      Clean(r.Website, MaxFieldLen),
		ContactName:  Clean(r.ContactName, MaxFieldLen),
		Email:        Clean(r.Email, MaxFieldLen),
	}
}
