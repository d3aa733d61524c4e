// Package submission serves the public contact and business registration
// forms.
package submission

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/lako-services/lako-web/internal/notify"
	"github.com/lako-services/lako-web/internal/platform/httpx"
	"github.com/lako-services/lako-web/internal/ratelimit"
)

// Response messages.
const (
	MsgMissingFields = "Missing required fields"
	MsgInvalidEmail  = "Invalid email address"
	MsgDeliveryFail  = "Failed to send message. Please try again or contact us directly."
)

// DefaultAllowedOrigins are the site origins allowed to post forms.
var DefaultAllowedOrigins = []string{"https://lako.services", "http://localhost:4321"}

// Notifier delivers a rendered submission.
type Notifier interface {
	Dispatch(ctx context.Context, n notify.Notification) notify.Report
}

// Handler serves the form endpoints.
type Handler struct {
	logger    *slog.Logger
	notifier  Notifier
	limiter   *ratelimit.FixedWindow
	origins   map[string]struct{}
	validator *validator.Validate
}

// NewHandler builds a Handler. A nil limiter disables contact rate limiting;
// empty origins means DefaultAllowedOrigins.
func NewHandler(logger *slog.Logger, notifier Notifier, limiter *ratelimit.FixedWindow, origins []string) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if len(origins) == 0 {
		origins = DefaultAllowedOrigins
	}
	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		allowed[o] = struct{}{}
	}
	return &Handler{
		logger:    logger,
		notifier:  notifier,
		limiter:   limiter,
		origins:   allowed,
		validator: NewValidator(),
	}
}

// MountRoutes registers the form routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.requireOrigin)
		r.Post("/register-business", h.registerBusiness)
		r.Group(func(r chi.Router) {
			if h.limiter != nil {
				r.Use(h.limiter.Middleware)
			}
			r.Post("/contact", h.contact)
		})
	})
}

func (h *Handler) requireOrigin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if _, ok := h.origins[origin]; origin == "" || !ok {
			h.logger.Warn("rejected form origin", slog.String("origin", origin), slog.String("path", r.URL.Path))
			httpx.RespondError(w, httpx.ErrForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) contact(w http.ResponseWriter, r *http.Request) {
	var req contactRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	form := req.form()
	if err := h.validate(form); err != nil {
		httpx.RespondError(w, err)
		return
	}

	report := h.notifier.Dispatch(r.Context(), contactNotification(form))
	if !report.Any() {
		h.logger.Error("contact message not delivered", slog.Int("failed", len(report.Failed)))
		httpx.Error(w, http.StatusInternalServerError, MsgDeliveryFail)
		return
	}
	httpx.Success(w)
}

func (h *Handler) registerBusiness(w http.ResponseWriter, r *http.Request) {
	var req registrationRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	form := req.form()
	if err := h.validate(form); err != nil {
		httpx.RespondError(w, err)
		return
	}

	n, err := registrationNotification(form)
	if err != nil {
		h.logger.Error("render registration", slog.Any("error", err))
		httpx.Success(w)
		return
	}
	// Registration answers success regardless of delivery.
	report := h.notifier.Dispatch(r.Context(), n)
	if !report.Any() {
		h.logger.Error("registration not delivered",
			slog.String("business", form.BusinessName),
			slog.Int("failed", len(report.Failed)))
	}
	httpx.Success(w)
}

func (h *Handler) validate(form any) error {
	err := h.validator.Struct(form)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	fields := make(map[string]string, len(verrs))
	message := MsgInvalidEmail
	for _, fe := range verrs {
		fields[fe.Field()] = fe.Tag()
		if fe.Tag() == "required" {
			message = MsgMissingFields
		}
	}
	return &httpx.FieldError{Message: message, Fields: fields}
}
