// Package studio serves the eFaktura studio API: live totals, payment
// references, server-side generation and the per-profile history.
package studio

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/lako-services/lako-web/internal/efaktura"
	"github.com/lako-services/lako-web/internal/generation"
	"github.com/lako-services/lako-web/internal/history"
	"github.com/lako-services/lako-web/internal/platform/httpx"
	"github.com/lako-services/lako-web/internal/ratelimit"
)

// ProfileHeader carries the browser-generated profile id that scopes
// history.
const ProfileHeader = "X-Studio-Profile"

var errProfile = &httpx.FieldError{
	Message: "Missing or invalid studio profile",
	Fields:  map[string]string{ProfileHeader: "uuid"},
}

// Options wires a Handler.
type Options struct {
	Backend    generation.Backend
	Store      history.Store
	Generation generation.Config
	// Limiter throttles generate requests; nil disables it.
	Limiter *ratelimit.FixedWindow
	// Observe receives the outcome of every generation cycle.
	Observe func(generation.State, time.Duration)
}

// Handler serves the studio endpoints.
type Handler struct {
	logger *slog.Logger
	opts   Options
}

// NewHandler builds a Handler.
func NewHandler(logger *slog.Logger, opts Options) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Store == nil {
		opts.Store = history.NewMemoryStore()
	}
	return &Handler{logger: logger, opts: opts}
}

// MountRoutes registers the studio routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/totals", h.totals)
	r.Get("/reference", h.reference)
	r.Group(func(r chi.Router) {
		if h.opts.Limiter != nil {
			r.Use(h.opts.Limiter.Middleware)
		}
		r.Post("/generate", h.generate)
	})
	r.Post("/autofill", h.autofill)
	r.Get("/seller", h.getSeller)
	r.Put("/seller", h.putSeller)
	r.Get("/buyers/{pib}", h.getBuyer)
	r.Get("/items", h.getItems)
}

// profile returns the history for the request's profile header. ok is false
// when the header is missing or not a UUID.
func (h *Handler) profile(r *http.Request) (*history.History, bool) {
	raw := strings.TrimSpace(r.Header.Get(ProfileHeader))
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, false
	}
	return history.New(h.opts.Store, id.String(), h.logger), true
}

type formattedTotals struct {
	Subtotal   string `json:"subtotal"`
	TotalVAT   string `json:"totalVat"`
	GrandTotal string `json:"grandTotal"`
}

type totalsResponse struct {
	efaktura.Totals
	PaymentReference string                `json:"paymentReference"`
	Completeness     efaktura.Completeness `json:"completeness"`
	Formatted        formattedTotals       `json:"formatted"`
	IssueDate        string                `json:"issueDateDisplay"`
	DueDate          string                `json:"dueDateDisplay"`
}

func (h *Handler) totals(w http.ResponseWriter, r *http.Request) {
	var inv efaktura.InvoiceData
	if err := httpx.DecodeJSON(w, r, &inv); err != nil {
		httpx.RespondError(w, err)
		return
	}
	inv = efaktura.Normalize(inv)
	totals := efaktura.ComputeTotals(inv)
	httpx.JSON(w, http.StatusOK, totalsResponse{
		Totals:           totals,
		PaymentReference: inv.PaymentReference,
		Completeness:     efaktura.CheckCompleteness(inv),
		Formatted: formattedTotals{
			Subtotal:   efaktura.FormatAmount(totals.Subtotal),
			TotalVAT:   efaktura.FormatAmount(totals.TotalVAT),
			GrandTotal: efaktura.FormatAmount(totals.GrandTotal),
		},
		IssueDate: efaktura.FormatDate(inv.IssueDate),
		DueDate:   efaktura.FormatDate(inv.DueDate),
	})
}

func (h *Handler) reference(w http.ResponseWriter, r *http.Request) {
	number := r.URL.Query().Get("invoiceNumber")
	httpx.JSON(w, http.StatusOK, map[string]string{"reference": efaktura.PaymentReference(number)})
}

type generateError struct {
	Error        string                 `json:"error"`
	State        generation.State       `json:"state"`
	Tier         generation.Tier        `json:"tier,omitempty"`
	Completeness *efaktura.Completeness `json:"completeness,omitempty"`
}

func (h *Handler) generate(w http.ResponseWriter, r *http.Request) {
	var inv efaktura.InvoiceData
	if err := httpx.DecodeJSON(w, r, &inv); err != nil {
		httpx.RespondError(w, err)
		return
	}
	inv = efaktura.Normalize(inv)
	if err := efaktura.Validate(inv); err != nil {
		var fields efaktura.FieldErrors
		if errors.As(err, &fields) {
			httpx.RespondError(w, &httpx.FieldError{Message: "Invalid invoice", Fields: fields})
			return
		}
		httpx.RespondError(w, err)
		return
	}

	opts := []generation.Option{generation.WithLogger(h.logger)}
	if h.opts.Observe != nil {
		opts = append(opts, generation.WithObserver(h.opts.Observe))
	}
	if hist, ok := h.profile(r); ok {
		opts = append(opts, generation.WithRecorder(hist))
	}
	orch := generation.NewOrchestrator(h.opts.Backend, h.opts.Generation, opts...)

	result, err := orch.Submit(r.Context(), inv)
	if err == nil {
		httpx.JSON(w, http.StatusOK, result)
		return
	}

	var rl *generation.RateLimitError
	switch {
	case errors.Is(err, generation.ErrIncomplete):
		c := efaktura.CheckCompleteness(inv)
		httpx.JSON(w, http.StatusUnprocessableEntity, generateError{
			Error:        "Invoice is incomplete",
			State:        generation.StateIdle,
			Completeness: &c,
		})
	case errors.As(err, &rl):
		httpx.JSON(w, http.StatusTooManyRequests, generateError{
			Error: generation.Message(err),
			State: orch.State(),
			Tier:  rl.Tier,
		})
	default:
		httpx.JSON(w, httpx.StatusOf(fmt.Errorf("%w: %w", httpx.ErrUpstream, err)), generateError{
			Error: generation.Message(err),
			State: orch.State(),
		})
	}
}

func (h *Handler) autofill(w http.ResponseWriter, r *http.Request) {
	hist, ok := h.profile(r)
	if !ok {
		httpx.RespondError(w, errProfile)
		return
	}
	var inv efaktura.InvoiceData
	if err := httpx.DecodeJSON(w, r, &inv); err != nil {
		httpx.RespondError(w, err)
		return
	}
	filled, err := hist.Autofill(r.Context(), inv)
	if err != nil {
		h.logger.Error("autofill invoice", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, filled)
}

func (h *Handler) getSeller(w http.ResponseWriter, r *http.Request) {
	hist, ok := h.profile(r)
	if !ok {
		httpx.RespondError(w, errProfile)
		return
	}
	seller, err := hist.Seller(r.Context())
	if err != nil {
		h.logger.Error("load seller", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if seller == nil {
		httpx.RespondError(w, httpx.ErrNotFound)
		return
	}
	httpx.JSON(w, http.StatusOK, seller)
}

func (h *Handler) putSeller(w http.ResponseWriter, r *http.Request) {
	hist, ok := h.profile(r)
	if !ok {
		httpx.RespondError(w, errProfile)
		return
	}
	var seller efaktura.SellerData
	if err := httpx.DecodeJSON(w, r, &seller); err != nil {
		httpx.RespondError(w, err)
		return
	}
	seller = efaktura.Normalize(efaktura.InvoiceData{Seller: seller}).Seller
	saved, err := hist.SaveSeller(r.Context(), seller)
	if err != nil {
		h.logger.Error("save seller", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]bool{"saved": saved})
}

func (h *Handler) getBuyer(w http.ResponseWriter, r *http.Request) {
	hist, ok := h.profile(r)
	if !ok {
		httpx.RespondError(w, errProfile)
		return
	}
	entry, found, err := hist.LookupBuyer(r.Context(), chi.URLParam(r, "pib"))
	if err != nil {
		h.logger.Error("lookup buyer", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if !found {
		httpx.RespondError(w, httpx.ErrNotFound)
		return
	}
	httpx.JSON(w, http.StatusOK, entry)
}

func (h *Handler) getItems(w http.ResponseWriter, r *http.Request) {
	hist, ok := h.profile(r)
	if !ok {
		httpx.RespondError(w, errProfile)
		return
	}
	items, err := hist.Items(r.Context())
	if err != nil {
		h.logger.Error("load items", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if items == nil {
		items = []history.ItemEntry{}
	}
	httpx.JSON(w, http.StatusOK, items)
}
