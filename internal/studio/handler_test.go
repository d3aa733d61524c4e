package studio

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lako-services/lako-web/internal/efaktura"
	"github.com/lako-services/lako-web/internal/generation"
	"github.com/lako-services/lako-web/internal/history"
)

type fakeBackend struct {
	createErr error
	status    generation.StatusResponse
	creates   int
	got       efaktura.InvoiceData
}

func (f *fakeBackend) Create(_ context.Context, inv efaktura.InvoiceData) (string, error) {
	f.creates++
	f.got = inv
	if f.createErr != nil {
		return "", f.createErr
	}
	return "job-7", nil
}

func (f *fakeBackend) Generate(context.Context, string) error { return nil }

func (f *fakeBackend) Status(context.Context, string) (generation.StatusResponse, error) {
	return f.status, nil
}

func (f *fakeBackend) Download(context.Context, string) (generation.DownloadResponse, error) {
	return generation.DownloadResponse{
		PDF: base64.StdEncoding.EncodeToString([]byte("pdf")),
		XML: base64.StdEncoding.EncodeToString([]byte("xml")),
	}, nil
}

type fixture struct {
	router  http.Handler
	store   history.Store
	backend *fakeBackend
	profile string
	states  []generation.State
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:   history.NewMemoryStore(),
		backend: &fakeBackend{status: generation.StatusResponse{Status: generation.JobReady}},
		profile: uuid.NewString(),
	}
	h := NewHandler(nil, Options{
		Backend:    f.backend,
		Store:      f.store,
		Generation: generation.Config{PollInterval: time.Millisecond, MaxPollAttempts: 3},
		Observe:    func(s generation.State, _ time.Duration) { f.states = append(f.states, s) },
	})
	r := chi.NewRouter()
	r.Route("/api/studio", h.MountRoutes)
	f.router = r
	return f
}

func (f *fixture) do(t *testing.T, method, path string, body any, profile string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if profile != "" {
		req.Header.Set(ProfileHeader, profile)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func invoice() efaktura.InvoiceData {
	inv := efaktura.NewInvoice(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	inv.InvoiceNumber = "001/2026"
	inv.Seller = efaktura.SellerData{PIB: "123456789", Name: "Lako", Country: "RS", VATRegistered: true}
	inv.Buyer = efaktura.BuyerData{PIB: "987654321", Name: "Kupac", City: "Niš", Country: "RS"}
	inv.Items[0].Description = "Hosting"
	inv.Items[0].Quantity = efaktura.NewNumber("2")
	inv.Items[0].UnitPrice = efaktura.NewNumber("617.25")
	return inv
}

func TestTotals(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/studio/totals", invoice(), "")

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var body struct {
		Subtotal         string                `json:"subtotal"`
		TotalVAT         string                `json:"totalVat"`
		GrandTotal       string                `json:"grandTotal"`
		PaymentReference string                `json:"paymentReference"`
		Completeness     efaktura.Completeness `json:"completeness"`
		Formatted        formattedTotals       `json:"formatted"`
		IssueDate        string                `json:"issueDateDisplay"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "1234.5", body.Subtotal)
	assert.Equal(t, "246.9", body.TotalVAT)
	assert.Equal(t, "1.481,40", body.Formatted.GrandTotal)
	assert.Equal(t, efaktura.PaymentReference("001/2026"), body.PaymentReference)
	assert.True(t, body.Completeness.Complete())
	assert.Equal(t, "01.03.2026", body.IssueDate)
}

func TestReference(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/studio/reference?invoiceNumber=001%2F2026", nil, "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"reference":"070012026"}`, rec.Body.String())
}

func TestGenerateRecordsHistory(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/studio/generate", invoice(), f.profile)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var result generation.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, "Faktura-001-2026.pdf", result.PDF.FileName)
	assert.Equal(t, []byte("pdf"), result.PDF.Data)
	assert.Equal(t, []generation.State{generation.StateReady}, f.states)

	rec = f.do(t, http.MethodGet, "/api/studio/buyers/987654321", nil, f.profile)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"name":"Kupac","address":"","city":"Niš"}`, rec.Body.String())

	rec = f.do(t, http.MethodGet, "/api/studio/items", nil, f.profile)
	require.Equal(t, http.StatusOK, rec.Code)
	var items []history.ItemEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &items))
	require.Len(t, items, 1)
	assert.Equal(t, "Hosting", items[0].Description)
}

func TestGenerateIncomplete(t *testing.T) {
	f := newFixture(t)
	inv := invoice()
	inv.Buyer.Name = ""

	rec := f.do(t, http.MethodPost, "/api/studio/generate", inv, "")

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Zero(t, f.backend.creates)
	assert.Contains(t, rec.Body.String(), `"completeness"`)
}

func TestGenerateRateLimited(t *testing.T) {
	f := newFixture(t)
	f.backend.createErr = &generation.APIError{StatusCode: http.StatusTooManyRequests, Message: "Daily limit of 10 invoices reached"}

	rec := f.do(t, http.MethodPost, "/api/studio/generate", invoice(), "")

	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	var body generateError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, generation.TierRegistered, body.Tier)
	assert.Equal(t, generation.StateRateLimitedRegistered, body.State)
}

func TestGenerateTimeoutIsBadGateway(t *testing.T) {
	f := newFixture(t)
	f.backend.status = generation.StatusResponse{Status: generation.JobPending}

	rec := f.do(t, http.MethodPost, "/api/studio/generate", invoice(), "")

	require.Equal(t, http.StatusBadGateway, rec.Code)
	var body generateError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Timeout waiting for generation", body.Error)
	assert.Equal(t, generation.StateError, body.State)
}

func TestGenerateRejectsInvalidFields(t *testing.T) {
	f := newFixture(t)
	inv := invoice()
	inv.IssueDate = "1.3.2026"

	rec := f.do(t, http.MethodPost, "/api/studio/generate", inv, "")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "IssueDate")
}

func TestGenerateNormalizesBeforeValidating(t *testing.T) {
	f := newFixture(t)
	inv := invoice()
	inv.Seller.PIB = "123 456 789"
	inv.Buyer.PIB = "987-654-321"

	rec := f.do(t, http.MethodPost, "/api/studio/generate", inv, "")

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "123456789", f.backend.got.Seller.PIB)
	assert.Equal(t, "987654321", f.backend.got.Buyer.PIB)
}

func TestSellerProfile(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/studio/seller", nil, f.profile)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodPut, "/api/studio/seller", efaktura.SellerData{Country: "RS"}, f.profile)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"saved":false}`, rec.Body.String())

	rec = f.do(t, http.MethodPut, "/api/studio/seller", efaktura.SellerData{PIB: "123-456-789", Name: "Lako", BankAccount: "160000000000000012"}, f.profile)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"saved":true}`, rec.Body.String())

	rec = f.do(t, http.MethodGet, "/api/studio/seller", nil, f.profile)
	require.Equal(t, http.StatusOK, rec.Code)
	var seller efaktura.SellerData
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &seller))
	assert.Equal(t, "123456789", seller.PIB)
	assert.Equal(t, "160-0000000000000-12", seller.BankAccount)

	rec = f.do(t, http.MethodGet, "/api/studio/seller", nil, uuid.NewString())
	assert.Equal(t, http.StatusNotFound, rec.Code, "profiles are isolated")
}

func TestHistoryNeedsProfile(t *testing.T) {
	f := newFixture(t)
	for _, profile := range []string{"", "not-a-uuid"} {
		rec := f.do(t, http.MethodGet, "/api/studio/items", nil, profile)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	}
}

func TestAutofill(t *testing.T) {
	f := newFixture(t)
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/api/studio/generate", invoice(), f.profile).Code)

	draft := efaktura.InvoiceData{
		Buyer: efaktura.BuyerData{PIB: "987654321"},
		Items: []efaktura.InvoiceItem{{Description: "Hosting", Quantity: efaktura.NumberFromInt(1)}},
	}
	rec := f.do(t, http.MethodPost, "/api/studio/autofill", draft, f.profile)

	require.Equal(t, http.StatusOK, rec.Code)
	var filled efaktura.InvoiceData
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &filled))
	assert.Equal(t, "Kupac", filled.Buyer.Name)
	assert.Equal(t, "617.25", filled.Items[0].UnitPrice.String())
}
