package generation

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lako-services/lako-web/internal/efaktura"
)

type fakeService struct {
	createStatus int
	createBody   string
	genStatus    int
	// statuses is consumed one per poll; the last entry repeats.
	statuses    []string
	statusDelay time.Duration
	pdf, xml    string

	polls   atomic.Int32
	created atomic.Int32
	mu      sync.Mutex
	got     efaktura.InvoiceData
}

func (f *fakeService) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/efaktura/invoices", func(w http.ResponseWriter, r *http.Request) {
		f.created.Add(1)
		f.mu.Lock()
		_ = json.NewDecoder(r.Body).Decode(&f.got)
		f.mu.Unlock()
		if f.createStatus != 0 {
			w.WriteHeader(f.createStatus)
			_, _ = w.Write([]byte(f.createBody))
			return
		}
		_, _ = w.Write([]byte(`{"id":"inv-1"}`))
	})
	mux.HandleFunc("POST /api/efaktura/invoices/{id}/generate", func(w http.ResponseWriter, r *http.Request) {
		if f.genStatus != 0 {
			w.WriteHeader(f.genStatus)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	})
	mux.HandleFunc("GET /api/efaktura/invoices/{id}/status", func(w http.ResponseWriter, r *http.Request) {
		n := int(f.polls.Add(1)) - 1
		if f.statusDelay > 0 {
			select {
			case <-r.Context().Done():
				return
			case <-time.After(f.statusDelay):
			}
		}
		if n >= len(f.statuses) {
			n = len(f.statuses) - 1
		}
		switch entry := f.statuses[n]; entry {
		case "500":
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"status":"error","errorMessage":"Render worker crashed"}`))
		case "502":
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte(`bad gateway`))
		case JobPending, JobReady:
			_, _ = w.Write([]byte(`{"status":"` + entry + `"}`))
		default:
			_, _ = w.Write([]byte(`{"status":"error","errorMessage":"` + entry + `"}`))
		}
	})
	mux.HandleFunc("GET /api/efaktura/invoices/{id}/download", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(DownloadResponse{PDF: f.pdf, XML: f.xml})
	})
	return mux
}

func newFakeService(t *testing.T, f *fakeService) *Client {
	t.Helper()
	if f.pdf == "" {
		f.pdf = base64.StdEncoding.EncodeToString([]byte("%PDF-1.7"))
	}
	if f.xml == "" {
		f.xml = base64.StdEncoding.EncodeToString([]byte("<Invoice/>"))
	}
	srv := httptest.NewServer(f.handler())
	t.Cleanup(srv.Close)
	return NewClient(ClientConfig{BaseURL: srv.URL + "/", Timeout: 5 * time.Second})
}

func fastConfig() Config {
	return Config{PollInterval: time.Millisecond, MaxPollAttempts: DefaultMaxPollAttempts}
}

func validInvoice() efaktura.InvoiceData {
	inv := efaktura.NewInvoice(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	inv.InvoiceNumber = "001/2026"
	inv.Seller.Name = "Lako d.o.o."
	inv.Seller.PIB = "123456789"
	inv.Buyer.Name = "Kupac d.o.o."
	inv.Buyer.PIB = "987654321"
	inv.Items[0].Description = "Hosting"
	inv.Items[0].UnitPrice = efaktura.NumberFromInt(1000)
	return inv
}

func repeat(entry string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = entry
	}
	return out
}

type recorderFunc func(ctx context.Context, inv efaktura.InvoiceData) error

func (f recorderFunc) Remember(ctx context.Context, inv efaktura.InvoiceData) error {
	return f(ctx, inv)
}

func TestSubmitHappyPath(t *testing.T) {
	svc := &fakeService{statuses: []string{JobPending, JobPending, JobReady}}
	var remembered efaktura.InvoiceData
	var observed State
	o := NewOrchestrator(newFakeService(t, svc), fastConfig(),
		WithRecorder(recorderFunc(func(_ context.Context, inv efaktura.InvoiceData) error {
			remembered = inv
			return nil
		})),
		WithObserver(func(s State, _ time.Duration) { observed = s }))

	result, err := o.Submit(context.Background(), validInvoice())

	require.NoError(t, err)
	assert.Equal(t, StateReady, o.State())
	assert.Equal(t, StateReady, observed)
	assert.Equal(t, 3, o.Polls())
	assert.Equal(t, "inv-1", result.InvoiceID)
	assert.Equal(t, "Faktura-001-2026.pdf", result.PDF.FileName)
	assert.Equal(t, ContentTypePDF, result.PDF.ContentType)
	assert.Equal(t, []byte("%PDF-1.7"), result.PDF.Data)
	assert.Equal(t, "eFaktura-001-2026.xml", result.XML.FileName)
	assert.Equal(t, []byte("<Invoice/>"), result.XML.Data)
	assert.Equal(t, "Kupac d.o.o.", remembered.Buyer.Name)
	assert.Equal(t, efaktura.PaymentReference("001/2026"), svc.got.PaymentReference)
}

func TestSubmitRequiresResetAfterTerminalState(t *testing.T) {
	svc := &fakeService{statuses: []string{JobReady}}
	o := NewOrchestrator(newFakeService(t, svc), fastConfig())

	_, err := o.Submit(context.Background(), validInvoice())
	require.NoError(t, err)

	_, err = o.Submit(context.Background(), validInvoice())
	assert.ErrorIs(t, err, ErrBusy)
	assert.Equal(t, int32(1), svc.created.Load())

	require.True(t, o.Reset())
	assert.Equal(t, StateIdle, o.State())
	assert.Nil(t, o.Result())

	_, err = o.Submit(context.Background(), validInvoice())
	require.NoError(t, err)
	assert.Equal(t, int32(2), svc.created.Load())
}

func TestSubmitRejectsIncompleteInvoice(t *testing.T) {
	svc := &fakeService{statuses: []string{JobReady}}
	o := NewOrchestrator(newFakeService(t, svc), fastConfig())
	inv := validInvoice()
	inv.Buyer.PIB = "12345"

	_, err := o.Submit(context.Background(), inv)

	assert.ErrorIs(t, err, ErrIncomplete)
	assert.Equal(t, StateIdle, o.State())
	assert.Zero(t, svc.created.Load())
}

func TestJobErrorSurfacesServiceMessage(t *testing.T) {
	svc := &fakeService{statuses: append(repeat(JobPending, 29), "Neispravan PIB kupca")}
	o := NewOrchestrator(newFakeService(t, svc), fastConfig())

	_, err := o.Submit(context.Background(), validInvoice())

	require.Error(t, err)
	assert.Equal(t, StateError, o.State())
	assert.Equal(t, "Neispravan PIB kupca", Message(err))
	assert.Equal(t, 30, o.Polls())
}

func TestJobErrorWithoutMessage(t *testing.T) {
	svc := &fakeService{statuses: []string{""}}
	o := NewOrchestrator(newFakeService(t, svc), fastConfig())

	_, err := o.Submit(context.Background(), validInvoice())

	require.Error(t, err)
	assert.Equal(t, "Generation failed", Message(err))
}

func TestTimeoutAfterExactlyMaxPolls(t *testing.T) {
	svc := &fakeService{statuses: repeat(JobPending, 31)}
	o := NewOrchestrator(newFakeService(t, svc), fastConfig())

	_, err := o.Submit(context.Background(), validInvoice())

	assert.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, StateError, o.State())
	assert.Equal(t, int32(30), svc.polls.Load())
	assert.Equal(t, "Timeout waiting for generation", Message(err))
}

func TestUnreadableStatusPollCountsAsAttempt(t *testing.T) {
	svc := &fakeService{statuses: []string{"502", "502", JobReady}}
	o := NewOrchestrator(newFakeService(t, svc), fastConfig())

	_, err := o.Submit(context.Background(), validInvoice())

	require.NoError(t, err)
	assert.Equal(t, 3, o.Polls())
}

func TestErrorStatusBodyFailsFast(t *testing.T) {
	svc := &fakeService{statuses: []string{"500", JobReady}}
	o := NewOrchestrator(newFakeService(t, svc), fastConfig())

	_, err := o.Submit(context.Background(), validInvoice())

	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrTimeout)
	assert.Equal(t, StateError, o.State())
	assert.Equal(t, 1, o.Polls())
	assert.Equal(t, "Render worker crashed", Message(err))
}

func TestSlowStatusCallsHitPollBudget(t *testing.T) {
	svc := &fakeService{statuses: []string{JobPending}, statusDelay: time.Second}
	cfg := Config{PollInterval: time.Millisecond, MaxPollAttempts: 30, PollSlack: 50 * time.Millisecond}
	o := NewOrchestrator(newFakeService(t, svc), cfg)

	started := time.Now()
	_, err := o.Submit(context.Background(), validInvoice())

	assert.ErrorIs(t, err, ErrTimeout)
	assert.Less(t, time.Since(started), 900*time.Millisecond)
	assert.Equal(t, 1, o.Polls())
	assert.Equal(t, "Timeout waiting for generation", Message(err))
}

func TestPollBudget(t *testing.T) {
	assert.Equal(t, 35*time.Second, Config{}.PollBudget())
	assert.Equal(t, 3*time.Second+10*time.Millisecond,
		Config{PollInterval: 100 * time.Millisecond, MaxPollAttempts: 30, PollSlack: 10 * time.Millisecond}.PollBudget())
}

func TestRateLimitTiers(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		state State
	}{
		{name: "structured registered", body: `{"error":"slow down","code":"RATE_LIMIT_REGISTERED"}`, state: StateRateLimitedRegistered},
		{name: "structured anonymous", body: `{"error":"Limit of 10 invoices","code":"rate_limit_anonymous"}`, state: StateRateLimitedAnonymous},
		{name: "registered message", body: `{"error":"Daily limit of 10 invoices reached"}`, state: StateRateLimitedRegistered},
		{name: "anonymous message", body: `{"error":"Daily limit of 3 invoices reached"}`, state: StateRateLimitedAnonymous},
		{name: "unknown", body: `not json`, state: StateRateLimitedAnonymous},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeService{createStatus: http.StatusTooManyRequests, createBody: tt.body}
			o := NewOrchestrator(newFakeService(t, svc), fastConfig())

			_, err := o.Submit(context.Background(), validInvoice())

			var rl *RateLimitError
			require.True(t, errors.As(err, &rl))
			assert.Equal(t, tt.state, o.State())
			assert.True(t, o.State().Terminal())
			assert.Zero(t, svc.polls.Load())
		})
	}
}

func TestCreateAndGenerateFailures(t *testing.T) {
	t.Run("create message", func(t *testing.T) {
		svc := &fakeService{createStatus: http.StatusBadRequest, createBody: `{"error":"Invalid seller"}`}
		o := NewOrchestrator(newFakeService(t, svc), fastConfig())

		_, err := o.Submit(context.Background(), validInvoice())

		assert.Equal(t, StateError, o.State())
		assert.Equal(t, "Invalid seller", Message(err))
		var apiErr *APIError
		require.True(t, errors.As(err, &apiErr))
		assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	})
	t.Run("generate fallback", func(t *testing.T) {
		svc := &fakeService{genStatus: http.StatusInternalServerError}
		o := NewOrchestrator(newFakeService(t, svc), fastConfig())

		_, err := o.Submit(context.Background(), validInvoice())

		assert.Equal(t, StateError, o.State())
		assert.Equal(t, "Failed to generate", Message(err))
		assert.Zero(t, svc.polls.Load())
	})
}

func TestBrokenArtifactIsAnError(t *testing.T) {
	svc := &fakeService{statuses: []string{JobReady}, pdf: "%%%"}
	o := NewOrchestrator(newFakeService(t, svc), fastConfig())

	_, err := o.Submit(context.Background(), validInvoice())

	require.Error(t, err)
	assert.Equal(t, StateError, o.State())
}

func TestCancelledContextAborts(t *testing.T) {
	svc := &fakeService{statuses: []string{JobPending}}
	o := NewOrchestrator(newFakeService(t, svc), Config{PollInterval: time.Hour, MaxPollAttempts: 5})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := o.Submit(ctx, validInvoice())

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, StateError, o.State())
}

func TestTransportFailureIsAnError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	o := NewOrchestrator(NewClient(ClientConfig{BaseURL: srv.URL}), fastConfig())

	_, err := o.Submit(context.Background(), validInvoice())

	require.Error(t, err)
	assert.Equal(t, StateError, o.State())
	assert.Equal(t, "Failed to create invoice", Message(err))
}

func TestFileStem(t *testing.T) {
	assert.Equal(t, "001-2026", FileStem("001/2026"))
	assert.Equal(t, "A-B-C", FileStem(` A\B:C `))
	assert.Equal(t, "invoice", FileStem(""))
}
