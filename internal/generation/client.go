package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/lako-services/lako-web/internal/efaktura"
)

const (
	invoicesPath        = "/api/efaktura/invoices"
	defaultRetryWaitMin = 200 * time.Millisecond
	defaultRetryWaitMax = 2 * time.Second
	maxResponseBytes    = 32 << 20
)

// JobStatus values reported by the generation service.
const (
	JobPending = "pending"
	JobReady   = "ready"
	JobError   = "error"
)

// ClientConfig configures the remote generation service client.
type ClientConfig struct {
	BaseURL  string
	Timeout  time.Duration
	RetryMax int
	// RetryWaitMin and RetryWaitMax bound the backoff between transport
	// retries.
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
}

// StatusResponse is the body of GET …/{id}/status.
type StatusResponse struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"errorMessage,omitempty"`
}

// DownloadResponse carries the base64 encoded artifacts of a ready job.
type DownloadResponse struct {
	PDF string `json:"pdf"`
	XML string `json:"xml"`
}

// APIError is a non-success response from the generation service.
type APIError struct {
	StatusCode int
	Message    string
	Code       string

	body []byte
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("generation service returned %d", e.StatusCode)
	}
	return fmt.Sprintf("generation service returned %d: %s", e.StatusCode, e.Message)
}

// Client talks to the remote invoice-generation service. Only transport
// failures are retried; HTTP error statuses are returned to the caller.
type Client struct {
	client  *http.Client
	baseURL string
}

// NewClient constructs a client for cfg.BaseURL.
func NewClient(cfg ClientConfig) *Client {
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = cfg.RetryMax
	retryClient.RetryWaitMin = cfg.RetryWaitMin
	if retryClient.RetryWaitMin <= 0 {
		retryClient.RetryWaitMin = defaultRetryWaitMin
	}
	retryClient.RetryWaitMax = cfg.RetryWaitMax
	if retryClient.RetryWaitMax <= 0 {
		retryClient.RetryWaitMax = defaultRetryWaitMax
	}
	if cfg.Timeout > 0 {
		retryClient.HTTPClient.Timeout = cfg.Timeout
	}
	retryClient.Logger = nil
	retryClient.CheckRetry = func(ctx context.Context, resp *http.Response, err error) (bool, error) {
		if err != nil {
			return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
		}
		return false, nil
	}

	return &Client{
		client:  retryClient.StandardClient(),
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
	}
}

// Create submits the invoice and returns the job id.
func (c *Client) Create(ctx context.Context, inv efaktura.InvoiceData) (string, error) {
	body, err := json.Marshal(inv)
	if err != nil {
		return "", fmt.Errorf("encode invoice: %w", err)
	}
	var out struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, invoicesPath, body, &out); err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", errors.New("generation service returned no invoice id")
	}
	return out.ID, nil
}

// Generate starts document generation for job id.
func (c *Client) Generate(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, c.jobPath(id, "generate"), nil, nil)
}

// Status polls job id once. A job status carried by an error response is
// returned as a regular status.
func (c *Client) Status(ctx context.Context, id string) (StatusResponse, error) {
	var out StatusResponse
	err := c.do(ctx, http.MethodGet, c.jobPath(id, "status"), nil, &out)
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		var st StatusResponse
		if json.Unmarshal(apiErr.body, &st) == nil && st.Status != "" {
			return st, nil
		}
	}
	return out, err
}

// Download fetches the artifacts of a ready job.
func (c *Client) Download(ctx context.Context, id string) (DownloadResponse, error) {
	var out DownloadResponse
	err := c.do(ctx, http.MethodGet, c.jobPath(id, "download"), nil, &out)
	return out, err
}

func (c *Client) jobPath(id, action string) string {
	return invoicesPath + "/" + url.PathEscape(id) + "/" + action
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return parseAPIError(resp.StatusCode, data)
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func parseAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: status, body: body}
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
		Code    string `json:"code"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		apiErr.Message = payload.Error
		if apiErr.Message == "" {
			apiErr.Message = payload.Message
		}
		apiErr.Code = payload.Code
	}
	return apiErr
}
