// Package generation drives one invoice through the remote generation
// service: create, trigger, poll until ready, download.
package generation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/lako-services/lako-web/internal/efaktura"
)

// State is the orchestrator lifecycle state.
type State string

// Lifecycle states.
const (
	StateIdle                  State = "idle"
	StateGenerating            State = "generating"
	StateReady                 State = "ready"
	StateError                 State = "error"
	StateRateLimitedAnonymous  State = "rate_limited_anonymous"
	StateRateLimitedRegistered State = "rate_limited_registered"
)

// Terminal reports whether s needs Reset before the next Submit.
func (s State) Terminal() bool {
	switch s {
	case StateReady, StateError, StateRateLimitedAnonymous, StateRateLimitedRegistered:
		return true
	}
	return false
}

// Defaults for Config.
const (
	DefaultPollInterval    = time.Second
	DefaultMaxPollAttempts = 30
	DefaultPollSlack       = 5 * time.Second
)

// Fallback messages used when the service gives no explanation.
const (
	msgCreateFailed   = "Failed to create invoice"
	msgGenerateFailed = "Failed to generate"
	msgJobFailed      = "Generation failed"
	msgTimeout        = "Timeout waiting for generation"
)

var (
	// ErrBusy is returned by Submit outside the idle state.
	ErrBusy = errors.New("generation: orchestrator is not idle")
	// ErrIncomplete is returned by Submit for invoices failing the
	// completeness checks.
	ErrIncomplete = errors.New("generation: invoice is incomplete")
	// ErrTimeout is returned when the job never resolves within the poll
	// budget.
	ErrTimeout = errors.New("generation: timed out waiting for the service")
)

// Tier tells which quota was exhausted.
type Tier string

// Quota tiers.
const (
	TierAnonymous  Tier = "anonymous"
	TierRegistered Tier = "registered"
)

// Structured codes the service may attach to a 429.
const (
	CodeRateLimitAnonymous  = "RATE_LIMIT_ANONYMOUS"
	CodeRateLimitRegistered = "RATE_LIMIT_REGISTERED"
)

// RateLimitError reports a 429 from the create step.
type RateLimitError struct {
	Tier    Tier
	Message string
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("generation: %s rate limit: %s", e.Tier, e.Message)
}

// UpstreamError is any other failure of the remote service.
type UpstreamError struct {
	Step    string
	Message string
	Err     error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("generation: %s: %s", e.Step, e.Message)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// Backend is the remote generation service.
type Backend interface {
	Create(ctx context.Context, inv efaktura.InvoiceData) (string, error)
	Generate(ctx context.Context, id string) error
	Status(ctx context.Context, id string) (StatusResponse, error)
	Download(ctx context.Context, id string) (DownloadResponse, error)
}

// Recorder remembers what a successfully generated invoice contained.
type Recorder interface {
	Remember(ctx context.Context, inv efaktura.InvoiceData) error
}

// Config holds the poll budget. The whole poll phase is bounded by
// PollInterval*MaxPollAttempts+PollSlack no matter how slow single status
// calls are.
type Config struct {
	PollInterval    time.Duration
	MaxPollAttempts int
	PollSlack       time.Duration
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.MaxPollAttempts <= 0 {
		c.MaxPollAttempts = DefaultMaxPollAttempts
	}
	if c.PollSlack <= 0 {
		c.PollSlack = DefaultPollSlack
	}
	return c
}

// PollBudget is the wall-clock ceiling of the poll phase.
func (c Config) PollBudget() time.Duration {
	c = c.withDefaults()
	return c.PollInterval*time.Duration(c.MaxPollAttempts) + c.PollSlack
}

// Option customises an Orchestrator.
type Option func(*Orchestrator)

// WithRecorder records buyer and items after a successful cycle.
func WithRecorder(r Recorder) Option {
	return func(o *Orchestrator) { o.recorder = r }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithObserver is called with the terminal state and elapsed time of every
// cycle.
func WithObserver(fn func(State, time.Duration)) Option {
	return func(o *Orchestrator) { o.observe = fn }
}

// Orchestrator runs generation cycles one at a time.
type Orchestrator struct {
	backend  Backend
	cfg      Config
	recorder Recorder
	logger   *slog.Logger
	observe  func(State, time.Duration)

	mu     sync.Mutex
	state  State
	err    error
	result *Result
	polls  int
}

// NewOrchestrator returns an idle orchestrator.
func NewOrchestrator(backend Backend, cfg Config, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		backend: backend,
		cfg:     cfg.withDefaults(),
		logger:  slog.Default(),
		state:   StateIdle,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// State returns the current state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Err returns the error that ended the last cycle.
func (o *Orchestrator) Err() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.err
}

// Result returns the artifacts of the last successful cycle.
func (o *Orchestrator) Result() *Result {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.result
}

// Polls returns how many status requests the last cycle made.
func (o *Orchestrator) Polls() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.polls
}

// Reset returns a terminal orchestrator to idle. It reports false while a
// cycle is running.
func (o *Orchestrator) Reset() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.state.Terminal() {
		return o.state == StateIdle
	}
	o.state = StateIdle
	o.err = nil
	o.result = nil
	o.polls = 0
	return true
}

// Submit runs one full cycle for inv and blocks until it reaches a terminal
// state.
func (o *Orchestrator) Submit(ctx context.Context, inv efaktura.InvoiceData) (*Result, error) {
	inv = efaktura.Normalize(inv)

	o.mu.Lock()
	if o.state != StateIdle {
		o.mu.Unlock()
		return nil, ErrBusy
	}
	if !efaktura.CheckCompleteness(inv).Complete() {
		o.mu.Unlock()
		return nil, ErrIncomplete
	}
	o.state = StateGenerating
	o.mu.Unlock()

	started := time.Now()
	result, polls, err := o.run(ctx, inv)
	state := stateFor(err)

	o.mu.Lock()
	o.state = state
	o.err = err
	o.result = result
	o.polls = polls
	o.mu.Unlock()

	if o.observe != nil {
		o.observe(state, time.Since(started))
	}
	if err != nil {
		o.logger.Warn("invoice generation failed",
			slog.String("invoice", inv.InvoiceNumber),
			slog.String("state", string(state)),
			slog.Int("polls", polls),
			slog.Any("error", err))
		return nil, err
	}

	if o.recorder != nil {
		if err := o.recorder.Remember(ctx, inv); err != nil {
			o.logger.Warn("record invoice history", slog.Any("error", err))
		}
	}
	o.logger.Info("invoice generated",
		slog.String("invoice", inv.InvoiceNumber),
		slog.String("id", result.InvoiceID),
		slog.Int("polls", polls))
	return result, nil
}

func (o *Orchestrator) run(ctx context.Context, inv efaktura.InvoiceData) (*Result, int, error) {
	id, err := o.backend.Create(ctx, inv)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusTooManyRequests {
			return nil, 0, &RateLimitError{Tier: classifyTier(apiErr), Message: apiErr.Message}
		}
		return nil, 0, upstream("create", msgCreateFailed, err)
	}

	if err := o.backend.Generate(ctx, id); err != nil {
		return nil, 0, upstream("generate", msgGenerateFailed, err)
	}

	pollCtx, cancel := context.WithTimeout(ctx, o.cfg.PollBudget())
	defer cancel()

	polls := 0
	for polls < o.cfg.MaxPollAttempts {
		if err := wait(pollCtx, o.cfg.PollInterval); err != nil {
			if ctx.Err() == nil {
				return nil, polls, ErrTimeout
			}
			return nil, polls, upstream("poll", msgJobFailed, err)
		}
		polls++
		status, err := o.backend.Status(pollCtx, id)
		if err != nil {
			if ctx.Err() == nil && pollCtx.Err() != nil {
				return nil, polls, ErrTimeout
			}
			var apiErr *APIError
			if errors.As(err, &apiErr) {
				continue
			}
			return nil, polls, upstream("poll", msgJobFailed, err)
		}
		switch status.Status {
		case JobReady:
			payload, err := o.backend.Download(ctx, id)
			if err != nil {
				return nil, polls, upstream("download", msgJobFailed, err)
			}
			pdf, xml, err := DecodeArtifacts(inv.InvoiceNumber, payload)
			if err != nil {
				return nil, polls, upstream("download", msgJobFailed, err)
			}
			return &Result{InvoiceID: id, PDF: pdf, XML: xml}, polls, nil
		case JobError:
			msg := status.ErrorMessage
			if msg == "" {
				msg = msgJobFailed
			}
			return nil, polls, &UpstreamError{Step: "poll", Message: msg, Err: errors.New(msg)}
		}
	}
	return nil, polls, ErrTimeout
}

// Message returns the user-facing explanation for an error returned by
// Submit.
func Message(err error) string {
	var rl *RateLimitError
	var up *UpstreamError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrTimeout):
		return msgTimeout
	case errors.As(err, &rl):
		return rl.Message
	case errors.As(err, &up):
		return up.Message
	}
	return msgJobFailed
}

func wait(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func upstream(step, fallback string, err error) *UpstreamError {
	msg := fallback
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		msg = apiErr.Message
	}
	return &UpstreamError{Step: step, Message: msg, Err: err}
}

func classifyTier(apiErr *APIError) Tier {
	switch strings.ToUpper(apiErr.Code) {
	case CodeRateLimitRegistered:
		return TierRegistered
	case CodeRateLimitAnonymous:
		return TierAnonymous
	}
	switch {
	case strings.Contains(apiErr.Message, "10 invoices"):
		return TierRegistered
	case strings.Contains(apiErr.Message, "3 invoices"):
		return TierAnonymous
	}
	return TierAnonymous
}

func stateFor(err error) State {
	if err == nil {
		return StateReady
	}
	var rl *RateLimitError
	if errors.As(err, &rl) {
		if rl.Tier == TierRegistered {
			return StateRateLimitedRegistered
		}
		return StateRateLimitedAnonymous
	}
	return StateError
}
