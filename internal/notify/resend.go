package notify

import (
	"context"
	"net/http"
)

// Resend defaults.
const (
	DefaultResendEndpoint = "https://api.resend.com/emails"
	DefaultMailFrom       = "Lako Services <noreply@lako.services>"
	DefaultMailTo         = "info@lako.services"
)

// ResendSink sends email through the Resend HTTP API.
type ResendSink struct {
	client   *http.Client
	endpoint string
	apiKey   string
	from     string
	to       string
}

// NewResendSink returns a sink posting to endpoint. Empty endpoint, from and
// to fall back to the defaults.
func NewResendSink(client *http.Client, endpoint, apiKey, from, to string) *ResendSink {
	if endpoint == "" {
		endpoint = DefaultResendEndpoint
	}
	if from == "" {
		from = DefaultMailFrom
	}
	if to == "" {
		to = DefaultMailTo
	}
	return &ResendSink{client: client, endpoint: endpoint, apiKey: apiKey, from: from, to: to}
}

// Name implements Sink.
func (s *ResendSink) Name() string { return "resend" }

type resendEmail struct {
	From    string `json:"from"`
	To      string `json:"to"`
	ReplyTo string `json:"reply_to,omitempty"`
	Subject string `json:"subject"`
	HTML    string `json:"html"`
}

// Send implements Sink.
func (s *ResendSink) Send(ctx context.Context, n Notification) error {
	if n.HTML == "" {
		return ErrSkipped
	}
	return postJSON(ctx, s.client, s.endpoint,
		map[string]string{"Authorization": "Bearer " + s.apiKey},
		resendEmail{From: s.from, To: s.to, ReplyTo: n.ReplyTo, Subject: n.Subject, HTML: n.HTML})
}
