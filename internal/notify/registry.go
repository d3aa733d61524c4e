package notify

import (
	"context"
	"net/http"
	"strings"
)

// DefaultRegistrationAPI is the lako-bot base URL.
const DefaultRegistrationAPI = "https://bot.lako.services"

// RegistrySink forwards business registrations to the lako-bot API.
type RegistrySink struct {
	client  *http.Client
	baseURL string
	secret  string
}

// NewRegistrySink returns a sink authenticating with secret.
func NewRegistrySink(client *http.Client, baseURL, secret string) *RegistrySink {
	if baseURL == "" {
		baseURL = DefaultRegistrationAPI
	}
	return &RegistrySink{client: client, baseURL: strings.TrimRight(baseURL, "/"), secret: secret}
}

// Name implements Sink.
func (s *RegistrySink) Name() string { return "registry" }

// Send implements Sink. Only registrations are forwarded.
func (s *RegistrySink) Send(ctx context.Context, n Notification) error {
	if n.Kind != KindRegistration || len(n.Payload) == 0 {
		return ErrSkipped
	}
	return postJSON(ctx, s.client, s.baseURL+"/api/external/register",
		map[string]string{"Authorization": "Bearer " + s.secret},
		n.Payload)
}
