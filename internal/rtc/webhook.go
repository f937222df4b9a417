package rtc

import (
	"net/http"

	"github.com/livekit/protocol/auth"
	"github.com/livekit/protocol/livekit"
	"github.com/livekit/protocol/webhook"
)

// Verifier authenticates inbound provider webhook requests. LiveKit signs
// each delivery with a JWT in the Authorization header whose sha256 claim
// covers the raw body; verification is stateless by design.
type Verifier struct {
	provider auth.KeyProvider
}

// NewVerifier creates a webhook verifier for the given API key pair.
func NewVerifier(apiKey, apiSecret string) *Verifier {
	return &Verifier{provider: auth.NewSimpleKeyProvider(apiKey, apiSecret)}
}

// Receive verifies the request signature and decodes the event. The raw body
// is consumed from the request.
func (v *Verifier) Receive(r *http.Request) (*livekit.WebhookEvent, error) {
	return webhook.ReceiveWebhookEvent(r, v.provider)
}
