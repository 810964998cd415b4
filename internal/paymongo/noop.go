package paymongo

import (
	"context"
	"errors"
)

// ErrNotConfigured is returned by the noop gateway wired in when no secret
// key is configured, so a misconfigured deployment fails loudly instead of
// sending unauthenticated requests.
var ErrNotConfigured = errors.New("paymongo is not configured: set PAYMONGO_SECRET_KEY")

type NoopGateway struct{}

func NewNoopGateway() *NoopGateway { return &NoopGateway{} }

func (NoopGateway) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	return nil, ErrNotConfigured
}

func (NoopGateway) GetCheckoutStatus(ctx context.Context, sessionID string) (string, error) {
	return "", ErrNotConfigured
}
