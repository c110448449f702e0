package mock

import (
	"context"

	"github.com/google/uuid"
	"github.com/tomxwilliam/studioportal/internal/payment"
)

// Provider hands back a local redirect URL so checkout flows can be walked
// through without a payment provider account.
type Provider struct{}

func New() *Provider { return &Provider{} }

func (p *Provider) CreateCheckoutSession(ctx context.Context, req payment.CreateSessionRequest) (payment.Session, error) {
	id := "MOCK-" + uuid.NewString()
	return payment.Session{
		ID:   id,
		URL:  req.SuccessURL + "?session_id=" + id,
		Mock: true,
	}, nil
}
