package mock

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/tomxwilliam/studioportal/internal/registrar"
)

// Provider is the sandbox registrar used when no upstream credentials are
// configured. Registrations succeed with a clearly-marked MOCK- order id so a
// sandbox deployment can never be mistaken for a live one.
type Provider struct {
	mu         sync.Mutex
	registered map[string]bool
}

func New() *Provider {
	return &Provider{registered: make(map[string]bool)}
}

var sheet = []registrar.TLDPrice{
	{TLD: "com", Register: 12.99, Renew: 14.99, Transfer: 9.99, Currency: "USD"},
	{TLD: "co.uk", Register: 8.99, Renew: 9.99, Transfer: 0, Currency: "USD"},
	{TLD: "net", Register: 13.99, Renew: 15.99, Transfer: 10.99, Currency: "USD"},
	{TLD: "org", Register: 11.99, Renew: 13.99, Transfer: 9.99, Currency: "USD"},
	{TLD: "io", Register: 39.99, Renew: 44.99, Transfer: 34.99, Currency: "USD"},
	{TLD: "dev", Register: 15.99, Renew: 17.99, Transfer: 12.99, Currency: "USD"},
}

func (p *Provider) CheckAvailability(ctx context.Context, domain string) (registrar.Availability, error) {
	domain = strings.ToLower(strings.TrimSpace(domain))
	if domain == "" || !strings.Contains(domain, ".") {
		return registrar.Availability{}, registrar.ErrInvalidDomain
	}

	p.mu.Lock()
	taken := p.registered[domain]
	p.mu.Unlock()

	// Well-known names read as taken so the quote path can be exercised
	// against both outcomes without upstream access.
	if strings.HasPrefix(domain, "google.") || strings.HasPrefix(domain, "example.") {
		taken = true
	}

	return registrar.Availability{Domain: domain, Available: !taken, Definitive: true}, nil
}

func (p *Provider) TLDPrices(ctx context.Context) ([]registrar.TLDPrice, error) {
	out := make([]registrar.TLDPrice, len(sheet))
	copy(out, sheet)
	return out, nil
}

func (p *Provider) Register(ctx context.Context, req registrar.RegisterRequest) (registrar.Registration, error) {
	avail, err := p.CheckAvailability(ctx, req.Domain)
	if err != nil {
		return registrar.Registration{}, err
	}
	if !avail.Available {
		return registrar.Registration{}, registrar.ErrUnavailable
	}

	p.mu.Lock()
	p.registered[avail.Domain] = true
	p.mu.Unlock()

	return registrar.Registration{
		OrderID: "MOCK-" + uuid.NewString(),
		Domain:  avail.Domain,
		Mock:    true,
	}, nil
}
