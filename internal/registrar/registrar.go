package registrar

import (
	"context"
	"errors"
)

var (
	ErrUnavailable   = errors.New("registrar: domain not available")
	ErrRequestFailed = errors.New("registrar: upstream request failed")
	ErrInvalidDomain = errors.New("registrar: invalid domain")
)

// Contact carries the registrant details required by the upstream registrar.
type Contact struct {
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	Email        string `json:"email"`
	Phone        string `json:"phone"`
	Organization string `json:"organization,omitempty"`
	Address1     string `json:"address1"`
	City         string `json:"city"`
	PostalCode   string `json:"postal_code"`
	Country      string `json:"country"`
}

type Availability struct {
	Domain     string `json:"domain"`
	Available  bool   `json:"available"`
	Definitive bool   `json:"definitive"`
}

// TLDPrice is the upstream price sheet entry for one TLD, in the registrar's
// source currency.
type TLDPrice struct {
	TLD      string  `json:"tld"`
	Register float64 `json:"register"`
	Renew    float64 `json:"renew"`
	Transfer float64 `json:"transfer"`
	Currency string  `json:"currency"`
}

type RegisterRequest struct {
	Domain         string
	Years          int
	IDProtect      bool
	Contact        Contact
	IdempotencyKey string
}

type Registration struct {
	OrderID string `json:"order_id"`
	Domain  string `json:"domain"`
	// Mock marks registrations produced by the sandbox provider so the
	// caller can surface them honestly.
	Mock bool `json:"mock,omitempty"`
}

// Provider is the upstream registrar. The implementation is chosen once at
// startup by configuration; business logic never sniffs credentials to decide
// between live and mock behaviour.
type Provider interface {
	CheckAvailability(ctx context.Context, domain string) (Availability, error)
	TLDPrices(ctx context.Context) ([]TLDPrice, error)
	Register(ctx context.Context, req RegisterRequest) (Registration, error)
}
