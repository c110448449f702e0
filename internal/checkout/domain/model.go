package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/tomxwilliam/studioportal/internal/auth"
	hostingdomain "github.com/tomxwilliam/studioportal/internal/hosting/domain"
)

var ErrDomainRequired = errors.New("checkout: a domain name is required")

type HostingCheckoutRequest struct {
	PackageID    snowflake.ID              `json:"package_id"`
	BillingCycle hostingdomain.BillingCycle `json:"billing_cycle"`
	Domain       string                    `json:"domain"`
}

// HostingCheckoutResponse carries everything the front end needs to hand the
// customer over to the payment provider.
type HostingCheckoutResponse struct {
	SubscriptionID snowflake.ID `json:"subscription_id"`
	InvoiceID      snowflake.ID `json:"invoice_id"`
	InvoiceNumber  string       `json:"invoice_number"`
	Amount         int64        `json:"amount"`
	Currency       string       `json:"currency"`
	RedirectURL    string       `json:"redirect_url"`
	MockSession    bool         `json:"mock_session,omitempty"`
}

type Service interface {
	// CheckoutHosting creates a pending subscription and its invoice,
	// then opens a hosted payment session for the cycle price.
	CheckoutHosting(ctx context.Context, sess auth.Session, req HostingCheckoutRequest) (*HostingCheckoutResponse, error)
}
