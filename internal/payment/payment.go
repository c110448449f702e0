package payment

import (
	"context"
	"errors"
)

var ErrRequestFailed = errors.New("payment: upstream request failed")

type LineItem struct {
	Description string `json:"description"`
	// Amount is in minor units of Currency.
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Quantity int    `json:"quantity"`
}

type CreateSessionRequest struct {
	Reference     string
	CustomerEmail string
	LineItems     []LineItem
	SuccessURL    string
	CancelURL     string
}

// Session is a hosted checkout session; completion is redirect-based and out
// of scope beyond the URL handed back to the front end.
type Session struct {
	ID   string `json:"id"`
	URL  string `json:"url"`
	Mock bool   `json:"mock,omitempty"`
}

type Provider interface {
	CreateCheckoutSession(ctx context.Context, req CreateSessionRequest) (Session, error)
}
