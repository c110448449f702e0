package stripeapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tomxwilliam/studioportal/internal/payment"
)

// Client creates Stripe Checkout sessions over the form-encoded REST API.
type Client struct {
	apiKey     string
	httpClient *http.Client
}

func NewClient(apiKey string) *Client {
	return &Client{
		apiKey:     strings.TrimSpace(apiKey),
		httpClient: &http.Client{Timeout: 12 * time.Second},
	}
}

type sessionAPI struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

func (c *Client) CreateCheckoutSession(ctx context.Context, req payment.CreateSessionRequest) (payment.Session, error) {
	values := url.Values{}
	values.Set("mode", "payment")
	values.Set("success_url", req.SuccessURL)
	values.Set("cancel_url", req.CancelURL)
	values.Set("client_reference_id", req.Reference)
	if req.CustomerEmail != "" {
		values.Set("customer_email", req.CustomerEmail)
	}
	for i, item := range req.LineItems {
		prefix := "line_items[" + strconv.Itoa(i) + "]"
		values.Set(prefix+"[quantity]", strconv.Itoa(item.Quantity))
		values.Set(prefix+"[price_data][currency]", strings.ToLower(item.Currency))
		values.Set(prefix+"[price_data][unit_amount]", strconv.FormatInt(item.Amount, 10))
		values.Set(prefix+"[price_data][product_data][name]", item.Description)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		"https://api.stripe.com/v1/checkout/sessions", strings.NewReader(values.Encode()))
	if err != nil {
		return payment.Session{}, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return payment.Session{}, fmt.Errorf("%w: %v", payment.ErrRequestFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return payment.Session{}, fmt.Errorf("%w: status %d", payment.ErrRequestFailed, resp.StatusCode)
	}

	var out sessionAPI
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&out); err != nil {
		return payment.Session{}, fmt.Errorf("%w: decode: %v", payment.ErrRequestFailed, err)
	}
	if out.URL == "" {
		return payment.Session{}, fmt.Errorf("%w: missing session url", payment.ErrRequestFailed)
	}
	return payment.Session{ID: out.ID, URL: out.URL}, nil
}
