package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tomxwilliam/studioportal/internal/registrar"
)

const responseLimitBytes = int64(2 << 20)

// Client talks to a GoDaddy-compatible registrar API.
type Client struct {
	baseURL    string
	apiKey     string
	apiSecret  string
	httpClient *http.Client
}

func NewClient(baseURL, key, secret string) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("registrar: invalid base URL %q", baseURL)
	}
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiKey:     key,
		apiSecret:  secret,
		httpClient: &http.Client{Timeout: 20 * time.Second},
	}, nil
}

func (c *Client) CheckAvailability(ctx context.Context, domain string) (registrar.Availability, error) {
	q := url.Values{}
	q.Set("domain", domain)
	// FULL gives a definitive answer for single lookups.
	q.Set("checkType", "FULL")

	var out registrar.Availability
	if err := c.do(ctx, http.MethodGet, "/v1/domains/available?"+q.Encode(), nil, &out, ""); err != nil {
		return registrar.Availability{}, err
	}
	return out, nil
}

type tldPriceAPI struct {
	Name         string  `json:"name"`
	Register     float64 `json:"registerPrice"`
	Renew        float64 `json:"renewPrice"`
	Transfer     float64 `json:"transferPrice"`
	CurrencyCode string  `json:"currency"`
}

func (c *Client) TLDPrices(ctx context.Context) ([]registrar.TLDPrice, error) {
	var raw []tldPriceAPI
	if err := c.do(ctx, http.MethodGet, "/v1/domains/tlds?includePricing=true", nil, &raw, ""); err != nil {
		return nil, err
	}

	out := make([]registrar.TLDPrice, 0, len(raw))
	for _, item := range raw {
		out = append(out, registrar.TLDPrice{
			TLD:      strings.TrimPrefix(item.Name, "."),
			Register: item.Register,
			Renew:    item.Renew,
			Transfer: item.Transfer,
			Currency: item.CurrencyCode,
		})
	}
	return out, nil
}

type purchaseAPI struct {
	OrderID int64 `json:"orderId"`
}

func (c *Client) Register(ctx context.Context, req registrar.RegisterRequest) (registrar.Registration, error) {
	contact := map[string]any{
		"nameFirst":    req.Contact.FirstName,
		"nameLast":     req.Contact.LastName,
		"email":        req.Contact.Email,
		"phone":        req.Contact.Phone,
		"organization": req.Contact.Organization,
		"addressMailing": map[string]any{
			"address1":   req.Contact.Address1,
			"city":       req.Contact.City,
			"postalCode": req.Contact.PostalCode,
			"country":    req.Contact.Country,
		},
	}
	body := map[string]any{
		"domain":  req.Domain,
		"period":  req.Years,
		"privacy": req.IDProtect,
		"consent": map[string]any{
			"agreedBy":      req.Contact.Email,
			"agreedAt":      time.Now().UTC().Format(time.RFC3339),
			"agreementKeys": []string{"DNRA"},
		},
		"contactRegistrant": contact,
		"contactAdmin":      contact,
		"contactTech":       contact,
		"contactBilling":    contact,
	}

	var out purchaseAPI
	if err := c.do(ctx, http.MethodPost, "/v1/domains/purchase", body, &out, req.IdempotencyKey); err != nil {
		return registrar.Registration{}, err
	}
	return registrar.Registration{
		OrderID: fmt.Sprintf("%d", out.OrderID),
		Domain:  req.Domain,
	}, nil
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any, idempotencyKey string) error {
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		r = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "sso-key "+c.apiKey+":"+c.apiSecret)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if idempotencyKey != "" {
		req.Header.Set("X-Idempotency-Key", idempotencyKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", registrar.ErrRequestFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: status %d", registrar.ErrRequestFailed, resp.StatusCode)
	}
	if out == nil {
		return nil
	}

	limited := io.LimitReader(resp.Body, responseLimitBytes)
	if err := json.NewDecoder(limited).Decode(out); err != nil && err != io.EOF {
		return fmt.Errorf("%w: decode: %v", registrar.ErrRequestFailed, err)
	}
	return nil
}
