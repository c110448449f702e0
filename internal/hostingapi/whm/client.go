package whm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tomxwilliam/studioportal/internal/hostingapi"
)

// Client talks to a WHM-compatible control panel API.
type Client struct {
	baseURL    string
	apiToken   string
	httpClient *http.Client
}

func NewClient(baseURL, token string) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("hostingapi: invalid base URL %q", baseURL)
	}
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiToken:   token,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}, nil
}

type whmResult struct {
	Metadata struct {
		Result int    `json:"result"`
		Reason string `json:"reason"`
	} `json:"metadata"`
}

func (c *Client) CreateAccount(ctx context.Context, req hostingapi.CreateAccountRequest) (hostingapi.Account, error) {
	q := url.Values{}
	q.Set("username", req.Username)
	q.Set("domain", req.Domain)
	q.Set("password", req.Password)
	q.Set("plan", req.Plan)
	q.Set("contactemail", req.CustomerEmail)

	if err := c.call(ctx, "createacct", q); err != nil {
		return hostingapi.Account{}, err
	}
	return hostingapi.Account{
		Username:  req.Username,
		Domain:    req.Domain,
		ServerRef: c.baseURL,
	}, nil
}

func (c *Client) SuspendAccount(ctx context.Context, username, reason string) error {
	q := url.Values{}
	q.Set("user", username)
	q.Set("reason", reason)
	return c.call(ctx, "suspendacct", q)
}

func (c *Client) UnsuspendAccount(ctx context.Context, username string) error {
	q := url.Values{}
	q.Set("user", username)
	return c.call(ctx, "unsuspendacct", q)
}

func (c *Client) TerminateAccount(ctx context.Context, username string) error {
	q := url.Values{}
	q.Set("user", username)
	q.Set("keepdns", "0")
	return c.call(ctx, "removeacct", q)
}

func (c *Client) call(ctx context.Context, fn string, q url.Values) error {
	q.Set("api.version", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/json-api/"+fn+"?"+q.Encode(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "whm root:"+c.apiToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", hostingapi.ErrRequestFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", hostingapi.ErrRequestFailed, resp.StatusCode)
	}

	var out whmResult
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&out); err != nil {
		return fmt.Errorf("%w: decode: %v", hostingapi.ErrRequestFailed, err)
	}
	if out.Metadata.Result != 1 {
		return fmt.Errorf("%w: %s", hostingapi.ErrRequestFailed, out.Metadata.Reason)
	}
	return nil
}
