package hostingapi

import (
	"context"
	"errors"
)

var (
	ErrRequestFailed   = errors.New("hostingapi: upstream request failed")
	ErrAccountNotFound = errors.New("hostingapi: account not found")
)

type CreateAccountRequest struct {
	Domain        string
	Username      string
	Password      string
	Plan          string
	CustomerEmail string
}

type Account struct {
	Username  string `json:"username"`
	Domain    string `json:"domain"`
	ServerRef string `json:"server_ref"`
	// Mock marks accounts created by the sandbox provider.
	Mock bool `json:"mock,omitempty"`
}

// Provider is the upstream hosting control panel. Selected at startup by
// configuration, never by credential sniffing inside business logic.
type Provider interface {
	CreateAccount(ctx context.Context, req CreateAccountRequest) (Account, error)
	SuspendAccount(ctx context.Context, username, reason string) error
	UnsuspendAccount(ctx context.Context, username string) error
	TerminateAccount(ctx context.Context, username string) error
}
