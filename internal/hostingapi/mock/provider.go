package mock

import (
	"context"
	"sync"

	"github.com/tomxwilliam/studioportal/internal/hostingapi"
)

// Provider is the sandbox hosting panel. It tracks accounts in memory so the
// provisioning state machine can be exercised end to end without upstream
// access.
type Provider struct {
	mu       sync.Mutex
	accounts map[string]string // username -> state
}

func New() *Provider {
	return &Provider{accounts: make(map[string]string)}
}

func (p *Provider) CreateAccount(ctx context.Context, req hostingapi.CreateAccountRequest) (hostingapi.Account, error) {
	p.mu.Lock()
	p.accounts[req.Username] = "active"
	p.mu.Unlock()

	return hostingapi.Account{
		Username:  req.Username,
		Domain:    req.Domain,
		ServerRef: "mock",
		Mock:      true,
	}, nil
}

func (p *Provider) SuspendAccount(ctx context.Context, username, reason string) error {
	return p.setState(username, "suspended")
}

func (p *Provider) UnsuspendAccount(ctx context.Context, username string) error {
	return p.setState(username, "active")
}

func (p *Provider) TerminateAccount(ctx context.Context, username string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.accounts[username]; !ok {
		return hostingapi.ErrAccountNotFound
	}
	delete(p.accounts, username)
	return nil
}

func (p *Provider) setState(username, state string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.accounts[username]; !ok {
		return hostingapi.ErrAccountNotFound
	}
	p.accounts[username] = state
	return nil
}

// State reports the sandbox account state, for tests.
func (p *Provider) State(username string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.accounts[username]
	return s, ok
}
