package auth

import (
	"errors"

	"github.com/bwmarrin/snowflake"
)

var (
	ErrUnauthenticated = errors.New("auth: unauthenticated")
	ErrForbidden       = errors.New("auth: forbidden")
)

type Role string

const (
	RoleAdmin    Role = "admin"
	RoleCustomer Role = "customer"
	// RoleSystem is used by the billing sweeper and other internal jobs,
	// which act with admin capabilities but no portal user behind them.
	RoleSystem Role = "system"
)

// Session identifies the caller of a service operation. It is passed
// explicitly into every service call that needs authorization; there is no
// ambient global session.
type Session struct {
	UserID     snowflake.ID
	CustomerID snowflake.ID
	Role       Role
}

func (s Session) IsAdmin() bool {
	return s.Role == RoleAdmin || s.Role == RoleSystem
}

// RequireAdmin rejects non-admin callers before any side effect or upstream
// call. An empty session is unauthenticated rather than forbidden.
func (s Session) RequireAdmin() error {
	if s.UserID == 0 && s.Role != RoleSystem {
		return ErrUnauthenticated
	}
	if !s.IsAdmin() {
		return ErrForbidden
	}
	return nil
}

// SystemSession is the identity background jobs run under.
func SystemSession() Session {
	return Session{Role: RoleSystem}
}

// CanAccessCustomer reports whether the session may read or write records
// owned by the given customer. Admins have cross-cutting access via role,
// never via ownership transfer.
func (s Session) CanAccessCustomer(customerID snowflake.ID) bool {
	if s.IsAdmin() {
		return true
	}
	return s.CustomerID != 0 && s.CustomerID == customerID
}
