package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/tomxwilliam/studioportal/internal/auth"
	"gorm.io/gorm"
)

var (
	ErrCustomerNotFound = errors.New("customer not found")
	ErrUserNotFound     = errors.New("user not found")
	ErrEmailInUse       = errors.New("email already in use")
	ErrMissingField     = errors.New("a required field is missing")
)

type Customer struct {
	ID        snowflake.ID `json:"id" gorm:"primaryKey"`
	Name      string       `json:"name" gorm:"not null"`
	Email     string       `json:"email" gorm:"not null;index"`
	Company   string       `json:"company"`
	Phone     string       `json:"phone"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

func (Customer) TableName() string { return "customers" }

// User is a portal login. Customer users carry the owning customer id;
// admin users have none.
type User struct {
	ID           snowflake.ID  `json:"id" gorm:"primaryKey"`
	CustomerID   *snowflake.ID `json:"customer_id,omitempty" gorm:"index"`
	Email        string        `json:"email" gorm:"not null;uniqueIndex"`
	PasswordHash string        `json:"-" gorm:"not null"`
	Role         auth.Role     `json:"role" gorm:"not null;default:'customer'"`
	APITokenHash string        `json:"-" gorm:"index"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

func (User) TableName() string { return "users" }

type CreateCustomerParams struct {
	Name    string
	Email   string
	Company string
	Phone   string
}

type CreateUserParams struct {
	CustomerID *snowflake.ID
	Email      string
	Password   string
	Role       auth.Role
}

// CreatedUser carries the plaintext API token exactly once, at creation.
// Only its hash is ever stored.
type CreatedUser struct {
	User     User   `json:"user"`
	APIToken string `json:"api_token"`
}

type Service interface {
	// CreateCustomer and CreateUser are admin-only account management.
	// CreateUser hashes the password with bcrypt and issues an API
	// token whose hash alone is persisted.
	CreateCustomer(ctx context.Context, sess auth.Session, params CreateCustomerParams) (*Customer, error)
	CreateUser(ctx context.Context, sess auth.Session, params CreateUserParams) (*CreatedUser, error)
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, customer *Customer) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Customer, error)
	FindByEmail(ctx context.Context, db *gorm.DB, email string) (*Customer, error)

	InsertUser(ctx context.Context, db *gorm.DB, user *User) error
	FindUserByTokenHash(ctx context.Context, db *gorm.DB, tokenHash string) (*User, error)
	ListAdminUserIDs(ctx context.Context, db *gorm.DB) ([]snowflake.ID, error)
	ListUserIDsForCustomer(ctx context.Context, db *gorm.DB, customerID snowflake.ID) ([]snowflake.ID, error)
}
