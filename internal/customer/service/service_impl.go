package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/tomxwilliam/studioportal/internal/auth"
	"github.com/tomxwilliam/studioportal/internal/customer/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	repo  domain.Repository
}

type ServiceParam struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  domain.Repository
}

func NewService(p ServiceParam) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("customer.service"),
		genID: p.GenID,
		repo:  p.Repo,
	}
}

func (s *Service) CreateCustomer(ctx context.Context, sess auth.Session, params domain.CreateCustomerParams) (*domain.Customer, error) {
	if err := sess.RequireAdmin(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(params.Name) == "" || strings.TrimSpace(params.Email) == "" {
		return nil, domain.ErrMissingField
	}

	row := domain.Customer{
		ID:      s.genID.Generate(),
		Name:    strings.TrimSpace(params.Name),
		Email:   strings.ToLower(strings.TrimSpace(params.Email)),
		Company: params.Company,
		Phone:   params.Phone,
	}
	if err := s.repo.Insert(ctx, s.db, &row); err != nil {
		return nil, err
	}

	s.log.Info("customer created", zap.String("customer_id", row.ID.String()))
	return &row, nil
}

func (s *Service) CreateUser(ctx context.Context, sess auth.Session, params domain.CreateUserParams) (*domain.CreatedUser, error) {
	if err := sess.RequireAdmin(); err != nil {
		return nil, err
	}
	email := strings.ToLower(strings.TrimSpace(params.Email))
	if email == "" || params.Password == "" {
		return nil, domain.ErrMissingField
	}
	role := params.Role
	if role == "" {
		role = auth.RoleCustomer
	}
	if role == auth.RoleCustomer && params.CustomerID == nil {
		return nil, domain.ErrMissingField
	}
	if params.CustomerID != nil {
		owner, err := s.repo.FindByID(ctx, s.db, *params.CustomerID)
		if err != nil {
			return nil, err
		}
		if owner == nil {
			return nil, domain.ErrCustomerNotFound
		}
	}

	hash, err := auth.HashPassword(params.Password)
	if err != nil {
		return nil, err
	}

	token := uuid.NewString()
	user := domain.User{
		ID:           s.genID.Generate(),
		CustomerID:   params.CustomerID,
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		APITokenHash: auth.HashToken(token),
	}
	if err := s.repo.InsertUser(ctx, s.db, &user); err != nil {
		if isUniqueViolation(err) {
			return nil, domain.ErrEmailInUse
		}
		return nil, err
	}

	s.log.Info("user created",
		zap.String("user_id", user.ID.String()), zap.String("role", string(role)))
	return &domain.CreatedUser{User: user, APIToken: token}, nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") || strings.Contains(msg, "duplicate")
}
