package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"github.com/Jonas0119/zhzb/internal/zhzb/models"
	"github.com/Jonas0119/zhzb/internal/zhzb/repository"
)

// TokenIssuer signs session tokens for authenticated users
type TokenIssuer interface {
	GenerateToken(user *models.User) (string, error)
}

// SignupGrant is credited to every new account
type SignupGrant struct {
	AICPoints decimal.Decimal
	HHPoints  decimal.Decimal
	Balance   decimal.Decimal
}

// AuthResult is returned by Register and Login
type AuthResult struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

// AuthService registers users and verifies their credentials
type AuthService struct {
	repo   repository.Repository
	tokens TokenIssuer
	grant  SignupGrant
	logger *slog.Logger
}

// NewAuthService creates a new auth service
func NewAuthService(repo repository.Repository, tokens TokenIssuer, grant SignupGrant, logger *slog.Logger) *AuthService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthService{repo: repo, tokens: tokens, grant: grant, logger: logger}
}

// Register creates a user with the signup grant and returns a session token
func (s *AuthService) Register(ctx context.Context, username, email, password string) (*AuthResult, error) {
	user, err := s.createUser(ctx, username, email, password, models.RoleUser)
	if err != nil {
		return nil, err
	}
	token, err := s.tokens.GenerateToken(user)
	if err != nil {
		return nil, fmt.Errorf("generate token: %w", err)
	}
	return &AuthResult{Token: token, User: user}, nil
}

// EnsureAdmin creates the bootstrap administrator unless the username is taken
func (s *AuthService) EnsureAdmin(ctx context.Context, username, email, password string) error {
	existing, err := s.repo.GetUserByLogin(ctx, strings.TrimSpace(username))
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}
	_, err = s.createUser(ctx, username, email, password, models.RoleAdmin)
	return err
}

func (s *AuthService) createUser(ctx context.Context, username, email, password, role string) (*models.User, error) {
	username = strings.TrimSpace(username)
	email = strings.ToLower(strings.TrimSpace(email))
	if len(username) < 3 || len(username) > 50 {
		return nil, fmt.Errorf("%w: username must be 3 to 50 characters", models.ErrInvalidInput)
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, fmt.Errorf("%w: invalid email", models.ErrInvalidInput)
	}
	if len(password) < 6 {
		return nil, fmt.Errorf("%w: password must be at least 6 characters", models.ErrInvalidInput)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := time.Now().UTC()
	user := &models.User{
		Username:     username,
		Email:        email,
		PasswordHash: string(hash),
		Role:         role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	acct := &models.Account{
		Username:  username,
		AICPoints: s.grant.AICPoints,
		HHPoints:  s.grant.HHPoints,
		Balance:   s.grant.Balance,
		UpdatedAt: now,
	}
	id, err := s.repo.CreateUser(ctx, user, acct)
	if err != nil {
		return nil, err
	}
	user.ID = id

	s.logger.Info("user registered", "user_id", id, "username", username, "role", role)
	return user, nil
}

// Login accepts a username or an email address
func (s *AuthService) Login(ctx context.Context, login, password string) (*AuthResult, error) {
	login = strings.TrimSpace(login)
	if strings.Contains(login, "@") {
		login = strings.ToLower(login)
	}
	if login == "" || password == "" {
		return nil, fmt.Errorf("%w: login and password are required", models.ErrInvalidInput)
	}

	user, err := s.repo.GetUserByLogin(ctx, login)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, models.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return nil, models.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("compare password: %w", err)
	}

	token, err := s.tokens.GenerateToken(user)
	if err != nil {
		return nil, fmt.Errorf("generate token: %w", err)
	}
	return &AuthResult{Token: token, User: user}, nil
}

// Profile returns the user record without credentials
func (s *AuthService) Profile(ctx context.Context, userID int64) (*models.User, error) {
	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, fmt.Errorf("%w: %d", models.ErrAccountNotFound, userID)
	}
	return user, nil
}
