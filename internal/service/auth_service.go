package service

import (
	"context"
	"net/mail"
	"strings"

	"go.uber.org/zap"

	"pennywise/internal/apperr"
	"pennywise/internal/model"
	"pennywise/pkg/util"
)

const minPasswordLength = 8

// UserStore is implemented by the PostgreSQL and SQLite user stores.
type UserStore interface {
	Create(ctx context.Context, email, passwordHash string) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
}

type AuthService struct {
	users     UserStore
	jwtSecret string
	logger    *zap.Logger
}

func NewAuthService(users UserStore, jwtSecret string, logger *zap.Logger) *AuthService {
	return &AuthService{
		users:     users,
		jwtSecret: jwtSecret,
		logger:    logger,
	}
}

// Register creates a new user. A taken email is a Conflict.
func (s *AuthService) Register(ctx context.Context, email, password string) (*model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, apperr.Validation("invalid email address")
	}
	if len(password) < minPasswordLength {
		return nil, apperr.Validation("password must be at least %d characters", minPasswordLength)
	}

	hash, err := util.HashPassword(password)
	if err != nil {
		return nil, err
	}

	u, err := s.users.Create(ctx, email, hash)
	if err != nil {
		if apperr.KindOf(err) != "" {
			return nil, err
		}
		return nil, apperr.Dependency("failed to create user", err)
	}

	s.logger.Info("User registered", zap.String("user_id", u.ID))
	return u, nil
}

// Login checks user credentials and returns a JWT.
func (s *AuthService) Login(ctx context.Context, email, password string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return "", apperr.Unauthorized("invalid email or password")
		}
		return "", apperr.Dependency("failed to look up user", err)
	}

	if !util.CheckPassword(password, u.PasswordHash) {
		return "", apperr.Unauthorized("invalid email or password")
	}

	token, err := util.GenerateJWT(u.ID, s.jwtSecret)
	if err != nil {
		return "", err
	}
	return token, nil
}

// Authenticate resolves a bearer token to the owner id it was issued for.
func (s *AuthService) Authenticate(token string) (string, error) {
	userID, err := util.ParseJWT(token, s.jwtSecret)
	if err != nil {
		return "", apperr.Unauthorized("invalid or expired token")
	}
	return userID, nil
}
