package services

import (
	"context"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/airvoyage/reservation-backend/pkg/jwt"
)

// AdminAuthService authenticates the operator account. Credentials come from
// the environment (single operator, bcrypt hash) rather than a user table;
// the admin surface is an internal tool, not a user-facing product.
type AdminAuthService struct {
	email        string
	passwordHash string
	jwtService   *jwt.Service
	logger       *logrus.Logger
}

// AdminLoginResponse carries the issued operator token.
type AdminLoginResponse struct {
	AccessToken string `json:"accessToken"`
	ExpiresIn   int64  `json:"expiresIn"`
	Email       string `json:"email"`
}

// NewAdminAuthService creates a new admin auth service reading
// ADMIN_EMAIL and ADMIN_PASSWORD_HASH from the environment.
func NewAdminAuthService(jwtService *jwt.Service, logger *logrus.Logger) *AdminAuthService {
	return &AdminAuthService{
		email:        os.Getenv("ADMIN_EMAIL"),
		passwordHash: os.Getenv("ADMIN_PASSWORD_HASH"),
		jwtService:   jwtService,
		logger:       logger,
	}
}

// Login verifies operator credentials and returns an access token.
func (s *AdminAuthService) Login(ctx context.Context, email, password string) (*AdminLoginResponse, error) {
	if s.email == "" || s.passwordHash == "" {
		return nil, fmt.Errorf("operator account is not configured")
	}

	if email != s.email {
		return nil, fmt.Errorf("invalid email or password")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(s.passwordHash), []byte(password)); err != nil {
		return nil, fmt.Errorf("invalid email or password")
	}

	accessToken, err := s.jwtService.GenerateOperatorToken(email)
	if err != nil {
		return nil, fmt.Errorf("failed to generate access token: %w", err)
	}

	s.logger.WithField("email", email).Info("Operator logged in")

	return &AdminLoginResponse{
		AccessToken: accessToken,
		ExpiresIn:   int64(s.jwtService.Expiry().Seconds()),
		Email:       email,
	}, nil
}

// HashPassword produces a bcrypt hash for provisioning the operator account.
func HashPassword(password string, cost int) (string, error) {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}
