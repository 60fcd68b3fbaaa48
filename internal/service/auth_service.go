package service

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"certintake/internal/config"
	"certintake/internal/domain"
)

// Roles carried in API tokens.
const (
	RoleOperator = "operator"
	RoleService  = "service"
)

const apiAudience = "certintake-api"

// Claims represents the JWT claims of an API caller.
type Claims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

// AuthService defines the API token contract.
type AuthService interface {
	IssueToken(subject, role string, ttl time.Duration) (string, error)
	ValidateToken(tokenString string) (*Claims, error)
}

type authService struct {
	cfg config.JWTConfig
	now func() time.Time
}

// NewAuthService creates a new AuthService implementation.
func NewAuthService(cfg config.JWTConfig) AuthService {
	return &authService{cfg: cfg, now: time.Now}
}

func (s *authService) IssueToken(subject, role string, ttl time.Duration) (string, error) {
	if subject == "" {
		return "", fmt.Errorf("auth.IssueToken: subject is required")
	}
	now := s.now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    s.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.New().String(),
			Audience:  jwt.ClaimStrings{apiAudience},
		},
		Role: role,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.cfg.Secret))
	if err != nil {
		return "", fmt.Errorf("signing access token: %w", err)
	}
	return signed, nil
}

func (s *authService) ValidateToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.cfg.Secret), nil
	}, jwt.WithAudience(apiAudience), jwt.WithIssuer(s.cfg.Issuer), jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, fmt.Errorf("parsing token: %w", err)
	}
	if !token.Valid {
		return nil, domain.ErrUnauthorized
	}
	return claims, nil
}
