package auth

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidUserID is returned when a token is requested for a blank user id.
var ErrInvalidUserID = errors.New("invalid user id")

// Service issues and validates relay tokens.
type Service struct {
	jwtConfig *JWTConfig
}

// NewService creates a new authentication service.
func NewService(jwtConfig *JWTConfig) *Service {
	return &Service{jwtConfig: jwtConfig}
}

// IssueToken returns a signed token for userID. The relay trusts whoever holds
// the signing secret; there is no password store behind it.
func (s *Service) IssueToken(userID, name string) (string, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" || len(userID) > 64 {
		return "", ErrInvalidUserID
	}
	token, err := GenerateToken(s.jwtConfig, userID, strings.TrimSpace(name))
	if err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return token, nil
}

// ValidateToken validates a JWT token and returns the claims.
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	return ValidateToken(s.jwtConfig, tokenString)
}
