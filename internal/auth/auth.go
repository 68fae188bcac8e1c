package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Principal is the authenticated workspace identity carried through a
// request. The user ID is the workspace ID used everywhere else.
type Principal struct {
	UserID string
}

// Claims is the JWT payload issued at login.
type Claims struct {
	jwt.RegisteredClaims
	UserID string `json:"id"`
}

// Service signs and verifies workspace session tokens.
type Service struct {
	secret []byte
	ttl    time.Duration

	now func() time.Time // injectable clock for testing
}

// NewService creates an auth service signing HS256 tokens with the given
// secret that expire after ttl.
func NewService(secret string, ttl time.Duration) *Service {
	return &Service{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// IssueToken creates a signed session token for the given user.
func (s *Service) IssueToken(userID string) (string, error) {
	now := s.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
		UserID: userID,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("signing session token: %w", err)
	}
	return signed, nil
}

// VerifyToken parses and validates a session token, returning the user ID.
func (s *Service) VerifyToken(tokenString string) (string, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(func() time.Time { return s.now() }))
	if err != nil {
		return "", fmt.Errorf("parsing session token: %w", err)
	}
	if claims.UserID == "" {
		return "", errors.New("session token has no user id")
	}
	return claims.UserID, nil
}
