// Package auth guards the operator endpoints. Operators present the admin
// secret directly or exchange it for a short-lived JWT.
package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/apex/log"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const (
	DefaultTokenTTL = 12 * time.Hour
	tokenIssuer     = "product-scout"
)

var (
	ErrInvalidCreds = errors.New("invalid credentials")
	ErrInvalidToken = errors.New("invalid or expired token")
)

type Config struct {
	// Secret is compared in constant time. Ignored when SecretHash is set.
	Secret string
	// SecretHash is a bcrypt hash of the admin secret.
	SecretHash string
	JWTSecret  string
	TokenTTL   time.Duration
}

// ConfigFromEnv reads ADMIN_SECRET, ADMIN_SECRET_HASH and JWT_SECRET.
func ConfigFromEnv() Config {
	return Config{
		Secret:     strings.TrimSpace(os.Getenv("ADMIN_SECRET")),
		SecretHash: strings.TrimSpace(os.Getenv("ADMIN_SECRET_HASH")),
		JWTSecret:  strings.TrimSpace(os.Getenv("JWT_SECRET")),
	}
}

type Service struct {
	secret     []byte
	secretHash []byte
	jwtKey     []byte
	ttl        time.Duration
	now        func() time.Time
}

// NewService builds the service. Missing secrets are replaced by ephemeral
// random values, which lock the admin API until the process is configured.
func NewService(cfg Config) (*Service, error) {
	s := &Service{
		secret:     []byte(cfg.Secret),
		secretHash: []byte(cfg.SecretHash),
		jwtKey:     []byte(cfg.JWTSecret),
		ttl:        cfg.TokenTTL,
		now:        time.Now,
	}
	if s.ttl <= 0 {
		s.ttl = DefaultTokenTTL
	}
	if len(s.secret) == 0 && len(s.secretHash) == 0 {
		random, err := randomSecret()
		if err != nil {
			return nil, fmt.Errorf("failed to generate ADMIN_SECRET fallback: %w", err)
		}
		s.secret = []byte(random)
		log.Warn("auth: ADMIN_SECRET is not set; using ephemeral in-memory fallback secret")
	}
	if len(s.secretHash) > 0 {
		if _, err := bcrypt.Cost(s.secretHash); err != nil {
			return nil, fmt.Errorf("ADMIN_SECRET_HASH is not a bcrypt hash: %w", err)
		}
	}
	if len(s.jwtKey) == 0 {
		random, err := randomSecret()
		if err != nil {
			return nil, fmt.Errorf("failed to generate JWT fallback secret: %w", err)
		}
		s.jwtKey = []byte(random)
		log.Warn("auth: JWT_SECRET is not set; issued tokens will not survive a restart")
	}
	return s, nil
}

func randomSecret() (string, error) {
	buf := make([]byte, 48)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// CheckSecret reports whether candidate is the admin secret.
func (s *Service) CheckSecret(candidate string) bool {
	if candidate == "" {
		return false
	}
	if len(s.secretHash) > 0 {
		return bcrypt.CompareHashAndPassword(s.secretHash, []byte(candidate)) == nil
	}
	return subtle.ConstantTimeCompare(s.secret, []byte(candidate)) == 1
}

// IssueToken exchanges the admin secret for a signed token.
func (s *Service) IssueToken(secret, subject string) (string, time.Time, error) {
	if !s.CheckSecret(secret) {
		return "", time.Time{}, ErrInvalidCreds
	}
	if subject == "" {
		subject = "operator"
	}
	now := s.now()
	expires := now.Add(s.ttl)
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    tokenIssuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expires),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.jwtKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, expires, nil
}

// VerifyToken returns the subject of a valid token.
func (s *Service) VerifyToken(token string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.jwtKey, nil
	}, jwt.WithIssuer(tokenIssuer), jwt.WithTimeFunc(s.now))
	if err != nil || !parsed.Valid {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}
