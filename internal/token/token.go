// Package token issues and verifies the signed, time-bounded magic-link
// tokens that identify a student. It holds no persistent state: a token is a
// pure function of the secret, the claims and the clock.
package token

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrTokenInvalid covers every verification failure that is not a plain
	// expiry: bad signature, malformed payload, wrong algorithm. The gate
	// fails closed and does not leak which check tripped.
	ErrTokenInvalid = errors.New("token invalid")
	// ErrTokenExpired indicates the token itself is past its absolute expiry.
	ErrTokenExpired = errors.New("token expired")
)

// Claims is the identity payload carried inside a magic-link token. The slot
// window travels with the token so the gate can enforce it without a roster
// read.
type Claims struct {
	StudentIDHash string    `json:"student_id_hash"`
	IDLast4       string    `json:"id_last4"`
	FirstName     string    `json:"first_name"`
	LastName      string    `json:"last_name"`
	Email         string    `json:"email"`
	SlotStart     time.Time `json:"slot_start"`
	SlotEnd       time.Time `json:"slot_end"`
	jwt.RegisteredClaims
}

// Service signs and verifies magic-link tokens.
type Service struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewService builds a token service. The ttl bounds the absolute lifetime of
// issued tokens, independent of the exam slot window.
func NewService(secret string, ttl time.Duration) (*Service, error) {
	if secret == "" {
		return nil, fmt.Errorf("token secret must not be empty")
	}
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}

	return &Service{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// Issue signs a token for the given identity claims.
func (s *Service) Issue(claims Claims) (string, error) {
	issued := s.now()
	claims.IssuedAt = jwt.NewNumericDate(issued)
	claims.ExpiresAt = jwt.NewNumericDate(issued.Add(s.ttl))

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// Verify decodes and cryptographically checks a token string. Any
// verification failure other than expiry maps to ErrTokenInvalid.
func (s *Service) Verify(tokenString string) (Claims, error) {
	tokenString = strings.TrimSpace(tokenString)
	if tokenString == "" {
		return Claims{}, ErrTokenInvalid
	}

	var claims Claims
	parsed, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method")
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, ErrTokenExpired
		}
		return Claims{}, ErrTokenInvalid
	}

	if !parsed.Valid || claims.StudentIDHash == "" {
		return Claims{}, ErrTokenInvalid
	}

	return claims, nil
}

// MagicLink renders the exam entry URL carrying a freshly issued token.
func (s *Service) MagicLink(baseURL string, claims Claims) (string, error) {
	signed, err := s.Issue(claims)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("%s/exam?token=%s", strings.TrimRight(baseURL, "/"), url.QueryEscape(signed)), nil
}

// HashStudentID derives the privacy-preserving digest of the durable student
// identifier. The raw identifier is never stored or transmitted.
func HashStudentID(identifier string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(identifier))))
	return hex.EncodeToString(sum[:])
}
