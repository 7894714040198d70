package auth

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingIdentity = errors.New("missing profile identity")
	ErrInvalidIdentity = errors.New("invalid profile identity")
	ErrTokenDisabled   = errors.New("bearer tokens are not enabled")
)

// Parser turns request credentials into a profile id.
type Parser struct {
	secret []byte
}

func NewParser(secret string) *Parser {
	return &Parser{secret: []byte(secret)}
}

func (p *Parser) TokensEnabled() bool {
	return len(p.secret) > 0
}

// ParseProfileID reads a raw profile id, as sent in the profile header.
func (p *Parser) ParseProfileID(raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, ErrMissingIdentity
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidIdentity, raw)
	}
	return id, nil
}

// ParseToken validates an HS256 token and returns the profile id in its subject.
func (p *Parser) ParseToken(token string) (int64, error) {
	if !p.TokensEnabled() {
		return 0, ErrTokenDisabled
	}
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return p.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidIdentity, err)
	}
	return p.ParseProfileID(claims.Subject)
}

// IssueToken signs a token for a profile. Used by tooling and tests.
func (p *Parser) IssueToken(profileID int64, claims jwt.RegisteredClaims) (string, error) {
	if !p.TokensEnabled() {
		return "", ErrTokenDisabled
	}
	claims.Subject = strconv.FormatInt(profileID, 10)
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.secret)
}
