package tokengenerator

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Token types carried in the typ claim
const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

// Default token expiry durations
const (
	DefaultAccessTokenExpiry  = 15 * time.Minute
	DefaultRefreshTokenExpiry = 7 * 24 * time.Hour
)

// ErrWrongTokenType is returned when a token of one type is presented where another is required
var ErrWrongTokenType = errors.New("unexpected token type")

// TokenGenerator interface defines methods for token operations
type TokenGenerator interface {
	// GenerateToken signs claims with a fresh jti and the given lifetime
	GenerateToken(claims Claims, expiry time.Duration) (string, time.Time, error)

	// ParseToken verifies signature, expiry, issuer and audience
	ParseToken(tokenStr string) (*Claims, error)
}

// Claims struct for JWT claims
type Claims struct {
	Role        string `json:"role"`
	Fingerprint string `json:"fp,omitempty"`
	TokenType   string `json:"typ"`
	jwt.RegisteredClaims
}

// JwtTokenGenerator implements the TokenGenerator interface with HS256
type JwtTokenGenerator struct {
	Secret   string
	Issuer   string
	Audience string
}

// NewJwtTokenGenerator creates a new JwtTokenGenerator
func NewJwtTokenGenerator(secret, issuer, audience string) *JwtTokenGenerator {
	return &JwtTokenGenerator{
		Secret:   secret,
		Issuer:   issuer,
		Audience: audience,
	}
}

// GenerateToken creates a new signed token
func (g *JwtTokenGenerator) GenerateToken(claims Claims, expiry time.Duration) (string, time.Time, error) {
	now := time.Now().UTC()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(now.Add(expiry)),
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now.Add(-5 * time.Minute)),
		Issuer:    g.Issuer,
		Subject:   claims.Subject,
		ID:        uuid.New().String(),
		Audience:  jwt.ClaimStrings{g.Audience},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	ss, err := token.SignedString([]byte(g.Secret))
	if err != nil {
		slog.Error("Failed sign JWT Claim string!", "err", err)
		return "", time.Time{}, err
	}
	return ss, claims.ExpiresAt.Time, nil
}

// ParseToken parses and validates a token string
func (g *JwtTokenGenerator) ParseToken(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if g.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(g.Issuer))
	}
	if g.Audience != "" {
		opts = append(opts, jwt.WithAudience(g.Audience))
	}

	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(g.Secret), nil
	}, opts...)
	if err != nil {
		slog.Debug("Failed parse JWT string", "err", err)
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("failed_parse_token_claims")
	}
	return claims, nil
}

// ParseTyped parses tokenStr and requires its typ claim to equal tokenType
func ParseTyped(g TokenGenerator, tokenStr, tokenType string) (*Claims, error) {
	claims, err := g.ParseToken(tokenStr)
	if err != nil {
		return nil, err
	}
	if claims.TokenType != tokenType {
		return nil, fmt.Errorf("%w: got %q, want %q", ErrWrongTokenType, claims.TokenType, tokenType)
	}
	return claims, nil
}
