// Package session issues signed session tokens after a successful login and
// carries them to the client in an HttpOnly cookie.
package session

import (
	"crypto/rand"
	"errors"
	"fmt"
	"loginguard/internal/models"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims are the JWT claims carried by a session token.
type Claims struct {
	jwt.RegisteredClaims
}

// Issuer creates and validates HS256 session tokens.
type Issuer struct {
	secret          []byte
	generatedSecret bool
	issuer          string
	ttl             time.Duration
	cookie          models.SessionConfig
	now             func() time.Time
}

// NewIssuer creates an Issuer from cfg. With an empty secret a random one is
// generated, which invalidates sessions on every restart.
func NewIssuer(cfg models.SessionConfig) (*Issuer, error) {
	if cfg.TTL <= 0 {
		return nil, errors.New("session TTL must be positive")
	}

	i := &Issuer{
		secret: []byte(cfg.Secret),
		issuer: cfg.Issuer,
		ttl:    cfg.TTL,
		cookie: cfg,
		now:    time.Now,
	}
	if len(i.secret) == 0 {
		i.secret = make([]byte, 32)
		if _, err := rand.Read(i.secret); err != nil {
			return nil, fmt.Errorf("failed to generate session secret: %w", err)
		}
		i.generatedSecret = true
	}
	return i, nil
}

// GeneratedSecret reports whether the signing secret was generated at startup.
func (i *Issuer) GeneratedSecret() bool {
	return i.generatedSecret
}

// CreateToken signs a token for accountID.
func (i *Issuer) CreateToken(accountID string) (string, error) {
	if accountID == "" {
		return "", errors.New("account ID is required")
	}
	now := i.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   accountID,
			Issuer:    i.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign session token: %w", err)
	}
	return token, nil
}

// Parse validates token and returns its claims.
func (i *Issuer) Parse(token string) (*Claims, error) {
	claims := &Claims{}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(i.now),
		jwt.WithExpirationRequired(),
	}
	if i.issuer != "" {
		opts = append(opts, jwt.WithIssuer(i.issuer))
	}

	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return i.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("invalid session token: %w", err)
	}
	if !parsed.Valid {
		return nil, errors.New("invalid session token")
	}
	return claims, nil
}

// AttachToResponse sets the session cookie on w.
func (i *Issuer) AttachToResponse(w http.ResponseWriter, token string) {
	http.SetCookie(w, i.newCookie(token, int(i.ttl.Seconds())))
}

// Clear expires the session cookie on w.
func (i *Issuer) Clear(w http.ResponseWriter) {
	http.SetCookie(w, i.newCookie("", -1))
}

// CookieName returns the configured cookie name.
func (i *Issuer) CookieName() string {
	return i.cookie.CookieName
}

func (i *Issuer) newCookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     i.cookie.CookieName,
		Value:    value,
		Path:     i.cookie.CookiePath,
		Domain:   i.cookie.Domain,
		MaxAge:   maxAge,
		Secure:   i.cookie.Secure,
		HttpOnly: true,
		SameSite: sameSite(i.cookie.SameSite),
	}
}

func sameSite(mode string) http.SameSite {
	switch mode {
	case models.SameSiteStrict:
		return http.SameSiteStrictMode
	case models.SameSiteNone:
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}
