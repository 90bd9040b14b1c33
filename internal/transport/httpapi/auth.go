package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/petrijr/pathways/pkg/api"
)

// ErrUnauthenticated is returned for missing or invalid credentials.
var ErrUnauthenticated = errors.New("unauthenticated")

// Claims is the JWT payload identifying the caller.
type Claims struct {
	jwt.RegisteredClaims
	UserID int64    `json:"uid"`
	Staff  bool     `json:"staff,omitempty"`
	Groups []string `json:"groups,omitempty"`
}

// Authenticator issues and verifies HS256 bearer tokens.
type Authenticator struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// NewAuthenticator creates an Authenticator. When issuer is non-empty it is
// set on issued tokens and required on verified ones.
func NewAuthenticator(secret []byte, issuer string) (*Authenticator, error) {
	if len(secret) == 0 {
		return nil, errors.New("jwt secret is required")
	}
	return &Authenticator{secret: secret, issuer: issuer, now: time.Now}, nil
}

// Issue returns a signed token for p that expires after ttl.
func (a *Authenticator) Issue(p api.Principal, ttl time.Duration) (string, error) {
	now := a.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.Username,
			Issuer:    a.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		UserID: p.UserID,
		Staff:  p.IsStaff,
		Groups: p.Groups,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify parses token and returns the principal it names.
func (a *Authenticator) Verify(token string) (api.Principal, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
	}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}

	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}, opts...)
	if err != nil {
		return api.Principal{}, fmt.Errorf("%w: %w", ErrUnauthenticated, err)
	}
	if claims.Subject == "" {
		return api.Principal{}, fmt.Errorf("%w: token has no subject", ErrUnauthenticated)
	}
	return api.Principal{
		UserID:   claims.UserID,
		Username: claims.Subject,
		IsStaff:  claims.Staff,
		Groups:   claims.Groups,
	}, nil
}

type principalKey struct{}

// PrincipalFrom returns the authenticated principal stored by the
// authentication middleware.
func PrincipalFrom(ctx context.Context) (api.Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(api.Principal)
	return p, ok
}

func withPrincipal(ctx context.Context, p api.Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// authenticate rejects requests without a valid bearer token.
func (a *Authenticator) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			writeDetail(w, http.StatusUnauthorized, "Authentication credentials were not provided.")
			return
		}
		p, err := a.Verify(strings.TrimSpace(token))
		if err != nil {
			writeDetail(w, http.StatusUnauthorized, "Invalid token.")
			return
		}
		next.ServeHTTP(w, r.WithContext(withPrincipal(r.Context(), p)))
	})
}
