package httpx

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type Role string

const (
	RoleAdmin    Role = "admin"
	RoleEditor   Role = "editor"
	RoleAgent    Role = "agent"
	RoleTraveler Role = "traveler"
	RoleViewer   Role = "viewer"
)

// Capability is what a route requires. Roles map to capabilities in one table;
// handlers never look at roles directly.
type Capability string

const (
	CapBook            Capability = "book"
	CapManageBookings  Capability = "bookings:manage"
	CapManageInventory Capability = "inventory:manage"
	CapAgent           Capability = "agent"
)

var roleCaps = map[Role][]Capability{
	RoleAdmin:    {CapBook, CapManageBookings, CapManageInventory},
	RoleEditor:   {CapBook, CapManageBookings, CapManageInventory},
	RoleAgent:    {CapBook, CapAgent},
	RoleTraveler: {CapBook},
	RoleViewer:   {CapBook},
}

type Principal struct {
	UserID string
	Role   Role
}

func (p Principal) Can(c Capability) bool {
	for _, have := range roleCaps[p.Role] {
		if have == c {
			return true
		}
	}
	return false
}

// Claims: sub = user id.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

type principalKey struct{}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

type Authenticator struct {
	secret []byte
}

func NewAuthenticator(secret string) *Authenticator {
	return &Authenticator{secret: []byte(secret)}
}

// Sign issues an HS256 token for p. Used by bookingctl and tests.
func (a *Authenticator) Sign(p Principal, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Role: string(p.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

func (a *Authenticator) Parse(tokenStr string) (Principal, error) {
	var claims Claims
	token, err := jwt.ParseWithClaims(tokenStr, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return Principal{}, err
	}
	if !token.Valid {
		return Principal{}, errors.New("invalid token")
	}
	if claims.Subject == "" {
		return Principal{}, errors.New("token has no subject")
	}
	role := Role(claims.Role)
	if _, known := roleCaps[role]; !known {
		return Principal{}, fmt.Errorf("unknown role %q", claims.Role)
	}
	return Principal{UserID: claims.Subject, Role: role}, nil
}

// Middleware attaches the bearer token's principal to the request. Requests
// without a token pass through anonymously; Require decides whether that is
// enough. A token that is present but bad is rejected here.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		if auth == "" {
			next.ServeHTTP(w, r)
			return
		}
		parts := strings.Fields(auth)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "Unauthorized", Message: "invalid authorization header"})
			return
		}
		p, err := a.Parse(parts[1])
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "Unauthorized", Message: "invalid token"})
			return
		}
		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
	})
}

// Require is the single authorization gate in front of every protected route.
func Require(c Capability) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFrom(r.Context())
			if !ok {
				writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "Unauthorized", Message: "missing authorization"})
				return
			}
			if !p.Can(c) {
				writeJSON(w, http.StatusForbidden, errorResponse{Error: "Forbidden", Message: fmt.Sprintf("role %s lacks %s", p.Role, c)})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
