package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/inventorynest/shop-orders/internal/cart"
	"github.com/inventorynest/shop-orders/internal/orders"
)

const (
	RoleAdmin = "admin"
	RoleUser  = "user"

	SessionHeader = "X-Session-Token"
	SessionCookie = "session_id"
)

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrInvalidToken = errors.New("invalid token")
)

type Claims struct {
	jwt.RegisteredClaims
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
}

// Identity is who a request acts for: a signed-in user, an anonymous
// session, or (before a session is established) nobody.
type Identity struct {
	UserID       string
	Email        string
	Role         string
	SessionToken string
}

func (i Identity) Authenticated() bool { return i.UserID != "" }
func (i Identity) Admin() bool         { return i.Authenticated() && i.Role == RoleAdmin }

func (i Identity) CartOwner() cart.Owner {
	if i.Authenticated() {
		return cart.Owner{UserID: i.UserID}
	}
	return cart.Owner{SessionToken: i.SessionToken}
}

// Purchaser maps the identity to an order owner. Signed-in users always buy
// as themselves; anonymous sessions need a guest email.
func (i Identity) Purchaser(guestEmail string) orders.Purchaser {
	if i.Authenticated() {
		return orders.Purchaser{UserID: i.UserID, Email: i.Email, GuestEmail: strings.TrimSpace(guestEmail)}
	}
	return orders.Purchaser{GuestEmail: strings.TrimSpace(guestEmail)}
}

// Sessions stores anonymous session tokens; *redisx.Sessions in production.
type Sessions interface {
	Create(ctx context.Context) (string, error)
	Touch(ctx context.Context, token string) (bool, error)
}

type Resolver struct {
	Secret     []byte
	Sessions   Sessions
	SessionTTL time.Duration
}

// Issue signs a token for a user. Used by tooling and tests; tokens are
// normally minted by the identity provider.
func (r *Resolver) Issue(userID, email, role string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Email: email,
		Role:  role,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(r.Secret)
}

func (r *Resolver) Parse(token string) (Claims, error) {
	var c Claims
	_, err := jwt.ParseWithClaims(token, &c, func(t *jwt.Token) (any, error) {
		return r.Secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if c.Subject == "" {
		return Claims{}, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return c, nil
}

// User reads the bearer token, if any. No bearer yields an empty identity;
// a bad one is an error.
func (r *Resolver) User(req *http.Request) (Identity, error) {
	h := req.Header.Get("Authorization")
	if h == "" {
		return Identity{}, nil
	}
	token, ok := strings.CutPrefix(h, "Bearer ")
	if !ok || strings.TrimSpace(token) == "" {
		return Identity{}, ErrInvalidToken
	}
	c, err := r.Parse(strings.TrimSpace(token))
	if err != nil {
		return Identity{}, err
	}
	role := c.Role
	if role == "" {
		role = RoleUser
	}
	return Identity{UserID: c.Subject, Email: c.Email, Role: role}, nil
}

// EnsureSession gives an anonymous identity a live session token, creating
// one when the request carries none or an expired one. The token is echoed
// back as a header and a cookie.
func (r *Resolver) EnsureSession(w http.ResponseWriter, req *http.Request, id Identity) (Identity, error) {
	if id.Authenticated() {
		return id, nil
	}
	token := req.Header.Get(SessionHeader)
	if token == "" {
		if c, err := req.Cookie(SessionCookie); err == nil {
			token = c.Value
		}
	}

	ok, err := r.Sessions.Touch(req.Context(), token)
	if err != nil {
		return id, err
	}
	if !ok {
		if token, err = r.Sessions.Create(req.Context()); err != nil {
			return id, err
		}
	}

	w.Header().Set(SessionHeader, token)
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(r.SessionTTL.Seconds()),
	})
	id.SessionToken = token
	return id, nil
}

type ctxKey struct{}

func ContextWithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

func FromContext(ctx context.Context) Identity {
	id, _ := ctx.Value(ctxKey{}).(Identity)
	return id
}

// Middleware resolves the bearer identity for every request and rejects
// requests carrying an invalid token.
func (r *Resolver) Middleware(onError func(w http.ResponseWriter, req *http.Request, err error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			id, err := r.User(req)
			if err != nil {
				onError(w, req, fmt.Errorf("%w: %v", ErrUnauthorized, err))
				return
			}
			next.ServeHTTP(w, req.WithContext(ContextWithIdentity(req.Context(), id)))
		})
	}
}
