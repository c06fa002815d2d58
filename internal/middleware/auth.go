package middleware

import (
	"context"
	"strings"

	"connectrpc.com/connect"

	"github.com/mmynk/pharmasupps/internal/auth"
)

type contextKey string

const (
	UserIDKey    contextKey = "user_id"
	EmailKey     contextKey = "email"
	SessionIDKey contextKey = "session_id"
)

// GetUserID returns the authenticated operator ID, or "" before auth.
func GetUserID(ctx context.Context) string {
	userID, _ := ctx.Value(UserIDKey).(string)
	return userID
}

// GetEmail returns the authenticated operator email, or "" before auth.
func GetEmail(ctx context.Context) string {
	email, _ := ctx.Value(EmailKey).(string)
	return email
}

// GetSessionID returns the token ID of the caller's session.
func GetSessionID(ctx context.Context) string {
	id, _ := ctx.Value(SessionIDKey).(string)
	return id
}

// TokenValidator checks a bearer token. auth.JWTManager accepts any valid
// token; auth.SessionProvider additionally requires it to be the live session.
type TokenValidator interface {
	Validate(token string) (*auth.Claims, error)
}

// RequireAuth rejects requests without a valid bearer token with
// CodeUnauthenticated.
func RequireAuth(validator TokenValidator) connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			claims, err := authenticate(validator, req.Header().Get("Authorization"))
			if err != nil {
				return nil, connect.NewError(connect.CodeUnauthenticated, err)
			}
			return next(withClaims(ctx, claims), req)
		}
	}
}

// OptionalAuth attaches the caller's claims when a valid token is present
// and lets every request through.
func OptionalAuth(validator TokenValidator) connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			if claims, err := authenticate(validator, req.Header().Get("Authorization")); err == nil {
				ctx = withClaims(ctx, claims)
			}
			return next(ctx, req)
		}
	}
}

func authenticate(validator TokenValidator, header string) (*auth.Claims, error) {
	if header == "" {
		return nil, auth.ErrMissingToken
	}
	token, ok := bearerToken(header)
	if !ok {
		return nil, auth.ErrInvalidToken
	}
	return validator.Validate(token)
}

func withClaims(ctx context.Context, claims *auth.Claims) context.Context {
	ctx = context.WithValue(ctx, UserIDKey, claims.UserID)
	ctx = context.WithValue(ctx, EmailKey, claims.Email)
	return context.WithValue(ctx, SessionIDKey, claims.ID)
}

func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	token = strings.TrimSpace(token)
	if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
		return "", false
	}
	return token, true
}
