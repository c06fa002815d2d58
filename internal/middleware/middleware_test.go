package middleware

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"connectrpc.com/connect"

	"github.com/mmynk/pharmasupps/internal/auth"
	"github.com/mmynk/pharmasupps/internal/models"
)

// headerRequest is a minimal AnyRequest carrying headers.
type headerRequest struct {
	connect.AnyRequest
	header http.Header
}

func (r headerRequest) Header() http.Header {
	return r.header
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
		ok     bool
	}{
		{"Bearer abc", "abc", true},
		{"bearer abc", "abc", true},
		{"  Bearer   abc ", "abc", true},
		{"Bearer", "", false},
		{"Bearer ", "", false},
		{"Basic abc", "", false},
	}
	for _, tt := range tests {
		got, ok := bearerToken(tt.header)
		if got != tt.want || ok != tt.ok {
			t.Errorf("bearerToken(%q) = %q, %v", tt.header, got, ok)
		}
	}
}

func TestRequireAuth(t *testing.T) {
	jwt := auth.NewJWTManager("secret", time.Hour)
	token, _, err := jwt.Generate(&models.User{ID: "u1", Email: "owner@pharmacy.example"})
	if err != nil {
		t.Fatal(err)
	}

	var seen, session string
	next := func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
		seen = GetUserID(ctx)
		session = GetSessionID(ctx)
		return nil, nil
	}
	handler := RequireAuth(jwt)(next)

	t.Run("valid token enriches context", func(t *testing.T) {
		req := headerRequest{header: http.Header{"Authorization": {"Bearer " + token}}}
		if _, err := handler(context.Background(), req); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if seen != "u1" {
			t.Errorf("expected u1, got %q", seen)
		}
		if session == "" {
			t.Error("expected session id in context")
		}
	})

	t.Run("missing token is unauthenticated", func(t *testing.T) {
		_, err := handler(context.Background(), headerRequest{header: http.Header{}})
		if connect.CodeOf(err) != connect.CodeUnauthenticated || !errors.Is(err, auth.ErrMissingToken) {
			t.Errorf("expected unauthenticated missing token, got %v", err)
		}
	})

	t.Run("bad token is unauthenticated", func(t *testing.T) {
		req := headerRequest{header: http.Header{"Authorization": {"Bearer nope"}}}
		if _, err := handler(context.Background(), req); connect.CodeOf(err) != connect.CodeUnauthenticated {
			t.Errorf("expected unauthenticated, got %v", err)
		}
	})

	t.Run("optional auth lets anonymous through", func(t *testing.T) {
		seen = "stale"
		if _, err := OptionalAuth(jwt)(next)(context.Background(), headerRequest{header: http.Header{}}); err != nil {
			t.Fatal(err)
		}
		if seen != "" {
			t.Errorf("expected no user, got %q", seen)
		}
	})
}
