package auth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/mmynk/pharmasupps/internal/models"
)

type memoryUsers struct {
	mu    sync.Mutex
	users map[string]*models.User
}

func newMemoryUsers() *memoryUsers {
	return &memoryUsers{users: make(map[string]*models.User)}
}

func (m *memoryUsers) CreateUser(_ context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[user.Email] = user
	return nil
}

func (m *memoryUsers) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.users[normalizeEmail(email)], nil
}

func (m *memoryUsers) GetUserByID(_ context.Context, id string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, nil
}

// recorder collects identities pushed to a subscriber.
type recorder struct {
	mu     sync.Mutex
	events []*Identity
}

func (r *recorder) record(identity *Identity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, identity)
}

func (r *recorder) snapshot() []*Identity {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*Identity(nil), r.events...)
}

func setupProvider(t *testing.T, ttl time.Duration) *SessionProvider {
	t.Helper()
	authn := NewPasswordAuthenticator(newMemoryUsers()).WithCost(bcrypt.MinCost)
	if _, err := authn.Register(context.Background(), "Owner@Pharmacy.example", "Owner", "correct-horse"); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	return NewSessionProvider(authn, NewJWTManager("test-secret", ttl), nil)
}

func TestPasswordAuthenticator(t *testing.T) {
	ctx := context.Background()
	authn := NewPasswordAuthenticator(newMemoryUsers()).WithCost(bcrypt.MinCost)

	if _, err := authn.Register(ctx, "a@b.example", "A", "short"); !errors.Is(err, ErrWeakPassword) {
		t.Errorf("expected ErrWeakPassword, got %v", err)
	}
	if _, err := authn.Register(ctx, "a@b.example", "A", "long-enough"); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if _, err := authn.Register(ctx, "A@B.example", "A", "long-enough"); !errors.Is(err, ErrEmailExists) {
		t.Errorf("expected ErrEmailExists, got %v", err)
	}
	if _, err := authn.Authenticate(ctx, "nobody@b.example", "long-enough"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("unknown user: expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := authn.Authenticate(ctx, "a@b.example", "wrong-password"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("wrong password: expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := authn.Authenticate(ctx, "a@b.example", "long-enough"); err != nil {
		t.Errorf("valid credentials rejected: %v", err)
	}
}

func TestSessionProvider(t *testing.T) {
	ctx := context.Background()

	t.Run("subscribe reports current state immediately", func(t *testing.T) {
		p := setupProvider(t, time.Hour)
		rec := &recorder{}
		unsubscribe := p.Subscribe(rec.record)
		defer unsubscribe()

		events := rec.snapshot()
		if len(events) != 1 || events[0] != nil {
			t.Fatalf("expected one nil event, got %v", events)
		}
	})

	t.Run("verify and sign out push changes", func(t *testing.T) {
		p := setupProvider(t, time.Hour)
		rec := &recorder{}
		defer p.Subscribe(rec.record)()

		identity, err := p.Verify(ctx, "owner@pharmacy.example", "correct-horse")
		if err != nil {
			t.Fatalf("Verify failed: %v", err)
		}
		if identity.Token == "" {
			t.Error("expected a session token")
		}
		if _, err := p.Validate(identity.Token); err != nil {
			t.Errorf("token of active session should validate: %v", err)
		}

		if err := p.SignOut(ctx); err != nil {
			t.Fatalf("SignOut failed: %v", err)
		}
		if _, err := p.Validate(identity.Token); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("token should be rejected after sign-out, got %v", err)
		}

		events := rec.snapshot()
		if len(events) != 3 || events[1] == nil || events[2] != nil {
			t.Errorf("expected nil, identity, nil; got %v", events)
		}
	})

	t.Run("failed verify keeps signed-out state", func(t *testing.T) {
		p := setupProvider(t, time.Hour)
		if _, err := p.Verify(ctx, "owner@pharmacy.example", "nope-nope"); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("expected ErrInvalidCredentials, got %v", err)
		}
		if p.Current() != nil {
			t.Error("expected no session")
		}
	})

	t.Run("token expiry pushes invalidation", func(t *testing.T) {
		p := setupProvider(t, 50*time.Millisecond)
		rec := &recorder{}
		defer p.Subscribe(rec.record)()

		if _, err := p.Verify(ctx, "owner@pharmacy.example", "correct-horse"); err != nil {
			t.Fatalf("Verify failed: %v", err)
		}

		deadline := time.Now().Add(2 * time.Second)
		for p.Current() != nil && time.Now().Before(deadline) {
			time.Sleep(10 * time.Millisecond)
		}
		if p.Current() != nil {
			t.Fatal("session did not expire")
		}
		events := rec.snapshot()
		if last := events[len(events)-1]; last != nil {
			t.Errorf("expected final nil event, got %+v", last)
		}
	})

	t.Run("unsubscribe stops delivery", func(t *testing.T) {
		p := setupProvider(t, time.Hour)
		rec := &recorder{}
		unsubscribe := p.Subscribe(rec.record)
		unsubscribe()

		p.Verify(ctx, "owner@pharmacy.example", "correct-horse")
		if len(rec.snapshot()) != 1 {
			t.Errorf("expected only the initial event, got %d", len(rec.snapshot()))
		}
	})
}

func TestAdminList(t *testing.T) {
	list := NewAdminList([]string{" Owner@Pharmacy.example ", ""})

	tests := []struct {
		email string
		want  bool
	}{
		{"owner@pharmacy.example", true},
		{"OWNER@pharmacy.example", true},
		{"clerk@pharmacy.example", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.email, func(t *testing.T) {
			if got := list.IsAdmin(tt.email); got != tt.want {
				t.Errorf("IsAdmin(%q) = %v, want %v", tt.email, got, tt.want)
			}
		})
	}

	if NewAdminList(nil).IsAdmin("owner@pharmacy.example") {
		t.Error("empty list must grant admin to nobody")
	}
}

func TestJWTManager(t *testing.T) {
	user := &models.User{ID: "u1", Email: "owner@pharmacy.example"}

	t.Run("round trip", func(t *testing.T) {
		m := NewJWTManager("secret", time.Hour)
		token, expires, err := m.Generate(user)
		if err != nil {
			t.Fatalf("Generate failed: %v", err)
		}
		claims, err := m.Validate(token)
		if err != nil {
			t.Fatalf("Validate failed: %v", err)
		}
		if claims.UserID != "u1" || claims.Email != user.Email || claims.ID == "" {
			t.Errorf("unexpected claims %+v", claims)
		}
		if !claims.ExpiresAt.Time.Equal(expires.Truncate(time.Second)) {
			t.Errorf("expiry: got %v, want %v", claims.ExpiresAt.Time, expires)
		}
	})

	t.Run("each sign-in gets a new token id", func(t *testing.T) {
		m := NewJWTManager("secret", time.Hour)
		a, _, _ := m.Generate(user)
		b, _, _ := m.Generate(user)
		ca, _ := m.Validate(a)
		cb, _ := m.Validate(b)
		if ca.ID == cb.ID {
			t.Error("expected distinct token ids")
		}
	})

	t.Run("wrong secret is rejected", func(t *testing.T) {
		token, _, _ := NewJWTManager("secret", time.Hour).Generate(user)
		if _, err := NewJWTManager("other", time.Hour).Validate(token); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("expected ErrInvalidToken, got %v", err)
		}
	})

	t.Run("expired token is rejected", func(t *testing.T) {
		m := NewJWTManager("secret", time.Minute)
		token, _, _ := m.Generate(user)
		m.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
		if _, err := m.Validate(token); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("expected ErrInvalidToken, got %v", err)
		}
	})
}
