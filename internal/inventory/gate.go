package inventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mmynk/pharmasupps/internal/auth"
	"github.com/mmynk/pharmasupps/internal/notify"
)

// State is the Gate's authentication state.
type State int

const (
	SignedOut State = iota
	SignedIn
	SignedInAdmin
)

func (s State) String() string {
	switch s {
	case SignedIn:
		return "signed-in"
	case SignedInAdmin:
		return "signed-in-admin"
	default:
		return "signed-out"
	}
}

// Gate tracks the identity pushed by the provider and decides who may mutate
// the inventory. The admin flag is recomputed from the allow-list on every
// identity change.
type Gate struct {
	provider auth.IdentityProvider
	admins   auth.AdminList
	notifier notify.Notifier
	logger   *slog.Logger

	mu          sync.RWMutex
	identity    *auth.Identity
	state       State
	signingOut  bool
	unsubscribe func()
}

// NewGate subscribes to the provider. Call Close to stop listening.
func NewGate(provider auth.IdentityProvider, admins auth.AdminList, notifier notify.Notifier, logger *slog.Logger) *Gate {
	g := &Gate{
		provider: provider,
		admins:   admins,
		notifier: notifier,
		logger:   logger,
	}
	g.unsubscribe = provider.Subscribe(g.onChange)
	return g
}

// SignIn verifies the credentials with the provider. On failure the state
// stays signed out and an error notification is emitted. Only a credential
// mismatch is reported as invalid credentials.
func (g *Gate) SignIn(ctx context.Context, email, password string) (*auth.Identity, error) {
	identity, err := g.provider.Verify(ctx, email, password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			g.logger.Warn("Sign-in rejected", "email", email, "error", err)
			g.notifier.Notify(notify.Error, "Invalid credentials")
		} else {
			g.logger.Error("Sign-in failed", "email", email, "error", err)
			g.notifier.Notify(notify.Error, "Failed to sign in")
		}
		return nil, fmt.Errorf("%w: %w", ErrAuth, err)
	}
	g.notifier.Notify(notify.Success, "Login successful")
	return identity, nil
}

// SignOut ends the session.
func (g *Gate) SignOut(ctx context.Context) error {
	g.mu.Lock()
	g.signingOut = true
	g.mu.Unlock()

	err := g.provider.SignOut(ctx)

	g.mu.Lock()
	g.signingOut = false
	g.mu.Unlock()

	if err != nil {
		g.notifier.Notify(notify.Error, "Failed to logout")
		return fmt.Errorf("%w: %w", ErrAuth, err)
	}
	g.notifier.Notify(notify.Info, "Logged out successfully")
	return nil
}

// State returns the current state.
func (g *Gate) State() State {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.state
}

// Identity returns a copy of the signed-in identity or nil.
func (g *Gate) Identity() *auth.Identity {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.identity == nil {
		return nil
	}
	identity := *g.identity
	return &identity
}

// RequireAdmin returns ErrForbidden unless an admin is signed in right now.
func (g *Gate) RequireAdmin() error {
	if g.State() != SignedInAdmin {
		return ErrForbidden
	}
	return nil
}

// Close stops listening to the provider.
func (g *Gate) Close() {
	if g.unsubscribe != nil {
		g.unsubscribe()
	}
}

func (g *Gate) onChange(identity *auth.Identity) {
	g.mu.Lock()
	previous := g.state
	explicit := g.signingOut
	g.identity = identity
	switch {
	case identity == nil:
		g.state = SignedOut
	case g.admins.IsAdmin(identity.Email):
		g.state = SignedInAdmin
	default:
		g.state = SignedIn
	}
	state := g.state
	g.mu.Unlock()

	if previous == state {
		return
	}
	g.logger.Info("Auth state changed", "from", previous, "to", state)
	if state == SignedOut && !explicit {
		g.notifier.Notify(notify.Warning, "Session expired, please sign in again")
	}
}
