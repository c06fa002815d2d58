package auth

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Ensure SessionProvider implements IdentityProvider
var _ IdentityProvider = (*SessionProvider)(nil)

// SessionProvider holds the single operator session of this process.
// It verifies passwords through an Authenticator, signs a JWT for the
// session, and invalidates the session itself when the token expires.
type SessionProvider struct {
	authenticator Authenticator
	jwtManager    *JWTManager
	logger        *slog.Logger

	mu         sync.Mutex
	current    *Identity
	expiry     *time.Timer
	generation uint64
	subs       map[uint64]func(*Identity)
	nextSub    uint64
}

// NewSessionProvider creates a provider with no active session.
func NewSessionProvider(authenticator Authenticator, jwtManager *JWTManager, logger *slog.Logger) *SessionProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionProvider{
		authenticator: authenticator,
		jwtManager:    jwtManager,
		logger:        logger,
		subs:          make(map[uint64]func(*Identity)),
	}
}

// Verify authenticates the credentials and replaces the current session.
// A failed check leaves the current session untouched.
func (p *SessionProvider) Verify(ctx context.Context, email, password string) (*Identity, error) {
	user, err := p.authenticator.Authenticate(ctx, email, password)
	if err != nil {
		p.logger.Warn("Credential check failed", "email", email, "error", err)
		return nil, err
	}

	token, expires, err := p.jwtManager.Generate(user)
	if err != nil {
		return nil, err
	}

	identity := &Identity{
		UID:         user.ID,
		Email:       user.Email,
		DisplayName: user.DisplayName,
		Token:       token,
		ExpiresAt:   expires,
	}

	p.mu.Lock()
	p.stopExpiryLocked()
	p.generation++
	gen := p.generation
	p.current = identity
	p.expiry = time.AfterFunc(time.Until(expires), func() { p.expire(gen) })
	p.mu.Unlock()

	p.logger.Info("Session started", "user_id", user.ID, "expires_at", expires)
	p.publish(identity)
	return copyIdentity(identity), nil
}

// SignOut ends the current session. Signing out while signed out is a no-op.
func (p *SessionProvider) SignOut(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.end("sign-out")
	return nil
}

// Invalidate ends the session on behalf of the provider, as token revocation would.
func (p *SessionProvider) Invalidate() {
	p.end("invalidated")
}

// Current returns the active identity or nil.
func (p *SessionProvider) Current() *Identity {
	p.mu.Lock()
	defer p.mu.Unlock()
	return copyIdentity(p.current)
}

// Validate checks a bearer token against the active session.
func (p *SessionProvider) Validate(token string) (*Claims, error) {
	claims, err := p.jwtManager.Validate(token)
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil || p.current.Token != token {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Subscribe registers fn and immediately reports the current identity.
func (p *SessionProvider) Subscribe(fn func(*Identity)) func() {
	p.mu.Lock()
	id := p.nextSub
	p.nextSub++
	p.subs[id] = fn
	current := copyIdentity(p.current)
	p.mu.Unlock()

	fn(current)

	return func() {
		p.mu.Lock()
		delete(p.subs, id)
		p.mu.Unlock()
	}
}

func (p *SessionProvider) expire(gen uint64) {
	p.mu.Lock()
	if gen != p.generation || p.current == nil {
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()
	p.end("expired")
}

func (p *SessionProvider) end(reason string) {
	p.mu.Lock()
	if p.current == nil {
		p.mu.Unlock()
		return
	}
	userID := p.current.UID
	p.stopExpiryLocked()
	p.generation++
	p.current = nil
	p.mu.Unlock()

	p.logger.Info("Session ended", "user_id", userID, "reason", reason)
	p.publish(nil)
}

func (p *SessionProvider) stopExpiryLocked() {
	if p.expiry != nil {
		p.expiry.Stop()
		p.expiry = nil
	}
}

func (p *SessionProvider) publish(identity *Identity) {
	p.mu.Lock()
	subs := make([]func(*Identity), 0, len(p.subs))
	for _, fn := range p.subs {
		subs = append(subs, fn)
	}
	p.mu.Unlock()

	for _, fn := range subs {
		fn(copyIdentity(identity))
	}
}

func copyIdentity(identity *Identity) *Identity {
	if identity == nil {
		return nil
	}
	c := *identity
	return &c
}
