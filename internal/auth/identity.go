package auth

import (
	"context"
	"strings"
	"time"
)

// Identity is the verified principal of the current session.
type Identity struct {
	UID         string
	Email       string
	DisplayName string

	// Token is the signed session token handed to clients.
	Token     string
	ExpiresAt time.Time
}

// IdentityProvider verifies credentials and pushes session changes.
type IdentityProvider interface {
	// Verify checks the credentials and starts a session.
	Verify(ctx context.Context, email, password string) (*Identity, error)

	// SignOut ends the current session.
	SignOut(ctx context.Context) error

	// Subscribe registers fn for every sign-in, sign-out and provider-driven
	// invalidation. fn is called once immediately with the current identity
	// (nil when signed out). The returned func removes the subscription.
	Subscribe(fn func(*Identity)) (unsubscribe func())
}

// AdminList is the allow-list of admin emails. Matching is case-insensitive.
// An empty list grants admin to nobody.
type AdminList struct {
	emails map[string]struct{}
}

// NewAdminList builds an AdminList from configured emails.
func NewAdminList(emails []string) AdminList {
	list := AdminList{emails: make(map[string]struct{}, len(emails))}
	for _, email := range emails {
		if normalized := normalizeEmail(email); normalized != "" {
			list.emails[normalized] = struct{}{}
		}
	}
	return list
}

// IsAdmin reports whether the email is on the allow-list.
func (l AdminList) IsAdmin(email string) bool {
	_, ok := l.emails[normalizeEmail(email)]
	return ok
}

// Len returns the number of admin emails.
func (l AdminList) Len() int {
	return len(l.emails)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
