// Package auth implements the token router (C5): parsing bearer tokens,
// dispatching to the right provider verifier, and normalizing claims into a
// canonical AuthUser. Grounded on the original's src/auth/auth.py,
// src/auth/getgather_oauth_token.py, and src/auth/third_party_providers.py.
package auth

import "fmt"

// Provider identifies who authenticated a user.
type Provider string

const (
	ProviderGitHub             Provider = "github"
	ProviderGoogle             Provider = "google"
	ProviderGetgather          Provider = "getgather"
	ProviderGetgatherPersistent Provider = "getgather-persistent"
)

// Getgather is the shorthand the rest of the codebase uses for "one-time app
// user, purge don't checkpoint" (§3: AuthUser, §4.4: PERSISTENT_USER
// predicate).
const Getgather = ProviderGetgather

// User is the canonical identity the token router produces for every
// request, regardless of which provider verified the token.
type User struct {
	Sub          string
	AuthProvider Provider
	Name         string
	Login        string
	Email        string
	AppName      string

	adminEmailDomain string
}

// UserID is the routing key used to find a user's container: "{sub}.{auth_provider}".
func (u User) UserID() string {
	return fmt.Sprintf("%s.%s", u.Sub, u.AuthProvider)
}

// IsPersistent reports whether this user's container should be checkpointed
// (not purged) on TTL expiry — true for everyone except one-time getgather
// app users (§3, §4.4).
func (u User) IsPersistent() bool {
	return u.AuthProvider != ProviderGetgather
}

// WithAdminEmailDomain returns a copy of u that will treat itself as an
// admin when its Email matches domain. This supplements the distilled spec
// with the original's admin-email-domain check (src/auth/auth.py).
func (u User) WithAdminEmailDomain(domain string) User {
	u.adminEmailDomain = domain
	return u
}

// IsAdmin reports whether this user's email is in the configured admin
// domain, granting access to admin endpoints without the shared
// x-admin-token secret.
func (u User) IsAdmin() bool {
	if u.adminEmailDomain == "" || u.Email == "" {
		return false
	}
	return emailDomain(u.Email) == u.adminEmailDomain
}

func emailDomain(email string) string {
	for i := len(email) - 1; i >= 0; i-- {
		if email[i] == '@' {
			return email[i+1:]
		}
	}
	return ""
}

func (u User) String() string {
	return fmt.Sprintf("User{sub=%s provider=%s user_id=%s}", u.Sub, u.AuthProvider, u.UserID())
}
