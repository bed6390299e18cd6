package auth

import (
	"net/http"
)

const (
	usernameHeader = "X-Forwarded-User"
	orgHeader      = "X-Forwarded-Org"
)

// HeaderAuthenticator trusts the identity headers set by the dashboard's
// edge proxy. When they are absent it falls back to a local development
// identity.
type HeaderAuthenticator struct{}

func NewHeaderAuthenticator() (*HeaderAuthenticator, error) {
	return &HeaderAuthenticator{}, nil
}

func (a *HeaderAuthenticator) Authenticator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := User{
			Username:     r.Header.Get(usernameHeader),
			Organization: r.Header.Get(orgHeader),
		}
		if user.Username == "" {
			user.Username = "admin"
		}
		if user.Organization == "" {
			user.Organization = "internal"
		}

		ctx := NewUserContext(r.Context(), user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
