package auth

import (
	"context"
	"errors"
	"net/http"
)

// LocalUserID is the owner used when no authentication is configured
const LocalUserID = "local"

// ErrUnauthenticated is returned when no user is attached to a context
var ErrUnauthenticated = errors.New("unauthenticated")

// Authenticator resolves the user making a request
type Authenticator interface {
	// Authenticate returns the user ID for the request and whether the credentials were valid
	Authenticate(r *http.Request) (string, bool)
}

type userIDKey struct{}

// WithUserID returns a copy of ctx carrying userID
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey{}, userID)
}

// UserIDFromContext returns the user ID stored by WithUserID
func UserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey{}).(string)
	return id, ok && id != ""
}

// ContextProvider reads the current user from the request context
type ContextProvider struct{}

// CurrentUserID returns the authenticated user or ErrUnauthenticated
func (ContextProvider) CurrentUserID(ctx context.Context) (string, error) {
	id, ok := UserIDFromContext(ctx)
	if !ok {
		return "", ErrUnauthenticated
	}
	return id, nil
}

// Anonymous treats every request as the local user
type Anonymous struct{}

func (Anonymous) Authenticate(r *http.Request) (string, bool) {
	return LocalUserID, true
}

// Chain tries each authenticator in order and returns the first match
type Chain []Authenticator

func (c Chain) Authenticate(r *http.Request) (string, bool) {
	for _, a := range c {
		if id, ok := a.Authenticate(r); ok {
			return id, true
		}
	}
	return "", false
}
