package auth

import (
	"context"
)

type userKeyType struct{}

var userKey userKeyType

// User is the owner scope for import sessions. Authentication itself lives
// at the dashboard's edge; this service only consumes the resolved identity.
type User struct {
	Username     string
	Organization string
}

func UserFromContext(ctx context.Context) (User, bool) {
	val := ctx.Value(userKey)
	if val == nil {
		return User{}, false
	}
	return val.(User), true
}

func MustHaveUser(ctx context.Context) User {
	user, found := UserFromContext(ctx)
	if !found {
		panic("middleware: user not present in context")
	}
	return user
}

func NewUserContext(ctx context.Context, u User) context.Context {
	return context.WithValue(ctx, userKey, u)
}
