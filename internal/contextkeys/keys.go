package contextkeys

import "context"

// contextKey is an unexported type for context keys to prevent collisions.
type contextKey string

const (
	// UserID is the context key for the authenticated user's ID.
	UserID contextKey = "userID"
	// UserEmail is the context key for the authenticated user's email.
	UserEmail contextKey = "userEmail"
	// UserRole is the context key for the authenticated user's role.
	UserRole contextKey = "userRole"
)

// WithUser stores the authenticated caller.
func WithUser(ctx context.Context, id, email, role string) context.Context {
	ctx = context.WithValue(ctx, UserID, id)
	ctx = context.WithValue(ctx, UserEmail, email)
	return context.WithValue(ctx, UserRole, role)
}

func UserIDFrom(ctx context.Context) string {
	v, _ := ctx.Value(UserID).(string)
	return v
}

func Email(ctx context.Context) string {
	v, _ := ctx.Value(UserEmail).(string)
	return v
}

func Role(ctx context.Context) string {
	v, _ := ctx.Value(UserRole).(string)
	return v
}
