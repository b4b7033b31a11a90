// Package ctxkeys holds the shared context keys for the API layer.
// A leaf package so middleware and handlers agree on key type and value
// without importing each other.
package ctxkeys

import "context"

// Key is the unexported named type for all API context keys. A named type
// keeps context.Value lookups collision-free across packages.
type Key string

// UserID is the context key for the authenticated caller, injected by the
// auth middleware from the token subject.
const UserID Key = "user_id"

// WithValue adds a ctxkeys.Key value to the context.
func WithValue(ctx context.Context, key Key, value string) context.Context {
	return context.WithValue(ctx, key, value)
}
