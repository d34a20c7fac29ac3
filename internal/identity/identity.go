// Package identity derives the stable visitor identifier and the per-session
// identifier used to key analytics records.
package identity

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"glimpse/internal/storage"
)

// Store keys for the default single-client resolver.
const (
	visitorKey = "visitor_id"
	sessionKey = "session_id"
)

// IDs carries the resolved visitor and session identifiers for one call.
type IDs struct {
	Visitor string
	Session string
}

// Resolver yields the identifiers that an engine operation should be
// attributed to.
type Resolver interface {
	Resolve(ctx context.Context) (IDs, error)
}

// NewID mints a collision-resistant identifier: prefix, millisecond
// timestamp, and a random suffix. The suffix makes same-millisecond
// collisions negligible within one origin's session cardinality.
func NewID(prefix string, now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:9]
	return fmt.Sprintf("%s_%d_%s", prefix, now.UnixMilli(), suffix)
}

// StoreResolver resolves ids from the two stores: the visitor id is created
// once and persisted indefinitely, the session id lives in the session
// store only. This mirrors a single client context.
type StoreResolver struct {
	persistent storage.Store
	sessions   storage.Store
	now        func() time.Time
}

// NewStoreResolver creates a resolver over the given stores. now may be nil,
// in which case time.Now is used.
func NewStoreResolver(persistent, sessions storage.Store, now func() time.Time) *StoreResolver {
	if now == nil {
		now = time.Now
	}
	return &StoreResolver{persistent: persistent, sessions: sessions, now: now}
}

// Resolve returns the visitor and session ids, creating either if absent.
// A visitor id, once created, is never regenerated.
func (r *StoreResolver) Resolve(ctx context.Context) (IDs, error) {
	visitor, err := r.getOrCreate(r.persistent, visitorKey, "visitor")
	if err != nil {
		return IDs{}, err
	}
	session, err := r.getOrCreate(r.sessions, sessionKey, "session")
	if err != nil {
		return IDs{}, err
	}
	return IDs{Visitor: visitor, Session: session}, nil
}

func (r *StoreResolver) getOrCreate(store storage.Store, key, prefix string) (string, error) {
	value, ok, err := store.Get(key)
	if err != nil {
		return "", fmt.Errorf("failed to read %s id: %w", prefix, err)
	}
	if ok && len(value) > 0 {
		return string(value), nil
	}

	id := NewID(prefix, r.now())
	if err := store.Set(key, []byte(id)); err != nil {
		return "", fmt.Errorf("failed to persist %s id: %w", prefix, err)
	}
	return id, nil
}

type contextKey struct{}

// WithIDs returns a context carrying the given identifiers. The HTTP layer
// uses this after minting cookies so the shared engine can attribute the
// request.
func WithIDs(ctx context.Context, ids IDs) context.Context {
	return context.WithValue(ctx, contextKey{}, ids)
}

// FromContext extracts identifiers previously stored with WithIDs.
func FromContext(ctx context.Context) (IDs, bool) {
	ids, ok := ctx.Value(contextKey{}).(IDs)
	return ids, ok
}

// ContextResolver resolves identifiers from the request context.
type ContextResolver struct{}

// Resolve returns the ids stored in ctx.
func (ContextResolver) Resolve(ctx context.Context) (IDs, error) {
	ids, ok := FromContext(ctx)
	if !ok {
		return IDs{}, fmt.Errorf("no identity in context")
	}
	return ids, nil
}

// Static is a fixed-identity resolver, useful in tests.
type Static struct {
	IDs IDs
}

// Resolve returns the fixed ids.
func (s Static) Resolve(ctx context.Context) (IDs, error) {
	return s.IDs, nil
}
