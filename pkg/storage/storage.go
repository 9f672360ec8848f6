// Package storage provides the durable key-value contract the session
// controller persists credentials and conversation identifiers through,
// plus in-memory, SQLite and Redis backed implementations.
package storage

import "context"

// Store is a namespaceable key-value store. Get reports a miss through the
// second return value rather than an error.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
	Close() error
}

// Well-known keys used by the session controller.
const (
	KeyJWT            = "jwt"
	KeyConversationID = "conversationId"
	KeyLastEventID    = "lastEventId"
)

type namespaced struct {
	inner  Store
	prefix string
}

// Namespaced scopes all keys of a store under an application-specific
// prefix, e.g. the organization id.
func Namespaced(inner Store, prefix string) Store {
	if prefix == "" {
		return inner
	}
	return &namespaced{inner: inner, prefix: prefix + ":"}
}

func (n *namespaced) Get(ctx context.Context, key string) (string, bool, error) {
	return n.inner.Get(ctx, n.prefix+key)
}

func (n *namespaced) Set(ctx context.Context, key, value string) error {
	return n.inner.Set(ctx, n.prefix+key, value)
}

func (n *namespaced) Remove(ctx context.Context, key string) error {
	return n.inner.Remove(ctx, n.prefix+key)
}

func (n *namespaced) Close() error { return n.inner.Close() }
