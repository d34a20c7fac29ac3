// Package storage provides key/value blob stores backing the aggregation
// engine: a durable sqlite-backed store and an in-memory store used for
// session state, tests, and degraded operation when sqlite is unavailable.
package storage

// Store is key/value blob storage. Implementations must be safe for
// concurrent use.
type Store interface {
	// Get returns the value for key and whether it exists.
	Get(key string) ([]byte, bool, error)
	// Set writes the value for key, overwriting any previous value.
	Set(key string, value []byte) error
	// Delete removes key. Deleting an absent key is not an error.
	Delete(key string) error
	// Keys returns every key starting with prefix.
	Keys(prefix string) ([]string, error)
	// Reset removes every key in the store.
	Reset() error
}
