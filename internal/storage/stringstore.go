// Package storage provides the persistent candidate-record store: a cached
// JSON field-map layer (ItemStore) over a minimal ordered key-value text
// backend (StringStore), a write-back variant with deferred flushing, and
// disjoint partition views for island search.
package storage

// StringStore is the minimal ordered append-only text store item storage
// sits on. Keys are store-assigned integers; enumeration follows insertion
// order.
type StringStore interface {
	// Indexes returns the live keys in insertion order.
	Indexes() ([]int64, error)
	// Query returns the content for key, or the empty string when absent.
	Query(key int64) (string, error)
	// Add stores content and returns its assigned key.
	Add(content string) (int64, error)
	// Update replaces the content for key.
	Update(key int64, content string) error
	// Delete removes key.
	Delete(key int64) error
	// Len returns the number of live keys.
	Len() (int, error)
}
