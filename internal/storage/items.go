package storage

import (
	"encoding/json"
	"fmt"
	"sort"
)

// ItemStore projects JSON field maps over a StringStore with a
// lazily-populated in-memory cache. The cache is authoritative for every key
// it has seen; the backend is only ever mutated through the store. A single
// writing process is assumed.
type ItemStore struct {
	backend StringStore
	cache   map[int64]map[string]any
	// sync persists one cached item to the backend. The lazy variant swaps
	// this for a dirty-set accumulator.
	sync func(key int64) error
}

// NewItemStore wraps backend with an immediate write-through cache.
func NewItemStore(backend StringStore) *ItemStore {
	s := &ItemStore{backend: backend, cache: make(map[int64]map[string]any)}
	s.sync = s.writeThrough
	return s
}

// New allocates a key, persists an empty field map immediately and caches
// it. No key is observable before creation completes.
func (s *ItemStore) New() (Item, error) {
	key, err := s.backend.Add("{}")
	if err != nil {
		return Item{}, fmt.Errorf("creating item: %w", err)
	}
	s.cache[key] = make(map[string]any)
	return Item{store: s, key: key}, nil
}

// Items enumerates handles for all known keys. Field maps load lazily on
// first access, so enumeration itself is cheap and restartable.
func (s *ItemStore) Items() ([]Item, error) {
	keys, err := s.backend.Indexes()
	if err != nil {
		return nil, fmt.Errorf("enumerating items: %w", err)
	}
	items := make([]Item, 0, len(keys))
	for _, key := range keys {
		items = append(items, Item{store: s, key: key})
	}
	return items, nil
}

// Len reports the number of live items.
func (s *ItemStore) Len() (int, error) {
	return s.backend.Len()
}

func (s *ItemStore) data(key int64) (map[string]any, error) {
	if d, ok := s.cache[key]; ok {
		return d, nil
	}
	raw, err := s.backend.Query(key)
	if err != nil {
		return nil, err
	}
	if raw == "" {
		return nil, fmt.Errorf("item %d not found, possibly deleted already", key)
	}
	d := make(map[string]any)
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		return nil, fmt.Errorf("decoding item %d: %w", key, err)
	}
	s.cache[key] = d
	return d, nil
}

func (s *ItemStore) writeThrough(key int64) error {
	d, ok := s.cache[key]
	if !ok {
		return fmt.Errorf("item %d not found, possibly deleted already", key)
	}
	raw, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("encoding item %d: %w", key, err)
	}
	return s.backend.Update(key, string(raw))
}

func (s *ItemStore) remove(key int64) error {
	delete(s.cache, key)
	return s.backend.Delete(key)
}

// Item is a handle onto one stored record. Reads resolve from the cache;
// writes go to the cache and then through the store's persistence policy.
type Item struct {
	store *ItemStore
	key   int64
}

// Key returns the store-assigned integer key.
func (it Item) Key() int64 { return it.key }

// Get returns the value for field, or nil when the field is absent or the
// item cannot be loaded.
func (it Item) Get(field string) any {
	d, err := it.store.data(it.key)
	if err != nil {
		return nil
	}
	return d[field]
}

// Set assigns field and persists per the store's policy.
func (it Item) Set(field string, value any) error {
	d, err := it.store.data(it.key)
	if err != nil {
		return err
	}
	d[field] = value
	return it.store.sync(it.key)
}

// Unset removes field and persists per the store's policy.
func (it Item) Unset(field string) error {
	d, err := it.store.data(it.key)
	if err != nil {
		return err
	}
	delete(d, field)
	return it.store.sync(it.key)
}

// Keys returns the item's field names, sorted for determinism.
func (it Item) Keys() ([]string, error) {
	d, err := it.store.data(it.key)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// Delete removes the record from cache and backend.
func (it Item) Delete() error {
	return it.store.remove(it.key)
}
