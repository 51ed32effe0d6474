package storage

// DefaultSplitField is the per-item partition-key field stamped at creation.
const DefaultSplitField = "_island_id"

// Collection is the store surface the search loop writes through: creation
// and enumeration, provided by a whole ItemStore or one SplitStore view.
type Collection interface {
	New() (Item, error)
	Items() ([]Item, error)
}

// SplitStore is one disjoint partition view over a shared ItemStore. Items
// created through a view are stamped with the view's id; enumeration filters
// by id equality. Mutation and deletion delegate by item key directly to the
// shared store, so partitioning affects only creation and enumeration.
type SplitStore struct {
	store *ItemStore
	id    any // island index; nil marks the unpartitioned sentinel
	field string
}

// Split partitions store into n island views (ids 0..n-1) plus one sentinel
// view for unpartitioned items.
func Split(store *ItemStore, n int, field string) []*SplitStore {
	if field == "" {
		field = DefaultSplitField
	}
	views := make([]*SplitStore, 0, n+1)
	for i := 0; i < n; i++ {
		views = append(views, &SplitStore{store: store, id: i, field: field})
	}
	views = append(views, &SplitStore{store: store, id: nil, field: field})
	return views
}

// ID returns the view's partition id; nil for the sentinel.
func (v *SplitStore) ID() any { return v.id }

// New creates an item in the shared store stamped with this view's id.
func (v *SplitStore) New() (Item, error) {
	item, err := v.store.New()
	if err != nil {
		return Item{}, err
	}
	if err := item.Set(v.field, v.id); err != nil {
		return Item{}, err
	}
	return item, nil
}

// Items enumerates only this view's partition.
func (v *SplitStore) Items() ([]Item, error) {
	all, err := v.store.Items()
	if err != nil {
		return nil, err
	}
	var items []Item
	for _, item := range all {
		if sameID(item.Get(v.field), v.id) {
			items = append(items, item)
		}
	}
	return items, nil
}

// Len counts the view's items.
func (v *SplitStore) Len() (int, error) {
	items, err := v.Items()
	if err != nil {
		return 0, err
	}
	return len(items), nil
}

// sameID compares partition ids across the int/float64 boundary JSON
// round-tripping introduces.
func sameID(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	af, aok := asFloat(a)
	bf, bok := asFloat(b)
	if aok && bok {
		return af == bf
	}
	return a == b
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	}
	return 0, false
}
