package storage

// LazyItemStore batches persistence: field updates mark their key dirty and
// flush to the backend once the dirty count reaches the batch size, when a
// write-suspension scope releases, or on Close. Creation still persists
// immediately so keys are always visible in the backend. The dirty set needs
// external synchronization if shared across concurrent writers.
type LazyItemStore struct {
	*ItemStore
	dirty     map[int64]struct{}
	suspended int
	pending   int
	batchSize int
}

// NewLazyItemStore wraps backend with write-back caching; flushes trigger
// every batchSize updates (minimum 1).
func NewLazyItemStore(backend StringStore, batchSize int) *LazyItemStore {
	if batchSize < 1 {
		batchSize = 1
	}
	l := &LazyItemStore{
		ItemStore: NewItemStore(backend),
		dirty:     make(map[int64]struct{}),
		batchSize: batchSize,
	}
	l.sync = l.markDirty
	return l
}

func (l *LazyItemStore) markDirty(key int64) error {
	if _, ok := l.cache[key]; !ok {
		return l.writeThrough(key) // surfaces the not-found error
	}
	l.dirty[key] = struct{}{}
	l.pending++
	if l.suspended == 0 && l.pending >= l.batchSize {
		return l.Flush()
	}
	return nil
}

// Flush persists every dirty key still present in the cache.
func (l *LazyItemStore) Flush() error {
	for key := range l.dirty {
		if _, ok := l.cache[key]; !ok {
			continue // deleted while dirty
		}
		if err := l.writeThrough(key); err != nil {
			return err
		}
	}
	l.dirty = make(map[int64]struct{})
	l.pending = 0
	return nil
}

// NoFlush suspends batch-triggered flushing. The returned release function
// must be called (typically deferred); when the last scope releases, a flush
// is guaranteed.
func (l *LazyItemStore) NoFlush() func() error {
	l.suspended++
	released := false
	return func() error {
		if released {
			return nil
		}
		released = true
		l.suspended--
		if l.suspended == 0 {
			return l.Flush()
		}
		return nil
	}
}

// Close flushes outstanding writes; the documented shutdown path.
func (l *LazyItemStore) Close() error {
	return l.Flush()
}
