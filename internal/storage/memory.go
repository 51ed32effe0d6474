package storage

// MemoryStore is the ephemeral reference backing: a map plus insertion
// order. It assumes a single writing goroutine, like the rest of the storage
// layer.
type MemoryStore struct {
	data  map[int64]string
	order []int64
	next  int64
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[int64]string)}
}

func (m *MemoryStore) Indexes() ([]int64, error) {
	return append([]int64(nil), m.order...), nil
}

func (m *MemoryStore) Query(key int64) (string, error) {
	return m.data[key], nil
}

func (m *MemoryStore) Add(content string) (int64, error) {
	key := m.next
	m.next++
	m.data[key] = content
	m.order = append(m.order, key)
	return key, nil
}

func (m *MemoryStore) Update(key int64, content string) error {
	m.data[key] = content
	return nil
}

func (m *MemoryStore) Delete(key int64) error {
	delete(m.data, key)
	for i, k := range m.order {
		if k == key {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return nil
}

func (m *MemoryStore) Len() (int, error) {
	return len(m.data), nil
}
