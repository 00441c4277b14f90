package reconcile

// memoryStore is a MappingStore for dry runs and tests.
type memoryStore struct {
	data map[string]map[int]int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{data: make(map[string]map[int]int)}
}

func (m *memoryStore) Get(entity string, localID int) (int, bool, error) {
	remoteID, ok := m.data[entity][localID]
	return remoteID, ok, nil
}

func (m *memoryStore) Put(entity string, localID, remoteID int) error {
	if m.data[entity] == nil {
		m.data[entity] = make(map[int]int)
	}
	m.data[entity][localID] = remoteID
	return nil
}

func (m *memoryStore) Entity(entity string) (map[int]int, error) {
	out := make(map[int]int, len(m.data[entity]))
	for k, v := range m.data[entity] {
		out[k] = v
	}
	return out, nil
}

func (m *memoryStore) All() (map[string]map[int]int, error) {
	out := make(map[string]map[int]int, len(m.data))
	for entity, mappings := range m.data {
		copied := make(map[int]int, len(mappings))
		for k, v := range mappings {
			copied[k] = v
		}
		out[entity] = copied
	}
	return out, nil
}

// memoryOverlay reads through to a backing store but keeps every write in
// memory, so a dry run sees prior mappings without persisting new ones.
type memoryOverlay struct {
	base    MappingStore
	overlay *memoryStore
}

func newMemoryOverlay(base MappingStore) *memoryOverlay {
	return &memoryOverlay{base: base, overlay: newMemoryStore()}
}

func (m *memoryOverlay) Get(entity string, localID int) (int, bool, error) {
	if remoteID, ok, _ := m.overlay.Get(entity, localID); ok {
		return remoteID, true, nil
	}
	return m.base.Get(entity, localID)
}

func (m *memoryOverlay) Put(entity string, localID, remoteID int) error {
	return m.overlay.Put(entity, localID, remoteID)
}

func (m *memoryOverlay) Entity(entity string) (map[int]int, error) {
	out, err := m.base.Entity(entity)
	if err != nil {
		return nil, err
	}
	over, _ := m.overlay.Entity(entity)
	for k, v := range over {
		out[k] = v
	}
	return out, nil
}

func (m *memoryOverlay) All() (map[string]map[int]int, error) {
	out, err := m.base.All()
	if err != nil {
		return nil, err
	}
	over, _ := m.overlay.All()
	for entity, mappings := range over {
		if out[entity] == nil {
			out[entity] = make(map[int]int)
		}
		for k, v := range mappings {
			out[entity][k] = v
		}
	}
	return out, nil
}
