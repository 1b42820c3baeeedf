package theme

// Store exposes theme retrieval for the chat service and HTTP handlers.
type Store interface {
	List() []Theme
	FindByID(id string) (Theme, bool)
	Default() Theme
}

// MemoryStore implements Store with an in-memory slice.
type MemoryStore struct {
	items []Theme
}

// NewMemoryStore returns a MemoryStore preloaded with the supplied themes.
func NewMemoryStore(items []Theme) *MemoryStore {
	return &MemoryStore{items: append([]Theme(nil), items...)}
}

// List returns the catalog in display order.
func (s *MemoryStore) List() []Theme {
	return append([]Theme(nil), s.items...)
}

// FindByID looks up a theme by identifier.
func (s *MemoryStore) FindByID(id string) (Theme, bool) {
	for _, item := range s.items {
		if item.ID == id {
			return item, true
		}
	}
	return Theme{}, false
}

// Default returns the first catalog entry, or the zero Theme for an empty catalog.
func (s *MemoryStore) Default() Theme {
	if len(s.items) == 0 {
		return Theme{}
	}
	return s.items[0]
}

// Resolve returns the theme for id, falling back to the store default.
func Resolve(s Store, id string) Theme {
	if t, ok := s.FindByID(id); ok {
		return t
	}
	return s.Default()
}
