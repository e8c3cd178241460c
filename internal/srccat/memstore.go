// Public domain.

package srccat

import (
	"fmt"
	"path/filepath"
	"sync"
)

// MemStore is a Store holding files in memory.  Paths are cleaned but
// otherwise compared literally.
type MemStore struct {
	mu    sync.Mutex
	files map[string][]*Table
}

// NewMemStore returns an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{files: make(map[string][]*Table)}
}

func (m *MemStore) Exists(path string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.files[filepath.Clean(path)]
	return ok
}

func (m *MemStore) Read(path, ext string) (*Table, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tabs, ok := m.files[filepath.Clean(path)]
	if !ok || len(tabs) == 0 {
		return nil, fmt.Errorf("%s: %w", path, ErrNotFound)
	}
	for _, t := range tabs {
		if ext != "" && t.Name == ext {
			return t, nil
		}
	}
	return tabs[0], nil
}

func (m *MemStore) Schema(path, ext string) (*Table, error) {
	t, err := m.Read(path, ext)
	if err != nil {
		return nil, err
	}
	s := &Table{Name: t.Name, Binary: t.Binary, Header: t.Header}
	for _, c := range t.Cols {
		s.Cols = append(s.Cols, &Column{Name: c.Name, Kind: c.Kind,
			Repeat: c.Repeat, Unit: c.Unit, UCD: c.UCD})
	}
	return s, nil
}

func (m *MemStore) Write(path string, tables ...*Table) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[filepath.Clean(path)] = append([]*Table{}, tables...)
	return nil
}

// Tables returns the tables last written to path.
func (m *MemStore) Tables(path string) []*Table {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.files[filepath.Clean(path)]
}
