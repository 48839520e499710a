package sourcemap

import (
	"path/filepath"
	"sort"
)

// Set is an immutable collection of tables keyed by compiled-file name.
type Set struct {
	tables map[string]*Table
	byBase map[string]*Table
}

// NewSet builds a Set. Later tables replace earlier ones with the same name.
func NewSet(tables ...*Table) *Set {
	s := &Set{
		tables: make(map[string]*Table, len(tables)),
		byBase: make(map[string]*Table, len(tables)),
	}
	for _, t := range tables {
		if t == nil {
			continue
		}
		s.tables[t.Name] = t
		s.byBase[filepath.Base(t.Name)] = t
	}
	return s
}

// Get returns the table for a compiled file, matching the exact name first
// and the last path component second.
func (s *Set) Get(file string) (*Table, bool) {
	if s == nil {
		return nil, false
	}
	if t, ok := s.tables[file]; ok {
		return t, true
	}
	t, ok := s.byBase[filepath.Base(file)]
	return t, ok
}

// Len returns the number of tables.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.tables)
}

// Names returns the sorted table names.
func (s *Set) Names() []string {
	if s == nil {
		return nil
	}
	names := make([]string, 0, len(s.tables))
	for name := range s.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
