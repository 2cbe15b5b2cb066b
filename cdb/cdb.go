// Package cdb provides the lookup-list bridge used by rule conditions that
// test membership in constant-database style key/value lists.
//
// Lists are flat files of "key:value" lines (value optional). A loaded list
// is immutable; file loads are memoized so rulesets referencing the same
// file share one parsed copy.
package cdb

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"

	"github.com/c360/logtest/errors"
	"github.com/c360/logtest/pkg/cache"
)

// List is a single parsed lookup list.
type List struct {
	Name    string
	entries map[string]string
}

// Lookup returns the value stored for key and whether the key is present.
func (l *List) Lookup(key string) (string, bool) {
	value, ok := l.entries[key]
	return value, ok
}

// Len returns the number of entries in the list.
func (l *List) Len() int {
	return len(l.entries)
}

// ListSet is a named collection of lookup lists, one per ruleset.
type ListSet struct {
	lists map[string]*List
}

// NewListSet creates an empty list set.
func NewListSet() *ListSet {
	return &ListSet{lists: make(map[string]*List)}
}

// Add registers a list under its name, replacing any previous list with
// the same name.
func (s *ListSet) Add(list *List) {
	s.lists[list.Name] = list
}

// Lookup resolves a key in the named list. Returns ErrListNotFound if the
// list is not part of this set.
func (s *ListSet) Lookup(listName, key string) (string, bool, error) {
	list, ok := s.lists[listName]
	if !ok {
		return "", false, errors.Wrap(errors.ErrListNotFound, "ListSet", "Lookup", "resolve list "+listName)
	}
	value, found := list.Lookup(key)
	return value, found, nil
}

// Names returns the names of all lists in the set.
func (s *ListSet) Names() []string {
	names := make([]string, 0, len(s.lists))
	for name := range s.lists {
		names = append(names, name)
	}
	return names
}

// Loader loads lookup lists from disk, memoizing parsed files.
type Loader struct {
	files cache.Cache[*List]
}

// NewLoader creates a list loader with an empty memoization cache.
func NewLoader() *Loader {
	return &Loader{files: cache.NewSimple[*List](nil)}
}

// LoadFile parses one list file. The list name is the file base name
// without extension. Repeated loads of the same path return the cached
// parse.
func (ld *Loader) LoadFile(path string) (*List, error) {
	if list, ok := ld.files.Get(path); ok {
		return list, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, errors.WrapInvalid(err, "Loader", "LoadFile", "open list file")
	}
	defer f.Close()

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	list := &List{
		Name:    name,
		entries: make(map[string]string),
	}

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, _ := strings.Cut(line, ":")
		list.entries[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.WrapInvalid(err, "Loader", "LoadFile", "read list file")
	}

	_, _ = ld.files.Set(path, list)
	return list, nil
}

// LoadDir loads every regular file in dir into a new list set.
func (ld *Loader) LoadDir(dir string) (*ListSet, error) {
	set := NewListSet()

	dirents, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.WrapInvalid(err, "Loader", "LoadDir", "read list directory")
	}

	for _, ent := range dirents {
		if ent.IsDir() {
			continue
		}
		list, err := ld.LoadFile(filepath.Join(dir, ent.Name()))
		if err != nil {
			return nil, err
		}
		set.Add(list)
	}

	return set, nil
}

// FromEntries builds a list directly from parsed entries. Session override
// rulesets supply their lists inline rather than as files.
func FromEntries(name string, entries map[string]string) *List {
	copied := make(map[string]string, len(entries))
	for k, v := range entries {
		copied[k] = v
	}
	return &List{Name: name, entries: copied}
}
