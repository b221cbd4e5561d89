package manifest

import (
	"fmt"
	"regexp"
	"strings"
	"sync/atomic"

	"github.com/mwantia/assetloader/data"
	"github.com/tidwall/btree"
)

// Set is an immutable, ordered group of manifests. Lookups scan the
// manifests in registration order and the first match wins.
type Set struct {
	manifests []*Manifest
}

// NewSet returns a set over manifests in the given order. Nil manifests are
// dropped.
func NewSet(manifests ...*Manifest) *Set {
	s := &Set{
		manifests: make([]*Manifest, 0, len(manifests)),
	}
	for _, m := range manifests {
		if m != nil {
			s.manifests = append(s.manifests, m)
		}
	}
	return s
}

// Manifests returns the manifests in registration order.
func (s *Set) Manifests() []*Manifest {
	if s == nil {
		return nil
	}
	return append([]*Manifest(nil), s.manifests...)
}

func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.manifests)
}

// Lookup returns the first entry named name.
func (s *Set) Lookup(name string) (Entry, bool) {
	if s == nil {
		return Entry{}, false
	}
	for _, m := range s.manifests {
		if e, ok := m.Lookup(name); ok {
			return e, true
		}
	}
	return Entry{}, false
}

func (s *Set) Has(name string) bool {
	_, ok := s.Lookup(name)
	return ok
}

// HasOrigin reports whether a manifest produced by origin is part of the set.
func (s *Set) HasOrigin(origin string) bool {
	if s == nil {
		return false
	}
	for _, m := range s.manifests {
		if m.Origin() == origin {
			return true
		}
	}
	return false
}

// Find returns the union of all entries whose whole name matches pattern,
// ordered by name then last-modified time. Entries equal on both are
// reported once.
func (s *Set) Find(pattern string) ([]Entry, error) {
	full, err := compile(pattern)
	if err != nil {
		return nil, err
	}

	tree := btree.NewBTreeG(less)
	if s != nil {
		for _, m := range s.manifests {
			for _, e := range m.match(full) {
				if _, exists := tree.Get(e); !exists {
					tree.Set(e)
				}
			}
		}
	}

	entries := make([]Entry, 0, tree.Len())
	tree.Scan(func(e Entry) bool {
		entries = append(entries, e)
		return true
	})
	return entries, nil
}

// FindNames returns the sorted, distinct names matching pattern.
func (s *Set) FindNames(pattern string) ([]string, error) {
	full, err := compile(pattern)
	if err != nil {
		return nil, err
	}

	tree := btree.NewBTreeG(func(a, b string) bool {
		return a < b
	})
	if s != nil {
		for _, m := range s.manifests {
			for _, e := range m.match(full) {
				tree.Set(e.Name)
			}
		}
	}

	names := make([]string, 0, tree.Len())
	tree.Scan(func(name string) bool {
		names = append(names, name)
		return true
	})
	return names, nil
}

// ArchiveFor finds the archive that physically holds name: the nearest
// ancestor folder "dir" for which an entry "dir"+ext exists. It returns the
// archive's name, the member name relative to dir and the archive's entry.
func (s *Set) ArchiveFor(name, ext string) (string, string, Entry, bool) {
	if s == nil || ext == "" {
		return "", "", Entry{}, false
	}

	for dir := data.Folder(name); dir != ""; dir = data.Folder(dir) {
		archive := dir + ext
		if e, ok := s.Lookup(archive); ok {
			member := strings.TrimPrefix(name, dir+"/")
			return archive, member, e, true
		}
	}

	return "", "", Entry{}, false
}

func compile(pattern string) (*regexp.Regexp, error) {
	full, err := regexp.Compile(`^(?:` + pattern + `)$`)
	if err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}
	return full, nil
}

// Provider hands out the manifest snapshot a resolution should use.
type Provider interface {
	Snapshot() *Set
}

// Index holds the current manifest set. Reindexing publishes a whole new set;
// resolutions that captured the previous snapshot keep using it.
type Index struct {
	current atomic.Pointer[Set]
}

func NewIndex() *Index {
	idx := &Index{}
	idx.current.Store(NewSet())
	return idx
}

// Snapshot returns the current set. It is never nil.
func (idx *Index) Snapshot() *Set {
	return idx.current.Load()
}

// Publish replaces the current set and returns the previous one.
func (idx *Index) Publish(s *Set) *Set {
	if s == nil {
		s = NewSet()
	}
	return idx.current.Swap(s)
}
