package manifest

import (
	"bufio"
	"io"
	"regexp"

	"github.com/tidwall/btree"
)

// DefaultName is the well-known resource name of a manifest on an origin.
const DefaultName = "index.dat"

// Manifest is the parsed listing of one origin. It is read-only after
// construction and safe to share between goroutines.
type Manifest struct {
	origin       string
	lastModified int64

	entries *btree.Map[string, Entry]
}

// New builds a manifest from entries. Later duplicates of a name are ignored.
func New(origin string, lastModified int64, entries ...Entry) *Manifest {
	m := newManifest(origin, lastModified)
	for _, e := range entries {
		m.add(e)
	}
	return m
}

func newManifest(origin string, lastModified int64) *Manifest {
	return &Manifest{
		origin:       origin,
		lastModified: lastModified,
		entries:      btree.NewMap[string, Entry](0),
	}
}

// add stores e and reports false if the name was already present.
func (m *Manifest) add(e Entry) bool {
	if _, exists := m.entries.Get(e.Name); exists {
		return false
	}
	m.entries.Set(e.Name, e)
	return true
}

// Origin identifies the backend that produced this manifest.
func (m *Manifest) Origin() string {
	return m.origin
}

// LastModified is the manifest's own timestamp in milliseconds.
func (m *Manifest) LastModified() int64 {
	return m.lastModified
}

func (m *Manifest) Len() int {
	return m.entries.Len()
}

// Lookup returns the entry for name.
func (m *Manifest) Lookup(name string) (Entry, bool) {
	return m.entries.Get(name)
}

func (m *Manifest) Has(name string) bool {
	_, ok := m.entries.Get(name)
	return ok
}

// Find returns all entries whose whole name matches re, in name order.
func (m *Manifest) Find(re *regexp.Regexp) []Entry {
	return m.match(anchored(re))
}

func (m *Manifest) match(full *regexp.Regexp) []Entry {
	var matches []Entry
	m.entries.Scan(func(name string, e Entry) bool {
		if full.MatchString(name) {
			matches = append(matches, e)
		}
		return true
	})
	return matches
}

// Names returns the names of all entries whose whole name matches re.
func (m *Manifest) Names(re *regexp.Regexp) []string {
	entries := m.Find(re)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name)
	}
	return names
}

// Entries returns every entry in name order.
func (m *Manifest) Entries() []Entry {
	entries := make([]Entry, 0, m.entries.Len())
	m.entries.Scan(func(_ string, e Entry) bool {
		entries = append(entries, e)
		return true
	})
	return entries
}

// WriteTo writes the manifest in its line format.
func (m *Manifest) WriteTo(w io.Writer) (int64, error) {
	bw := bufio.NewWriter(w)

	var written int64
	var err error
	m.entries.Scan(func(_ string, e Entry) bool {
		var n int
		n, err = bw.WriteString(e.String() + "\n")
		written += int64(n)
		return err == nil
	})
	if err != nil {
		return written, err
	}

	return written, bw.Flush()
}

// anchored wraps re so that it only matches complete names.
func anchored(re *regexp.Regexp) *regexp.Regexp {
	return regexp.MustCompile(`^(?:` + re.String() + `)$`)
}
