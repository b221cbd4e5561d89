package manifest

import (
	"cmp"
	"fmt"
	"strings"

	"github.com/mwantia/assetloader/data"
)

// Entry describes one asset listed in a manifest. Entries are values and
// never change once parsed.
type Entry struct {
	Name string
	// LastModified is in milliseconds since the epoch, or data.UnknownTime.
	LastModified int64
	// Size is the byte size after processing (decryption, decompression).
	Size int64
	// UnprocessedSize is the raw byte size, or -1 if unknown.
	UnprocessedSize int64
}

// NewEntry returns an entry without an unprocessed size.
func NewEntry(name string, lastModified, size int64) Entry {
	return Entry{
		Name:            name,
		LastModified:    lastModified,
		Size:            size,
		UnprocessedSize: data.UnknownSize,
	}
}

// Compare orders entries by name, then by last-modified time.
func Compare(a, b Entry) int {
	if c := strings.Compare(a.Name, b.Name); c != 0 {
		return c
	}
	return cmp.Compare(a.LastModified, b.LastModified)
}

func less(a, b Entry) bool {
	return Compare(a, b) < 0
}

// String renders the entry as a manifest line without the trailing newline.
func (e Entry) String() string {
	if e.UnprocessedSize >= 0 {
		return fmt.Sprintf("%s\t%d\t%d\t%d", e.Name, e.LastModified, e.Size, e.UnprocessedSize)
	}
	return fmt.Sprintf("%s\t%d\t%d", e.Name, e.LastModified, e.Size)
}
