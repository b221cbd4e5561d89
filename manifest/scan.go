package manifest

import (
	"fmt"
	"io/fs"

	"github.com/mwantia/assetloader/data"
)

// ScanOptions control how Scan turns files into entries.
type ScanOptions struct {
	// Skip excludes a file (name relative to the scan root) from the listing.
	Skip func(name string) bool
	// ProcessedSize reports the size a file has once processed, for files
	// whose stored form differs (e.g. encrypted). When it reports true the
	// entry's Size is the processed size and UnprocessedSize the stored size.
	ProcessedSize func(fsys fs.FS, name string) (int64, bool, error)
}

// Scan walks root inside fsys and returns an entry for every regular file,
// named relative to root and ordered by name.
func Scan(fsys fs.FS, root string, opts ScanOptions) ([]Entry, error) {
	if root == "" {
		root = "."
	}

	m := newManifest("", data.UnknownTime)
	err := fs.WalkDir(fsys, root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}

		name := p
		if root != "." {
			name = p[len(root):]
		}
		name, ok := data.CleanName(name)
		if !ok {
			return nil
		}
		if opts.Skip != nil && opts.Skip(name) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return fmt.Errorf("failed to stat %s: %w", p, err)
		}

		entry := NewEntry(name, data.ToMillis(info.ModTime()), info.Size())
		if opts.ProcessedSize != nil {
			size, processed, err := opts.ProcessedSize(fsys, p)
			if err != nil {
				return fmt.Errorf("failed to size %s: %w", p, err)
			}
			if processed {
				entry.UnprocessedSize = entry.Size
				entry.Size = size
			}
		}

		m.add(entry)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return m.Entries(), nil
}
