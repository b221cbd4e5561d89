package mirror

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/mwantia/assetloader/data"
	"github.com/mwantia/assetloader/manifest"
)

// TestMirrorFactory opens a mirror for testing.
type TestMirrorFactory func(t *testing.T) (*Mirror, error)

func GetTestMirrorFactories() map[string]TestMirrorFactory {
	return map[string]TestMirrorFactory{
		"memory": func(t *testing.T) (*Mirror, error) {
			return Open(":memory:")
		},
		"file": func(t *testing.T) (*Mirror, error) {
			return Open(filepath.Join(t.TempDir(), "mirror.db"))
		},
	}
}

func TestMirror_SaveLoad(t *testing.T) {
	for name, factory := range GetTestMirrorFactories() {
		t.Run(name, func(tst *testing.T) {
			ctx := tst.Context()

			m, err := factory(tst)
			if err != nil {
				tst.Fatalf("Open failed: %v", err)
			}
			defer m.Close()

			original := manifest.New("http://index.dat", 1234,
				manifest.NewEntry("a.txt", 1, 10),
				manifest.Entry{Name: "b.bin", LastModified: 2, Size: 20, UnprocessedSize: 46},
			)
			if err := m.Save(ctx, original); err != nil {
				tst.Fatalf("Save failed: %v", err)
			}

			// A second save replaces the rows of the origin.
			updated := manifest.New("http://index.dat", 5678,
				manifest.NewEntry("a.txt", 3, 11),
			)
			if err := m.Save(ctx, updated); err != nil {
				tst.Fatalf("Save failed: %v", err)
			}

			loaded, err := m.Load(ctx, "http://index.dat")
			if err != nil {
				tst.Fatalf("Load failed: %v", err)
			}
			if loaded.LastModified() != 5678 || loaded.Len() != 1 {
				tst.Errorf("Expected updated manifest, got lm=%d len=%d", loaded.LastModified(), loaded.Len())
			}
			if e, ok := loaded.Lookup("a.txt"); !ok || e.LastModified != 3 || e.Size != 11 {
				tst.Errorf("Unexpected entry %+v", e)
			}

			if _, err := m.Load(ctx, "missing://index.dat"); !errors.Is(err, data.ErrNotFound) {
				tst.Errorf("Expected ErrNotFound, got %v", err)
			}

			origins, err := m.Origins(ctx)
			if err != nil {
				tst.Fatalf("Origins failed: %v", err)
			}
			if len(origins) != 1 || origins[0] != "http://index.dat" {
				tst.Errorf("Unexpected origins %v", origins)
			}
		})
	}
}

func TestMirror_UnprocessedSize(t *testing.T) {
	ctx := t.Context()

	m, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer m.Close()

	if err := m.Save(ctx, manifest.New("o", 0, manifest.Entry{Name: "x", LastModified: 1, Size: 2, UnprocessedSize: 28})); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := m.Load(ctx, "o")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if e, _ := loaded.Lookup("x"); e.UnprocessedSize != 28 {
		t.Errorf("Expected unprocessed size 28, got %d", e.UnprocessedSize)
	}

	if err := m.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := m.Close(); !errors.Is(err, data.ErrClosed) {
		t.Errorf("Expected ErrClosed on second close, got %v", err)
	}
}
