package cache

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/mwantia/assetloader/data"
	"github.com/mwantia/assetloader/metrics"
)

// tee copies everything read from its source into a temporary file next to
// the cache entry. The entry is only replaced once the source reached EOF.
type tee struct {
	data.Filter

	store        *Store
	key          string
	target       string
	lastModified int64

	tmp     *os.File
	written int64
}

// Write returns a stream reading src that fills the cache entry for key as a
// side effect. Failing to write the cache never fails the returned stream;
// caching is dropped for it and the failure is logged.
func (s *Store) Write(key string, src data.Stream, lastModified int64) (data.Stream, error) {
	target, err := s.Path(key)
	if err != nil {
		return nil, err
	}

	t := &tee{
		Filter: data.Filter{
			Source: src,
		},
		store:        s,
		key:          key,
		target:       target,
		lastModified: lastModified,
	}

	tmp, err := s.createTemp(target)
	if err != nil {
		s.logger.Warn("Write: not caching %s: %v", key, err)
		metrics.RecordCacheWrite(false)
		return t, nil
	}
	t.tmp = tmp

	return t, nil
}

func (s *Store) createTemp(target string) (*os.File, error) {
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	name := fmt.Sprintf(".%s.%s.tmp", filepath.Base(target), uuid.NewString())
	return os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
}

func (t *tee) Read(p []byte) (int, error) {
	n, err := t.Source.Read(p)

	if n > 0 && t.tmp != nil {
		if _, werr := t.tmp.Write(p[:n]); werr != nil {
			t.store.logger.Warn("Read: cache write of %s failed, caching disabled: %v", t.key, werr)
			t.discard()
		} else {
			t.written += int64(n)
		}
	}

	if t.tmp != nil {
		switch {
		case errors.Is(err, io.EOF):
			t.commit()
		case err != nil:
			t.discard()
		}
	}

	return n, err
}

func (t *tee) Close() error {
	if t.tmp != nil {
		t.store.logger.Debug("Close: %s closed before end of stream, discarding partial cache file", t.key)
		t.discard()
	}
	return t.Source.Close()
}

func (t *tee) commit() {
	tmp := t.tmp
	t.tmp = nil

	err := tmp.Sync()
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err == nil && t.lastModified >= 0 {
		mtime := time.UnixMilli(t.lastModified)
		err = os.Chtimes(tmp.Name(), mtime, mtime)
	}
	if err == nil {
		err = os.Rename(tmp.Name(), t.target)
	}

	if err != nil {
		os.Remove(tmp.Name())
		t.store.logger.Warn("Read: failed to store %s in cache: %v", t.key, err)
		metrics.RecordCacheWrite(false)
		return
	}

	t.store.logger.Debug("Read: cached %s (%d bytes)", t.key, t.written)
	metrics.RecordCacheWrite(true)
}

func (t *tee) discard() {
	tmp := t.tmp
	t.tmp = nil

	tmp.Close()
	os.Remove(tmp.Name())
	metrics.RecordCacheWrite(false)
}
