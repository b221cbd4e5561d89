package crypt

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/mwantia/assetloader/log"
)

type Mode int

const (
	Encrypt Mode = iota
	Decrypt
)

func (m Mode) String() string {
	if m == Decrypt {
		return "decrypt"
	}
	return "encrypt"
}

// BatchResult counts the files a batch run touched.
type BatchResult struct {
	Processed int
	Skipped   int
}

// Batch encrypts or decrypts every regular file below source into the same
// relative path below target. A target whose modification time lies in the
// same minute as its source is considered up to date and skipped. Targets
// get the modification time of their source.
func Batch(ctx context.Context, c *Context, mode Mode, source, target string, logger *log.Logger) (BatchResult, error) {
	if logger == nil {
		logger = log.NewDiscardLogger()
	}

	var result BatchResult
	err := filepath.WalkDir(source, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if !d.Type().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(source, path)
		if err != nil {
			return err
		}

		info, err := d.Info()
		if err != nil {
			return err
		}

		dst := filepath.Join(target, rel)
		if upToDate(info, dst) {
			logger.Debug("Batch: %s is up to date", rel)
			result.Skipped++
			return nil
		}

		if err := process(c, mode, path, dst, info); err != nil {
			return fmt.Errorf("failed to %s %s: %w", mode, rel, err)
		}

		logger.Debug("Batch: %sed %s", mode, rel)
		result.Processed++
		return nil
	})

	return result, err
}

func upToDate(src fs.FileInfo, dst string) bool {
	info, err := os.Stat(dst)
	if err != nil {
		return false
	}
	return info.ModTime().UnixMilli()/60000 == src.ModTime().UnixMilli()/60000
}

func process(c *Context, mode Mode, src, dst string, info fs.FileInfo) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}

	switch mode {
	case Encrypt:
		err = encryptTo(out, in, c, info.Size())
	case Decrypt:
		err = decryptTo(out, in, c)
	}
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(dst)
		return err
	}

	return os.Chtimes(dst, info.ModTime(), info.ModTime())
}

func encryptTo(dst io.Writer, src io.Reader, c *Context, size int64) error {
	w, err := NewWriter(nopCloser{dst}, c, size)
	if err != nil {
		return err
	}
	if _, err := io.Copy(w, src); err != nil {
		return err
	}
	return w.Close()
}

func decryptTo(dst io.Writer, src io.ReadCloser, c *Context) error {
	r, err := NewReader(src, c)
	if err != nil {
		return err
	}
	_, err = io.Copy(dst, r)
	return err
}

type nopCloser struct {
	io.Writer
}

func (nopCloser) Close() error {
	return nil
}
