package archive

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/klauspost/compress/zip"
	"github.com/mwantia/assetloader/data"
	errs "github.com/mwantia/assetloader/data/errors"
	"github.com/mwantia/assetloader/log"
)

// Path identifies how a member was extracted.
type Path int

const (
	// PathLocal opened a container file that already exists on local disk.
	PathLocal Path = iota + 1
	// PathRandomAccess read the container through random access.
	PathRandomAccess
	// PathTemporary drained the container stream to a temporary file.
	PathTemporary
)

func (p Path) String() string {
	switch p {
	case PathLocal:
		return "local"
	case PathRandomAccess:
		return "random-access"
	case PathTemporary:
		return "temporary"
	default:
		return "unknown"
	}
}

// ReaderAtCloser is random access to a container.
type ReaderAtCloser interface {
	io.ReaderAt
	io.Closer
}

// Source describes where a container can be read from. Extract uses the
// first option that is available.
type Source struct {
	// Container is the asset name of the archive, used in errors and logs.
	Container string
	// Member is the name of the wanted entry inside the archive.
	Member string

	LocalPath    string
	OpenReaderAt func(ctx context.Context) (ReaderAtCloser, int64, error)
	OpenStream   func(ctx context.Context) (data.Stream, error)
}

type Extractor struct {
	tempDir string
	logger  *log.Logger
}

// NewExtractor returns an extractor that stores drained containers in
// tempDir, or the system temp directory if it is empty.
func NewExtractor(tempDir string, logger *log.Logger) *Extractor {
	if logger == nil {
		logger = log.NewDiscardLogger()
	}

	return &Extractor{
		tempDir: tempDir,
		logger:  logger,
	}
}

// Extract returns a stream of the member's bytes. A member that is not in the
// archive yields data.ErrNotFound, an unreadable archive data.ErrLoadFailure.
func (x *Extractor) Extract(ctx context.Context, src Source) (data.Stream, error) {
	if src.LocalPath != "" {
		if info, err := os.Stat(src.LocalPath); err == nil && info.Mode().IsRegular() {
			return x.fromLocal(src)
		}
	}

	if src.OpenReaderAt != nil {
		return x.fromReaderAt(ctx, src)
	}

	if src.OpenStream != nil {
		return x.fromStream(ctx, src)
	}

	return nil, errs.LoadFailed(data.ErrInvalid, "no way to read container %s", src.Container)
}

func (x *Extractor) fromLocal(src Source) (data.Stream, error) {
	x.logger.Debug("Extract: %s from local container %s", src.Member, src.LocalPath)

	zr, err := zip.OpenReader(src.LocalPath)
	if err != nil {
		return nil, errs.LoadFailed(err, "failed to open archive %s", src.Container)
	}

	stream, err := openMember(&zr.Reader, src, PathLocal)
	if err != nil {
		zr.Close()
		return nil, err
	}

	stream.cleanup = append(stream.cleanup, zr.Close)
	return stream, nil
}

func (x *Extractor) fromReaderAt(ctx context.Context, src Source) (data.Stream, error) {
	x.logger.Debug("Extract: %s from %s via random access", src.Member, src.Container)

	ra, size, err := src.OpenReaderAt(ctx)
	if err != nil {
		return nil, err
	}

	zr, err := zip.NewReader(ra, size)
	if err != nil {
		ra.Close()
		return nil, errs.LoadFailed(err, "failed to read archive %s", src.Container)
	}

	stream, err := openMember(zr, src, PathRandomAccess)
	if err != nil {
		ra.Close()
		return nil, err
	}

	stream.cleanup = append(stream.cleanup, ra.Close)
	return stream, nil
}

func (x *Extractor) fromStream(ctx context.Context, src Source) (data.Stream, error) {
	container, err := src.OpenStream(ctx)
	if err != nil {
		return nil, err
	}

	tmp, err := os.CreateTemp(x.tempDir, "assetloader-*.zip")
	if err != nil {
		container.Close()
		return nil, errs.LoadFailed(err, "failed to create temporary file for %s", src.Container)
	}
	remove := func() error {
		if err := os.Remove(tmp.Name()); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		return nil
	}

	x.logger.Debug("Extract: draining %s to %s", src.Container, tmp.Name())

	_, err = io.Copy(tmp, container)
	if cerr := container.Close(); err == nil {
		err = cerr
	}
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		remove()
		return nil, errs.LoadFailed(err, "failed to drain archive %s", src.Container)
	}

	zr, err := zip.OpenReader(tmp.Name())
	if err != nil {
		remove()
		return nil, errs.LoadFailed(err, "failed to open archive %s", src.Container)
	}

	stream, err := openMember(&zr.Reader, src, PathTemporary)
	if err != nil {
		zr.Close()
		remove()
		return nil, err
	}

	stream.cleanup = append(stream.cleanup, zr.Close, remove)
	return stream, nil
}

func openMember(zr *zip.Reader, src Source, via Path) (*member, error) {
	name := strings.TrimPrefix(src.Member, "/")

	for _, f := range zr.File {
		if strings.TrimPrefix(f.Name, "/") != name || f.FileInfo().IsDir() {
			continue
		}

		rc, err := f.Open()
		if err != nil {
			return nil, errs.LoadFailed(err, "failed to open %s in %s", src.Member, src.Container)
		}

		lastModified := data.UnknownTime
		if !f.Modified.IsZero() {
			lastModified = f.Modified.UnixMilli()
		}

		return &member{
			ReadCloser:   rc,
			size:         int64(f.UncompressedSize64),
			lastModified: lastModified,
			via:          via,
		}, nil
	}

	return nil, errs.AssetNotFound(nil, src.Container+"!"+src.Member)
}

// member is the stream of one archive entry. Closing it releases whatever
// was opened to reach the entry.
type member struct {
	io.ReadCloser

	size         int64
	lastModified int64
	via          Path
	cleanup      []func() error
	closed       bool
}

func (m *member) Read(p []byte) (int, error) {
	n, err := m.ReadCloser.Read(p)
	if err != nil && !errors.Is(err, io.EOF) {
		err = errs.LoadFailed(err, "corrupt archive member")
	}
	return n, err
}

func (m *member) Close() error {
	if m.closed {
		return nil
	}
	m.closed = true

	err := m.ReadCloser.Close()
	for _, fn := range m.cleanup {
		err = errors.Join(err, fn())
	}
	return err
}

func (m *member) Size() int64 {
	return m.size
}

func (m *member) LastModified() int64 {
	return m.lastModified
}

// Via reports which extraction path produced the stream.
func (m *member) Via() Path {
	return m.via
}

// PathOf reports the extraction path of a stream returned by Extract, looking
// through filters that wrap it.
func PathOf(s data.Stream) (Path, bool) {
	for s != nil {
		if m, ok := s.(*member); ok {
			return m.via, true
		}
		u, ok := s.(interface{ Unwrap() data.Stream })
		if !ok {
			break
		}
		s = u.Unwrap()
	}
	return 0, false
}
