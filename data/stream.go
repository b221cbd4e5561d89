package data

import "io"

// UnknownTime marks a last-modified timestamp that is not known.
const UnknownTime int64 = -1

// UnknownSize marks a byte size that is not known.
const UnknownSize int64 = -1

// Stream is the byte stream of a resolved asset. Filters in a resolution
// pipeline wrap one Stream in another.
type Stream interface {
	io.Reader
	io.Closer
}

// Sizer is implemented by streams that know their effective byte size.
type Sizer interface {
	Size() int64
}

// Modifier is implemented by streams that know the last-modified time of
// their source, in milliseconds since the epoch.
type Modifier interface {
	LastModified() int64
}

// Availabler is implemented by streams that can report how many bytes are
// readable without blocking.
type Availabler interface {
	Available() int
}

// SizeOf returns the size reported by s or UnknownSize.
func SizeOf(s any) int64 {
	if sz, ok := s.(Sizer); ok {
		return sz.Size()
	}
	return UnknownSize
}

// LastModifiedOf returns the last-modified time reported by s or UnknownTime.
func LastModifiedOf(s any) int64 {
	if m, ok := s.(Modifier); ok {
		return m.LastModified()
	}
	return UnknownTime
}

// AvailableOf returns the availability reported by s or 0.
func AvailableOf(s any) int {
	if a, ok := s.(Availabler); ok {
		return a.Available()
	}
	return 0
}

// Filter forwards every stream capability to Source. Stream transformers
// embed it and override only what they change.
type Filter struct {
	Source Stream
}

func (f *Filter) Read(p []byte) (int, error) {
	return f.Source.Read(p)
}

func (f *Filter) Close() error {
	return f.Source.Close()
}

func (f *Filter) Size() int64 {
	return SizeOf(f.Source)
}

func (f *Filter) LastModified() int64 {
	return LastModifiedOf(f.Source)
}

func (f *Filter) Available() int {
	return AvailableOf(f.Source)
}

// Unwrap returns the wrapped stream.
func (f *Filter) Unwrap() Stream {
	return f.Source
}

// Meta attaches a fixed size and last-modified time to a plain ReadCloser.
type Meta struct {
	io.ReadCloser

	ByteSize int64
	Modified int64
}

// NewMeta wraps rc so that it reports size and lastModified.
func NewMeta(rc io.ReadCloser, size, lastModified int64) *Meta {
	return &Meta{
		ReadCloser: rc,
		ByteSize:   size,
		Modified:   lastModified,
	}
}

func (m *Meta) Size() int64 {
	return m.ByteSize
}

func (m *Meta) LastModified() int64 {
	return m.Modified
}

func (m *Meta) Available() int {
	return AvailableOf(m.ReadCloser)
}
