package data

import (
	"net/url"
	"path"
	"strings"
	"time"
)

// CleanName normalizes an asset name: forward slashes, no leading slash,
// no "." segments. It reports false for names that are empty or escape the
// root with "..".
func CleanName(name string) (string, bool) {
	name = strings.ReplaceAll(name, "\\", "/")
	name = strings.TrimLeft(name, "/")
	if name == "" {
		return "", false
	}

	cleaned := path.Clean(name)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", false
	}

	return cleaned, true
}

// Folder returns the directory part of name, or "" for top-level names.
func Folder(name string) string {
	dir := path.Dir(name)
	if dir == "." || dir == "/" {
		return ""
	}
	return dir
}

// EscapePath percent-encodes every "/" separated segment of name on its own
// and keeps the separators.
func EscapePath(name string) string {
	segments := strings.Split(name, "/")
	for i, segment := range segments {
		segments[i] = url.PathEscape(segment)
	}
	return strings.Join(segments, "/")
}

// ToMillis converts t to milliseconds since the epoch. The zero time maps to
// UnknownTime.
func ToMillis(t time.Time) int64 {
	if t.IsZero() {
		return UnknownTime
	}
	return t.UnixMilli()
}

// FromMillis converts milliseconds since the epoch to a time. UnknownTime maps
// to the zero time.
func FromMillis(ms int64) time.Time {
	if ms < 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
