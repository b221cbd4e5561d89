package manifest

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/mwantia/assetloader/data"
	"github.com/mwantia/assetloader/log"
)

const maxLineLength = 1 << 20

// Parse reads a manifest in the tab-delimited line format
//
//	name \t lastModifiedMs \t size [ \t unprocessedSize ]
//
// Malformed lines are logged and skipped; only a read error from r fails.
func Parse(r io.Reader, origin string, lastModified int64, logger *log.Logger) (*Manifest, error) {
	if logger == nil {
		logger = log.NewDiscardLogger()
	}

	m := newManifest(origin, lastModified)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineLength)

	lineNo := 0
	skipped := 0
	for scanner.Scan() {
		lineNo++

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		entry, err := ParseLine(line)
		if err != nil {
			skipped++
			logger.Warn("Parse: skipping line %d of %s: %v", lineNo, origin, err)
			continue
		}

		if !m.add(entry) {
			logger.Warn("Parse: duplicate entry %s on line %d of %s, keeping the first", entry.Name, lineNo, origin)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read manifest %s: %w", origin, err)
	}

	logger.Debug("Parse: loaded %d entries from %s (%d skipped)", m.Len(), origin, skipped)
	return m, nil
}

// ParseLine parses a single manifest line.
func ParseLine(line string) (Entry, error) {
	fields := strings.Split(line, "\t")
	if len(fields) != 3 && len(fields) != 4 {
		return Entry{}, fmt.Errorf("expected 3 or 4 tab-separated fields, got %d", len(fields))
	}

	if fields[0] == "" {
		return Entry{}, fmt.Errorf("empty name")
	}
	name, ok := data.CleanName(fields[0])
	if !ok {
		return Entry{}, fmt.Errorf("invalid name %q", fields[0])
	}

	lastModified, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return Entry{}, fmt.Errorf("invalid last modified %q: %w", fields[1], err)
	}

	size, err := strconv.ParseInt(fields[2], 10, 64)
	if err != nil {
		return Entry{}, fmt.Errorf("invalid size %q: %w", fields[2], err)
	}

	entry := NewEntry(name, lastModified, size)
	if len(fields) == 4 {
		unprocessed, err := strconv.ParseInt(fields[3], 10, 64)
		if err != nil {
			return Entry{}, fmt.Errorf("invalid unprocessed size %q: %w", fields[3], err)
		}
		entry.UnprocessedSize = unprocessed
	}

	return entry, nil
}
