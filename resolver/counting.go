package resolver

import (
	"github.com/mwantia/assetloader/data"
	"github.com/mwantia/assetloader/event"
)

// counting reports download progress of a network stream. The start event
// fires on the first byte actually read, and completion only for streams
// that started.
type counting struct {
	data.Filter

	events event.Emitter
	key    string
	size   int64

	started  bool
	complete bool
	total    int64
}

func newCounting(src data.Stream, events event.Emitter, key string, size int64) *counting {
	return &counting{
		Filter: data.Filter{
			Source: src,
		},
		events: events,
		key:    key,
		size:   size,
	}
}

func (c *counting) Read(p []byte) (int, error) {
	n, err := c.Source.Read(p)
	if n > 0 {
		if !c.started {
			c.started = true
			c.events.DownloadStarting(c.key, c.size)
		}
		c.total += int64(n)
		c.events.DownloadProgress(c.key, c.total)
	}
	return n, err
}

func (c *counting) Close() error {
	err := c.Source.Close()
	if c.started && !c.complete {
		c.complete = true
		c.events.DownloadComplete(c.key)
	}
	return err
}
