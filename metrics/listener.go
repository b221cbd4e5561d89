package metrics

import (
	"sync"

	"github.com/mwantia/assetloader/event"
)

// Listener turns progress events into download metrics.
type Listener struct {
	mu     sync.Mutex
	totals map[string]int64
}

var _ event.Listener = (*Listener)(nil)

func NewListener() *Listener {
	return &Listener{
		totals: make(map[string]int64),
	}
}

func (l *Listener) Requested(key string) {}

func (l *Listener) DownloadStarting(key string, size int64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.totals[key] = 0
}

func (l *Listener) DownloadProgress(key string, total int64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.totals[key] = total
}

func (l *Listener) DownloadComplete(key string) {
	l.mu.Lock()
	total := l.totals[key]
	delete(l.totals, key)
	l.mu.Unlock()

	RecordDownload(total, true)
}

func (l *Listener) Supplied(key string) {}

// InFlight returns the number of downloads started but not completed.
func (l *Listener) InFlight() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.totals)
}
