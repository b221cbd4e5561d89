package event

import "sync"

// Bus fans events out to registered listeners, most recently added first.
type Bus struct {
	mu        sync.RWMutex
	listeners []Listener
}

func NewBus() *Bus {
	return &Bus{}
}

func (b *Bus) Add(l Listener) {
	if l == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.listeners = append(b.listeners, l)
}

// Remove drops the first registration of l and reports whether it was found.
func (b *Bus) Remove(l Listener) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, existing := range b.listeners {
		if existing == l {
			b.listeners = append(b.listeners[:i:i], b.listeners[i+1:]...)
			return true
		}
	}
	return false
}

func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return len(b.listeners)
}

// each calls fn for every listener in reverse registration order. The list
// is copied first so listeners may add or remove listeners.
func (b *Bus) each(fn func(Listener)) {
	b.mu.RLock()
	listeners := append([]Listener(nil), b.listeners...)
	b.mu.RUnlock()

	for i := len(listeners) - 1; i >= 0; i-- {
		fn(listeners[i])
	}
}

func (b *Bus) Requested(key string) {
	b.each(func(l Listener) { l.Requested(key) })
}

func (b *Bus) DownloadStarting(key string, size int64) {
	b.each(func(l Listener) { l.DownloadStarting(key, size) })
}

func (b *Bus) DownloadProgress(key string, total int64) {
	b.each(func(l Listener) { l.DownloadProgress(key, total) })
}

func (b *Bus) DownloadComplete(key string) {
	b.each(func(l Listener) { l.DownloadComplete(key) })
}

func (b *Bus) Supplied(key string) {
	b.each(func(l Listener) { l.Supplied(key) })
}
