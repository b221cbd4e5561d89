package event

// Listener observes the life cycle of a resolution. Calls are synchronous on
// the goroutine that resolves or reads the asset.
type Listener interface {
	// Requested fires when a caller asks the loader for key.
	Requested(key string)
	// DownloadStarting fires once, on the first byte read from the network.
	// size is the byte size announced by the origin, or -1.
	DownloadStarting(key string, size int64)
	// DownloadProgress reports the number of bytes read so far.
	DownloadProgress(key string, total int64)
	// DownloadComplete fires on close of a download that transferred bytes.
	DownloadComplete(key string)
	// Supplied fires when a stream for key was handed to the caller.
	Supplied(key string)
}

// Funcs adapts optional functions to a Listener. Nil fields are ignored.
type Funcs struct {
	OnRequested        func(key string)
	OnDownloadStarting func(key string, size int64)
	OnDownloadProgress func(key string, total int64)
	OnDownloadComplete func(key string)
	OnSupplied         func(key string)
}

func (f *Funcs) Requested(key string) {
	if f.OnRequested != nil {
		f.OnRequested(key)
	}
}

func (f *Funcs) DownloadStarting(key string, size int64) {
	if f.OnDownloadStarting != nil {
		f.OnDownloadStarting(key, size)
	}
}

func (f *Funcs) DownloadProgress(key string, total int64) {
	if f.OnDownloadProgress != nil {
		f.OnDownloadProgress(key, total)
	}
}

func (f *Funcs) DownloadComplete(key string) {
	if f.OnDownloadComplete != nil {
		f.OnDownloadComplete(key)
	}
}

func (f *Funcs) Supplied(key string) {
	if f.OnSupplied != nil {
		f.OnSupplied(key)
	}
}

// Emitter is what resolvers fire events through. A Bus is an Emitter.
type Emitter interface {
	Listener
}

// Nop is an Emitter that drops every event.
var Nop Emitter = &Funcs{}
