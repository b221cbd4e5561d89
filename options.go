package assetloader

import (
	"github.com/mwantia/assetloader/lock"
	"github.com/mwantia/assetloader/log"
	"github.com/mwantia/assetloader/manifest/mirror"
)

type LoaderOptions struct {
	LogLevel      log.LogLevel
	LogFile       string
	NoTerminalLog bool
	Logger        *log.Logger
	Mirror        *mirror.Mirror
	Locks         *lock.Registry
}

type LoaderOption func(*LoaderOptions) error

func newDefaultLoaderOptions() *LoaderOptions {
	return &LoaderOptions{
		LogLevel: log.Info,
	}
}

func WithLogLevel(logLevel log.LogLevel) LoaderOption {
	return func(opts *LoaderOptions) error {
		opts.LogLevel = logLevel
		return nil
	}
}

func WithoutTerminalLog() LoaderOption {
	return func(opts *LoaderOptions) error {
		opts.NoTerminalLog = true
		return nil
	}
}

func WithLogFile(logFile string) LoaderOption {
	return func(opts *LoaderOptions) error {
		opts.LogFile = logFile
		return nil
	}
}

// WithLogger replaces the logger built from the log options.
func WithLogger(logger *log.Logger) LoaderOption {
	return func(opts *LoaderOptions) error {
		opts.Logger = logger
		return nil
	}
}

// WithManifestMirror keeps a copy of every loaded manifest in m and falls
// back to it when an origin cannot be indexed.
func WithManifestMirror(m *mirror.Mirror) LoaderOption {
	return func(opts *LoaderOptions) error {
		opts.Mirror = m
		return nil
	}
}

func WithLockRegistry(registry *lock.Registry) LoaderOption {
	return func(opts *LoaderOptions) error {
		opts.Locks = registry
		return nil
	}
}
